// Package app loads the onboarding bot configuration and wires its components
// onto the shared bot runtime.
package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/onboardbot/core/config"
	coredatabase "github.com/m3rciful/onboardbot/core/database"
	tgsender "github.com/m3rciful/onboardbot/core/telegram/sender"
	"github.com/m3rciful/onboardbot/onboarding"
)

// Storage drivers.
const (
	StorageJSON     = "json"
	StoragePostgres = coredatabase.DriverPostgres
	StorageSQLite   = coredatabase.DriverSQLite
)

const defaultJSONPath = "users.json"

// OnboardingConfig holds the flow specific settings.
type OnboardingConfig struct {
	ReferralLink string `yaml:"referral_link" envconfig:"ONBOARDING_REFERRAL_LINK"`
	GroupLink    string `yaml:"group_link" envconfig:"ONBOARDING_GROUP_LINK"`
	// TransferImages are the two screenshots sent with the transfer instructions,
	// each a URL or a local file path.
	TransferImages []string `yaml:"transfer_images" envconfig:"ONBOARDING_TRANSFER_IMAGES"`
	// CatalogPath optionally points at a YAML file overriding message texts.
	CatalogPath string `yaml:"catalog_path" envconfig:"ONBOARDING_CATALOG_PATH"`
}

// StorageConfig selects where user records live.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	// Path is the JSON document or SQLite file.
	Path string `yaml:"path" envconfig:"STORAGE_PATH"`
}

// SenderConfig tunes the asynchronous outbound queue.
type SenderConfig struct {
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// Config is the full bot configuration. The core part is shared with the runtime.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Onboarding OnboardingConfig    `yaml:"onboarding"`
	Storage    StorageConfig       `yaml:"storage"`
	Database   coredatabase.Config `yaml:"database"`
	Sender     SenderConfig        `yaml:"sender"`
}

// CoreConfig exposes the embedded runtime configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, overlays the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the core and onboarding sections and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = StorageJSON
	}
	switch driver {
	case StorageJSON:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			cfg.Storage.Path = defaultJSONPath
		}
	case StorageSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required when storage.driver is 'sqlite'")
		}
	case StoragePostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when storage.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: json, sqlite, postgres", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver

	if n := len(cfg.Onboarding.TransferImages); n != 0 && n != 2 {
		return fmt.Errorf("onboarding.transfer_images needs exactly 2 entries, got %d", n)
	}
	if cfg.Sender.Workers < 0 || cfg.Sender.QueueSize < 0 || cfg.Sender.MaxRetries < 0 || cfg.Sender.RetryBackoffMS < 0 {
		return fmt.Errorf("sender settings must be >= 0")
	}
	return nil
}

// DatabaseConfig returns the connection settings for SQL storage, or nil
// when records are kept in a JSON document.
func (c *Config) DatabaseConfig() *coredatabase.Config {
	switch c.Storage.Driver {
	case StoragePostgres:
		db := c.Database
		db.Driver = coredatabase.DriverPostgres
		return &db
	case StorageSQLite:
		db := c.Database
		db.Driver = coredatabase.DriverSQLite
		db.Path = c.Storage.Path
		return &db
	}
	return nil
}

// ImagesProblem explains why Images returns nil, or is empty when the
// transfer screenshots are usable.
func (c *Config) ImagesProblem() string {
	switch n := len(c.Onboarding.TransferImages); {
	case n == 0:
		return "transfer_images_missing"
	case n != 2:
		return "transfer_images_count"
	}
	return ""
}

// Images maps the catalog image keys to the configured transfer screenshots.
func (c *Config) Images() map[string]string {
	if len(c.Onboarding.TransferImages) != 2 {
		return nil
	}
	return map[string]string{
		onboarding.ImageTransferStep1: c.Onboarding.TransferImages[0],
		onboarding.ImageTransferStep2: c.Onboarding.TransferImages[1],
	}
}

// DispatcherOptions converts the sender section for the runtime.
func (c *Config) DispatcherOptions() tgsender.Options {
	return tgsender.Options{
		Workers:      c.Sender.Workers,
		QueueSize:    c.Sender.QueueSize,
		MaxRetries:   c.Sender.MaxRetries,
		RetryBackoff: time.Duration(c.Sender.RetryBackoffMS) * time.Millisecond,
	}
}
