// Package config holds the settings shared by every bot built on the core
// runtime: Telegram access, webhook, logging and rate limiting.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Run modes of the update poller.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

// TelegramConfig holds the bot token and the update source.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// AdminIDs lists the reviewers allowed to approve submissions and run admin commands.
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"TELEGRAM_ADMIN_IDS"`
	RunMode  string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds of 0 selects the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// IsAdmin reports whether userID is one of the configured admins.
func (t TelegramConfig) IsAdmin(userID int64) bool {
	return slices.Contains(t.AdminIDs, userID)
}

// WebhookConfig is used when RunMode is webhook.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Stacks      string `yaml:"stacks" envconfig:"LOG_STACKS"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile is "debug", "dev" or "prod"; it picks the default format.
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for the per-user token bucket. IntervalMS
// is the refill period of one token and 0 disables limiting.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst      int `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	// ExcludeUpdates lists update kinds that bypass the limiter.
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Decode reads the YAML file at path into dst and then overlays the
// environment. dst is any struct pointer, usually one embedding Config.
func Decode(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}

// Load decodes path into a core Config and normalizes it.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and reports every invalid field at once.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	return errors.Join(
		cfg.normalizeTelegram(),
		cfg.normalizeRateLimit(),
	)
}

func (cfg *Config) normalizeTelegram() error {
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch mode {
	case "", "polling", RunModeLongpoll:
		mode = RunModeLongpoll
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			errs = append(errs, errors.New("telegram.longpoll_timeout_seconds must be >= 0"))
		}
	case RunModeWebhook:
		w := cfg.Webhook
		if strings.TrimSpace(w.URL) == "" || strings.TrimSpace(w.Listen) == "" || w.Port <= 0 {
			errs = append(errs, errors.New("webhook mode needs webhook.url, webhook.listen and a positive webhook.port"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode))
	}
	cfg.Telegram.RunMode = mode

	admins := make([]int64, 0, len(cfg.Telegram.AdminIDs))
	for _, id := range cfg.Telegram.AdminIDs {
		switch {
		case id <= 0:
			errs = append(errs, fmt.Errorf("invalid telegram.admin_ids value %d", id))
		case !slices.Contains(admins, id):
			admins = append(admins, id)
		}
	}
	cfg.Telegram.AdminIDs = admins
	return errors.Join(errs...)
}

func (cfg *Config) normalizeRateLimit() error {
	rl := &cfg.RateLimit
	var errs []error
	if rl.IntervalMS < 0 || rl.Burst < 0 {
		errs = append(errs, errors.New("rate_limit.interval_ms and rate_limit.burst must be >= 0"))
	}
	rl.Burst = max(rl.Burst, 1)

	kinds := rl.ExcludeUpdates[:0]
	for _, v := range rl.ExcludeUpdates {
		switch k := strings.ToLower(strings.TrimSpace(v)); k {
		case "":
		case UpdateCallback, UpdateMessage:
			kinds = append(kinds, k)
		default:
			errs = append(errs, fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v))
		}
	}
	rl.ExcludeUpdates = kinds
	return errors.Join(errs...)
}
