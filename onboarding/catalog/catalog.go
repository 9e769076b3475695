// Package catalog resolves message ids to user-facing text. Texts may carry
// {name} placeholders filled from the configured links and per-action args.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/onboardbot/onboarding"
)

// Options configure a catalog.
type Options struct {
	ReferralLink string
	GroupLink    string
	// Images maps image keys such as onboarding.ImageTransferStep1 to a URL or file path.
	Images map[string]string
	// Path optionally points at a YAML file overriding texts and images.
	Path string
}

// overrides is the YAML layout accepted at Options.Path.
type overrides struct {
	Messages map[string]string `yaml:"messages"`
	Images   map[string]string `yaml:"images"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	texts  map[onboarding.MessageID]string
	images map[string]string
	vars   map[string]string
}

// New builds the catalog from the defaults, opts and the optional override file.
func New(opts Options) (*Catalog, error) {
	c := &Catalog{
		texts:  make(map[onboarding.MessageID]string, len(defaultTexts)),
		images: make(map[string]string, len(opts.Images)),
		vars: map[string]string{
			"referral_link": opts.ReferralLink,
			"group_link":    opts.GroupLink,
		},
	}
	for id, text := range defaultTexts {
		c.texts[id] = text
	}
	for key, ref := range opts.Images {
		if ref = strings.TrimSpace(ref); ref != "" {
			c.images[key] = ref
		}
	}

	if path := strings.TrimSpace(opts.Path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		if err := c.apply(data); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	return c, nil
}

func (c *Catalog) apply(data []byte) error {
	var o overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	var unknown []string
	for key, text := range o.Messages {
		id := onboarding.MessageID(key)
		if _, ok := defaultTexts[id]; !ok {
			unknown = append(unknown, key)
			continue
		}
		c.texts[id] = text
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown message ids: %s", strings.Join(unknown, ", "))
	}
	for key, ref := range o.Images {
		if ref = strings.TrimSpace(ref); ref != "" {
			c.images[key] = ref
		}
	}
	return nil
}

// Text renders id with args. Args take precedence over configured links;
// placeholders without a value are left untouched. Unknown ids render as the id.
func (c *Catalog) Text(id onboarding.MessageID, args map[string]string) string {
	text, ok := c.texts[id]
	if !ok {
		return string(id)
	}
	if !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, 2*(len(c.vars)+len(args)))
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	for k, v := range c.vars {
		if _, shadowed := args[k]; shadowed {
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Image resolves an image key to its configured reference.
func (c *Catalog) Image(key string) (string, bool) {
	ref, ok := c.images[key]
	return ref, ok
}

// Has reports whether id has a text.
func (c *Catalog) Has(id onboarding.MessageID) bool {
	_, ok := c.texts[id]
	return ok
}
