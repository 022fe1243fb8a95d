// Package userconfig provides user-level configuration for hdtelemetry.
// This configuration is stored in ~/.config/hdtelemetry/config.yaml and
// says which helpdesk site to read telemetry settings from and how.
package userconfig

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/helpdesk/hdtelemetry/pkg/paths"
)

// CurrentVersion is the current version of the user config format
const CurrentVersion = "v1"

const (
	DefaultListen           = "127.0.0.1:8787"
	DefaultSettingsCacheTTL = 5 * time.Minute
)

// Environment variables that override the file.
const (
	EnvSiteURL   = "HDTELEMETRY_SITE_URL"
	EnvAPIKey    = "HDTELEMETRY_API_KEY"
	EnvAPISecret = "HDTELEMETRY_API_SECRET"
)

// Config represents the user-level hdtelemetry configuration
type Config struct {
	mu sync.Mutex

	// Version is the config format version
	Version string `yaml:"version,omitempty"`
	// SiteURL is the helpdesk site the settings are fetched from
	SiteURL string `yaml:"site_url,omitempty"`
	// APIKey and APISecret authenticate against the site
	APIKey    string `yaml:"api_key,omitempty"`
	APISecret string `yaml:"api_secret,omitempty"`
	// App prefixes captured event names (default "helpdesk")
	App string `yaml:"app,omitempty"`
	// SiteName overrides the identity derived from SiteURL
	SiteName string `yaml:"site_name,omitempty"`
	// SettingsCacheTTL is how long the relay reuses fetched settings, e.g. "5m"
	SettingsCacheTTL string `yaml:"settings_cache_ttl,omitempty"`
	// Listen is the relay server address
	Listen string `yaml:"listen,omitempty"`
}

// Keys lists the names accepted by Set.
var Keys = []string{"site_url", "api_key", "api_secret", "app", "site_name", "settings_cache_ttl", "listen"}

// Path returns the path to the config file
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Load reads the config file and applies environment overrides.
// A missing file yields an empty config.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom is Load for an explicit path.
func LoadFrom(path string) (*Config, error) {
	config, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	config.applyEnv()
	return config, nil
}

func readConfig(configPath string) (*Config, error) {
	config := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if _, err := config.CacheTTL(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv(EnvSiteURL); v != "" {
		c.SiteURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvAPISecret); v != "" {
		c.APISecret = v
	}
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.mu.Lock()
	c.Version = CurrentVersion
	data, err := yaml.Marshal(c)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Set assigns one of Keys. Durations and URLs are validated.
func (c *Config) Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys, ", "))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch key {
	case "site_url":
		if value != "" && !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return errors.New("site_url must start with http:// or https://")
		}
		c.SiteURL = strings.TrimRight(value, "/")
	case "api_key":
		c.APIKey = value
	case "api_secret":
		c.APISecret = value
	case "app":
		c.App = value
	case "site_name":
		c.SiteName = value
	case "settings_cache_ttl":
		if _, err := parseTTL(value); err != nil {
			return err
		}
		c.SettingsCacheTTL = value
	case "listen":
		c.Listen = value
	}
	return nil
}

// CacheTTL returns the settings cache TTL, DefaultSettingsCacheTTL when unset.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.SettingsCacheTTL == "" {
		return DefaultSettingsCacheTTL, nil
	}
	return parseTTL(c.SettingsCacheTTL)
}

func parseTTL(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid settings_cache_ttl %q: %w", v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid settings_cache_ttl %q: must not be negative", v)
	}
	return d, nil
}

// ListenAddr returns the relay address, DefaultListen when unset.
func (c *Config) ListenAddr() string {
	return cmp.Or(c.Listen, DefaultListen)
}

// Redacted returns a copy safe to print: the API secret is masked.
func (c *Config) Redacted() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &Config{
		Version:          c.Version,
		SiteURL:          c.SiteURL,
		APIKey:           c.APIKey,
		APISecret:        c.APISecret,
		App:              c.App,
		SiteName:         c.SiteName,
		SettingsCacheTTL: c.SettingsCacheTTL,
		Listen:           c.Listen,
	}
	if out.APISecret != "" {
		out.APISecret = "********"
	}
	return out
}
