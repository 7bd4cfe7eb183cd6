// Package config loads deekay settings from a YAML file, applies defaults
// and lets a few environment variables override the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/deekay/candidates"
	"github.com/hazyhaar/deekay/shield"
)

// Config is the top-level deekay configuration.
type Config struct {
	Index    IndexConfig       `yaml:"index"`
	Archive  ArchiveConfig     `yaml:"archive"`
	Rules    []candidates.Rule `yaml:"rules"` // nil = built-in rules, [] = none
	Coverage []string          `yaml:"coverage"`
	History  HistoryConfig     `yaml:"history"`
	Browser  BrowserConfig     `yaml:"browser"`
	Server   ServerConfig      `yaml:"server"`
	Report   ReportConfig      `yaml:"report"`
	LogLevel string            `yaml:"log_level"`

	// SchemeVariants toggles the http:// variants. Unset means on.
	SchemeVariants *bool `yaml:"scheme_variants"`
}

// IndexConfig locates and bounds shard fetches.
type IndexConfig struct {
	Base      string        `yaml:"base"` // URL or directory holding <prefix>.json
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
	// AllowPrivate lets an http(s) base resolve to loopback or private
	// addresses, for shard hosts on localhost or an intranet.
	AllowPrivate bool `yaml:"allow_private"`
}

// ArchiveConfig sets where snapshot links point.
type ArchiveConfig struct {
	Base string `yaml:"base"`
}

// HistoryConfig controls the pass log.
type HistoryConfig struct {
	Path          string `yaml:"path"` // empty disables the log
	RetentionDays int    `yaml:"retention_days"`
}

// BrowserConfig controls the headless page check.
type BrowserConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Remote           string        `yaml:"remote"`
	Stealth          bool          `yaml:"stealth"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr      string                 `yaml:"addr"`
	RateLimit shield.RateLimitConfig `yaml:"rate_limit"` // zero disables
}

// ReportConfig fills the "report this" link.
type ReportConfig struct {
	Version   string `yaml:"version"`
	IssueBase string `yaml:"issue_base"`
}

// Defaults.
const (
	DefaultShardBase   = "hashes"
	DefaultArchiveBase = "https://web.archive.org/web"
	DefaultCoverage    = "https://magic.wizards.com/"
	DefaultAddr        = ":8420"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path when non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DEEKAY_SHARD_BASE, DEEKAY_ARCHIVE_BASE,
// DEEKAY_DB, LOG_LEVEL and PORT.
func (c *Config) ApplyEnv(getenv func(string) string) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	c.Index.Base = env("DEEKAY_SHARD_BASE", c.Index.Base)
	c.Archive.Base = env("DEEKAY_ARCHIVE_BASE", c.Archive.Base)
	c.History.Path = env("DEEKAY_DB", c.History.Path)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	if port := getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
}

// UseSchemeVariants reports whether http:// variants are generated.
func (c *Config) UseSchemeVariants() bool {
	return c.SchemeVariants == nil || *c.SchemeVariants
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.Base == "" {
		errs = append(errs, errors.New("index.base is empty"))
	}
	if c.Index.MaxBytes < 0 {
		errs = append(errs, errors.New("index.max_bytes is negative"))
	}
	if _, err := candidates.New(c.Rules); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Index.Base == "" {
		c.Index.Base = DefaultShardBase
	}
	if c.Index.Timeout <= 0 {
		c.Index.Timeout = 15 * time.Second
	}
	if c.Index.MaxBytes == 0 {
		c.Index.MaxBytes = 8 << 20
	}
	if c.Index.UserAgent == "" {
		c.Index.UserAgent = "deekay/1.0"
	}
	if c.Archive.Base == "" {
		c.Archive.Base = DefaultArchiveBase
	}
	if len(c.Coverage) == 0 {
		c.Coverage = []string{DefaultCoverage}
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
