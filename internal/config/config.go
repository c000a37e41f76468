// Package config handles loading and validation of notopress configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/natikgadzhi/notopress/internal/notion"
)

// Defaults applied to fields left empty in the config file.
const (
	DefaultAssetDir     = "assets"
	DefaultStoreDriver  = "json"
	DefaultStorePath    = ".notopress/store"
	DefaultConcurrency  = 4
	DefaultImageTimeout = 30 * time.Second
	DefaultSchedule     = "*/15 * * * *"
	DefaultMetricsAddr  = ":9090"
	DefaultExportDir    = "export"

	maxConcurrency = 16
)

// SourceConfig names the Notion database to mirror.
type SourceConfig struct {
	// Database is a database share URL or raw ID.
	Database string `yaml:"database"`

	// FilterProperty, when set, limits the query to pages whose checkbox
	// property of that name is checked.
	FilterProperty string `yaml:"filter_property,omitempty"`

	// SortProperty, when set, orders pages by that property, newest first.
	SortProperty string `yaml:"sort_property,omitempty"`
}

// OutputConfig specifies where rendered content and assets live.
type OutputConfig struct {
	ContentRoot string `yaml:"content_root"`
	AssetDir    string `yaml:"asset_dir"`
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Options contains optional sync behavior settings.
type Options struct {
	Concurrency int `yaml:"concurrency"`

	// DownloadImages controls whether to cache Notion-hosted and external
	// images locally. Defaults to true if not specified.
	DownloadImages *bool `yaml:"download_images"`

	ImageTimeout time.Duration `yaml:"image_timeout"`

	// SanitizeKeys stores page data under lowercase, underscored property
	// names ("Publish Date" becomes "publish_date").
	SanitizeKeys bool `yaml:"sanitize_keys"`
}

// ShouldDownloadImages returns whether images should be downloaded.
// Defaults to true if not explicitly set.
func (o *Options) ShouldDownloadImages() bool {
	if o.DownloadImages == nil {
		return true
	}
	return *o.DownloadImages
}

// RetryConfig overrides the rate-limit retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// WatchConfig drives the watch command.
type WatchConfig struct {
	Schedule    string `yaml:"schedule"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// ExportConfig specifies where consumer records are written.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// Config is the top-level configuration structure.
type Config struct {
	Source  SourceConfig `yaml:"source"`
	Output  OutputConfig `yaml:"output"`
	Store   StoreConfig  `yaml:"store"`
	Options Options      `yaml:"options"`
	Retry   RetryConfig  `yaml:"retry"`
	Watch   WatchConfig  `yaml:"watch"`
	Export  ExportConfig `yaml:"export"`

	// NotionToken is loaded from environment, not from config file.
	NotionToken string `yaml:"-"`
}

// Load reads configuration from a YAML file and environment variables.
// NOTION_TOKEN is loaded from environment only (not from config file).
// If a .env file exists in the current directory, it will be loaded first.
func Load(path string) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.NotionToken = os.Getenv("NOTION_TOKEN")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Output.AssetDir == "" {
		c.Output.AssetDir = DefaultAssetDir
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
		if c.Store.Driver == "sqlite" {
			c.Store.Path += ".db"
		}
	}
	if c.Options.Concurrency == 0 {
		c.Options.Concurrency = DefaultConcurrency
	}
	if c.Options.ImageTimeout == 0 {
		c.Options.ImageTimeout = DefaultImageTimeout
	}

	retry := notion.DefaultRetryPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retry.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = retry.MaxDelay
	}

	if c.Watch.Schedule == "" {
		c.Watch.Schedule = DefaultSchedule
	}
	if c.Watch.MetricsAddr == "" {
		c.Watch.MetricsAddr = DefaultMetricsAddr
	}
	if c.Export.Dir == "" {
		c.Export.Dir = DefaultExportDir
	}
}

// DatabaseID returns the canonical ID of the source database.
func (c *Config) DatabaseID() (string, error) {
	return notion.ParseID(c.Source.Database)
}

// RetryPolicy returns the default policy with configured overrides.
func (c *Config) RetryPolicy() notion.RetryPolicy {
	p := notion.DefaultRetryPolicy()
	p.MaxAttempts = c.Retry.MaxAttempts
	p.BaseDelay = c.Retry.BaseDelay
	p.MaxDelay = c.Retry.MaxDelay
	return p
}

// Validate checks that the configuration has all required fields.
func (c *Config) Validate() error {
	var errs []error

	if c.Source.Database == "" {
		errs = append(errs, errors.New("source.database is required"))
	} else if _, err := c.DatabaseID(); err != nil {
		errs = append(errs, fmt.Errorf("source.database: %w", err))
	}

	if c.Output.ContentRoot == "" {
		errs = append(errs, errors.New("output.content_root is required"))
	}
	if dir := c.Output.AssetDir; !filepath.IsLocal(dir) || filepath.Clean(dir) == "." {
		errs = append(errs, fmt.Errorf("output.asset_dir %q must be a relative path inside content_root", dir))
	}

	switch c.Store.Driver {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be json or sqlite", c.Store.Driver))
	}

	if c.Options.Concurrency < 1 || c.Options.Concurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("options.concurrency must be between 1 and %d", maxConcurrency))
	}
	if c.Options.ImageTimeout < 0 {
		errs = append(errs, errors.New("options.image_timeout must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry delays must satisfy 0 <= base_delay <= max_delay"))
	}

	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("watch.schedule: %w", err))
	}

	if c.NotionToken == "" {
		errs = append(errs, errors.New("NOTION_TOKEN environment variable is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
