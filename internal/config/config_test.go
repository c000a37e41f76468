package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const dbURL = "https://www.notion.so/workspace/Blog-abc123def456abc123def456abc123de?v=0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
source:
  database: "`+dbURL+`"
  filter_property: "Published"
  sort_property: "Date"
output:
  content_root: "/data/site"
  asset_dir: "static/img"
store:
  driver: sqlite
  path: "/data/store.db"
options:
  concurrency: 8
  download_images: false
  image_timeout: 10s
  sanitize_keys: true
retry:
  max_attempts: 3
  base_delay: 250ms
  max_delay: 5s
watch:
  schedule: "0 * * * *"
  metrics_addr: "127.0.0.1:9100"
export:
  dir: "/data/export"
`)
	t.Setenv("NOTION_TOKEN", "test-token-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	id, err := cfg.DatabaseID()
	if err != nil {
		t.Fatalf("DatabaseID() error = %v", err)
	}
	if id != "abc123de-f456-abc1-23de-f456abc123de" {
		t.Errorf("DatabaseID() = %q", id)
	}
	if cfg.Source.FilterProperty != "Published" || cfg.Source.SortProperty != "Date" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Output.AssetDir != "static/img" || cfg.Store.Driver != "sqlite" {
		t.Errorf("output/store = %+v %+v", cfg.Output, cfg.Store)
	}
	if cfg.Options.Concurrency != 8 || cfg.Options.ShouldDownloadImages() || !cfg.Options.SanitizeKeys {
		t.Errorf("options = %+v", cfg.Options)
	}
	if cfg.Options.ImageTimeout != 10*time.Second {
		t.Errorf("image_timeout = %v", cfg.Options.ImageTimeout)
	}

	p := cfg.RetryPolicy()
	if p.MaxAttempts != 3 || p.BaseDelay != 250*time.Millisecond || p.MaxDelay != 5*time.Second {
		t.Errorf("retry policy = %+v", p)
	}
	if p.Retryable == nil {
		t.Error("retry policy lost its Retryable predicate")
	}

	if cfg.Watch.Schedule != "0 * * * *" || cfg.Watch.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if cfg.NotionToken != "test-token-123" {
		t.Errorf("expected NotionToken 'test-token-123', got %q", cfg.NotionToken)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
source:
  database: "abc123def456abc123def456abc123de"
output:
  content_root: "site"
`)
	t.Setenv("NOTION_TOKEN", "token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output.AssetDir != DefaultAssetDir {
		t.Errorf("asset_dir = %q", cfg.Output.AssetDir)
	}
	if cfg.Store.Driver != DefaultStoreDriver || cfg.Store.Path != DefaultStorePath {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Options.Concurrency != DefaultConcurrency || !cfg.Options.ShouldDownloadImages() || cfg.Options.SanitizeKeys {
		t.Errorf("options = %+v", cfg.Options)
	}
	if cfg.Options.ImageTimeout != DefaultImageTimeout {
		t.Errorf("image_timeout = %v", cfg.Options.ImageTimeout)
	}
	if cfg.Retry.MaxAttempts != 6 || cfg.Retry.BaseDelay != 500*time.Millisecond || cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Watch.Schedule != DefaultSchedule || cfg.Export.Dir != DefaultExportDir {
		t.Errorf("watch/export = %+v %+v", cfg.Watch, cfg.Export)
	}
}

func TestParse_SQLiteDefaultPath(t *testing.T) {
	cfg, err := Parse([]byte("store:\n  driver: sqlite\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Store.Path != DefaultStorePath+".db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	path := writeConfig(t, `
source:
  database: "abc123def456abc123def456abc123de"
output:
  content_root: "site"
`)
	t.Setenv("NOTION_TOKEN", "")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "NOTION_TOKEN") {
		t.Errorf("expected NOTION_TOKEN error, got %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "source: [unclosed")
	t.Setenv("NOTION_TOKEN", "token")

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse([]byte(`
source:
  database: "abc123def456abc123def456abc123de"
output:
  content_root: "site"
`))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		cfg.NotionToken = "token"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing database", func(c *Config) { c.Source.Database = "" }, "source.database is required"},
		{"unparseable database", func(c *Config) { c.Source.Database = "not-an-id" }, "source.database"},
		{"missing content root", func(c *Config) { c.Output.ContentRoot = "" }, "content_root is required"},
		{"escaping asset dir", func(c *Config) { c.Output.AssetDir = "../outside" }, "asset_dir"},
		{"absolute asset dir", func(c *Config) { c.Output.AssetDir = "/tmp/assets" }, "asset_dir"},
		{"dot asset dir", func(c *Config) { c.Output.AssetDir = "." }, "asset_dir"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, "store.driver"},
		{"too many workers", func(c *Config) { c.Options.Concurrency = 17 }, "concurrency"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"inverted delays", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "retry delays"},
		{"bad schedule", func(c *Config) { c.Watch.Schedule = "every tuesday" }, "watch.schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"source.database", "content_root", "NOTION_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
