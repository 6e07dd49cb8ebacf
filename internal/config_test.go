package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/thoughtnest/nestclient/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080/api" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Articles.PageSize != 5 || cfg.Articles.MaxUploadBytes != 200<<10 {
		t.Errorf("articles = %+v", cfg.Articles)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }, "BaseURL"},
		{"bad base url", func(c *Config) { c.API.BaseURL = "not a url" }, "BaseURL"},
		{"short timeout", func(c *Config) { c.API.Timeout = 10 * time.Millisecond }, "Timeout"},
		{"port range", func(c *Config) { c.App.HTTP.Port = 70000 }, "Port"},
		{"page size", func(c *Config) { c.Articles.PageSize = 0 }, "PageSize"},
		{"session path", func(c *Config) { c.Session.Path = "" }, "Path"},
		{"attempts", func(c *Config) { c.Notify.MaxAttempts = 0 }, "MaxAttempts"},
		{"heartbeat", func(c *Config) { c.Notify.Heartbeat = -time.Second }, "Heartbeat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q does not name %s", err, tc.field)
			}
		})
	}
}

func TestLoadConfigFileWithEnv(t *testing.T) {
	t.Setenv("NESTCLIENT_TEST_BACKEND", "https://blog.example.com/api")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  http:
    port: 4000
api:
  base_url: ${NESTCLIENT_TEST_BACKEND}
articles:
  page_size: 10
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil || !found {
		t.Fatalf("LoadOptional = %v, %v", found, err)
	}
	if cfg.App.HTTP.Port != 4000 || cfg.API.BaseURL != "https://blog.example.com/api" || cfg.Articles.PageSize != 10 {
		t.Errorf("loaded = %+v", cfg)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("unset timeout lost its default: %v", cfg.API.Timeout)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), cfg)
	if err != nil || found {
		t.Fatalf("LoadOptional = %v, %v", found, err)
	}
	if cfg.App.HTTP.Port != 3000 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("articles:\n  page_size: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := pkgconfig.Load(path, NewDefaultConfig()); err == nil {
		t.Fatal("expected validation error")
	}
}
