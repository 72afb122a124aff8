package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `version: 1
backend:
  base_url: http://localhost:3000/
  user_id: test
  password: ""
engine:
  server_url: http://localhost:5000/
  data_root: ${DOCFETCH_TEST_ROOT}
`

func TestLoadSampleConfig(t *testing.T) {
	root := t.TempDir()
	t.Setenv("DOCFETCH_TEST_ROOT", root)
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Engine.DataRoot != root {
		t.Fatalf("expected env expansion to %q, got %q", root, c.Engine.DataRoot)
	}
	if c.Backend.UserID != "test" || c.Backend.Password != "" {
		t.Fatalf("unexpected backend: %+v", c.Backend)
	}
	if c.Timeout() != 60*time.Second {
		t.Fatalf("default timeout: %v", c.Timeout())
	}
	if c.MinRefreshDelay() != 700*time.Millisecond {
		t.Fatalf("default min refresh delay: %v", c.MinRefreshDelay())
	}
	if c.RefreshInterval() != time.Second {
		t.Fatalf("default refresh interval: %v", c.RefreshInterval())
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() Config {
		return Config{
			Version: 1,
			Backend: Backend{BaseURL: "http://localhost:3000/", UserID: "test"},
			Engine:  Engine{ServerURL: "http://localhost:5000/", DataRoot: "/tmp/x"},
		}
	}
	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"version", func(c *Config) { c.Version = 2 }, "version"},
		{"base url", func(c *Config) { c.Backend.BaseURL = "" }, "backend.base_url"},
		{"base url scheme", func(c *Config) { c.Backend.BaseURL = "ftp://x" }, "backend.base_url"},
		{"user", func(c *Config) { c.Backend.UserID = "" }, "backend.user_id"},
		{"server url", func(c *Config) { c.Engine.ServerURL = "localhost" }, "engine.server_url"},
		{"data root", func(c *Config) { c.Engine.DataRoot = "" }, "engine.data_root"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"metrics path", func(c *Config) { c.Metrics.PrometheusTextfile.Enabled = true }, "metrics.prometheus_textfile.path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mut(&c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Fatalf("error %q does not mention %s", err, tc.field)
			}
		})
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateDetailedFlagsSameAddress(t *testing.T) {
	c := Config{
		Version: 1,
		Backend: Backend{BaseURL: "http://localhost:3000/", UserID: "test"},
		Engine:  Engine{ServerURL: "http://localhost:3000", DataRoot: "/tmp/x"},
	}
	errs := c.ValidateDetailed()
	if len(errs) != 1 || errs[0].Field != "engine.server_url" {
		t.Fatalf("unexpected detailed errors: %+v", errs)
	}
	if err := c.ValidateWithFriendlyErrors(); err == nil || !strings.Contains(err.Error(), "engine.server_url") {
		t.Fatalf("expected friendly error mentioning engine.server_url, got %v", err)
	}
}
