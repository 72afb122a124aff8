package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML schema. Backend and engine locations must be supplied;
// everything else falls back to the accessors below when left empty.
type Config struct {
	Version int      `yaml:"version"`
	Backend Backend  `yaml:"backend"`
	Engine  Engine   `yaml:"engine"`
	Logging Logging  `yaml:"logging"`
	Metrics Metrics  `yaml:"metrics"`
	UI      UIOptions `yaml:"ui"`
}

// Backend describes the sample server that lists documents and issues layer tokens.
type Backend struct {
	BaseURL        string `yaml:"base_url"`
	UserID         string `yaml:"user_id"`
	Password       string `yaml:"password"` // the sample server expects an empty password
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

// Engine describes the document engine and where its local storage lives.
type Engine struct {
	ServerURL string `yaml:"server_url"`
	DataRoot  string `yaml:"data_root"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // human|json
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type UIOptions struct {
	// MinRefreshMS delays applying a refreshed document list so the refresh
	// indicator stays visible. 0 means the default of 700ms.
	MinRefreshMS int `yaml:"min_refresh_ms"`
	// RefreshHz controls the TUI repaint frequency. 0 means 1; values above 10 are clamped.
	RefreshHz int `yaml:"refresh_hz"`
}

// DefaultPath returns $DOCFETCH_CONFIG or ~/.config/docfetch/config.yml.
func DefaultPath() string {
	if env := strings.TrimSpace(os.Getenv("DOCFETCH_CONFIG")); env != "" {
		return env
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, ".config", "docfetch", "config.yml")
	}
	return ""
}

// Load reads, parses, expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML bytes after expanding ${ENV} placeholders.
func Parse(b []byte) (*Config, error) {
	b = []byte(os.ExpandEnv(string(b)))
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.Engine.DataRoot, err = expandTilde(c.Engine.DataRoot); err != nil {
		return err
	}
	if c.Metrics.PrometheusTextfile.Path, err = expandTilde(c.Metrics.PrometheusTextfile.Path); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	if err := validateURL("backend.base_url", c.Backend.BaseURL); err != nil {
		return err
	}
	if c.Backend.UserID == "" {
		return errors.New("backend.user_id is required")
	}
	if c.Backend.TimeoutSeconds < 0 {
		return errors.New("backend.timeout_seconds must be >= 0")
	}
	if err := validateURL("engine.server_url", c.Engine.ServerURL); err != nil {
		return err
	}
	if c.Engine.DataRoot == "" {
		return errors.New("engine.data_root is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "human", "json":
		// ok
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	if c.Metrics.PrometheusTextfile.Enabled && c.Metrics.PrometheusTextfile.Path == "" {
		return errors.New("metrics.prometheus_textfile.path is required when enabled")
	}
	if c.UI.MinRefreshMS < 0 {
		return errors.New("ui.min_refresh_ms must be >= 0")
	}
	if c.UI.RefreshHz < 0 {
		return errors.New("ui.refresh_hz must be >= 0")
	}
	return nil
}

func validateURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %v", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL: %s", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host: %s", field, raw)
	}
	return nil
}

// Timeout returns the backend request timeout; 0 in the file means 60s.
func (c *Config) Timeout() time.Duration {
	if c == nil || c.Backend.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// MinRefreshDelay returns the minimum time between starting and applying a list refresh.
func (c *Config) MinRefreshDelay() time.Duration {
	if c == nil || c.UI.MinRefreshMS == 0 {
		return 700 * time.Millisecond
	}
	return time.Duration(c.UI.MinRefreshMS) * time.Millisecond
}

// RefreshInterval returns the TUI repaint interval derived from RefreshHz.
func (c *Config) RefreshInterval() time.Duration {
	hz := 1
	if c != nil && c.UI.RefreshHz > 0 {
		hz = c.UI.RefreshHz
	}
	if hz > 10 {
		hz = 10
	}
	return time.Second / time.Duration(hz)
}

func expandTilde(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	return filepath.Join(h, p[2:]), nil
}

// EnsureDir creates path when it is non-empty.
func EnsureDir(path string, perm fs.FileMode) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, perm)
}
