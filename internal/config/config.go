// Package config handles VibePlanner configuration loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/vibeplanner/config.yaml, /etc/vibeplanner/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "vibeplanner", "config.yaml"))
	}

	paths = append(paths, "/etc/vibeplanner/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// An empty path with a nil error means nothing was found and the caller
// should fall back to Default.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds all VibePlanner configuration.
type Config struct {
	Backend  BackendConfig `yaml:"backend"`
	Chat     ChatConfig    `yaml:"chat"`
	Enhance  EnhanceConfig `yaml:"enhance"`
	Graph    GraphConfig   `yaml:"graph"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
}

// BackendConfig locates the planner/RAG backend.
type BackendConfig struct {
	URL string `yaml:"url"`
	// Token is sent as a bearer token when non-empty. The backend
	// accepts "local-dev-token" in development.
	Token string `yaml:"token"`
	// Timeout bounds non-streaming requests. The chat stream is bounded
	// only by cancellation.
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig controls the assistant chat.
type ChatConfig struct {
	// FailureNotice is appended as an assistant message when a turn fails.
	FailureNotice string `yaml:"failure_notice"`
}

// EnhanceConfig holds defaults for idea enhancement requests.
type EnhanceConfig struct {
	Focus   string `yaml:"focus"`   // viral_shorts, educational, sales, story
	Persona string `yaml:"persona"` // optional
}

// GraphConfig holds knowledge graph query defaults.
type GraphConfig struct {
	Limit int `yaml:"limit"`
}

// DefaultFailureNotice is shown when a chat turn cannot reach the backend.
const DefaultFailureNotice = "Something went wrong. Check that the backend is running!"

// Load reads configuration from a YAML file. Missing keys keep their
// Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	return cfg, nil
}

// Default returns a default configuration pointing at a backend on
// localhost:8000.
func Default() *Config {
	dataDir := ".vibeplanner"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "vibeplanner")
	}
	return &Config{
		Backend: BackendConfig{
			URL:     "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Chat:    ChatConfig{FailureNotice: DefaultFailureNotice},
		Enhance: EnhanceConfig{Focus: "viral_shorts"},
		Graph:   GraphConfig{Limit: 100},
		DataDir: dataDir,
	}
}

// Validate checks the configuration for values that would only fail
// later at request time.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.url: missing host")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Graph.Limit < 0 {
		return fmt.Errorf("graph.limit must not be negative")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// DatabasePath is the SQLite file holding the local idea cache and
// user preferences.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "planner.db")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
