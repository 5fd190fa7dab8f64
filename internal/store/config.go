// Package store keeps the console's local files: the config, the TUI state and
// the activity log.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	envConfigDir   = "FSCONSOLE_CONFIG_DIR"
	configFileName = "config.json"
)

// ErrUnknownKey is returned by Config.Set and Config.Get for keys they do not handle.
var ErrUnknownKey = errors.New("unknown config key")

type Config struct {
	APIURL  string `json:"apiUrl,omitempty"`
	Project string `json:"project,omitempty"`
	Token   string `json:"token,omitempty"`
	// RateLimit caps API requests per second; 0 means unlimited.
	RateLimit      float64 `json:"rateLimit,omitempty"`
	TimeoutSeconds int     `json:"timeoutSeconds,omitempty"`
	LogFile        string  `json:"logFile,omitempty"`
	Format         string  `json:"format,omitempty"`

	TUI *TUIConfig `json:"tui,omitempty"`
}

type TUIConfig struct {
	// Profile is the appearance profile id ("default" or "plain").
	Profile string `json:"profile,omitempty"`
	// StartPage is the kind shown on launch when no saved state exists.
	StartPage string `json:"startPage,omitempty"`
}

// Timeout returns the request timeout, or def when unset.
func (c Config) Timeout(def time.Duration) time.Duration {
	if c.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = "***"
	}
	return c
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	keys := []string{"apiUrl", "project", "token", "rateLimit", "timeoutSeconds", "logFile", "format", "tui.profile", "tui.startPage"}
	sort.Strings(keys)
	return keys
}

// Set assigns one key from its string form. An empty value clears it.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "apiUrl":
		c.APIURL = strings.TrimRight(value, "/")
	case "project":
		c.Project = value
	case "token":
		c.Token = value
	case "rateLimit":
		if value == "" {
			c.RateLimit = 0
			return nil
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("rateLimit: invalid value %q", value)
		}
		c.RateLimit = f
	case "timeoutSeconds":
		if value == "" {
			c.TimeoutSeconds = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("timeoutSeconds: invalid value %q", value)
		}
		c.TimeoutSeconds = n
	case "logFile":
		c.LogFile = value
	case "format":
		switch value {
		case "", "json", "yaml":
			c.Format = value
		default:
			return fmt.Errorf("format: invalid value %q (expected json|yaml)", value)
		}
	case "tui.profile":
		c.tui().Profile = value
	case "tui.startPage":
		c.tui().StartPage = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func (c *Config) tui() *TUIConfig {
	if c.TUI == nil {
		c.TUI = &TUIConfig{}
	}
	return c.TUI
}

func ConfigDir() (string, error) {
	// Keeps tests from touching ~/.fsconsole.
	if v := strings.TrimSpace(os.Getenv(envConfigDir)); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fsconsole"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadConfig reads the config file. A missing file is an empty config.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

// SaveConfig writes cfg atomically and keeps the previous file as config.json.bak.
func SaveConfig(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		_ = atomicWriteFile(dir, "config.json.bak.*.tmp", path+".bak", prev, 0o600)
	}
	// The file holds the API token.
	return atomicWriteFile(dir, "config.json.*.tmp", path, b, 0o600)
}
