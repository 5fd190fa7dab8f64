package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLoadConfig_MissingFileIsEmpty(t *testing.T) {
	t.Setenv(envConfigDir, t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIURL != "" || cfg.TUI != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestSaveConfig_KeepsBackupAndRestrictsPerms(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)

	if err := SaveConfig(&Config{APIURL: "http://one"}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if err := SaveConfig(&Config{APIURL: "http://two", Token: "secret"}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIURL != "http://two" || cfg.Token != "secret" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	b, err := os.ReadFile(filepath.Join(dir, "config.json.bak"))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	var prev Config
	if err := json.Unmarshal(b, &prev); err != nil {
		t.Fatalf("backup is not valid json: %v", err)
	}
	if prev.APIURL != "http://one" {
		t.Fatalf("backup should hold the previous config, got %+v", prev)
	}

	fi, err := os.Stat(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", fi.Mode().Perm())
	}
}

func TestSaveConfig_ConcurrentWriters_DoesNotCorruptConfig(t *testing.T) {
	t.Setenv(envConfigDir, t.TempDir())
	if err := SaveConfig(&Config{Project: "seed"}); err != nil {
		t.Fatalf("SaveConfig(seed): %v", err)
	}

	const n = 32
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := LoadConfig()
			if err != nil {
				errCh <- err
				return
			}
			cfg.Project = fmt.Sprintf("p-%d", i)
			if err := SaveConfig(cfg); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent SaveConfig: %v", err)
	}

	if _, err := LoadConfig(); err != nil {
		t.Fatalf("config corrupted: %v", err)
	}
}

func TestConfigSet(t *testing.T) {
	var cfg Config
	steps := []struct{ key, value string }{
		{"apiUrl", "http://mlrun:8080/"},
		{"project", "demo"},
		{"rateLimit", "2.5"},
		{"timeoutSeconds", "9"},
		{"format", "yaml"},
		{"tui.profile", "plain"},
	}
	for _, s := range steps {
		if err := cfg.Set(s.key, s.value); err != nil {
			t.Fatalf("Set(%s): %v", s.key, err)
		}
	}
	if cfg.APIURL != "http://mlrun:8080" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIURL)
	}
	if cfg.RateLimit != 2.5 || cfg.Timeout(time.Second) != 9*time.Second || cfg.TUI.Profile != "plain" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if err := cfg.Set("format", "edn"); err == nil {
		t.Fatalf("expected invalid format error")
	}
	if err := cfg.Set("timeoutSeconds", "-1"); err == nil {
		t.Fatalf("expected invalid timeout error")
	}
	if err := cfg.Set("nope", "x"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if (Config{}).Timeout(3*time.Second) != 3*time.Second {
		t.Fatalf("expected default timeout")
	}
	cfg.Token = "secret"
	if cfg.Redacted().Token != "***" || cfg.Token != "secret" {
		t.Fatalf("Redacted must not modify the receiver")
	}
}
