package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PTAGRAPH_DB", "PTAGRAPH_CACHE", "PTAGRAPH_APP", "PTAGRAPH_DEBUG"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Facts.App != "default" {
		t.Errorf("expected App=default, got %s", cfg.Facts.App)
	}
	if cfg.Logging.DebugMode {
		t.Error("expected debug mode off by default")
	}
	if cfg.Mangle.FactLimit != 0 {
		t.Errorf("expected FactLimit=0, got %d", cfg.Mangle.FactLimit)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "ptagraph.yaml")

	cfg := DefaultConfig()
	cfg.Facts.DBPath = "/data/doop/out"
	cfg.Facts.App = "antlr"
	cfg.Mangle.FactLimit = 500000
	cfg.Logging.Categories = map[string]bool{"kernel": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Facts.DBPath != "/data/doop/out" {
		t.Errorf("expected DBPath=/data/doop/out, got %s", loaded.Facts.DBPath)
	}
	if loaded.Facts.App != "antlr" {
		t.Errorf("expected App=antlr, got %s", loaded.Facts.App)
	}
	if loaded.Mangle.FactLimit != 500000 {
		t.Errorf("expected FactLimit=500000, got %d", loaded.Mangle.FactLimit)
	}
	if loaded.Logging.IsCategoryEnabled("kernel") {
		t.Error("kernel category must stay disabled when debug mode is off")
	}
}

func TestConfig_LoadMissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Facts.App != "default" {
		t.Errorf("expected defaults, got App=%s", cfg.Facts.App)
	}
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("facts: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_QueryTimeoutDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mangle.QueryTimeout = "90s"
	if got := cfg.QueryTimeoutDuration(); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}

	cfg.Mangle.QueryTimeout = "soon"
	if got := cfg.QueryTimeoutDuration(); got != 5*time.Minute {
		t.Errorf("expected fallback of 5m, got %v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"no database and no cache", func(c *Config) { c.Facts.CachePath = "" }, true},
		{"database only", func(c *Config) { c.Facts.DBPath = "facts"; c.Facts.CachePath = "" }, false},
		{"empty app", func(c *Config) { c.Facts.App = "" }, true},
		{"negative fact limit", func(c *Config) { c.Mangle.FactLimit = -1 }, true},
		{"bad timeout", func(c *Config) { c.Mangle.QueryTimeout = "later" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	cfg := LoggingConfig{DebugMode: true}
	if !cfg.IsCategoryEnabled("pipeline") {
		t.Error("all categories enabled when none are listed")
	}

	cfg.Categories = map[string]bool{"pipeline": false}
	if cfg.IsCategoryEnabled("pipeline") {
		t.Error("pipeline explicitly disabled")
	}
	if !cfg.IsCategoryEnabled("cache") {
		t.Error("unlisted categories default to enabled")
	}

	opts := cfg.Options()
	if !opts.DebugMode || opts.JSONFormat {
		t.Errorf("unexpected options %+v", opts)
	}
}
