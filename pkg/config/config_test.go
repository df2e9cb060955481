package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Address != "127.0.0.1:8000" {
		t.Errorf("expected default address 127.0.0.1:8000, got %q", cfg.Address)
	}
	if got := cfg.PersistEndpoint(); got != "http://127.0.0.1:8000/end" {
		t.Errorf("default endpoint %q", got)
	}
	if got := cfg.PageURL("page.html"); got != "http://127.0.0.1:8000/page.html" {
		t.Errorf("page url %q", got)
	}
}

func TestPersistEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = "0.0.0.0:9001"
	if got := cfg.PersistEndpoint(); got != "http://127.0.0.1:9001/end" {
		t.Errorf("wildcard host endpoint %q", got)
	}
	cfg.Persist.Endpoint = "http://example.test/end"
	if got := cfg.PersistEndpoint(); got != "http://example.test/end" {
		t.Errorf("override endpoint %q", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.livecorrect.yml")

	original := DefaultConfig()
	original.Address = "127.0.0.1:8123"
	original.Root = "pages"
	original.Log.Level = "debug"
	original.Persist.Timeout = Duration(5 * time.Second)
	original.Static.Allow = []string{"**/*.png"}
	original.Transport.Codec = "msgpack"

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(original, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "timeout: 5s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("missing file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVECORRECT_ADDRESS", "127.0.0.1:9999")
	t.Setenv("LIVECORRECT_PERSIST__TIMEOUT", "2s")
	t.Setenv("LIVECORRECT_LOG__JSON", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != "127.0.0.1:9999" {
		t.Errorf("address = %q", cfg.Address)
	}
	if cfg.Persist.Timeout.Std() != 2*time.Second {
		t.Errorf("persist.timeout = %v", cfg.Persist.Timeout.Std())
	}
	if !cfg.Log.JSON {
		t.Error("log.json should be true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"address", func(c *Config) { c.Address = "nope" }},
		{"root", func(c *Config) { c.Root = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"endpoint", func(c *Config) { c.Persist.Endpoint = "ftp://x/end" }},
		{"persist timeout", func(c *Config) { c.Persist.Timeout = 0 }},
		{"pattern", func(c *Config) { c.Static.Allow = []string{"[unclosed"} }},
		{"transport", func(c *Config) { c.Transport.PingInterval = 0 }},
		{"message size", func(c *Config) { c.Transport.MaxMessageSize = 0 }},
		{"codec", func(c *Config) { c.Transport.Codec = "xml" }},
		{"shutdown", func(c *Config) { c.Shutdown.Timeout = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
