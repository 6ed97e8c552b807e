// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.Level != "info" {
		t.Errorf("expected log.level=info, got %s", cfg.Log.Level)
	}
	if cfg.Assembly.InitialBufferBytes != 1<<20 {
		t.Errorf("expected initial_buffer_bytes=%d, got %d", 1<<20, cfg.Assembly.InitialBufferBytes)
	}
	if cfg.Store.Compression != "zstd" {
		t.Errorf("expected store.compression=zstd, got %s", cfg.Store.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresDownlinkConfig(t *testing.T) {
	// Save and restore DOWNLINK_CONFIG.
	origConfig := os.Getenv("DOWNLINK_CONFIG")
	defer os.Setenv("DOWNLINK_CONFIG", origConfig)

	os.Unsetenv("DOWNLINK_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DOWNLINK_CONFIG not set, got nil")
	}
	if !strings.Contains(err.Error(), "DOWNLINK_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_WithDownlinkConfig(t *testing.T) {
	origConfig := os.Getenv("DOWNLINK_CONFIG")
	defer os.Setenv("DOWNLINK_CONFIG", origConfig)

	path := writeConfig(t, "downlink.yaml", `
log:
  level: debug
store:
  dir: /test/store
`)
	os.Setenv("DOWNLINK_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log.level=debug, got %s", cfg.Log.Level)
	}
	if cfg.Store.Dir != "/test/store" {
		t.Errorf("expected store.dir=/test/store, got %s", cfg.Store.Dir)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfig(t, "downlink.yaml", `
log:
  level: warn
  format: json

assembly:
  initial_buffer_bytes: 4096
  max_product_bytes: 8192

store:
  dir: /custom/store
  compression: lz4
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("log config not applied: %+v", cfg.Log)
	}
	if cfg.Assembly.InitialBufferBytes != 4096 || cfg.Assembly.MaxProductBytes != 8192 {
		t.Errorf("assembly config not applied: %+v", cfg.Assembly)
	}
	if cfg.Store.Dir != "/custom/store" || cfg.Store.Compression != "lz4" {
		t.Errorf("store config not applied: %+v", cfg.Store)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config does not validate: %v", err)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeConfig(t, "downlink.jsonc", `{
	// Comments and trailing commas are allowed.
	"log": {"level": "error"},
	"store": {
		"dir": "/jsonc/store",
		"compression": "none",
	},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected log.level=error, got %s", cfg.Log.Level)
	}
	if cfg.Store.Dir != "/jsonc/store" || cfg.Store.Compression != "none" {
		t.Errorf("store config not applied: %+v", cfg.Store)
	}

	// Unset fields keep their defaults.
	if cfg.Assembly.InitialBufferBytes != 1<<20 {
		t.Errorf("default initial_buffer_bytes lost: %d", cfg.Assembly.InitialBufferBytes)
	}
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "downlink.toml", `dir = "/nope"`)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unsupported extension, got nil")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestVariableExpansion(t *testing.T) {
	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	os.Setenv("HOME", "/home/operator")

	path := writeConfig(t, "downlink.yaml", `
store:
  dir: ${HOME}/downlink-store
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Store.Dir != "/home/operator/downlink-store" {
		t.Errorf("expected expanded store.dir, got %s", cfg.Store.Dir)
	}
}

func TestVariableExpansionDefault(t *testing.T) {
	os.Unsetenv("DOWNLINK_STORE_DIR")

	path := writeConfig(t, "downlink.yaml", `
store:
  dir: ${DOWNLINK_STORE_DIR:-/var/lib/downlink}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Store.Dir != "/var/lib/downlink" {
		t.Errorf("expected default-expanded store.dir, got %s", cfg.Store.Dir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "bad level",
			mutate: func(c *Config) { c.Log.Level = "verbose" },
			want:   "log.level",
		},
		{
			name:   "bad format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			want:   "log.format",
		},
		{
			name:   "zero buffer",
			mutate: func(c *Config) { c.Assembly.InitialBufferBytes = 0 },
			want:   "initial_buffer_bytes",
		},
		{
			name:   "negative cap",
			mutate: func(c *Config) { c.Assembly.MaxProductBytes = -1 },
			want:   "max_product_bytes",
		},
		{
			name: "cap below initial",
			mutate: func(c *Config) {
				c.Assembly.InitialBufferBytes = 1 << 20
				c.Assembly.MaxProductBytes = 4096
			},
			want: "max_product_bytes",
		},
		{
			name:   "empty store dir",
			mutate: func(c *Config) { c.Store.Dir = "" },
			want:   "store.dir",
		},
		{
			name:   "bad compression",
			mutate: func(c *Config) { c.Store.Compression = "gzip" },
			want:   "store.compression",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
