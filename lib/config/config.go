// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Downlink components.
//
// Configuration is loaded from a single file specified by either the
// DOWNLINK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Files ending in .yaml or .yml are parsed as YAML. Files ending in
// .json or .jsonc are parsed as JSONC (JSON extended with comments
// and trailing commas).
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Downlink.
type Config struct {
	// Log configures structured logging.
	Log LogConfig `yaml:"log" json:"log"`

	// Assembly configures product assembly buffers.
	Assembly AssemblyConfig `yaml:"assembly" json:"assembly"`

	// Store configures the product store.
	Store StoreConfig `yaml:"store" json:"store"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format selects the handler: text or json. Default: text when
	// stderr is a terminal, json otherwise; "auto" keeps that
	// behavior explicitly.
	Format string `yaml:"format" json:"format"`
}

// AssemblyConfig configures product assembly buffers.
type AssemblyConfig struct {
	// InitialBufferBytes is the starting capacity of each product
	// buffer. Assembly grows the buffer as blocks arrive; a capacity
	// near the typical product size avoids regrowth.
	// Default: 1 MiB
	InitialBufferBytes int `yaml:"initial_buffer_bytes" json:"initial_buffer_bytes"`

	// MaxProductBytes caps how large a single assembled product may
	// grow. Assembly of a product that would exceed the cap fails
	// with a memory-class error instead of consuming the host.
	// Zero means no cap. Default: 256 MiB
	MaxProductBytes int `yaml:"max_product_bytes" json:"max_product_bytes"`
}

// StoreConfig configures the product store.
type StoreConfig struct {
	// Dir is the store's root directory.
	// Default: ${HOME}/.cache/downlink/store
	Dir string `yaml:"dir" json:"dir"`

	// Compression selects how stored product bytes are compressed on
	// disk: none, lz4, or zstd. Existing products remain readable
	// when this changes; the setting applies to new inserts.
	// Default: zstd
	Compression string `yaml:"compression" json:"compression"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file, so every field has a
// sensible value even when the file sets only a few.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "downlink")

	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Assembly: AssemblyConfig{
			InitialBufferBytes: 1 << 20,
			MaxProductBytes:    256 << 20,
		},
		Store: StoreConfig{
			Dir:         filepath.Join(defaultRoot, "store"),
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the DOWNLINK_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks: if DOWNLINK_CONFIG is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("DOWNLINK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DOWNLINK_CONFIG environment variable not set; " +
			"set it to the path of your downlink config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging the
// file's values over [Default].
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the
// current config. The format is chosen by file extension.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: unsupported config format (want .yaml, .yml, .json, or .jsonc)", path)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Store.Dir = expandVars(c.Store.Dir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}

	formats := []string{"auto", "text", "json"}
	if !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if c.Assembly.InitialBufferBytes < 1 {
		errs = append(errs, fmt.Errorf("assembly.initial_buffer_bytes must be positive"))
	}

	if c.Assembly.MaxProductBytes < 0 {
		errs = append(errs, fmt.Errorf("assembly.max_product_bytes must not be negative"))
	}
	if c.Assembly.MaxProductBytes > 0 && c.Assembly.MaxProductBytes < c.Assembly.InitialBufferBytes {
		errs = append(errs, fmt.Errorf("assembly.max_product_bytes is below assembly.initial_buffer_bytes"))
	}

	if c.Store.Dir == "" {
		errs = append(errs, fmt.Errorf("store.dir is required"))
	}

	compressions := []string{"none", "lz4", "zstd"}
	if !contains(compressions, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: %v", compressions))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
