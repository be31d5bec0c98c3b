// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for splain.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation. The file can be watched for changes so
// settings like complexity and response length apply without a restart.
//
// Configuration file location:
//   - ~/.splain/config.toml
//   - Built-in defaults when the file is absent
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/splain/internal/provider"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete splain configuration.
type Config struct {
	// Provider configuration
	Provider ProviderConfig `toml:"provider"`

	// Store configuration
	Store StoreConfig `toml:"store"`

	// Share server configuration
	Share ShareConfig `toml:"share"`

	// Answer tuning defaults
	Answers AnswerConfig `toml:"answers"`
}

// ProviderConfig configures the LLM backend.
type ProviderConfig struct {
	// APIKey is the completion API key. Also settable via SPLAIN_API_KEY.
	APIKey string `toml:"api_key"`
	// BaseURL overrides the completions endpoint. Empty uses the default.
	BaseURL string `toml:"base_url"`
	// Model is the model identifier sent with requests.
	Model string `toml:"model"`
	// MaxRetries is the attempt count for transient provider errors.
	MaxRetries int `toml:"max_retries"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// LocalDir is the directory for anonymous local history.
	// Empty: ~/.splain
	LocalDir string `toml:"local_dir"`
	// DatabasePath is the SQLite database for authenticated chats.
	// Empty: ~/.splain/chats.db
	DatabasePath string `toml:"database_path"`
}

// ShareConfig configures the read-only share server.
type ShareConfig struct {
	// Enabled turns the share server on.
	Enabled bool `toml:"enabled"`
	// Addr is the listen address.
	Addr string `toml:"addr"`
}

// AnswerConfig holds the default answer tuning.
type AnswerConfig struct {
	// Complexity is 0-100, explain-like-I'm-five through expert.
	Complexity int `toml:"complexity"`
	// Length is "short", "medium", or "long".
	Length string `toml:"length"`
}

// Options converts the answer defaults to provider options.
func (a AnswerConfig) Options() provider.Options {
	return provider.Options{
		Complexity: a.Complexity,
		Length:     provider.Length(a.Length),
	}
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:      provider.DefaultModel,
			MaxRetries: provider.DefaultMaxRetries,
		},
		Store: StoreConfig{},
		Share: ShareConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8791",
		},
		Answers: AnswerConfig{
			Complexity: 50,
			Length:     string(provider.LengthMedium),
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the splain configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".splain"), nil
}

// Path returns the configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration from path, applies environment overrides,
// and validates. A missing file yields the defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file for settings
// that commonly differ per machine or must stay out of the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPLAIN_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("SPLAIN_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("SPLAIN_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("SPLAIN_SHARE_ADDR"); v != "" {
		cfg.Share.Enabled = true
		cfg.Share.Addr = v
	}
	if v := os.Getenv("SPLAIN_COMPLEXITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Answers.Complexity = n
		}
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Answers.Complexity < 0 || c.Answers.Complexity > 100 {
		return fmt.Errorf("answers.complexity must be in [0,100], got %d", c.Answers.Complexity)
	}
	switch provider.Length(c.Answers.Length) {
	case provider.LengthShort, provider.LengthMedium, provider.LengthLong:
	default:
		return fmt.Errorf("answers.length must be short, medium, or long, got %q", c.Answers.Length)
	}
	if c.Provider.MaxRetries < 1 {
		return fmt.Errorf("provider.max_retries must be at least 1, got %d", c.Provider.MaxRetries)
	}
	if c.Share.Enabled && c.Share.Addr == "" {
		return errors.New("share.addr must be set when share.enabled is true")
	}
	return nil
}

// Save writes the configuration as TOML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
