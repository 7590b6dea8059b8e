// Package config loads the mailingest TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultBatchSize = 50
	DefaultBodyLimit = 50000
)

// Config represents ~/.mailingest/config.toml.
type Config struct {
	// OrgDomains are the organization's own mail domains. Addresses on
	// these domains or their subdomains are internal.
	OrgDomains []string `toml:"org_domains"`
	BatchSize  int      `toml:"batch_size"`
	BodyLimit  int      `toml:"body_limit"`
	// StripAllReplyMarkers strips stacked reply/forward markers until none
	// remain. When false only the leading one is removed.
	StripAllReplyMarkers bool   `toml:"strip_all_reply_markers"`
	DBPath               string `toml:"db_path"`
	LogLevel             string `toml:"log_level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		BatchSize:            DefaultBatchSize,
		BodyLimit:            DefaultBodyLimit,
		StripAllReplyMarkers: true,
		LogLevel:             "info",
	}
}

// Validate checks value ranges and normalizes org domains to lower case.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got %d", c.BodyLimit)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	for i, d := range c.OrgDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || strings.Contains(d, "@") {
			return fmt.Errorf("invalid org domain %q", c.OrgDomains[i])
		}
		c.OrgDomains[i] = d
	}
	return nil
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve loads the config file at path, falling back to Default when the
// file does not exist. The result is validated.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
