// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package configs loads the per-working-copy configuration stored in
// .sylos/config.yaml.
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"gopkg.in/yaml.v3"
)

// ControlDir is the reserved directory at the root of every working copy.
const ControlDir = ".sylos"

// FileName is the configuration file inside ControlDir.
const FileName = "config.yaml"

// Environment overrides.
const (
	EnvLogLevel       = "SYLOS_LOG_LEVEL"
	EnvObjectsBackend = "SYLOS_OBJECTS_BACKEND"
)

// Config is the complete working-copy configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	LogBuffer   LogBufferConfig   `yaml:"log_buffer"`
	Objects     ObjectsConfig     `yaml:"objects"`
	Scan        ScanConfig        `yaml:"scan"`
	Portability PortabilityConfig `yaml:"portability"`
	Backups     BackupsConfig     `yaml:"backups"`
	Journal     JournalConfig     `yaml:"journal"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LoggingConfig selects the console threshold and format.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // trace, debug, info, warning, error, critical
	Encoding string `yaml:"encoding"` // console or json
}

// LogBufferConfig batches persisted log entries.
type LogBufferConfig struct {
	BatchSize        int `yaml:"batch_size"`
	FlushIntervalSec int `yaml:"flush_interval_seconds"`
}

// FlushInterval returns the interval as a duration.
func (c LogBufferConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSec) * time.Second
}

// ObjectsConfig locates the object store. A relative path is resolved
// against the control directory.
type ObjectsConfig struct {
	Backend string `yaml:"backend"` // bolt or badger
	Path    string `yaml:"path"`
}

// ScanConfig tunes the filesystem scanner.
type ScanConfig struct {
	Ignore       []string `yaml:"ignore,omitempty"`
	WarnSymlinks bool     `yaml:"warn_symlinks"`
	XAttrs       bool     `yaml:"xattrs"`
}

// PortabilityConfig tunes the name-safety analyzer.
type PortabilityConfig struct {
	IgnoreFlags    []string `yaml:"ignore_flags,omitempty"`
	IgnoreWarnings bool     `yaml:"ignore_warnings"`
}

// Analyzer builds the analyzer the flags describe.
func (c PortabilityConfig) Analyzer() (portability.Analyzer, error) {
	mask, err := portability.ParseFlags(c.IgnoreFlags)
	if err != nil {
		return portability.Analyzer{}, err
	}
	return portability.Analyzer{Ignore: mask}, nil
}

// BackupsConfig controls the name~bakNN~ copies revert and update make
// of user edits they overwrite.
type BackupsConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxAttempts int  `yaml:"max_attempts"`
}

// JournalConfig enables the sqlite action journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig names the prometheus textfile written after every
// operation; empty disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Default returns the configuration written by init.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Encoding: "console"},
		LogBuffer: LogBufferConfig{BatchSize: 100, FlushIntervalSec: 1},
		Objects:   ObjectsConfig{Backend: "bolt", Path: "objects.db"},
		Scan:      ScanConfig{WarnSymlinks: true, XAttrs: true},
		Backups:   BackupsConfig{Enabled: true, MaxAttempts: 100},
		Journal:   JournalConfig{Enabled: true, Path: "journal.db"},
	}
}

// PathFor returns the configuration file of the working copy at root.
func PathFor(root string) string {
	return filepath.Join(root, ControlDir, FileName)
}

// Load reads the configuration of the working copy at root. A missing
// file yields the defaults. Environment overrides are applied last.
func Load(root string) (*Config, error) {
	cfg := Default()
	path := PathFor(root)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to the working copy at root.
func Save(root string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML config: %w", err)
	}
	path := PathFor(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvObjectsBackend); v != "" {
		c.Objects.Backend = strings.ToLower(v)
	}
}

// Validate rejects values no component accepts.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warning", "error", "critical":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log encoding %q", c.Logging.Encoding)
	}
	switch c.Objects.Backend {
	case "bolt", "badger":
	default:
		return fmt.Errorf("unknown object store backend %q", c.Objects.Backend)
	}
	if c.Backups.MaxAttempts < 0 || c.Backups.MaxAttempts > 100 {
		return fmt.Errorf("backups.max_attempts must be between 0 and 100")
	}
	if _, err := c.Portability.Analyzer(); err != nil {
		return err
	}
	return nil
}

// Resolve turns a path from the configuration into an absolute one.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, ControlDir, p)
}
