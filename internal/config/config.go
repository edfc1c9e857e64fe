// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates tracebind configuration from YAML
// files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete tracebind configuration.
type Config struct {
	// ServiceName identifies the instrumented application in traces.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the instrumented application's version.
	ServiceVersion string `yaml:"service_version"`

	// Exporters configures span export destinations. With no exporters
	// configured spans are still created and stored locally if storage
	// is enabled.
	Exporters []Exporter `yaml:"exporters,omitempty"`

	// BatchSize is the maximum number of spans per export batch (default: 512).
	BatchSize int `yaml:"batch_size,omitempty"`

	// BatchInterval is how often to flush spans (default: 5s).
	BatchInterval time.Duration `yaml:"batch_interval,omitempty"`

	// Sampling configures trace sampling.
	Sampling Sampling `yaml:"sampling,omitempty"`

	// Redaction configures sensitive data handling on exported spans.
	Redaction Redaction `yaml:"redaction,omitempty"`

	// Storage configures the local span store.
	Storage Storage `yaml:"storage,omitempty"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics Metrics `yaml:"metrics,omitempty"`

	// Logging configures diagnostic logging.
	Logging Logging `yaml:"logging,omitempty"`

	// EstimatorModel is the model family used to estimate completion
	// tokens for streams that report no usage. Empty disables estimation.
	EstimatorModel string `yaml:"estimator_model,omitempty"`
}

// Exporter defines one span export destination.
type Exporter struct {
	// Type is the exporter type: "otlp", "otlp-http", or "console".
	Type string `yaml:"type"`

	// Endpoint is the OTLP receiver address (e.g. "localhost:4317").
	Endpoint string `yaml:"endpoint,omitempty"`

	// URLPath overrides the HTTP trace path (otlp-http only).
	URLPath string `yaml:"url_path,omitempty"`

	// Headers are additional headers sent with each request, typically
	// for authentication.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Insecure disables TLS. For local collectors only.
	Insecure bool `yaml:"insecure,omitempty"`

	// CACertPath is a custom CA certificate for server verification.
	CACertPath string `yaml:"ca_cert_path,omitempty"`

	// Timeout is the export timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Sampling controls which traces are recorded.
type Sampling struct {
	// Enabled activates sampling (default: false - record all).
	Enabled bool `yaml:"enabled"`

	// Rate is the fraction of traces to sample (0.0 - 1.0).
	Rate float64 `yaml:"rate,omitempty"`

	// AlwaysSampleErrors records every trace containing an error.
	AlwaysSampleErrors bool `yaml:"always_sample_errors,omitempty"`
}

// Redaction controls sensitive data redaction on export.
type Redaction struct {
	// Level is the redaction mode: "none", "standard", or "strict".
	Level string `yaml:"level,omitempty"`

	// Patterns are custom redaction patterns applied in standard mode.
	Patterns []RedactionPattern `yaml:"patterns,omitempty"`
}

// RedactionPattern defines a sensitive data pattern.
type RedactionPattern struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	Replacement string `yaml:"replacement"`
}

// Storage controls the local span store.
type Storage struct {
	// Enabled activates SQLite-backed span storage.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database path. Empty uses DataDir()/spans.db;
	// ":memory:" keeps everything in memory.
	Path string `yaml:"path,omitempty"`

	// Retention is how long stored spans are kept (default: 7 days).
	Retention time.Duration `yaml:"retention,omitempty"`
}

// Metrics controls engine metrics.
type Metrics struct {
	// Enabled activates the Prometheus metrics collector.
	Enabled bool `yaml:"enabled"`
}

// Logging controls diagnostic logging.
type Logging struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		ServiceName:    "tracebind",
		ServiceVersion: "unknown",
		BatchSize:      512,
		BatchInterval:  5 * time.Second,
		Sampling: Sampling{
			Enabled:            false,
			Rate:               1.0,
			AlwaysSampleErrors: true,
		},
		Redaction: Redaction{
			Level: "standard",
		},
		Storage: Storage{
			Enabled:   false,
			Retention: 7 * 24 * time.Hour,
		},
		Metrics: Metrics{
			Enabled: false,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv returns the default configuration with environment overrides
// applied, for callers that run without a config file.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables. Environment wins
// over file values, matching the usual precedence for containerized
// deployments.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRACEBIND_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("TRACEBIND_SERVICE_VERSION"); v != "" {
		c.ServiceVersion = v
	}
	if v := os.Getenv("TRACEBIND_OTLP_ENDPOINT"); v != "" {
		c.Exporters = append(c.Exporters, Exporter{
			Type:     "otlp",
			Endpoint: v,
			Insecure: os.Getenv("TRACEBIND_OTLP_INSECURE") == "1",
		})
	}
	if v := os.Getenv("TRACEBIND_REDACTION_LEVEL"); v != "" {
		c.Redaction.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TRACEBIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TRACEBIND_STORAGE_PATH"); v != "" {
		c.Storage.Enabled = true
		c.Storage.Path = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service_name is required", ErrInvalidConfig)
	}
	if c.Sampling.Rate < 0.0 || c.Sampling.Rate > 1.0 {
		return fmt.Errorf("%w: sampling rate %v outside [0.0, 1.0]", ErrInvalidConfig, c.Sampling.Rate)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch_size must be non-negative", ErrInvalidConfig)
	}
	switch c.Redaction.Level {
	case "", "none", "standard", "strict":
	default:
		return fmt.Errorf("%w: unknown redaction level %q", ErrInvalidConfig, c.Redaction.Level)
	}
	for _, e := range c.Exporters {
		switch e.Type {
		case "otlp", "otlp-http":
			if e.Endpoint == "" {
				return fmt.Errorf("%w: exporter %q requires an endpoint", ErrInvalidConfig, e.Type)
			}
		case "console":
		default:
			return fmt.Errorf("%w: unknown exporter type %q", ErrInvalidConfig, e.Type)
		}
	}
	return nil
}
