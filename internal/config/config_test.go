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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ServiceName != "tracebind" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.BatchSize != 512 {
		t.Errorf("BatchSize = %d, want 512", cfg.BatchSize)
	}
	if cfg.BatchInterval != 5*time.Second {
		t.Errorf("BatchInterval = %v, want 5s", cfg.BatchInterval)
	}
	if cfg.Redaction.Level != "standard" {
		t.Errorf("Redaction.Level = %q, want standard", cfg.Redaction.Level)
	}
	if cfg.Storage.Enabled {
		t.Errorf("storage enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
service_name: my-app
service_version: 1.2.3
batch_size: 128
exporters:
  - type: otlp
    endpoint: collector:4317
    insecure: true
  - type: console
sampling:
  enabled: true
  rate: 0.25
  always_sample_errors: true
storage:
  enabled: true
  path: ":memory:"
estimator_model: gpt-4
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServiceName != "my-app" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.BatchSize != 128 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	// Unset fields keep their defaults.
	if cfg.BatchInterval != 5*time.Second {
		t.Errorf("BatchInterval = %v, want default 5s", cfg.BatchInterval)
	}
	if len(cfg.Exporters) != 2 {
		t.Fatalf("Exporters = %d, want 2", len(cfg.Exporters))
	}
	if cfg.Exporters[0].Endpoint != "collector:4317" || !cfg.Exporters[0].Insecure {
		t.Errorf("otlp exporter = %+v", cfg.Exporters[0])
	}
	if cfg.Sampling.Rate != 0.25 {
		t.Errorf("Sampling.Rate = %v", cfg.Sampling.Rate)
	}
	if !cfg.Storage.Enabled || cfg.Storage.Path != ":memory:" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.EstimatorModel != "gpt-4" {
		t.Errorf("EstimatorModel = %q", cfg.EstimatorModel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRACEBIND_SERVICE_NAME", "env-app")
	t.Setenv("TRACEBIND_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("TRACEBIND_OTLP_INSECURE", "1")
	t.Setenv("TRACEBIND_REDACTION_LEVEL", "strict")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ServiceName != "env-app" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if len(cfg.Exporters) != 1 || cfg.Exporters[0].Endpoint != "otel:4317" || !cfg.Exporters[0].Insecure {
		t.Errorf("Exporters = %+v", cfg.Exporters)
	}
	if cfg.Redaction.Level != "strict" {
		t.Errorf("Redaction.Level = %q", cfg.Redaction.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid default", func(c *Config) {}, true},
		{"empty service name", func(c *Config) { c.ServiceName = "" }, false},
		{"negative sampling rate", func(c *Config) { c.Sampling.Rate = -0.1 }, false},
		{"sampling rate above one", func(c *Config) { c.Sampling.Rate = 1.5 }, false},
		{"unknown redaction level", func(c *Config) { c.Redaction.Level = "partial" }, false},
		{"otlp without endpoint", func(c *Config) {
			c.Exporters = []Exporter{{Type: "otlp"}}
		}, false},
		{"console without endpoint", func(c *Config) {
			c.Exporters = []Exporter{{Type: "console"}}
		}, true},
		{"unknown exporter type", func(c *Config) {
			c.Exporters = []Exporter{{Type: "kafka"}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("error %v is not ErrInvalidConfig", err)
				}
			}
		})
	}
}
