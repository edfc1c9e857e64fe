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

// Package tracebind turns LLM client activity into OpenInference trace
// spans. A hook layer intercepting the client reports run lifecycle
// events to the Tracker; this package assembles the OpenTelemetry
// pipeline around it: exporters, redaction, local storage, sampling,
// and metrics.
//
// Init returns a Provider handle owning the pipeline. Instrumentation
// state lives entirely on the handle, so initializing twice yields two
// independent pipelines rather than a global re-patch.
package tracebind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tombee/tracebind/internal/config"
	"github.com/tombee/tracebind/internal/export"
	"github.com/tombee/tracebind/internal/log"
	"github.com/tombee/tracebind/internal/metrics"
	"github.com/tombee/tracebind/internal/redact"
	"github.com/tombee/tracebind/internal/storage"
	"github.com/tombee/tracebind/pkg/runs"
	"github.com/tombee/tracebind/pkg/tokens"
)

// Config re-exports the configuration type for callers.
type Config = config.Config

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML config file with environment overrides.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Provider owns an initialized instrumentation pipeline.
type Provider struct {
	cfg       Config
	logger    *slog.Logger
	tp        *sdktrace.TracerProvider
	mp        *sdkmetric.MeterProvider
	collector *metrics.Collector
	store     *storage.Store
	tracker   *runs.Tracker

	shutdownOnce sync.Once
	shutdownErr  error
}

// Init builds a Provider from the configuration. The returned handle
// owns every component it created; call Shutdown to flush and release
// them.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(&log.Config{
		Level:  cfg.Logging.Level,
		Format: log.Format(cfg.Logging.Format),
	})

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids merge conflicts with the default resource
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracebind: create resource: %w", err)
	}

	p := &Provider{cfg: cfg, logger: logger}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.Sampling)),
	}

	redactor, err := buildRedactor(cfg.Redaction)
	if err != nil {
		return nil, err
	}

	for _, ec := range cfg.Exporters {
		exporter, err := export.New(ctx, ec)
		if err != nil {
			p.closePartial(ctx)
			return nil, fmt.Errorf("tracebind: exporter %q: %w", ec.Type, err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(
			redact.NewExporter(redactor, exporter),
			sdktrace.WithMaxExportBatchSize(cfg.BatchSize),
			sdktrace.WithBatchTimeout(cfg.BatchInterval),
		))
		logger.Debug("exporter configured", log.ExporterKey, ec.Type)
	}

	if cfg.Storage.Enabled {
		store, err := p.openStore(cfg.Storage)
		if err != nil {
			p.closePartial(ctx)
			return nil, err
		}
		p.store = store
		tpOpts = append(tpOpts, sdktrace.WithBatcher(
			redact.NewExporter(redactor, storage.NewExporter(store)),
			sdktrace.WithMaxExportBatchSize(cfg.BatchSize),
			sdktrace.WithBatchTimeout(cfg.BatchInterval),
		))
	}

	p.tp = sdktrace.NewTracerProvider(tpOpts...)

	trackerOpts := []runs.Option{
		runs.WithLogger(log.WithComponent(logger, "tracker")),
	}

	if cfg.Metrics.Enabled {
		promExporter, err := prometheus.New()
		if err != nil {
			p.closePartial(ctx)
			return nil, fmt.Errorf("tracebind: create prometheus exporter: %w", err)
		}
		p.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)
		p.collector, err = metrics.NewCollector(p.mp)
		if err != nil {
			p.closePartial(ctx)
			return nil, fmt.Errorf("tracebind: create metrics collector: %w", err)
		}
		trackerOpts = append(trackerOpts, runs.WithStats(p.collector))
	}

	if cfg.EstimatorModel != "" {
		trackerOpts = append(trackerOpts, runs.WithTokenEstimator(tokens.NewEstimator(cfg.EstimatorModel)))
	}

	p.tracker = runs.NewTracker(p.tp.Tracer("tracebind"), trackerOpts...)

	return p, nil
}

// openStore resolves the storage path and opens the span store.
func (p *Provider) openStore(cfg config.Storage) (*storage.Store, error) {
	path := cfg.Path
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("tracebind: resolve data dir: %w", err)
		}
		path = filepath.Join(dir, "spans.db")
	}
	store, err := storage.Open(storage.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("tracebind: open span store: %w", err)
	}
	return store, nil
}

// closePartial releases components created before an Init failure.
func (p *Provider) closePartial(ctx context.Context) {
	if p.tp != nil {
		_ = p.tp.Shutdown(ctx)
	}
	if p.mp != nil {
		_ = p.mp.Shutdown(ctx)
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

// Tracker returns the run-lifecycle tracker. Hook layers call its
// OnStart/OnEnd/OnError/OnStream* entry points.
func (p *Provider) Tracker() *runs.Tracker {
	return p.tracker
}

// Store returns the local span store, or nil if storage is disabled.
func (p *Provider) Store() *storage.Store {
	return p.store
}

// Logger returns the provider's diagnostic logger.
func (p *Provider) Logger() *slog.Logger {
	return p.logger
}

// MetricsHandler returns an HTTP handler for the Prometheus metrics
// endpoint. The OTel prometheus exporter registers on the default
// registry, which promhttp.Handler serves.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ForceFlush exports all pending spans synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.ForceFlush(ctx)
	}
	return nil
}

// Shutdown flushes pending spans and releases all resources. Safe to
// call more than once; later calls return the first result.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		var errs []error
		if p.tp != nil {
			if err := p.tp.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if p.mp != nil {
			if err := p.mp.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		// Storage is closed by its exporter's Shutdown via the
		// tracer provider; nothing more to do here.
		p.shutdownErr = errors.Join(errs...)
	})
	return p.shutdownErr
}

// buildRedactor compiles custom patterns from configuration on top of
// the standard set.
func buildRedactor(cfg config.Redaction) (*redact.Redactor, error) {
	var mode redact.Mode
	switch cfg.Level {
	case "none":
		mode = redact.ModeNone
	case "strict":
		mode = redact.ModeStrict
	default:
		mode = redact.ModeStandard
	}

	if len(cfg.Patterns) == 0 {
		return redact.New(mode), nil
	}

	extra := make([]redact.Pattern, 0, len(cfg.Patterns))
	for _, pc := range cfg.Patterns {
		re, err := regexp.Compile(pc.Regex)
		if err != nil {
			return nil, fmt.Errorf("tracebind: redaction pattern %q: %w", pc.Name, err)
		}
		replacement := pc.Replacement
		if replacement == "" {
			replacement = "[REDACTED]"
		}
		extra = append(extra, redact.Pattern{
			Name:        pc.Name,
			Regex:       re,
			Replacement: replacement,
		})
	}
	return redact.NewWithPatterns(mode, extra), nil
}
