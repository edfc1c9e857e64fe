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

// Package export builds span exporters for the configured destinations.
package export

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/tracebind/internal/config"
)

// New creates a span exporter from an exporter config entry.
func New(ctx context.Context, cfg config.Exporter) (sdktrace.SpanExporter, error) {
	switch cfg.Type {
	case "console":
		return NewConsoleExporter(ConsoleConfig{PrettyPrint: true})
	case "otlp":
		return NewOTLPExporter(ctx, cfg)
	case "otlp-http":
		return NewOTLPHTTPExporter(ctx, cfg)
	default:
		return nil, fmt.Errorf("export: unknown exporter type %q", cfg.Type)
	}
}
