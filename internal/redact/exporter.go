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

package redact

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Exporter wraps a span exporter and redacts attributes on the way out.
// Redaction happens at export rather than in a span processor because
// ReadWriteSpan offers no way to rewrite attributes already set; the
// wrapped exporter receives rebuilt span snapshots.
type Exporter struct {
	redactor *Redactor
	next     sdktrace.SpanExporter
}

// NewExporter wraps next with redaction.
func NewExporter(redactor *Redactor, next sdktrace.SpanExporter) *Exporter {
	return &Exporter{redactor: redactor, next: next}
}

// ExportSpans redacts each span's attributes and forwards the batch.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.redactor.mode == ModeNone {
		return e.next.ExportSpans(ctx, spans)
	}

	redacted := make([]sdktrace.ReadOnlySpan, len(spans))
	for i, span := range spans {
		stub := tracetest.SpanStubFromReadOnlySpan(span)
		stub.Attributes = e.redactor.RedactAttributes(stub.Attributes)
		redacted[i] = stub.Snapshot()
	}
	return e.next.ExportSpans(ctx, redacted)
}

// Shutdown shuts down the wrapped exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}
