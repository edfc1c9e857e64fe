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

package storage

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/tracebind/pkg/semconv"
)

// Exporter adapts a Store to the OpenTelemetry SpanExporter interface so
// the store can sit in the provider's export pipeline alongside OTLP.
type Exporter struct {
	store *Store
}

// NewExporter creates a span exporter writing to store.
func NewExporter(store *Store) *Exporter {
	return &Exporter{store: store}
}

// ExportSpans writes the batch to the store. The first write error aborts
// the batch; the SDK's batch processor logs and drops on error, which is
// the right behavior for a best-effort local store.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		if err := e.store.Save(ctx, recordFromSpan(span)); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown closes the underlying store.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.store.Close()
}

func recordFromSpan(span sdktrace.ReadOnlySpan) *Record {
	rec := &Record{
		TraceID:       span.SpanContext().TraceID().String(),
		SpanID:        span.SpanContext().SpanID().String(),
		Name:          span.Name(),
		Kind:          string(semconv.SpanKindUnknown),
		StartTime:     span.StartTime(),
		EndTime:       span.EndTime(),
		StatusMessage: span.Status().Description,
		Attributes:    make(map[string]any, len(span.Attributes())),
	}

	if span.Parent().SpanID().IsValid() {
		rec.ParentID = span.Parent().SpanID().String()
	}

	switch span.Status().Code {
	case codes.Ok:
		rec.StatusCode = 1
	case codes.Error:
		rec.StatusCode = 2
	default:
		rec.StatusCode = 0
	}

	for _, kv := range span.Attributes() {
		key := string(kv.Key)
		rec.Attributes[key] = kv.Value.AsInterface()
		if key == semconv.OpenInferenceSpanKind {
			rec.Kind = kv.Value.AsString()
		}
	}
	return rec
}
