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

// Package metrics records engine counters: runs opened and closed,
// stream chunks folded, and recovered extraction failures. Exposed via
// the provider's Prometheus endpoint.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collector implements the tracker's Stats interface using OpenTelemetry
// instruments.
type Collector struct {
	runsStarted        metric.Int64Counter
	runsEnded          metric.Int64Counter
	openRuns           metric.Int64UpDownCounter
	streamChunks       metric.Int64Counter
	extractionFailures metric.Int64Counter
}

// NewCollector creates a collector registering its instruments on the
// given meter provider.
func NewCollector(mp metric.MeterProvider) (*Collector, error) {
	meter := mp.Meter("tracebind")

	c := &Collector{}
	var err error

	c.runsStarted, err = meter.Int64Counter(
		"tracebind_runs_started_total",
		metric.WithDescription("Total number of runs opened"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	c.runsEnded, err = meter.Int64Counter(
		"tracebind_runs_ended_total",
		metric.WithDescription("Total number of runs closed"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	c.openRuns, err = meter.Int64UpDownCounter(
		"tracebind_open_runs",
		metric.WithDescription("Number of currently open runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	c.streamChunks, err = meter.Int64Counter(
		"tracebind_stream_chunks_total",
		metric.WithDescription("Total number of streaming chunks folded"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, err
	}

	c.extractionFailures, err = meter.Int64Counter(
		"tracebind_extraction_failures_total",
		metric.WithDescription("Total number of recovered attribute-extraction failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// RunStarted records a run opening.
func (c *Collector) RunStarted(kind string) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	c.runsStarted.Add(context.Background(), 1, attrs)
	c.openRuns.Add(context.Background(), 1, attrs)
}

// RunEnded records a run closing, successfully or with an error.
func (c *Collector) RunEnded(kind string, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	c.runsEnded.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	c.openRuns.Add(context.Background(), -1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// StreamChunk records one folded streaming chunk.
func (c *Collector) StreamChunk(kind string) {
	c.streamChunks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// ExtractionFailure records a recovered formatter failure.
func (c *Collector) ExtractionFailure(formatter string) {
	c.extractionFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("formatter", formatter),
	))
}
