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

package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/tracebind/pkg/payload"
)

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Errorf("failed to shutdown tracer provider: %v", err)
		}
	})
	return NewTracker(tp.Tracer("test"), opts...), exporter
}

func attrMap(stub tracetest.SpanStub) map[string]any {
	m := make(map[string]any, len(stub.Attributes))
	for _, kv := range stub.Attributes {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestTrackerEndToEnd(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{
		ID:      "r1",
		RunType: "llm",
		Inputs: payload.Map{
			"messages": []any{
				[]any{
					map[string]any{"type": "human", "content": "hi"},
				},
			},
		},
	})
	if got := tracker.OpenRuns(); got != 1 {
		t.Fatalf("open runs after start = %d, want 1", got)
	}

	tracker.OnEnd("r1", payload.Map{
		"generations": []any{
			[]any{
				map[string]any{"message": map[string]any{"type": "ai", "content": "hello"}},
			},
		},
	})
	if got := tracker.OpenRuns(); got != 0 {
		t.Fatalf("open runs after end = %d, want 0", got)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "llm" {
		t.Errorf("span name = %q, want %q", span.Name, "llm")
	}
	if span.Status.Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", span.Status.Code)
	}

	attrs := attrMap(span)
	want := map[string]any{
		"openinference.span.kind":              "LLM",
		"llm.input_messages.0.message.role":    "user",
		"llm.input_messages.0.message.content": "hi",
		"llm.output_messages.0.message.role":   "assistant",
		"llm.output_messages.0.message.content": "hello",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attrs[%q] = %v, want %v", k, attrs[k], v)
		}
	}
	if attrs["input.mime_type"] != "application/json" {
		t.Errorf("input.mime_type = %v, want application/json", attrs["input.mime_type"])
	}
}

func TestTrackerParentChild(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{ID: "parent", RunType: "chain", Name: "pipeline"})
	tracker.OnStart(StartEvent{ID: "child", ParentID: "parent", RunType: "llm"})

	tracker.OnEnd("child", nil)
	tracker.OnEnd("parent", nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	var parent, child tracetest.SpanStub
	for _, s := range spans {
		switch s.Name {
		case "pipeline":
			parent = s
		case "llm":
			child = s
		}
	}
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Errorf("child parent span id = %v, want %v", child.Parent.SpanID(), parent.SpanContext.SpanID())
	}
	if child.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Errorf("child and parent are in different traces")
	}
}

func TestTrackerMissingParentBecomesRoot(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{ID: "orphan", ParentID: "never-started", RunType: "tool"})
	tracker.OnEnd("orphan", nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Parent.SpanID().IsValid() {
		t.Errorf("orphan span has parent %v, want root", spans[0].Parent.SpanID())
	}
}

func TestTrackerEndWithoutStart(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnEnd("never-started", payload.Map{"foo": "bar"})
	tracker.OnError("also-never-started", errors.New("boom"))
	tracker.OnStreamEnd("nor-this-one")

	if got := len(exporter.GetSpans()); got != 0 {
		t.Errorf("expected 0 spans, got %d", got)
	}
	if got := tracker.OpenRuns(); got != 0 {
		t.Errorf("open runs = %d, want 0", got)
	}
}

func TestTrackerDuplicateStartLastWins(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm", Name: "first"})
	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm", Name: "second"})
	if got := tracker.OpenRuns(); got != 1 {
		t.Fatalf("open runs = %d, want 1", got)
	}

	tracker.OnEnd("r1", nil)

	// The superseded span is ended and exported with error status, not
	// dropped; the surviving start wins the table entry.
	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Name != "first" {
		t.Errorf("superseded span = %q, want %q", spans[0].Name, "first")
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("superseded span status = %v, want Error", spans[0].Status.Code)
	}
	if spans[1].Name != "second" {
		t.Errorf("surviving span = %q, want the overwriting start %q", spans[1].Name, "second")
	}
	if spans[1].Status.Code != codes.Ok {
		t.Errorf("surviving span status = %v, want Ok", spans[1].Status.Code)
	}
}

func TestTrackerDrain(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("run-%d", i)
			tracker.OnStart(StartEvent{ID: id, RunType: "chain"})
			tracker.OnEnd(id, nil)
		}(i)
	}
	wg.Wait()

	if got := len(exporter.GetSpans()); got != n {
		t.Errorf("spans ended = %d, want %d", got, n)
	}
	if got := tracker.OpenRuns(); got != 0 {
		t.Errorf("open runs after drain = %d, want 0", got)
	}
}

func TestTrackerError(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm"})
	tracker.OnError("r1", errors.New("rate limited"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", span.Status.Code)
	}
	if span.Status.Description != "rate limited" {
		t.Errorf("status description = %q, want %q", span.Status.Description, "rate limited")
	}
	var sawException bool
	for _, ev := range span.Events {
		if ev.Name == "exception" {
			sawException = true
		}
	}
	if !sawException {
		t.Errorf("span has no exception event")
	}
	if got := tracker.OpenRuns(); got != 0 {
		t.Errorf("open runs after error = %d, want 0", got)
	}
}

func TestTrackerMalformedPayloadIsIsolated(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	// A metadata value json.Marshal rejects alongside a valid model name.
	// The model-name attribute must survive the serialization failure.
	tracker.OnStart(StartEvent{
		ID:      "r1",
		RunType: "llm",
		Extra: payload.Map{
			"invocation_params": map[string]any{
				"model_name": "gpt-4",
				"callbacks":  func() {},
			},
		},
	})
	tracker.OnEnd("r1", nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attrMap(spans[0])
	if attrs["llm.model_name"] != "gpt-4" {
		t.Errorf("llm.model_name = %v, want gpt-4", attrs["llm.model_name"])
	}
	if _, ok := attrs["llm.invocation_parameters"]; ok {
		t.Errorf("llm.invocation_parameters emitted despite unencodable value")
	}
}

func TestTrackerStreamingToolCall(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm"})

	tracker.OnStreamChunk("r1", Chunk{Kind: ChunkToolStart, Index: 0, ToolID: "call_1", ToolName: "get_weather"})
	for _, frag := range []string{`{"loc`, `ation":"SF"`, `}`} {
		tracker.OnStreamChunk("r1", Chunk{Kind: ChunkToolArgsDelta, Index: 0, ArgsFragment: frag})
	}
	tracker.OnStreamChunk("r1", Chunk{Kind: ChunkUsage, Usage: &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}})
	tracker.OnStreamEnd("r1")

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attrMap(spans[0])

	if got := attrs["llm.output_messages.0.message.tool_calls.0.tool_call.function.name"]; got != "get_weather" {
		t.Errorf("tool call name = %v, want get_weather", got)
	}
	if got := attrs["llm.output_messages.0.message.tool_calls.0.tool_call.function.arguments"]; got != `{"location":"SF"}` {
		t.Errorf("tool call arguments = %v, want {\"location\":\"SF\"}", got)
	}
	if got := attrs["llm.token_count.prompt"]; got != int64(10) {
		t.Errorf("prompt tokens = %v, want 10", got)
	}
	if got := attrs["llm.token_count.completion"]; got != int64(5) {
		t.Errorf("completion tokens = %v, want 5", got)
	}
	if got := attrs["llm.token_count.total"]; got != int64(15) {
		t.Errorf("total tokens = %v, want 15", got)
	}
	if got := attrs["llm.output_messages.0.message.role"]; got != "assistant" {
		t.Errorf("output role = %v, want assistant", got)
	}
}

func TestTrackerStreamErrorKeepsPartialResults(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm"})
	tracker.OnStreamChunk("r1", Chunk{Kind: ChunkTextDelta, Text: "partial "})
	tracker.OnStreamChunk("r1", Chunk{Kind: ChunkTextDelta, Text: "answer"})
	tracker.OnError("r1", errors.New("connection reset"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", span.Status.Code)
	}
	attrs := attrMap(span)
	if got := attrs["llm.output_messages.0.message.content"]; got != "partial answer" {
		t.Errorf("partial content = %v, want %q", got, "partial answer")
	}
}

type fixedEstimator struct{ n int }

func (f fixedEstimator) Count(string) int { return f.n }

func TestTrackerStreamEstimatesTokensWithoutUsage(t *testing.T) {
	tracker, exporter := newTestTracker(t, WithTokenEstimator(fixedEstimator{n: 7}))

	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm"})
	tracker.OnStreamChunk("r1", Chunk{Kind: ChunkTextDelta, Text: "some streamed text"})
	tracker.OnStreamEnd("r1")

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attrMap(spans[0])
	if got := attrs["llm.token_count.completion"]; got != int64(7) {
		t.Errorf("estimated completion tokens = %v, want 7", got)
	}
}

func TestTrackerRetrieverDocuments(t *testing.T) {
	tracker, exporter := newTestTracker(t)

	tracker.OnStart(StartEvent{ID: "r1", RunType: "retriever"})
	tracker.OnEnd("r1", payload.Map{
		"documents": []any{
			map[string]any{"page_content": "Go is a language", "metadata": map[string]any{"source": "docs"}},
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attrMap(spans[0])
	if got := attrs["retrieval.documents.0.document.content"]; got != "Go is a language" {
		t.Errorf("document content = %v", got)
	}
	if got := attrs["retrieval.documents.0.document.metadata"]; got != `{"source":"docs"}` {
		t.Errorf("document metadata = %v", got)
	}
	if attrs["openinference.span.kind"] != "RETRIEVER" {
		t.Errorf("span kind = %v, want RETRIEVER", attrs["openinference.span.kind"])
	}
}

type stalledStats struct {
	release chan struct{}
}

func (s *stalledStats) RunStarted(string)        {}
func (s *stalledStats) RunEnded(string, bool)    {}
func (s *stalledStats) StreamChunk(string)       { <-s.release }
func (s *stalledStats) ExtractionFailure(string) {}

func TestTeeForwardsWhileAggregatorStalls(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	stats := &stalledStats{release: make(chan struct{})}
	tracker := NewTracker(tp.Tracer("test"), WithStats(stats))
	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm"})

	in := make(chan Chunk)
	out := Tee(in, tracker, "r1")

	go func() {
		in <- Chunk{Kind: ChunkTextDelta, Text: "a"}
		in <- Chunk{Kind: ChunkTextDelta, Text: "b"}
		in <- Chunk{Kind: ChunkTextDelta, Text: "c"}
		close(in)
	}()

	// With the aggregator blocked on its first chunk, the consumer still
	// receives every chunk.
	for _, want := range []string{"a", "b", "c"} {
		got, ok := <-out
		if !ok || got.Text != want {
			t.Fatalf("receive = (%q, %v), want (%q, true)", got.Text, ok, want)
		}
	}

	close(stats.release)
	if _, ok := <-out; ok {
		t.Fatal("expected out to close after the source drained")
	}
	if got := len(exporter.GetSpans()); got != 1 {
		t.Fatalf("expected 1 span after stream end, got %d", got)
	}
}

func TestTee(t *testing.T) {
	tracker, exporter := newTestTracker(t)
	tracker.OnStart(StartEvent{ID: "r1", RunType: "llm"})

	in := make(chan Chunk)
	out := Tee(in, tracker, "r1")

	chunks := []Chunk{
		{Kind: ChunkTextDelta, Text: "hel"},
		{Kind: ChunkTextDelta, Text: "lo"},
		{Kind: ChunkUsage, Usage: &Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}},
	}
	go func() {
		for _, c := range chunks {
			in <- c
		}
		close(in)
	}()

	var forwarded []Chunk
	for c := range out {
		forwarded = append(forwarded, c)
	}

	if len(forwarded) != len(chunks) {
		t.Fatalf("forwarded %d chunks, want %d", len(forwarded), len(chunks))
	}
	for i, c := range forwarded {
		if c.Text != chunks[i].Text {
			t.Errorf("chunk %d text = %q, want %q", i, c.Text, chunks[i].Text)
		}
	}

	// The run ends before the output channel closes.
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span after tee drained, got %d", len(spans))
	}
	attrs := attrMap(spans[0])
	if got := attrs["llm.output_messages.0.message.content"]; got != "hello" {
		t.Errorf("streamed content = %v, want hello", got)
	}
	if got := attrs["llm.token_count.total"]; got != int64(5) {
		t.Errorf("total tokens = %v, want 5", got)
	}
}
