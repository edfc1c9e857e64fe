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

// Package runs maps a tree of overlapping, asynchronously started and
// ended operations onto trace spans. The hook layer that intercepts the
// instrumented client calls the tracker's lifecycle entry points with a
// caller-supplied run id; the tracker owns the open-run table, resolves
// parent spans, and delegates payload-to-attribute conversion to the
// extract package. No failure inside the tracker ever reaches the
// instrumented call.
package runs

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/tracebind/pkg/extract"
	"github.com/tombee/tracebind/pkg/payload"
	"github.com/tombee/tracebind/pkg/semconv"
	"github.com/tombee/tracebind/pkg/tokens"
)

// StartEvent describes one operation start. Inputs, Extra, and Serialized
// are the raw payload bags the hook layer captured; any of them may be
// nil.
type StartEvent struct {
	// ID identifies the run. Must be unique among currently-open runs;
	// a duplicate overwrites the stale entry (last start wins).
	ID string
	// ParentID references a currently-open run, or "" for a root span.
	// A parent that is not open degrades to a root span, never an error.
	ParentID string
	// Name is the span name. Empty falls back to RunType, then to the
	// classified kind.
	Name string
	// RunType is the free-text operation-type label the kind is
	// classified from.
	RunType string
	// Inputs is the operation's input payload.
	Inputs payload.Map
	// Extra carries run metadata (invocation parameters, metadata bag).
	Extra payload.Map
	// Serialized is the operation's serialized definition, used for
	// prompt-template extraction.
	Serialized payload.Map
}

// Stats receives engine counters. Implementations must be safe for
// concurrent use.
type Stats interface {
	RunStarted(kind string)
	RunEnded(kind string, failed bool)
	StreamChunk(kind string)
	ExtractionFailure(formatter string)
}

type nopStats struct{}

func (nopStats) RunStarted(string)        {}
func (nopStats) RunEnded(string, bool)    {}
func (nopStats) StreamChunk(string)       {}
func (nopStats) ExtractionFailure(string) {}

type run struct {
	ctx  context.Context
	span trace.Span
	kind semconv.SpanKind
	acc  *Accumulator
}

// Tracker is the run-lifecycle state machine. Safe for concurrent use;
// starts and ends for unrelated run ids may interleave freely.
type Tracker struct {
	tracer    trace.Tracer
	guard     *extract.Guard
	logger    *slog.Logger
	stats     Stats
	estimator tokens.Estimator
	baseCtx   context.Context

	mu   sync.Mutex
	open map[string]*run
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the diagnostic logger for extraction failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithStats sets the counter sink.
func WithStats(s Stats) Option {
	return func(t *Tracker) {
		if s != nil {
			t.stats = s
		}
	}
}

// WithTokenEstimator sets the estimator used to synthesize completion
// token counts for streams that end without a usage chunk.
func WithTokenEstimator(e tokens.Estimator) Option {
	return func(t *Tracker) { t.estimator = e }
}

// WithBaseContext sets the context root spans are created from, letting
// the caller link all runs under an ambient span or carry baggage.
func WithBaseContext(ctx context.Context) Option {
	return func(t *Tracker) {
		if ctx != nil {
			t.baseCtx = ctx
		}
	}
}

// NewTracker creates a Tracker issuing spans through tracer.
func NewTracker(tracer trace.Tracer, opts ...Option) *Tracker {
	t := &Tracker{
		tracer:  tracer,
		stats:   nopStats{},
		baseCtx: context.Background(),
		open:    make(map[string]*run),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.guard = extract.NewGuard(t.logger)
	t.guard.OnFailure(t.stats.ExtractionFailure)
	return t
}

// OpenRuns reports the number of currently-open runs.
func (t *Tracker) OpenRuns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// OnStart opens a run: creates a span as a child of the parent run's span
// (root if the parent is unknown), sets the start-side attributes, and
// stores the run in the open table.
func (t *Tracker) OnStart(ev StartEvent) {
	kind := semconv.KindFromLabel(ev.RunType)
	name := ev.Name
	if name == "" {
		name = ev.RunType
	}
	if name == "" {
		name = string(kind)
	}

	t.mu.Lock()
	parentCtx := t.baseCtx
	if parent, ok := t.open[ev.ParentID]; ok && ev.ParentID != "" {
		parentCtx = parent.ctx
	}
	var staleKind semconv.SpanKind
	if stale, ok := t.open[ev.ID]; ok {
		// Last start wins, but the orphaned span is ended and exported
		// rather than leaked silently.
		stale.span.SetStatus(codes.Error, "superseded by duplicate run start")
		stale.span.End()
		staleKind = stale.kind
		if t.logger != nil {
			t.logger.Debug("duplicate run start, replacing stale entry", "run_id", ev.ID)
		}
	}

	ctx, span := t.tracer.Start(parentCtx, name)
	span.SetAttributes(toAttributes(t.startAttrs(kind, ev))...)
	t.open[ev.ID] = &run{ctx: ctx, span: span, kind: kind}
	t.mu.Unlock()

	if staleKind != "" {
		t.stats.RunEnded(string(staleKind), true)
	}
	t.stats.RunStarted(string(kind))
}

func (t *Tracker) startAttrs(kind semconv.SpanKind, ev StartEvent) map[string]any {
	attrs := map[string]any{semconv.OpenInferenceSpanKind: string(kind)}
	merge(attrs, t.guard.Attrs("input_value", func() map[string]any {
		return extract.InputValue(ev.Inputs)
	}))
	merge(attrs, t.guard.Attrs("input_messages", func() map[string]any {
		return extract.InputMessages(ev.Inputs)
	}))
	merge(attrs, t.guard.Attrs("invocation_parameters", func() map[string]any {
		return extract.InvocationParameters(ev.Extra)
	}))
	merge(attrs, t.guard.Attrs("metadata", func() map[string]any {
		return extract.Metadata(ev.Extra)
	}))
	merge(attrs, t.guard.Attrs("prompt_template", func() map[string]any {
		return extract.PromptTemplate(ev.RunType, ev.Inputs, ev.Serialized)
	}))
	return attrs
}

// OnEnd closes a run normally: the output-side attributes are applied as
// one batch, the span status is set to Ok, and the entry is removed from
// the table. Unknown ids are a no-op.
func (t *Tracker) OnEnd(id string, outputs payload.Map) {
	r := t.take(id)
	if r == nil {
		return
	}
	r.span.SetAttributes(toAttributes(t.endAttrs(r.kind, outputs))...)
	r.span.SetStatus(codes.Ok, "")
	r.span.End()
	t.stats.RunEnded(string(r.kind), false)
}

// OnError closes a run with a recorded exception. If the run was
// streaming, everything the accumulator holds is still finalized onto the
// span before it ends.
func (t *Tracker) OnError(id string, err error) {
	r := t.take(id)
	if r == nil {
		return
	}
	if r.acc != nil {
		r.span.SetAttributes(toAttributes(t.endAttrs(r.kind, t.finalize(r.acc)))...)
	}
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	} else {
		r.span.SetStatus(codes.Error, "")
	}
	r.span.End()
	t.stats.RunEnded(string(r.kind), true)
}

// OnStreamChunk folds one chunk into the run's accumulator, creating it
// on first use. Chunks for unknown ids are dropped.
func (t *Tracker) OnStreamChunk(id string, c Chunk) {
	t.mu.Lock()
	r, ok := t.open[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	if r.acc == nil {
		r.acc = NewAccumulator()
	}
	kind := r.kind
	r.acc.Feed(c)
	t.mu.Unlock()

	t.stats.StreamChunk(string(kind))
}

// OnStreamEnd closes a streaming run: the accumulated chunks are
// finalized into the non-streaming output shape and the run ends as if
// OnEnd had been called with that payload.
func (t *Tracker) OnStreamEnd(id string) {
	r := t.take(id)
	if r == nil {
		return
	}
	acc := r.acc
	if acc == nil {
		acc = NewAccumulator()
	}
	r.span.SetAttributes(toAttributes(t.endAttrs(r.kind, t.finalize(acc)))...)
	r.span.SetStatus(codes.Ok, "")
	r.span.End()
	t.stats.RunEnded(string(r.kind), false)
}

// take removes and returns the open run for id, or nil.
func (t *Tracker) take(id string) *run {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.open[id]
	if !ok {
		return nil
	}
	delete(t.open, id)
	return r
}

// finalize converts an accumulator into an end payload. When the stream
// reported no usage and an estimator is configured, an estimated
// completion count is synthesized from the accumulated text.
func (t *Tracker) finalize(acc *Accumulator) payload.Map {
	out := acc.Finalize()
	if acc.Usage() == nil && t.estimator != nil {
		if text := acc.Text(); text != "" {
			out["llmOutput"] = map[string]any{
				"estimatedTokenUsage": map[string]any{
					"completionTokens": int64(t.estimator.Count(text)),
				},
			}
		}
	}
	return out
}

func (t *Tracker) endAttrs(kind semconv.SpanKind, outputs payload.Map) map[string]any {
	attrs := make(map[string]any)
	merge(attrs, t.guard.Attrs("output_value", func() map[string]any {
		return extract.OutputValue(outputs)
	}))
	merge(attrs, t.guard.Attrs("output_messages", func() map[string]any {
		return extract.OutputMessages(outputs)
	}))
	merge(attrs, t.guard.Attrs("documents", func() map[string]any {
		return extract.Documents(kind, outputs)
	}))
	merge(attrs, t.guard.Attrs("token_counts", func() map[string]any {
		return extract.TokenCounts(outputs)
	}))
	merge(attrs, t.guard.Attrs("function_call", func() map[string]any {
		return extract.TopLevelFunctionCall(outputs)
	}))
	return attrs
}

func merge(dst map[string]any, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
