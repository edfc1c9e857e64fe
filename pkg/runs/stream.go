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
	"encoding/json"
	"strings"

	"github.com/tombee/tracebind/pkg/payload"
)

// ChunkKind discriminates the streaming chunk variants the accumulator
// understands.
type ChunkKind int

const (
	// ChunkToolStart opens a tool-call block at Chunk.Index, carrying the
	// tool's id and name.
	ChunkToolStart ChunkKind = iota
	// ChunkTextDelta appends Chunk.Text to the accumulated completion text.
	ChunkTextDelta
	// ChunkToolArgsDelta appends Chunk.ArgsFragment to the argument buffer
	// of the tool block at Chunk.Index.
	ChunkToolArgsDelta
	// ChunkUsage replaces the usage snapshot with Chunk.Usage.
	ChunkUsage
)

// Chunk is one incremental unit of a streaming completion. Only the fields
// relevant to its Kind are consulted.
type Chunk struct {
	Kind         ChunkKind
	Index        int
	ToolID       string
	ToolName     string
	Text         string
	ArgsFragment string
	Usage        *Usage
}

// Usage is a token-usage snapshot reported by a stream.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

type toolBuffer struct {
	id   string
	name string
	args strings.Builder
}

// Accumulator folds a stream's chunks into the shape a non-streaming
// completion would have produced. It is owned by exactly one run; the
// tracker serializes access to it.
type Accumulator struct {
	text  strings.Builder
	order []int
	tools map[int]*toolBuffer
	usage *Usage
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{tools: make(map[int]*toolBuffer)}
}

// Feed processes one chunk. Chunks must arrive in delivery order. An
// argument fragment for an index with no open tool block is dropped.
func (a *Accumulator) Feed(c Chunk) {
	switch c.Kind {
	case ChunkToolStart:
		if _, exists := a.tools[c.Index]; !exists {
			a.order = append(a.order, c.Index)
		}
		a.tools[c.Index] = &toolBuffer{id: c.ToolID, name: c.ToolName}
	case ChunkTextDelta:
		a.text.WriteString(c.Text)
	case ChunkToolArgsDelta:
		if tb, ok := a.tools[c.Index]; ok {
			tb.args.WriteString(c.ArgsFragment)
		}
	case ChunkUsage:
		if c.Usage != nil {
			u := *c.Usage
			a.usage = &u
		}
	}
}

// Text returns the completion text accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Usage returns the latest usage snapshot, or nil if none arrived.
func (a *Accumulator) Usage() *Usage {
	return a.usage
}

// Finalize converts the accumulated state into an end payload shaped
// exactly like a non-streaming completion result, so the output-side
// formatters apply unchanged. Safe to call after a truncated stream;
// everything accumulated so far is included.
func (a *Accumulator) Finalize() payload.Map {
	msg := map[string]any{
		"type":    "ai",
		"content": a.text.String(),
	}

	if len(a.order) > 0 {
		calls := make([]any, 0, len(a.order))
		for _, idx := range a.order {
			tb := a.tools[idx]
			calls = append(calls, map[string]any{
				"function": map[string]any{
					"name":      tb.name,
					"arguments": normalizeArgs(tb.args.String()),
				},
			})
		}
		msg["additional_kwargs"] = map[string]any{"tool_calls": calls}
	}

	out := payload.Map{
		"generations": []any{[]any{map[string]any{"message": msg}}},
	}
	if a.usage != nil {
		out["llmOutput"] = map[string]any{
			"tokenUsage": map[string]any{
				"promptTokens":     a.usage.PromptTokens,
				"completionTokens": a.usage.CompletionTokens,
				"totalTokens":      a.usage.TotalTokens,
			},
		}
	}
	return out
}

// normalizeArgs validates an accumulated argument buffer as JSON. An
// invalid buffer (truncated stream, malformed fragments) is wrapped as a
// single-field object so the raw text survives instead of the tool call
// being discarded.
func normalizeArgs(raw string) string {
	if json.Valid([]byte(raw)) && raw != "" {
		return raw
	}
	wrapped, err := json.Marshal(map[string]string{"input": raw})
	if err != nil {
		return "{}"
	}
	return string(wrapped)
}
