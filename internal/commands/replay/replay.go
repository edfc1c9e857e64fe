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

// Package replay drives the run tracker from recorded event logs,
// turning captured LLM client activity into exported spans.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tombee/tracebind"
	"github.com/tombee/tracebind/internal/commands/shared"
	"github.com/tombee/tracebind/pkg/payload"
	"github.com/tombee/tracebind/pkg/runs"
)

// Event is one recorded run lifecycle event in a JSONL replay file.
type Event struct {
	// Event names the lifecycle transition: "start", "end", "error",
	// "chunk", or "stream_end".
	Event string `json:"event"`

	// ID identifies the run. Starts without an ID get a generated one,
	// but later events cannot refer to it.
	ID       string `json:"id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`

	// Start fields.
	Name       string      `json:"name,omitempty"`
	RunType    string      `json:"run_type,omitempty"`
	Inputs     payload.Map `json:"inputs,omitempty"`
	Extra      payload.Map `json:"extra,omitempty"`
	Serialized payload.Map `json:"serialized,omitempty"`

	// End and error fields.
	Outputs payload.Map `json:"outputs,omitempty"`
	Error   string      `json:"error,omitempty"`

	// Chunk fields.
	ChunkKind    string `json:"chunk_kind,omitempty"`
	Index        int    `json:"index,omitempty"`
	ToolID       string `json:"tool_id,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	Text         string `json:"text,omitempty"`
	ArgsFragment string `json:"args_fragment,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Usage mirrors the token usage reported in a usage chunk.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// NewReplayCommand creates the replay command
func NewReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Replay a recorded event log into trace spans",
		Long: `Read run lifecycle events from a JSONL file (one event per line)
and drive them through the tracker, exporting the resulting spans to
the configured destinations. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runReplay,
	}
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	provider, err := tracebind.Init(ctx, cfg)
	if err != nil {
		return err
	}
	defer provider.Shutdown(ctx)

	var in io.Reader
	if args[0] == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("replay: open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	replayed, err := Replay(in, provider.Tracker())
	if err != nil {
		return err
	}

	if err := provider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("replay: flush spans: %w", err)
	}

	if shared.GetJSON() {
		out, _ := json.Marshal(map[string]any{"events": replayed})
		cmd.Println(string(out))
	} else {
		cmd.Printf("replayed %d events\n", replayed)
	}
	return nil
}

// Replay feeds every event in the stream to the tracker and returns
// how many events were applied. A malformed line aborts the replay so
// partial traces are not silently exported as complete ones.
func Replay(r io.Reader, tracker *runs.Tracker) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return count, fmt.Errorf("replay: line %d: %w", line, err)
		}
		if err := apply(tracker, ev); err != nil {
			return count, fmt.Errorf("replay: line %d: %w", line, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("replay: read events: %w", err)
	}
	return count, nil
}

func apply(tracker *runs.Tracker, ev Event) error {
	switch ev.Event {
	case "start":
		id := ev.ID
		if id == "" {
			id = uuid.NewString()
		}
		tracker.OnStart(runs.StartEvent{
			ID:         id,
			ParentID:   ev.ParentID,
			Name:       ev.Name,
			RunType:    ev.RunType,
			Inputs:     ev.Inputs,
			Extra:      ev.Extra,
			Serialized: ev.Serialized,
		})
	case "end":
		tracker.OnEnd(ev.ID, ev.Outputs)
	case "error":
		msg := ev.Error
		if msg == "" {
			msg = "unknown error"
		}
		tracker.OnError(ev.ID, errors.New(msg))
	case "chunk":
		chunk, err := toChunk(ev)
		if err != nil {
			return err
		}
		tracker.OnStreamChunk(ev.ID, chunk)
	case "stream_end":
		tracker.OnStreamEnd(ev.ID)
	default:
		return fmt.Errorf("unknown event type %q", ev.Event)
	}
	return nil
}

func toChunk(ev Event) (runs.Chunk, error) {
	chunk := runs.Chunk{
		Index:        ev.Index,
		ToolID:       ev.ToolID,
		ToolName:     ev.ToolName,
		Text:         ev.Text,
		ArgsFragment: ev.ArgsFragment,
	}

	switch ev.ChunkKind {
	case "tool_start":
		chunk.Kind = runs.ChunkToolStart
	case "text_delta":
		chunk.Kind = runs.ChunkTextDelta
	case "tool_args_delta":
		chunk.Kind = runs.ChunkToolArgsDelta
	case "usage":
		chunk.Kind = runs.ChunkUsage
		if ev.Usage != nil {
			chunk.Usage = &runs.Usage{
				PromptTokens:     ev.Usage.PromptTokens,
				CompletionTokens: ev.Usage.CompletionTokens,
				TotalTokens:      ev.Usage.TotalTokens,
			}
		}
	default:
		return chunk, fmt.Errorf("unknown chunk kind %q", ev.ChunkKind)
	}
	return chunk, nil
}
