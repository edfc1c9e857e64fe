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

// Package extract converts instrumented-call payloads into flat
// OpenInference attribute mappings. Each formatter is a pure function from
// a payload to a partial mapping; a nil result means the formatter does not
// apply to this payload, an empty mapping means it applied and found
// nothing to record. Formatters tolerate arbitrary malformed input by
// design and are additionally run under a Guard at call sites.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/tombee/tracebind/pkg/payload"
	"github.com/tombee/tracebind/pkg/semconv"
)

// InputValue formats a start payload into the input.value / input.mime_type
// attribute pair.
func InputValue(p payload.Map) map[string]any {
	return ioValue(p, semconv.InputValue, semconv.InputMimeType)
}

// OutputValue formats an end payload into the output.value /
// output.mime_type attribute pair.
func OutputValue(p payload.Map) map[string]any {
	return ioValue(p, semconv.OutputValue, semconv.OutputMimeType)
}

// ioValue implements the shared input/output value policy: a payload with
// exactly one property whose value is a string is emitted as that string
// with a text MIME type; everything else is emitted as the JSON-encoded
// whole payload. An absent payload yields an empty mapping, not nil.
func ioValue(p payload.Map, valueKey, mimeKey string) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	if len(p) == 1 {
		for _, v := range p {
			if s, ok := v.(string); ok {
				return map[string]any{
					valueKey: s,
					mimeKey:  semconv.MimeTypeText,
				}
			}
		}
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return map[string]any{}
	}
	return map[string]any{
		valueKey: string(encoded),
		mimeKey:  semconv.MimeTypeJSON,
	}
}

// InputMessages formats the chat messages of a start payload under
// llm.input_messages. The payload's "messages" field follows the provider
// batch convention (array of message arrays); only the first batch element
// is used. Returns nil when no well-formed messages remain, so callers can
// distinguish "no messages" from "empty messages".
func InputMessages(p payload.Map) map[string]any {
	inner, ok := payload.FirstInner(p, "messages")
	if !ok {
		return nil
	}
	var msgs []payload.Message
	for _, raw := range inner {
		if msg, ok := payload.ParseMessage(raw); ok {
			msgs = append(msgs, msg)
		}
	}
	return messageAttrs(semconv.LLMInputMessages, msgs)
}

// OutputMessages formats the generations of an end payload under
// llm.output_messages. The "generations" field is an array of generation
// arrays; only the first is used. Returns nil when no well-formed
// generations remain.
func OutputMessages(p payload.Map) map[string]any {
	inner, ok := payload.FirstInner(p, "generations")
	if !ok {
		return nil
	}
	var msgs []payload.Message
	for _, raw := range inner {
		if msg, ok := payload.ParseGeneration(raw); ok {
			msgs = append(msgs, msg)
		}
	}
	return messageAttrs(semconv.LLMOutputMessages, msgs)
}

// messageAttrs flattens normalized messages under prefix. Returns nil for
// an empty message list.
func messageAttrs(prefix string, msgs []payload.Message) map[string]any {
	if len(msgs) == 0 {
		return nil
	}
	nested := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		m := map[string]any{}
		if msg.Role != "" {
			m["role"] = msg.Role
		}
		if msg.Content != "" {
			m["content"] = msg.Content
		}
		if fc := msg.FunctionCall; fc != nil {
			m["function_call_name"] = fc.Name
			m["function_call_arguments_json"] = fc.ArgumentsJSON
		}
		if len(msg.ToolCalls) > 0 {
			calls := make([]any, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, map[string]any{
					"tool_call": map[string]any{
						"function": map[string]any{
							"name":      tc.Name,
							"arguments": tc.ArgumentsJSON,
						},
					},
				})
			}
			m["tool_calls"] = calls
		}
		nested = append(nested, map[string]any{"message": m})
	}
	return Flatten(prefix, nested)
}

// Documents formats retrieved documents under retrieval.documents. Applies
// only to RETRIEVER runs; returns nil for any other kind or when the output
// carries no documents array.
func Documents(kind semconv.SpanKind, output payload.Map) map[string]any {
	if kind != semconv.SpanKindRetriever {
		return nil
	}
	docs, ok := payload.ParseDocuments(output)
	if !ok {
		return nil
	}
	nested := make([]any, 0, len(docs))
	for _, doc := range docs {
		d := map[string]any{}
		if doc.Content != "" {
			d["content"] = doc.Content
		}
		if doc.MetadataJSON != "" {
			d["metadata"] = doc.MetadataJSON
		}
		nested = append(nested, map[string]any{"document": d})
	}
	return Flatten(semconv.RetrievalDocuments, nested)
}

// InvocationParameters extracts the invocation-parameters bag from a run's
// extra metadata and JSON-encodes it under llm.invocation_parameters. The
// model name is derived independently, preferring "model_name" over "model"
// (strings only); an unencodable parameters bag drops only the parameters
// attribute, never the model name. Returns nil only when no
// invocation-parameters bag exists at all.
func InvocationParameters(extra payload.Map) map[string]any {
	params, ok := payload.GetMap(extra, "invocation_params")
	if !ok {
		return nil
	}

	attrs := map[string]any{}
	if encoded, err := json.Marshal(params); err == nil {
		attrs[semconv.LLMInvocationParameters] = string(encoded)
	}
	if model, ok := payload.GetString(params, "model_name"); ok {
		attrs[semconv.LLMModelName] = model
	} else if model, ok := payload.GetString(params, "model"); ok {
		attrs[semconv.LLMModelName] = model
	}
	return attrs
}

// TokenCounts extracts token usage from an end payload's "llmOutput" bag.
// Actual counters ("tokenUsage") win; "estimatedTokenUsage" is the
// fallback. Each of the three fields is copied independently and only when
// numeric, so one bad field never voids the others. Returns nil when
// neither bag is present.
func TokenCounts(output payload.Map) map[string]any {
	llmOutput, _ := payload.GetMap(output, "llmOutput")
	usage, ok := payload.GetMap(llmOutput, "tokenUsage")
	if !ok {
		usage, ok = payload.GetMap(llmOutput, "estimatedTokenUsage")
	}
	if !ok {
		return nil
	}

	attrs := map[string]any{}
	if n, ok := payload.GetNumber(usage, "promptTokens"); ok {
		attrs[semconv.LLMTokenCountPrompt] = int64(n)
	}
	if n, ok := payload.GetNumber(usage, "completionTokens"); ok {
		attrs[semconv.LLMTokenCountCompletion] = int64(n)
	}
	if n, ok := payload.GetNumber(usage, "totalTokens"); ok {
		attrs[semconv.LLMTokenCountTotal] = int64(n)
	}
	return attrs
}

// TopLevelFunctionCall extracts the first generation's message-level
// function call as the llm.function_call attribute. This is distinct from
// the per-message function-call attributes produced by OutputMessages.
// Returns nil when the first generation carries no function call.
func TopLevelFunctionCall(output payload.Map) map[string]any {
	fc := payload.GenerationFunctionCall(output)
	if fc == nil {
		return nil
	}
	encoded, err := json.Marshal(map[string]any{
		"name":      fc.Name,
		"arguments": fc.ArgumentsJSON,
	})
	if err != nil {
		return nil
	}
	return map[string]any{semconv.LLMFunctionCall: string(encoded)}
}

// PromptTemplate applies to prompt template-render runs, identified by a
// run type label containing "prompt". The raw input payload is always
// emitted as JSON under the template-variables attribute. The template
// text itself is emitted only when the run's serialized definition
// contains a messages[0].prompt.template string at exactly that shape;
// any other shape there is ignored.
func PromptTemplate(runType string, inputs, serialized payload.Map) map[string]any {
	if !strings.Contains(strings.ToLower(runType), "prompt") {
		return nil
	}

	attrs := map[string]any{}
	if encoded, err := json.Marshal(inputs); err == nil {
		attrs[semconv.LLMPromptTemplateVars] = string(encoded)
	}

	if msgs, ok := payload.GetSlice(serialized, "messages"); ok && len(msgs) > 0 {
		if first, ok := payload.AsMap(msgs[0]); ok {
			if prompt, ok := payload.GetMap(first, "prompt"); ok {
				if tmpl, ok := payload.GetString(prompt, "template"); ok {
					attrs[semconv.LLMPromptTemplate] = tmpl
				}
			}
		}
	}
	return attrs
}

// Metadata emits a run's metadata bag, JSON-encoded, under the single
// metadata attribute. Returns nil when the bag is absent, not an object,
// or unencodable.
func Metadata(extra payload.Map) map[string]any {
	meta, ok := payload.GetMap(extra, "metadata")
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return map[string]any{semconv.Metadata: string(encoded)}
}
