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

package payload

import (
	"encoding/json"
	"strings"
)

// Message is a chat message normalized from a provider-specific shape.
// Empty string fields mean "absent"; absent fields are never emitted as
// attributes. A message may carry both a FunctionCall and ToolCalls.
type Message struct {
	Role         string
	Content      string
	FunctionCall *FunctionCall
	ToolCalls    []ToolCall
}

// FunctionCall is a legacy single-function invocation attached to a message.
type FunctionCall struct {
	Name          string
	ArgumentsJSON string
}

// ToolCall is one entry of a message's tool-call list.
type ToolCall struct {
	Name          string
	ArgumentsJSON string
}

// TypeTag extracts the message's type tag: the last element of a serialized
// class path (an "id" array ending in the class name, e.g. "HumanMessage")
// or a plain "type"/"_type" string field. Returns "" when no tag exists.
func TypeTag(m Map) string {
	if path, ok := GetSlice(m, "id"); ok && len(path) > 0 {
		if last, ok := path[len(path)-1].(string); ok {
			return last
		}
	}
	if tag, ok := GetString(m, "type"); ok {
		return tag
	}
	if tag, ok := GetString(m, "_type"); ok {
		return tag
	}
	return ""
}

// RoleFromTag maps a message type tag to a chat role by substring match.
// "chat"-tagged messages carry their role explicitly; for those the role
// field's value is returned verbatim. An unrecognized tag yields "".
//
// The human/ai/system/function checks run before the chat check so that
// e.g. "HumanChatMessage" is still "user".
func RoleFromTag(tag string, m Map) string {
	lower := strings.ToLower(tag)
	switch {
	case strings.Contains(lower, "human"):
		return "user"
	case strings.Contains(lower, "ai"):
		return "assistant"
	case strings.Contains(lower, "system"):
		return "system"
	case strings.Contains(lower, "function"):
		return "function"
	case strings.Contains(lower, "chat"):
		if role, ok := GetString(fields(m), "role"); ok {
			return role
		}
		if role, ok := GetString(m, "role"); ok {
			return role
		}
		return ""
	}
	return ""
}

// fields returns the bag holding a message's data fields: the "kwargs"
// object for serialized class shapes, or the message object itself for
// flat shapes.
func fields(m Map) Map {
	if kw, ok := GetMap(m, "kwargs"); ok {
		return kw
	}
	return m
}

// ParseMessage normalizes one raw message entry. Non-object entries and
// objects with no recognizable message fields still produce a Message (all
// fields absent); callers that need to skip junk entries check the second
// return value, which is false when v is not an object at all.
func ParseMessage(v any) (Message, bool) {
	raw, ok := AsMap(v)
	if !ok {
		return Message{}, false
	}

	var msg Message
	msg.Role = RoleFromTag(TypeTag(raw), raw)

	data := fields(raw)
	if content, ok := GetString(data, "content"); ok {
		msg.Content = content
	}

	if extra, ok := GetMap(data, "additional_kwargs"); ok {
		msg.FunctionCall = parseFunctionCall(extra)
		msg.ToolCalls = parseToolCalls(extra)
	}

	return msg, true
}

// parseFunctionCall extracts the legacy function_call payload from a
// message's additional data bag. Arguments arrive either as a pre-encoded
// JSON string or as an object; objects are re-encoded. A name-less entry or
// an unencodable arguments value yields nil.
func parseFunctionCall(extra Map) *FunctionCall {
	fc, ok := GetMap(extra, "function_call")
	if !ok {
		return nil
	}
	name, ok := GetString(fc, "name")
	if !ok {
		return nil
	}
	args, ok := stringifyArguments(fc["arguments"])
	if !ok {
		return nil
	}
	return &FunctionCall{Name: name, ArgumentsJSON: args}
}

// parseToolCalls extracts the tool_calls list from a message's additional
// data bag. Both the OpenAI nested shape ({"function": {"name", "arguments"}})
// and the flat shape ({"name", "args"}) are recognized; entries with
// neither are dropped silently.
func parseToolCalls(extra Map) []ToolCall {
	raw, ok := GetSlice(extra, "tool_calls")
	if !ok {
		return nil
	}
	var calls []ToolCall
	for _, entry := range raw {
		tc, ok := AsMap(entry)
		if !ok {
			continue
		}
		if fn, ok := GetMap(tc, "function"); ok {
			tc = fn
		}
		name, ok := GetString(tc, "name")
		if !ok {
			continue
		}
		argsField, present := tc["arguments"]
		if !present {
			argsField = tc["args"]
		}
		args, ok := stringifyArguments(argsField)
		if !ok {
			continue
		}
		calls = append(calls, ToolCall{Name: name, ArgumentsJSON: args})
	}
	return calls
}

// stringifyArguments renders a tool/function arguments value as JSON. A
// string value is assumed to be JSON already and passed through; nil maps
// to an empty argument object.
func stringifyArguments(v any) (string, bool) {
	switch args := v.(type) {
	case nil:
		return "{}", true
	case string:
		return args, true
	default:
		encoded, err := json.Marshal(args)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	}
}

// ParseGeneration normalizes one generation wrapper from an output batch.
// Chat generations carry a nested "message"; plain text generations carry
// only "text", which maps to a content-only Message. Anything else is
// rejected.
func ParseGeneration(v any) (Message, bool) {
	gen, ok := AsMap(v)
	if !ok {
		return Message{}, false
	}
	if raw, ok := gen["message"]; ok {
		return ParseMessage(raw)
	}
	if text, ok := GetString(gen, "text"); ok {
		return Message{Content: text}, true
	}
	return Message{}, false
}

// GenerationFunctionCall returns the function call attached to the first
// generation's message, if any. This backs the top-level LLM function-call
// attribute, which is distinct from the per-message attributes.
func GenerationFunctionCall(output Map) *FunctionCall {
	inner, ok := FirstInner(output, "generations")
	if !ok || len(inner) == 0 {
		return nil
	}
	gen, ok := AsMap(inner[0])
	if !ok {
		return nil
	}
	raw, ok := GetMap(gen, "message")
	if !ok {
		return nil
	}
	extra, ok := GetMap(fields(raw), "additional_kwargs")
	if !ok {
		return nil
	}
	return parseFunctionCall(extra)
}
