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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleFromTag(t *testing.T) {
	tests := []struct {
		name string
		msg  Map
		want string
	}{
		{
			name: "serialized class path ending in HumanMessage",
			msg:  Map{"id": []any{"messages", "HumanMessage"}},
			want: "user",
		},
		{
			name: "serialized class path ending in AIMessage",
			msg:  Map{"id": []any{"messages", "AIMessage"}},
			want: "assistant",
		},
		{
			name: "system tag",
			msg:  Map{"type": "SystemMessage"},
			want: "system",
		},
		{
			name: "function tag",
			msg:  Map{"type": "FunctionMessage"},
			want: "function",
		},
		{
			name: "chat message with explicit role",
			msg:  Map{"type": "ChatMessage", "role": "custom_role"},
			want: "custom_role",
		},
		{
			name: "chat message with role in kwargs",
			msg:  Map{"id": []any{"ChatMessage"}, "kwargs": Map{"role": "critic"}},
			want: "critic",
		},
		{
			name: "human wins over chat",
			msg:  Map{"type": "HumanChatMessage", "role": "ignored"},
			want: "user",
		},
		{
			name: "unrecognized tag",
			msg:  Map{"type": "WeirdMessage"},
			want: "",
		},
		{
			name: "no tag at all",
			msg:  Map{"content": "hi"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFromTag(TypeTag(tt.msg), tt.msg))
		})
	}
}

func TestParseMessage(t *testing.T) {
	t.Run("flat shape", func(t *testing.T) {
		msg, ok := ParseMessage(map[string]any{"type": "human", "content": "hi"})
		require.True(t, ok)
		assert.Equal(t, "user", msg.Role)
		assert.Equal(t, "hi", msg.Content)
	})

	t.Run("serialized shape with kwargs", func(t *testing.T) {
		msg, ok := ParseMessage(map[string]any{
			"id":     []any{"langchain", "AIMessage"},
			"kwargs": map[string]any{"content": "hello"},
		})
		require.True(t, ok)
		assert.Equal(t, "assistant", msg.Role)
		assert.Equal(t, "hello", msg.Content)
	})

	t.Run("non-string content is dropped", func(t *testing.T) {
		msg, ok := ParseMessage(map[string]any{"type": "human", "content": []any{"multi", "part"}})
		require.True(t, ok)
		assert.Empty(t, msg.Content)
	})

	t.Run("non-object entry", func(t *testing.T) {
		_, ok := ParseMessage("just a string")
		assert.False(t, ok)
	})

	t.Run("function call and tool calls coexist", func(t *testing.T) {
		msg, ok := ParseMessage(map[string]any{
			"type":    "ai",
			"content": "",
			"additional_kwargs": map[string]any{
				"function_call": map[string]any{
					"name":      "lookup",
					"arguments": map[string]any{"q": "go"},
				},
				"tool_calls": []any{
					map[string]any{"function": map[string]any{"name": "get_weather", "arguments": `{"city":"SF"}`}},
					"garbage entry",
					map[string]any{"name": "flat_tool", "args": map[string]any{"n": float64(1)}},
				},
			},
		})
		require.True(t, ok)
		require.NotNil(t, msg.FunctionCall)
		assert.Equal(t, "lookup", msg.FunctionCall.Name)
		assert.JSONEq(t, `{"q":"go"}`, msg.FunctionCall.ArgumentsJSON)

		require.Len(t, msg.ToolCalls, 2)
		assert.Equal(t, "get_weather", msg.ToolCalls[0].Name)
		assert.Equal(t, `{"city":"SF"}`, msg.ToolCalls[0].ArgumentsJSON)
		assert.Equal(t, "flat_tool", msg.ToolCalls[1].Name)
		assert.JSONEq(t, `{"n":1}`, msg.ToolCalls[1].ArgumentsJSON)
	})
}

func TestParseGeneration(t *testing.T) {
	t.Run("chat generation", func(t *testing.T) {
		msg, ok := ParseGeneration(map[string]any{
			"message": map[string]any{"type": "ai", "content": "hello"},
		})
		require.True(t, ok)
		assert.Equal(t, "assistant", msg.Role)
		assert.Equal(t, "hello", msg.Content)
	})

	t.Run("text generation", func(t *testing.T) {
		msg, ok := ParseGeneration(map[string]any{"text": "plain completion"})
		require.True(t, ok)
		assert.Empty(t, msg.Role)
		assert.Equal(t, "plain completion", msg.Content)
	})

	t.Run("junk", func(t *testing.T) {
		_, ok := ParseGeneration(42)
		assert.False(t, ok)
	})
}

func TestGenerationFunctionCall(t *testing.T) {
	output := Map{
		"generations": []any{
			[]any{
				map[string]any{
					"message": map[string]any{
						"type": "ai",
						"additional_kwargs": map[string]any{
							"function_call": map[string]any{"name": "top", "arguments": "{}"},
						},
					},
				},
			},
		},
	}
	fc := GenerationFunctionCall(output)
	require.NotNil(t, fc)
	assert.Equal(t, "top", fc.Name)
	assert.Equal(t, "{}", fc.ArgumentsJSON)

	assert.Nil(t, GenerationFunctionCall(Map{}))
	assert.Nil(t, GenerationFunctionCall(Map{"generations": []any{[]any{}}}))
}

func TestParseDocuments(t *testing.T) {
	docs, ok := ParseDocuments(Map{
		"documents": []any{
			map[string]any{"page_content": "first", "metadata": map[string]any{"score": 0.9}},
			"not a document",
			map[string]any{"pageContent": "second"},
		},
	})
	require.True(t, ok)
	require.Len(t, docs, 2)
	assert.Equal(t, "first", docs[0].Content)
	assert.JSONEq(t, `{"score":0.9}`, docs[0].MetadataJSON)
	assert.Equal(t, "second", docs[1].Content)
	assert.Empty(t, docs[1].MetadataJSON)

	_, ok = ParseDocuments(Map{"outputs": "nothing here"})
	assert.False(t, ok)
}

func TestFirstInner(t *testing.T) {
	m := Map{"messages": []any{
		[]any{"a", "b"},
		[]any{"ignored"},
	}}
	inner, ok := FirstInner(m, "messages")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, inner)

	_, ok = FirstInner(Map{}, "messages")
	assert.False(t, ok)
	_, ok = FirstInner(Map{"messages": []any{}}, "messages")
	assert.False(t, ok)
	_, ok = FirstInner(Map{"messages": []any{"flat"}}, "messages")
	assert.False(t, ok)
}
