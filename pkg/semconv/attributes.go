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

// Package semconv defines the OpenInference semantic conventions used to
// describe LLM application traces. The attribute keys here form a fixed,
// flat vocabulary of dotted paths; downstream backends (Phoenix and other
// OpenInference consumers) match on these exact strings.
//
// See: https://github.com/Arize-ai/openinference
package semconv

// OpenInferenceSpanKind is the attribute key carrying the OpenInference
// span kind (LLM, CHAIN, TOOL, ...). This is distinct from the
// OpenTelemetry span kind, which stays SpanKindInternal for these spans.
const OpenInferenceSpanKind = "openinference.span.kind"

// Input/output attributes.
const (
	InputValue     = "input.value"
	InputMimeType  = "input.mime_type"
	OutputValue    = "output.value"
	OutputMimeType = "output.mime_type"
)

// MIME type values for InputMimeType/OutputMimeType.
const (
	MimeTypeText = "text/plain"
	MimeTypeJSON = "application/json"
)

// LLM attributes.
const (
	LLMModelName            = "llm.model_name"
	LLMInvocationParameters = "llm.invocation_parameters"
	LLMInputMessages        = "llm.input_messages"
	LLMOutputMessages       = "llm.output_messages"
	LLMTokenCountPrompt     = "llm.token_count.prompt"     //nolint:gosec // not a credential
	LLMTokenCountCompletion = "llm.token_count.completion" //nolint:gosec // not a credential
	LLMTokenCountTotal      = "llm.token_count.total"      //nolint:gosec // not a credential
	LLMFunctionCall         = "llm.function_call"
	LLMPromptTemplate       = "llm.prompt_template.template"
	LLMPromptTemplateVars   = "llm.prompt_template.variables"
)

// Message attributes. These are relative paths nested under
// LLMInputMessages/LLMOutputMessages plus a message index, e.g.
// "llm.input_messages.0.message.role".
const (
	MessageRole                 = "message.role"
	MessageContent              = "message.content"
	MessageFunctionCallName     = "message.function_call_name"
	MessageFunctionCallArgsJSON = "message.function_call_arguments_json"
	MessageToolCalls            = "message.tool_calls"
)

// Tool call attributes, nested under MessageToolCalls plus an index.
const (
	ToolCallFunctionName     = "tool_call.function.name"
	ToolCallFunctionArgsJSON = "tool_call.function.arguments"
)

// Retrieval attributes. Documents are nested under RetrievalDocuments
// plus a document index, e.g. "retrieval.documents.0.document.content".
const (
	RetrievalDocuments = "retrieval.documents"
	DocumentContent    = "document.content"
	DocumentMetadata   = "document.metadata"
)

// Metadata carries the run's metadata bag as a single JSON string.
const Metadata = "metadata"
