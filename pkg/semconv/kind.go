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

package semconv

import "strings"

// SpanKind is the OpenInference classification of an instrumented
// operation. It is recorded verbatim as the OpenInferenceSpanKind
// attribute value.
type SpanKind string

const (
	SpanKindLLM       SpanKind = "LLM"
	SpanKindChain     SpanKind = "CHAIN"
	SpanKindTool      SpanKind = "TOOL"
	SpanKindRetriever SpanKind = "RETRIEVER"
	SpanKindEmbedding SpanKind = "EMBEDDING"
	SpanKindAgent     SpanKind = "AGENT"
	SpanKindUnknown   SpanKind = "UNKNOWN"
)

// knownKinds maps lowercase kind names to their SpanKind for exact-match
// lookup in KindFromLabel.
var knownKinds = map[string]SpanKind{
	"llm":       SpanKindLLM,
	"chain":     SpanKindChain,
	"tool":      SpanKindTool,
	"retriever": SpanKindRetriever,
	"embedding": SpanKindEmbedding,
	"agent":     SpanKindAgent,
	"unknown":   SpanKindUnknown,
}

// KindFromLabel maps a free-text operation-type label to a SpanKind.
//
// Any label containing "agent" is classified AGENT before the exact-name
// check runs, so a label like "RetrieverAgent" is AGENT, not RETRIEVER.
// Labels that match a kind name exactly (ignoring case) map to that kind.
// Everything else is UNKNOWN.
func KindFromLabel(label string) SpanKind {
	lower := strings.ToLower(label)
	if strings.Contains(lower, "agent") {
		return SpanKindAgent
	}
	if kind, ok := knownKinds[lower]; ok {
		return kind
	}
	return SpanKindUnknown
}
