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

// Package redact removes sensitive data from spans before export. LLM
// spans carry full prompts and completions in their attributes, so the
// exported values are scrubbed for credentials and personal data that
// applications routinely leak into prompt text.
package redact

import (
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Mode determines the level of redaction applied to spans.
type Mode string

const (
	// ModeNone disables redaction (not recommended for production).
	ModeNone Mode = "none"

	// ModeStandard applies pattern-based redaction for common secrets.
	ModeStandard Mode = "standard"

	// ModeStrict replaces all string attribute values (keys preserved).
	ModeStrict Mode = "strict"
)

// Pattern defines a redaction pattern with a name and regular expression.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// StandardPatterns returns the default set of redaction patterns. These
// target secrets that end up inside prompt and completion text: pasted
// API keys, bearer tokens, key material, and common PII.
func StandardPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "api_key",
			Regex:       regexp.MustCompile(`(?i)(api[_-]?key|apikey)["\s:=]+([a-zA-Z0-9_\-]{16,})`),
			Replacement: "$1=[REDACTED]",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_\-\.]{20,})`),
			Replacement: "$1[REDACTED]",
		},
		{
			Name:        "password",
			Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)["\s:=]+([^\s"]+)`),
			Replacement: "$1=[REDACTED]",
		},
		{
			Name:        "openai_key",
			Regex:       regexp.MustCompile(`\bsk-[a-zA-Z0-9_\-]{20,}\b`),
			Replacement: "[REDACTED-API-KEY]",
		},
		{
			Name:        "aws_key",
			Regex:       regexp.MustCompile(`(AKIA[0-9A-Z]{16})`),
			Replacement: "[REDACTED-AWS-KEY]",
		},
		{
			Name:        "private_key",
			Regex:       regexp.MustCompile(`(?s)(-----BEGIN (RSA |EC |DSA )?PRIVATE KEY-----).*?(-----END (RSA |EC |DSA )?PRIVATE KEY-----)`),
			Replacement: "$1[REDACTED]$3",
		},
		{
			Name:        "email",
			Regex:       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			Replacement: "[REDACTED-EMAIL]",
		},
		{
			Name:        "ssn",
			Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Replacement: "[REDACTED-SSN]",
		},
		{
			Name:        "credit_card",
			Regex:       regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
			Replacement: "[REDACTED-CC]",
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
			Replacement: "[REDACTED-JWT]",
		},
		{
			Name:        "generic_secret",
			Regex:       regexp.MustCompile(`(?i)(secret|token)["\s:=]+([a-zA-Z0-9_\-]{16,})`),
			Replacement: "$1=[REDACTED]",
		},
	}
}

// Redactor applies redaction rules to span attributes.
type Redactor struct {
	mode     Mode
	patterns []Pattern
}

// New creates a redactor with the specified mode and the standard
// pattern set.
func New(mode Mode) *Redactor {
	return &Redactor{
		mode:     mode,
		patterns: StandardPatterns(),
	}
}

// NewWithPatterns creates a redactor applying extra patterns after the
// standard set.
func NewWithPatterns(mode Mode, extra []Pattern) *Redactor {
	return &Redactor{
		mode:     mode,
		patterns: append(StandardPatterns(), extra...),
	}
}

// RedactString applies redaction patterns to a string value.
func (r *Redactor) RedactString(s string) string {
	if r.mode == ModeNone {
		return s
	}
	if r.mode == ModeStrict {
		return "[REDACTED]"
	}

	result := s
	for _, pattern := range r.patterns {
		result = pattern.Regex.ReplaceAllString(result, pattern.Replacement)
	}
	return result
}

// RedactAttributes applies redaction to span attributes. The span-kind
// tag and other non-string values pass through untouched in standard
// mode; in strict mode every payload-bearing value is replaced.
func (r *Redactor) RedactAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	if r.mode == ModeNone {
		return attrs
	}

	redacted := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		key := string(attr.Key)

		if r.shouldRedactKey(key) {
			redacted[i] = attribute.String(key, "[REDACTED]")
			continue
		}

		if attr.Value.Type() == attribute.STRING {
			if r.mode == ModeStrict && !isStructuralKey(key) {
				redacted[i] = attribute.String(key, "[REDACTED]")
			} else {
				redacted[i] = attribute.String(key, r.RedactString(attr.Value.AsString()))
			}
			continue
		}

		redacted[i] = attr
	}
	return redacted
}

// shouldRedactKey checks if an attribute key indicates sensitive data
// regardless of its value, e.g. an invocation parameter named "api_key".
func (r *Redactor) shouldRedactKey(key string) bool {
	lowerKey := strings.ToLower(key)
	sensitiveKeys := []string{
		"password", "passwd", "pwd",
		"secret", "api_key", "apikey",
		"private_key", "authorization",
		"cookie", "session",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// isStructuralKey reports whether an attribute describes span structure
// rather than payload content. Strict mode keeps these so traces remain
// navigable: backends filter on the span kind, roles, mime types, and
// model names.
func isStructuralKey(key string) bool {
	switch key {
	case "openinference.span.kind", "llm.model_name",
		"input.mime_type", "output.mime_type":
		return true
	}
	return strings.HasSuffix(key, ".message.role")
}
