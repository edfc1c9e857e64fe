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

// Package payload normalizes the loosely-typed request/response payloads of
// instrumented LLM clients into a small set of internal types (Message,
// ToolCall, Document). Provider payloads are duck-typed: the classifiers in
// this package recognize shapes by their discriminator fields and decode
// them once at the boundary, so formatting code never touches raw provider
// structures.
//
// Every function here is total over arbitrary input. Absence of an expected
// field is a negative result, never an error.
package payload

// Map is a loosely-typed payload object as delivered by the hook layer,
// typically the result of decoding provider JSON into interface values.
type Map = map[string]any

// AsMap returns v as a Map if it is one.
func AsMap(v any) (Map, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// GetMap returns the nested object at key, if present.
func GetMap(m Map, key string) (Map, bool) {
	if m == nil {
		return nil, false
	}
	return AsMap(m[key])
}

// GetSlice returns the array at key, if present.
func GetSlice(m Map, key string) ([]any, bool) {
	if m == nil {
		return nil, false
	}
	s, ok := m[key].([]any)
	return s, ok
}

// GetString returns the string at key, if present and actually a string.
func GetString(m Map, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// GetNumber returns the numeric value at key as a float64. JSON decoding
// yields float64 for all numbers, but payloads assembled in process may
// carry native ints, so both are accepted.
func GetNumber(m Map, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch n := m[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// FirstInner returns the first inner array of an array-of-arrays field.
// Provider message batches and generation lists use this convention; only
// the first batch element is ever inspected, later ones are intentionally
// ignored.
func FirstInner(m Map, key string) ([]any, bool) {
	outer, ok := GetSlice(m, key)
	if !ok || len(outer) == 0 {
		return nil, false
	}
	inner, ok := outer[0].([]any)
	return inner, ok
}
