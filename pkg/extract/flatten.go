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

package extract

import "strconv"

// Flatten converts an arbitrarily nested value into a flat mapping from
// dotted-path keys to primitive attribute values. Object keys extend the
// path with ".key", array elements with ".index". Nil values at any depth
// are skipped, as are values that are not valid attribute primitives.
// Empty objects and arrays contribute no keys.
//
// The input must be acyclic; no cycle detection is performed.
func Flatten(prefix string, v any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, prefix, v)
	return out
}

func flattenInto(out map[string]any, base string, v any) {
	switch val := v.(type) {
	case nil:
	case map[string]any:
		for k, child := range val {
			flattenInto(out, joinPath(base, k), child)
		}
	case []any:
		for i, child := range val {
			flattenInto(out, joinPath(base, strconv.Itoa(i)), child)
		}
	default:
		if base != "" && isAttributeValue(v) {
			out[base] = v
		}
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// isAttributeValue reports whether v can be stored directly as a span
// attribute: a string, bool, or number, or a homogeneous slice thereof.
// Heterogeneous []any slices are handled by the indexing recursion instead.
func isAttributeValue(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]string, []bool, []int, []int64, []float64:
		return true
	}
	return false
}
