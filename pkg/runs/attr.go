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
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// toAttributes converts a flat attribute mapping into OTel key/values.
// Keys are emitted in sorted order so span snapshots are stable for tests
// and exporters. Values outside the supported primitive set are rendered
// with fmt.Sprintf rather than dropped.
func toAttributes(m map[string]any) []attribute.KeyValue {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(m))
	for _, k := range keys {
		kvs = append(kvs, toAttribute(k, m[k]))
	}
	return kvs
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int32:
		return attribute.Int64(key, int64(val))
	case int64:
		return attribute.Int64(key, val)
	case uint:
		return attribute.Int64(key, int64(val))
	case uint32:
		return attribute.Int64(key, int64(val))
	case uint64:
		return attribute.Int64(key, int64(val))
	case float32:
		return attribute.Float64(key, float64(val))
	case float64:
		return attribute.Float64(key, val)
	case []string:
		return attribute.StringSlice(key, val)
	case []bool:
		return attribute.BoolSlice(key, val)
	case []int:
		return attribute.IntSlice(key, val)
	case []int64:
		return attribute.Int64Slice(key, val)
	case []float64:
		return attribute.Float64Slice(key, val)
	default:
		return attribute.String(key, fmt.Sprintf("%v", val))
	}
}
