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

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardAttrs(t *testing.T) {
	t.Run("passes results through", func(t *testing.T) {
		g := NewGuard(nil)
		got := g.Attrs("ok", func() map[string]any {
			return map[string]any{"k": "v"}
		})
		assert.Equal(t, map[string]any{"k": "v"}, got)
	})

	t.Run("recovers panics and returns nil", func(t *testing.T) {
		var buf bytes.Buffer
		g := NewGuard(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

		var failed []string
		g.OnFailure(func(name string) { failed = append(failed, name) })

		got := g.Attrs("explosive", func() map[string]any {
			var m map[string]any
			return map[string]any{"n": m["missing"].(int)}
		})
		assert.Nil(t, got)
		assert.Equal(t, []string{"explosive"}, failed)
		assert.Contains(t, buf.String(), "explosive")
	})

	t.Run("nil logger never panics", func(t *testing.T) {
		g := NewGuard(nil)
		assert.NotPanics(t, func() {
			g.Attrs("boom", func() map[string]any { panic("bad payload") })
		})
	})
}
