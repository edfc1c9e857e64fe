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
	"io"
	"log/slog"
	"math"

	"golang.org/x/time/rate"
)

// Guard runs attribute-extraction functions so that no failure can reach
// the instrumented call. A formatter that panics on an unexpected payload
// shape contributes no attributes; the span itself is unaffected and the
// failure is reported once through the diagnostic logger.
//
// Diagnostic logging is throttled: a hot path fed a malformed payload on
// every call must not flood the log.
type Guard struct {
	logger    *slog.Logger
	limiter   *rate.Limiter
	onFailure func(formatter string)
}

// NewGuard creates a Guard reporting through logger. A nil logger disables
// diagnostics entirely.
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Guard{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(1), 10),
	}
}

// OnFailure registers a callback invoked (unthrottled) for every recovered
// extraction failure, keyed by formatter name. Used for metrics.
func (g *Guard) OnFailure(fn func(formatter string)) {
	g.onFailure = fn
}

// Attrs invokes fn and returns its result. If fn panics, the panic is
// swallowed, the failure is logged, and nil is returned so the caller
// simply merges no attributes.
func (g *Guard) Attrs(formatter string, fn func() map[string]any) (attrs map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			attrs = nil
			if g.onFailure != nil {
				g.onFailure(formatter)
			}
			if g.limiter.Allow() {
				g.logger.Debug("attribute extraction failed",
					"formatter", formatter,
					"panic", r)
			}
		}
	}()
	return fn()
}
