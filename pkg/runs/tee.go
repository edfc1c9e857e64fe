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

// teeBuffer is the aggregator queue depth per teed stream. Forwarding
// only blocks on instrumentation if the accumulator falls this many
// chunks behind.
const teeBuffer = 64

// Tee interposes on a chunk stream: every chunk is forwarded to the
// returned channel for the real consumer and handed to a separate
// aggregator goroutine, so accumulator work never sits between two
// deliveries to the consumer. When the source channel closes the run is
// ended via OnStreamEnd before the returned channel closes.
//
// The caller keeps the obligation to deliver OnError for the run if it
// abandons the returned channel before it closes.
func Tee(in <-chan Chunk, tracker *Tracker, runID string) <-chan Chunk {
	out := make(chan Chunk)
	agg := make(chan Chunk, teeBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for chunk := range agg {
			tracker.OnStreamChunk(runID, chunk)
		}
		tracker.OnStreamEnd(runID)
	}()

	go func() {
		defer close(out)
		for chunk := range in {
			out <- chunk
			agg <- chunk
		}
		close(agg)
		// The run must be ended before consumers see the stream close.
		<-done
	}()

	return out
}
