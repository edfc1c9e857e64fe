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

// Package tokens estimates token counts for completion text when the
// provider response carried no usage metadata. Estimates feed the
// estimated token-count attributes only; payload-declared counts always
// take precedence.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens in a text.
type Estimator interface {
	Count(text string) int
}

// modelEncodings maps model-name prefixes to tiktoken encodings.
// Ordered longest prefix first: "gpt-4o" must win over "gpt-4".
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5-turbo", "cl100k_base"},
}

const defaultEncoding = "cl100k_base"

// TiktokenEstimator counts tokens using the tiktoken BPE for a model
// family. Unknown models use the cl100k_base encoding; if the encoding
// cannot be initialized at all (tiktoken may fetch encoding data on first
// use), a character-based heuristic keeps estimates flowing rather than
// failing the caller.
type TiktokenEstimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

// NewEstimator creates an estimator for the given model name. The model
// is matched by prefix so versioned names ("gpt-4-0613") resolve to their
// family encoding.
func NewEstimator(model string) *TiktokenEstimator {
	encoding := defaultEncoding
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			encoding = m.encoding
			break
		}
	}
	return &TiktokenEstimator{encoding: encoding}
}

// Count returns the token count for text. Initialization happens lazily
// on first use.
func (e *TiktokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		if enc, err := tiktoken.GetEncoding(e.encoding); err == nil {
			e.enc = enc
		}
	})
	if e.enc == nil {
		return heuristicCount(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

// heuristicCount approximates tokens at four characters per token, the
// common rule of thumb for English text. Never returns 0 for non-empty
// input.
func heuristicCount(text string) int {
	n := len([]rune(text)) / 4
	if n < 1 {
		return 1
	}
	return n
}
