// Copyright 2026 Kadir Pekel
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

package chunk

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts. With the cl100k encoding loaded
// it measures exactly; otherwise it falls back to ceil(len/4), which is
// monotonic in text length.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

var (
	cl100kOnce sync.Once
	cl100kEnc  *tiktoken.Tiktoken
)

// NewTokenCounter returns a counter for the configured tokenizer
// ("cl100k" or "chars"). The encoding is loaded once per process; when
// it cannot be loaded the counter degrades to the character estimate.
func NewTokenCounter(tokenizer string) *TokenCounter {
	if tokenizer != "cl100k" {
		return &TokenCounter{}
	}
	cl100kOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("cl100k encoding unavailable, using character estimate", "error", err)
			return
		}
		cl100kEnc = enc
	})
	return &TokenCounter{enc: cl100kEnc}
}

// Count returns the token count or estimate for text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(tc.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens. The character
// fallback cuts at 4·maxTokens bytes on a rune boundary.
func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if tc == nil || tc.enc == nil {
		limit := 4 * maxTokens
		if len(text) <= limit {
			return text
		}
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		return text[:limit]
	}
	tokens := tc.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.enc.Decode(tokens[:maxTokens])
}
