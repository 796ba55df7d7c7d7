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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/sift/pkg/llms"
)

const hydePrompt = `Write a concise, hypothetical document excerpt that would directly answer the following query.

The excerpt should:
- Be brief (1-2 paragraphs)
- Address the core of the query
- Sound like a real document, without mentioning that it is hypothetical

Query: %s

Excerpt:`

// queryVector produces the dense-branch query embedding. With HyDE
// enabled it embeds the query and a generated hypothetical passage and
// means the two vectors, so the search vector sits closer to document
// space than the bare question. A failed generation degrades to the
// plain query; a failed embedding is fatal.
func (e *Engine) queryVector(ctx context.Context, query string, opts Options) ([]float32, error) {
	useHyDE := e.cfg.HyDE
	if opts.HyDE != nil {
		useHyDE = *opts.HyDE
	}
	if !useHyDE {
		return e.embedQuery(ctx, query)
	}
	if e.router == nil {
		slog.Debug("hyde requested without a router, embedding the plain query")
		return e.embedQuery(ctx, query)
	}

	hypothetical, err := e.hypothesize(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("hyde generation failed, embedding the plain query", "error", err)
		return e.embedQuery(ctx, query)
	}

	vecs, err := e.embedder.EmbedBatch(ctx, []string{query, hypothetical})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	return meanVector(vecs), nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vec, nil
}

func (e *Engine) hypothesize(ctx context.Context, query string) (string, error) {
	temp := 0.7
	res, err := e.router.Call(ctx, llms.OpHyDE, e.cfg.HyDEModel, &llms.Request{
		Prompt:      fmt.Sprintf(hydePrompt, query),
		Temperature: &temp,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("empty hypothetical document")
	}
	slog.Debug("generated hypothetical document", "chars", len(text), "provider", res.Provider)
	return text, nil
}

// meanVector averages embeddings element-wise. Mismatched dimensions
// fall back to the first vector.
func meanVector(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	for _, v := range vecs[1:] {
		if len(v) != dim {
			return vecs[0]
		}
	}
	out := make([]float32, dim)
	for _, v := range vecs {
		for i, x := range v {
			out[i] += x
		}
	}
	n := float32(len(vecs))
	for i := range out {
		out[i] /= n
	}
	return out
}
