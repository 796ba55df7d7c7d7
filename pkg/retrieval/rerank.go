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
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/kadirpekel/sift/pkg/llms"
)

// Reranker modes.
const (
	RerankLexical = "lexical"
	RerankLLM     = "llm"
	RerankNone    = "none"
)

// Reranker reorders candidates by relevance to the query. The returned
// slice is a permutation of the input with RerankScore set on every
// element.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []Candidate) ([]Candidate, error)
}

func (e *Engine) rerankMode(opts Options) string {
	if opts.Rerank != "" {
		return opts.Rerank
	}
	if e.cfg.Rerank != "" {
		return e.cfg.Rerank
	}
	return RerankLexical
}

func (e *Engine) rerank(ctx context.Context, query string, cands []Candidate, mode string) ([]Candidate, error) {
	switch mode {
	case RerankLexical:
		return LexicalReranker{}.Rerank(ctx, query, cands)
	case RerankLLM:
		if e.router == nil {
			slog.Warn("llm reranker needs a router, falling back to lexical")
			return LexicalReranker{}.Rerank(ctx, query, cands)
		}
		r := &LLMReranker{Router: e.router, Provider: e.cfg.RerankModel}
		return r.Rerank(ctx, query, cands)
	default:
		return nil, fmt.Errorf("invalid rerank %q (valid: lexical, llm, none)", mode)
	}
}

// Lexical feature weights. They sum to 1 so the score stays in [0,1].
const (
	weightCoverage = 0.5
	weightBigram   = 0.2
	weightPhrase   = 0.2
	weightSection  = 0.1
)

// termPattern matches letter runs and digit runs, mirroring the sparse
// index tokenizer so both branches agree on what a term is.
var termPattern = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func terms(s string) []string {
	return termPattern.FindAllString(strings.ToLower(s), -1)
}

// LexicalReranker scores candidates by surface overlap with the query:
// unique-term coverage, bigram adjacency, an exact-phrase bonus, and a
// section-title bonus. Fully deterministic, no model call.
type LexicalReranker struct{}

// Rerank orders candidates by lexical score, descending. Ties keep the
// incoming (MMR) order.
func (LexicalReranker) Rerank(_ context.Context, query string, cands []Candidate) ([]Candidate, error) {
	queryTerms := terms(query)
	out := make([]Candidate, len(cands))
	copy(out, cands)
	for i := range out {
		out[i].RerankScore = lexicalScore(queryTerms, &out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out, nil
}

func lexicalScore(queryTerms []string, c *Candidate) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	textTerms := terms(c.Text)
	inText := make(map[string]bool, len(textTerms))
	for _, t := range textTerms {
		inText[t] = true
	}

	unique := uniqueTerms(queryTerms)
	found := 0
	for _, t := range unique {
		if inText[t] {
			found++
		}
	}
	coverage := float64(found) / float64(len(unique))

	bigram := 0.0
	if len(queryTerms) > 1 {
		pairs := make(map[[2]string]bool, len(textTerms))
		for i := 0; i+1 < len(textTerms); i++ {
			pairs[[2]string{textTerms[i], textTerms[i+1]}] = true
		}
		hits := 0
		for i := 0; i+1 < len(queryTerms); i++ {
			if pairs[[2]string{queryTerms[i], queryTerms[i+1]}] {
				hits++
			}
		}
		bigram = float64(hits) / float64(len(queryTerms)-1)
	}

	phrase := 0.0
	if strings.Contains(" "+strings.Join(textTerms, " ")+" ", " "+strings.Join(queryTerms, " ")+" ") {
		phrase = 1
	}

	section := 0.0
	if len(c.SectionPath) > 0 {
		inSection := make(map[string]bool)
		for _, t := range terms(strings.Join(c.SectionPath, " ")) {
			inSection[t] = true
		}
		for _, t := range unique {
			if inSection[t] {
				section = 1
				break
			}
		}
	}

	return weightCoverage*coverage + weightBigram*bigram + weightPhrase*phrase + weightSection*section
}

func uniqueTerms(ts []string) []string {
	seen := make(map[string]bool, len(ts))
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

const rerankSystem = "You rank search results by relevance. Respond with JSON only."

var rankingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"ranking": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "integer"},
		},
	},
	"required": []string{"ranking"},
}

// LLMReranker asks the router to order candidates by relevance. The
// model sees truncated passages and returns a JSON index ranking. A
// failed call or unusable ranking keeps the incoming order with the
// combined score as the rerank score, so the gate still sees genuine
// retrieval confidence.
type LLMReranker struct {
	Router   *llms.Router
	Provider string
}

// Rerank reorders candidates per the model's ranking and assigns
// position-based scores, 1.0 for the top slot decreasing by 0.05 with a
// 0.1 floor.
func (r *LLMReranker) Rerank(ctx context.Context, query string, cands []Candidate) ([]Candidate, error) {
	if len(cands) == 0 {
		return cands, nil
	}

	temp := 0.0
	res, err := r.Router.Call(ctx, llms.OpRerank, r.Provider, &llms.Request{
		System:      rerankSystem,
		Prompt:      rerankPrompt(query, cands),
		Temperature: &temp,
		MaxTokens:   512,
		Structured:  &llms.StructuredSpec{Name: "ranking", Schema: rankingSchema},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("llm rerank failed, keeping retrieval order", "error", err)
		return keepOrder(cands), nil
	}

	order, err := parseRanking(res.Text, len(cands))
	if err != nil {
		slog.Warn("llm rerank returned unusable ranking, keeping retrieval order", "error", err)
		return keepOrder(cands), nil
	}

	out := make([]Candidate, 0, len(cands))
	for _, idx := range order {
		out = append(out, cands[idx])
	}
	for i := range out {
		score := 1.0 - float64(i)*0.05
		if score < 0.1 {
			score = 0.1
		}
		out[i].RerankScore = score
	}
	return out, nil
}

func keepOrder(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	for i := range out {
		out[i].RerankScore = out[i].Score
	}
	return out
}

func rerankPrompt(query string, cands []Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %q\n\nOrder the passages below from most to least relevant to the query.\n\nPassages:\n", query)
	for i, c := range cands {
		fmt.Fprintf(&sb, "\n[%d] %s\n", i, truncate(c.Text, 500))
	}
	sb.WriteString("\nRespond with JSON: {\"ranking\": [most relevant index, ..., least relevant index]}. Include every index exactly once.")
	return sb.String()
}

// parseRanking extracts the index order from the model response. It
// accepts the structured object form or a bare JSON array, drops
// out-of-range and duplicate indices, and appends any the model omitted
// in their original order.
func parseRanking(text string, n int) ([]int, error) {
	raw := strings.TrimSpace(text)

	var obj struct {
		Ranking []int `json:"ranking"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || len(obj.Ranking) == 0 {
		start := strings.Index(raw, "[")
		end := strings.LastIndex(raw, "]")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("no ranking array in response")
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &obj.Ranking); err != nil {
			return nil, fmt.Errorf("parsing ranking: %w", err)
		}
	}

	seen := make(map[int]bool, n)
	order := make([]int, 0, n)
	for _, idx := range obj.Ranking {
		if idx >= 0 && idx < n && !seen[idx] {
			seen[idx] = true
			order = append(order, idx)
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("ranking named no valid indices")
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
