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
	"regexp"
	"strconv"
	"strings"

	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/llms"
)

// RefusalText is the exact reply the synthesizer gives when the context
// blocks cannot support an answer.
const RefusalText = "Not enough evidence in the indexed documents."

const synthesisSystem = `You answer questions strictly from the numbered context blocks provided.
Cite evidence with bracketed block numbers like [2] after each claim.
Use no outside knowledge. If the blocks do not contain the answer, reply exactly:
` + RefusalText

// Citation ties one cited block number back to its chunk.
type Citation struct {
	Block   int    `json:"block"`
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
}

// Answer is a synthesized, cited reply.
type Answer struct {
	Text      string      `json:"text"`
	Citations []Citation  `json:"citations,omitempty"`
	Blocks    []Candidate `json:"blocks,omitempty"`
	Provider  string      `json:"provider,omitempty"`
	Model     string      `json:"model,omitempty"`
	CostUSD   float64     `json:"cost_usd,omitempty"`
	Refused   bool        `json:"refused,omitempty"`
}

// InsufficientEvidenceError reports a confidence-gate refusal. No
// synthesis call was made. Candidates carries the scored list that
// failed so callers can inspect what retrieval found.
type InsufficientEvidenceError struct {
	Coverage   int
	Top        float64
	Candidates []Candidate
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("insufficient evidence: %d candidates above threshold, top score %.2f", e.Coverage, e.Top)
}

// Answer retrieves, reranks, gates, and synthesizes a cited reply to
// the question. When the gate refuses, the returned error is an
// *InsufficientEvidenceError and no model call is spent.
func (e *Engine) Answer(ctx context.Context, question string, opts Options) (*Answer, error) {
	if e.router == nil {
		return nil, fmt.Errorf("answer synthesis requires an llm router")
	}

	res, err := e.Search(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	cands := res.Candidates

	// Nothing retrieved refuses without spending a synthesis call,
	// gate override or not.
	if len(cands) == 0 {
		return nil, &InsufficientEvidenceError{}
	}

	if opts.Gate == nil || *opts.Gate {
		coverage, top := evaluateGate(e.cfg.Gate, cands, res.Reranked)
		if coverage < e.cfg.Gate.MinCoverage || top < e.cfg.Gate.MinTop {
			return nil, &InsufficientEvidenceError{Coverage: coverage, Top: top, Candidates: cands}
		}
	}

	blocks := cands
	if max := e.cfg.Synthesis.ContextBlocks; max > 0 && len(blocks) > max {
		blocks = blocks[:max]
	}

	provider := e.cfg.Synthesis.Model
	if opts.SynthesisModel != "" {
		provider = opts.SynthesisModel
	}

	callCtx := ctx
	if e.cfg.Synthesis.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.Synthesis.Timeout)
		defer cancel()
	}

	out, err := e.router.Call(callCtx, llms.OpSynthesize, provider, &llms.Request{
		System:    synthesisSystem,
		Prompt:    synthesisPrompt(question, blocks),
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	text := strings.TrimSpace(out.Text)
	return &Answer{
		Text:      text,
		Citations: parseCitations(text, blocks),
		Blocks:    blocks,
		Provider:  out.Provider,
		Model:     out.Model,
		CostUSD:   out.CostUSD,
		Refused:   strings.HasPrefix(text, RefusalText),
	}, nil
}

// evaluateGate counts candidates at or above the score threshold and
// finds the best score. Rerank scores are used when a reranker ran,
// combined scores otherwise.
func evaluateGate(t config.GateThresholds, cands []Candidate, reranked bool) (coverage int, top float64) {
	for _, c := range cands {
		s := c.Score
		if reranked {
			s = c.RerankScore
		}
		if s >= t.ScoreThreshold {
			coverage++
		}
		if s > top {
			top = s
		}
	}
	return coverage, top
}

func synthesisPrompt(question string, blocks []Candidate) string {
	var sb strings.Builder
	sb.WriteString("Context blocks:\n")
	for i, c := range blocks {
		section := strings.Join(c.SectionPath, " > ")
		if section == "" {
			section = "document root"
		}
		fmt.Fprintf(&sb, "\n[%d] (doc %s, %s)\n%s\n", i+1, c.DocID, section, c.Text)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\n", question)
	return sb.String()
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// parseCitations maps bracketed block numbers in the answer back to
// chunks, in first-mention order with duplicates dropped. Numbers
// outside the block range are ignored.
func parseCitations(text string, blocks []Candidate) []Citation {
	seen := make(map[int]bool)
	var out []Citation
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(blocks) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, Citation{
			Block:   n,
			ChunkID: blocks[n-1].ChunkID,
			DocID:   blocks[n-1].DocID,
		})
	}
	return out
}
