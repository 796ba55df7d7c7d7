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

// Package retrieval implements hybrid search over indexed chunks: a
// dense vector branch and a sparse BM25 branch run in parallel, their
// normalized scores are alpha-mixed, and MMR selects a relevant but
// diverse top-k. Optional stages layer on top: HyDE query expansion,
// lexical or LLM reranking, a confidence gate, and cited answer
// synthesis.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/chunk"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/embedders"
	"github.com/kadirpekel/sift/pkg/llms"
	"github.com/kadirpekel/sift/pkg/sparse"
	"github.com/kadirpekel/sift/pkg/vector"
)

// Candidate provenance values.
const (
	SourceDense  = "dense"
	SourceSparse = "sparse"
	SourceBoth   = "both"
)

// Candidate is one retrieved chunk. DenseScore and SparseScore are
// min-max normalized within their branch, Score is the alpha-weighted
// mix, and RerankScore is set only after a reranker ran.
type Candidate struct {
	ChunkID     string            `json:"chunk_id"`
	DocID       string            `json:"doc_id"`
	Text        string            `json:"text"`
	SectionPath []string          `json:"section_path,omitempty"`
	Score       float64           `json:"score"`
	DenseScore  float64           `json:"dense_score"`
	SparseScore float64           `json:"sparse_score"`
	RerankScore float64           `json:"rerank_score,omitempty"`
	Source      string            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	vec       []float32
	createdAt time.Time
	ordinal   int
}

// Filters narrow retrieval to matching chunks. Zero values mean no
// restriction.
type Filters struct {
	// DocType keeps chunks of one document type. It is also pushed into
	// the dense branch as a metadata filter.
	DocType string `json:"doc_type,omitempty"`

	// Topic keeps chunks whose document carries the topic or one of its
	// descendants: "work" matches both "work" and "work/projects".
	Topic string `json:"topic,omitempty"`

	// Project keeps chunks tagged with the project id.
	Project string `json:"project,omitempty"`

	// DateFrom and DateTo bound the document creation date, inclusive.
	// Chunks without a creation date never match a bounded range.
	DateFrom time.Time `json:"date_from,omitempty"`
	DateTo   time.Time `json:"date_to,omitempty"`

	// PathPrefix keeps chunks whose document was exported under the
	// prefix. Requires a document source.
	PathPrefix string `json:"path_prefix,omitempty"`
}

func (f Filters) empty() bool {
	return f.DocType == "" && f.Topic == "" && f.Project == "" &&
		f.DateFrom.IsZero() && f.DateTo.IsZero() && f.PathPrefix == ""
}

// Options adjust a single call. Zero values fall back to the configured
// defaults.
type Options struct {
	// TopK overrides the configured result count when positive.
	TopK int

	// Filters narrow the candidate set.
	Filters Filters

	// HyDE overrides the configured hypothetical-document expansion.
	HyDE *bool

	// Rerank overrides the configured reranker: "lexical", "llm" or
	// "none".
	Rerank string

	// Gate disables the confidence gate when set to false.
	Gate *bool

	// SynthesisModel pins answer generation to a provider from the
	// router chain.
	SynthesisModel string
}

// SearchResult is the outcome of a search call.
type SearchResult struct {
	Candidates []Candidate `json:"candidates"`
	Reranked   bool        `json:"reranked"`
}

// DocumentSource resolves document ids to catalog rows for filters that
// need more than chunk metadata. *catalog.Catalog satisfies it.
type DocumentSource interface {
	GetDocuments(ctx context.Context, ids []string) (map[string]*catalog.Document, error)
}

// Engine runs hybrid retrieval against one chunk collection.
type Engine struct {
	embedder   embedders.Embedder
	store      vector.Provider
	index      *sparse.Index
	docs       DocumentSource
	router     *llms.Router
	cfg        config.SearchConfig
	collection string
}

// NewEngine wires the retrieval stages. docs and router may be nil:
// without docs the path_prefix filter is unavailable, without a router
// HyDE degrades to plain embedding, LLM reranking falls back to
// lexical, and Answer returns an error.
func NewEngine(embedder embedders.Embedder, store vector.Provider, index *sparse.Index, docs DocumentSource, router *llms.Router, cfg config.SearchConfig, collection string) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("sparse index is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	return &Engine{
		embedder:   embedder,
		store:      store,
		index:      index,
		docs:       docs,
		router:     router,
		cfg:        cfg,
		collection: collection,
	}, nil
}

// Retrieve runs both branches, mixes their scores, applies filters, and
// returns the MMR-selected top k ordered by selection.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) ([]Candidate, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	k := opts.TopK
	if k <= 0 {
		k = e.cfg.TopK
	}
	fetchN := k * e.cfg.FetchMultiplier
	if fetchN < k {
		fetchN = k
	}

	queryVec, err := e.queryVector(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	var denseHits []vector.Match
	var sparseHits []sparse.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.searchDense(gctx, queryVec, fetchN, opts.Filters)
		if err != nil {
			return fmt.Errorf("dense search: %w", err)
		}
		denseHits = hits
		return nil
	})
	g.Go(func() error {
		sparseHits = e.index.Query(query, fetchN)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cands := mix(denseHits, sparseHits, e.cfg.Alpha)
	cands, err = e.hydrate(ctx, cands)
	if err != nil {
		return nil, err
	}
	cands, err = e.applyFilters(ctx, cands, opts.Filters)
	if err != nil {
		return nil, err
	}

	sortByScore(cands)
	selected := e.mmrSelect(cands, k)

	slog.Debug("retrieved candidates",
		"query_len", len(query),
		"dense", len(denseHits),
		"sparse", len(sparseHits),
		"selected", len(selected))
	return selected, nil
}

// Search is Retrieve followed by the configured reranker.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*SearchResult, error) {
	cands, err := e.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	mode := e.rerankMode(opts)
	if mode == RerankNone || len(cands) == 0 {
		return &SearchResult{Candidates: cands}, nil
	}
	reranked, err := e.rerank(ctx, query, cands, mode)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Candidates: reranked, Reranked: true}, nil
}

func (e *Engine) searchDense(ctx context.Context, queryVec []float32, topK int, f Filters) ([]vector.Match, error) {
	if f.DocType != "" {
		return e.store.SearchWithFilter(ctx, e.collection, queryVec, topK, map[string]string{"doc_type": f.DocType})
	}
	return e.store.Search(ctx, e.collection, queryVec, topK)
}

// mix merges the two branches into one candidate list with per-branch
// min-max normalized scores and combined = alpha*dense +
// (1-alpha)*sparse. A chunk found by both branches keeps one entry.
func mix(denseHits []vector.Match, sparseHits []sparse.Result, alpha float64) []Candidate {
	byID := make(map[string]int, len(denseHits)+len(sparseHits))
	cands := make([]Candidate, 0, len(denseHits)+len(sparseHits))

	denseScores := make([]float64, len(denseHits))
	for i, m := range denseHits {
		denseScores[i] = float64(m.Score)
	}
	denseNorm := minMaxNormalize(denseScores)

	for i, m := range denseHits {
		if m.Metadata["chunk_type"] == chunk.KindIgnored {
			continue
		}
		byID[m.ID] = len(cands)
		cands = append(cands, Candidate{
			ChunkID:    m.ID,
			DocID:      m.Metadata[vector.MetaDocID],
			Text:       m.Text,
			Metadata:   m.Metadata,
			DenseScore: denseNorm[i],
			Source:     SourceDense,
			vec:        m.Vector,
		})
	}

	sparseScores := make([]float64, len(sparseHits))
	for i, h := range sparseHits {
		sparseScores[i] = h.Score
	}
	sparseNorm := minMaxNormalize(sparseScores)

	for i, h := range sparseHits {
		if at, ok := byID[h.ChunkID]; ok {
			cands[at].SparseScore = sparseNorm[i]
			cands[at].Source = SourceBoth
			continue
		}
		byID[h.ChunkID] = len(cands)
		cands = append(cands, Candidate{
			ChunkID:     h.ChunkID,
			DocID:       h.DocID,
			SparseScore: sparseNorm[i],
			Source:      SourceSparse,
		})
	}

	for i := range cands {
		cands[i].Score = alpha*cands[i].DenseScore + (1-alpha)*cands[i].SparseScore
	}
	return cands
}

// hydrate fills text, metadata, and the stored vector for chunks only
// the sparse branch found, then parses the metadata fields every later
// stage relies on. Sparse hits missing from the vector store are
// dropped.
func (e *Engine) hydrate(ctx context.Context, cands []Candidate) ([]Candidate, error) {
	var missing []string
	for i := range cands {
		if cands[i].Source == SourceSparse {
			missing = append(missing, cands[i].ChunkID)
		}
	}

	items := make(map[string]vector.Item, len(missing))
	if len(missing) > 0 {
		fetched, err := e.store.Get(ctx, e.collection, missing)
		if err != nil {
			return nil, fmt.Errorf("hydrating sparse hits: %w", err)
		}
		for _, it := range fetched {
			items[it.ID] = it
		}
	}

	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Source == SourceSparse {
			it, ok := items[c.ChunkID]
			if !ok {
				slog.Warn("sparse hit missing from vector store, dropping", "chunk_id", c.ChunkID)
				continue
			}
			c.Text = it.Text
			c.Metadata = it.Metadata
			c.vec = it.Vector
			if c.Metadata["chunk_type"] == chunk.KindIgnored {
				continue
			}
		}
		c.SectionPath = chunk.ParseSectionPath(c.Metadata["section_path"])
		if n, err := strconv.Atoi(c.Metadata["sequence"]); err == nil {
			c.ordinal = n
		}
		if ts, err := time.Parse(time.RFC3339, c.Metadata["created_at"]); err == nil {
			c.createdAt = ts
		}
		if c.DocID == "" {
			c.DocID = c.Metadata[vector.MetaDocID]
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) applyFilters(ctx context.Context, cands []Candidate, f Filters) ([]Candidate, error) {
	if f.empty() {
		return cands, nil
	}

	var docs map[string]*catalog.Document
	if f.PathPrefix != "" {
		if e.docs == nil {
			return nil, fmt.Errorf("path_prefix filter requires a document source")
		}
		ids := make([]string, 0, len(cands))
		seen := make(map[string]bool, len(cands))
		for i := range cands {
			if id := cands[i].DocID; id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		var err error
		docs, err = e.docs.GetDocuments(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolving documents for path filter: %w", err)
		}
	}

	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !matchesFilters(&c, f, docs) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func matchesFilters(c *Candidate, f Filters, docs map[string]*catalog.Document) bool {
	if f.DocType != "" && c.Metadata["doc_type"] != f.DocType {
		return false
	}
	if f.Topic != "" && !matchesTopic(c.Metadata["topics"], f.Topic) {
		return false
	}
	if f.Project != "" && !containsListed(c.Metadata["projects"], f.Project) {
		return false
	}
	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		if c.createdAt.IsZero() {
			return false
		}
		if !f.DateFrom.IsZero() && c.createdAt.Before(f.DateFrom) {
			return false
		}
		if !f.DateTo.IsZero() && c.createdAt.After(f.DateTo) {
			return false
		}
	}
	if f.PathPrefix != "" {
		doc := docs[c.DocID]
		if doc == nil || doc.ExportPath == "" || !strings.HasPrefix(doc.ExportPath, f.PathPrefix) {
			return false
		}
	}
	return true
}

// matchesTopic honors the topic hierarchy: a filter on "work" matches
// "work" itself and any "work/..." descendant.
func matchesTopic(joined, want string) bool {
	for _, t := range splitList(joined) {
		if t == want || strings.HasPrefix(t, want+"/") {
			return true
		}
	}
	return false
}

func containsListed(joined, want string) bool {
	for _, v := range splitList(joined) {
		if v == want {
			return true
		}
	}
	return false
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

// sortByScore orders by combined score, ties broken by newer document
// date, then lower ordinal, then chunk id.
func sortByScore(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := &cands[i], &cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.After(b.createdAt)
		}
		if a.ordinal != b.ordinal {
			return a.ordinal < b.ordinal
		}
		return a.ChunkID < b.ChunkID
	})
}

// mmrSelect greedily picks k candidates maximizing lambda*score -
// (1-lambda)*max_similarity_to_selected. Input must already be sorted
// by score so ties resolve toward the better-ranked candidate.
// Candidates without a stored vector cannot join the similarity math
// and fill trailing slots in score order.
func (e *Engine) mmrSelect(cands []Candidate, k int) []Candidate {
	if k > len(cands) {
		k = len(cands)
	}
	if k <= 0 {
		return nil
	}
	lambda := e.cfg.MMRLambda

	var withVec, withoutVec []Candidate
	for _, c := range cands {
		if len(c.vec) > 0 {
			withVec = append(withVec, c)
		} else {
			withoutVec = append(withoutVec, c)
		}
	}

	selected := make([]Candidate, 0, k)
	for len(selected) < k && len(withVec) > 0 {
		best, bestVal := -1, 0.0
		for i := range withVec {
			maxSim := 0.0
			for j := range selected {
				if sim := cosine(withVec[i].vec, selected[j].vec); sim > maxSim {
					maxSim = sim
				}
			}
			val := lambda*withVec[i].Score - (1-lambda)*maxSim
			if best < 0 || val > bestVal {
				best, bestVal = i, val
			}
		}
		selected = append(selected, withVec[best])
		withVec = append(withVec[:best], withVec[best+1:]...)
	}
	for i := 0; len(selected) < k && i < len(withoutVec); i++ {
		selected = append(selected, withoutVec[i])
	}
	return selected
}

// cosine returns the cosine similarity of two vectors, 0 for empty or
// mismatched inputs.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// minMaxNormalize rescales one branch's scores to [0,1]. A degenerate
// branch where every score is equal maps to all ones so the branch
// still contributes through its mix weight.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make([]float64, len(scores))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
