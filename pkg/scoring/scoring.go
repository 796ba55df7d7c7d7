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

// Package scoring derives the quality/novelty/actionability/signalness
// bundle for an enriched document and applies the per-type index gate.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/embedders"
	"github.com/kadirpekel/sift/pkg/enrich"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/vector"
	"github.com/kadirpekel/sift/pkg/vocab"
)

// Length band bounds in words.
const (
	lengthBandLow  = 200
	lengthBandHigh = 20000
)

// Bundle is the score set for one document.
type Bundle struct {
	Quality       float64 `json:"quality"`
	Novelty       float64 `json:"novelty"`
	Actionability float64 `json:"actionability"`
	Signalness    float64 `json:"signalness"`
	DoIndex       bool    `json:"do_index"`

	// GateReason explains a do_index=false decision.
	GateReason string `json:"gate_reason,omitempty"`

	// SummaryVector is the embedding novelty was measured with. The
	// pipeline commits it once the document is durably recorded, so
	// later ingests see this document in their novelty search.
	SummaryVector []float32 `json:"-"`
}

// Scorer computes score bundles against the summary-embedding corpus.
type Scorer struct {
	embedder   embedders.Embedder
	store      vector.Provider
	vocab      *vocab.Store
	gates      map[string]config.GateConfig
	collection string
	now        func() time.Time
}

// New builds a scorer. collection names the summary-vector collection
// used for novelty.
func New(embedder embedders.Embedder, store vector.Provider, vocabStore *vocab.Store, cfg config.ScoringConfig, collection string) *Scorer {
	return &Scorer{
		embedder:   embedder,
		store:      store,
		vocab:      vocabStore,
		gates:      cfg.Gates,
		collection: collection,
		now:        time.Now,
	}
}

// Score computes the bundle for one enriched document. Embedding or
// search failures degrade novelty to 1 with a warning instead of
// failing the ingest; only context cancellation is returned.
func (s *Scorer) Score(ctx context.Context, docID string, item *extract.Item, enr *enrich.Enrichment) (*Bundle, error) {
	quality := s.quality(item)
	novelty, summaryVec, err := s.novelty(ctx, docID, item, enr)
	if err != nil {
		return nil, err
	}
	actionability := s.actionability(item, enr)
	signalness := 0.4*quality + 0.3*novelty + 0.3*actionability

	bundle := &Bundle{
		Quality:       quality,
		Novelty:       novelty,
		Actionability: actionability,
		Signalness:    signalness,
		SummaryVector: summaryVec,
	}

	gate := s.gate(enr.DocType)
	switch {
	case quality < gate.MinQuality:
		bundle.GateReason = fmt.Sprintf("quality %.2f below %s floor %.2f", quality, enr.DocType, gate.MinQuality)
	case signalness < gate.MinSignal:
		bundle.GateReason = fmt.Sprintf("signalness %.2f below %s floor %.2f", signalness, enr.DocType, gate.MinSignal)
	default:
		bundle.DoIndex = true
	}
	return bundle, nil
}

// CommitSummary stores the summary embedding measured during Score so
// future documents compare against this one. No-op when novelty had no
// vector to keep.
func (s *Scorer) CommitSummary(ctx context.Context, docID, title string, bundle *Bundle) error {
	if len(bundle.SummaryVector) == 0 {
		return nil
	}
	return s.store.Upsert(ctx, s.collection, []vector.Item{{
		ID:     docID,
		Vector: bundle.SummaryVector,
		Text:   title,
		Metadata: map[string]string{
			vector.MetaDocID: docID,
			"title":          title,
		},
	}})
}

// RemoveSummary drops a document's summary embedding so deleted
// documents stop influencing novelty.
func (s *Scorer) RemoveSummary(ctx context.Context, docID string) error {
	return s.store.DeleteByIDs(ctx, s.collection, []string{docID})
}

// quality is the mean of the four components, each in [0,1].
func (s *Scorer) quality(item *extract.Item) float64 {
	es := extractionSuccess(item)
	sr := structuralRichness(item.Blocks)
	lb := lengthBand(len(strings.Fields(item.Text)))
	oc := ocrConfidence(item)
	return clamp01((es + sr + lb + oc) / 4)
}

func extractionSuccess(item *extract.Item) float64 {
	switch {
	case item.OCRUsed:
		return 0.5
	case len(strings.TrimSpace(item.Text)) >= 50:
		return 1
	default:
		return 0
	}
}

func structuralRichness(blocks []extract.Block) float64 {
	var rich, visible int
	for _, b := range blocks {
		switch b.Kind {
		case extract.BlockHeading, extract.BlockTable, extract.BlockList:
			rich++
			visible++
		case extract.BlockIgnore:
		default:
			visible++
		}
	}
	switch {
	case rich > 0:
		return 1
	case visible > 1:
		return 0.5
	default:
		return 0.2
	}
}

// lengthBand is 1 inside [200, 20000] words and decays linearly to 0
// at zero words below and at twice the upper bound above.
func lengthBand(words int) float64 {
	switch {
	case words >= lengthBandLow && words <= lengthBandHigh:
		return 1
	case words < lengthBandLow:
		return float64(words) / lengthBandLow
	default:
		return math.Max(0, 1-float64(words-lengthBandHigh)/lengthBandHigh)
	}
}

func ocrConfidence(item *extract.Item) float64 {
	if item.OCRUsed {
		return clamp01(item.OCRConfidence)
	}
	return 1
}

// novelty embeds the document summary (title when enrichment was
// degraded) and compares it to the stored summary corpus. The document
// itself is skipped so re-enrichment does not see its own echo.
func (s *Scorer) novelty(ctx context.Context, docID string, item *extract.Item, enr *enrich.Enrichment) (float64, []float32, error) {
	text := strings.TrimSpace(enr.Summary)
	if text == "" {
		text = enr.Title
	}
	if text == "" {
		return 1, nil, nil
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		slog.Warn("novelty embedding failed, assuming novel", "doc_id", docID, "error", err)
		return 1, nil, nil
	}

	matches, err := s.store.Search(ctx, s.collection, vec, 2)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		slog.Warn("novelty search failed, assuming novel", "doc_id", docID, "error", err)
		return 1, vec, nil
	}

	best := 0.0
	for _, m := range matches {
		if m.ID == docID {
			continue
		}
		if sim := float64(m.Score); sim > best {
			best = sim
		}
	}
	return clamp01(1 - clamp01(best)), vec, nil
}

// actionability = min(1, 0.4·hits/5 + 0.3·project + 0.3·future_event).
func (s *Scorer) actionability(item *extract.Item, enr *enrich.Enrichment) float64 {
	matches := s.vocab.MatchProjectsAt(item.Text, item.CreatedAt)
	hits := 0
	for _, m := range matches {
		hits += len(m.Keywords)
	}

	project := 0.0
	if len(matches) > 0 || len(enr.Projects) > 0 {
		project = 1
	}
	future := 0.0
	if hasFutureDate(enr.Dates, s.now()) {
		future = 1
	}
	return math.Min(1, 0.4*float64(hits)/5+0.3*project+0.3*future)
}

func hasFutureDate(dates []string, now time.Time) bool {
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if t.After(now) {
			return true
		}
	}
	return false
}

// gate looks up the type's thresholds, falling back to generic.
func (s *Scorer) gate(docType string) config.GateConfig {
	if g, ok := s.gates[docType]; ok {
		return g
	}
	return s.gates["generic"]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
