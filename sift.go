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

package sift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/sift/pkg/archive"
	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/chunk"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/dedup"
	"github.com/kadirpekel/sift/pkg/embedders"
	"github.com/kadirpekel/sift/pkg/enrich"
	"github.com/kadirpekel/sift/pkg/export"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/ingest"
	"github.com/kadirpekel/sift/pkg/llms"
	"github.com/kadirpekel/sift/pkg/observability"
	"github.com/kadirpekel/sift/pkg/retrieval"
	"github.com/kadirpekel/sift/pkg/scoring"
	"github.com/kadirpekel/sift/pkg/sparse"
	"github.com/kadirpekel/sift/pkg/vector"
	"github.com/kadirpekel/sift/pkg/vocab"
)

// Commonly used types re-exported so library consumers can work with
// the root package alone.
type (
	// Config is the root configuration tree.
	Config = config.Config

	// IngestOptions control one ingest call.
	IngestOptions = ingest.Options

	// IngestResult describes one ingested document.
	IngestResult = ingest.Result

	// FileResult pairs one input path with its ingest outcome.
	FileResult = ingest.FileResult

	// SearchOptions adjust one search or answer call.
	SearchOptions = retrieval.Options

	// SearchFilters narrow retrieval to matching chunks.
	SearchFilters = retrieval.Filters

	// SearchResult is the outcome of a search call.
	SearchResult = retrieval.SearchResult

	// Candidate is one retrieved chunk.
	Candidate = retrieval.Candidate

	// Answer is a synthesized, cited reply.
	Answer = retrieval.Answer
)

// DeleteOptions control document removal.
type DeleteOptions struct {
	// DeleteExport also removes the exported Markdown artifact. The
	// vault is otherwise treated as immutable history.
	DeleteExport bool
}

// Stats aggregates catalog counts with the day's LLM spend.
type Stats struct {
	Catalog *catalog.Stats `json:"catalog"`

	// SpentTodayUSD is the ledger total for the current UTC day.
	SpentTodayUSD float64 `json:"spent_today_usd"`

	// RemainingBudgetUSD is today's unspent budget; -1 means uncapped.
	RemainingBudgetUSD float64 `json:"remaining_budget_usd"`
}

// Service owns every component of one sift instance: the ingestion
// pipeline, the hybrid retrieval engine, and the stores they share.
// Construction rebuilds the in-memory dedup and sparse indexes from
// the catalog, so a restarted process resumes with full duplicate
// detection and lexical search.
type Service struct {
	cfg *config.Config

	obs       *observability.Manager
	dbPool    *config.DBPool
	catalog   *catalog.Catalog
	embedder  embedders.Embedder
	store     vector.Provider
	registry  *llms.Registry
	ledger    *llms.Ledger
	router    *llms.Router
	vocab     *vocab.Store
	extractor *extract.Service
	dedup     *dedup.Index
	sparse    *sparse.Index
	archive   *archive.Archive
	exporter  *export.Exporter
	pipeline  *ingest.Pipeline
	engine    *retrieval.Engine
}

// New assembles a Service from a validated configuration. Components
// come up in dependency order; any failure tears down what already
// started.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &Service{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	s.obs = observability.NewManager(observabilityConfig(cfg.Observability))
	if err := s.obs.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	s.dbPool = config.NewDBPool()
	db, err := s.dbPool.Get(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	s.catalog, err = catalog.New(db, cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	s.embedder, err = embedders.New(&cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	s.store, err = vector.New(&cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	dim := s.embedder.GetDimension()
	for _, collection := range []string{cfg.VectorStore.Collection, cfg.VectorStore.SummaryCollection} {
		if err := s.store.CreateCollection(ctx, collection, dim); err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", collection, err)
		}
	}

	s.registry, err = llms.NewRegistryFromConfig(cfg.LLMs)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM providers: %w", err)
	}
	s.ledger, err = llms.NewLedger(cfg.Router.LedgerDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cost ledger: %w", err)
	}
	s.router, err = llms.NewRouter(s.registry, s.ledger, cfg.Router, cfg.LLMs)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM router: %w", err)
	}

	s.vocab, err = vocab.New(cfg.Vocabulary)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	counter := chunk.NewTokenCounter(cfg.Ingest.Chunking.Tokenizer)
	enricher, err := enrich.New(s.router, s.vocab, counter, cfg.Ingest.Enrichment)
	if err != nil {
		return nil, fmt.Errorf("failed to create enricher: %w", err)
	}
	scorer := scoring.New(s.embedder, s.store, s.vocab, cfg.Ingest.Scoring, cfg.VectorStore.SummaryCollection)

	s.extractor, err = extract.NewService(ctx, &cfg.Ingest)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractors: %w", err)
	}

	if err := s.rebuildIndexes(ctx); err != nil {
		return nil, err
	}

	if cfg.Ingest.Archive.Enabled {
		s.archive, err = archive.New(cfg.Ingest.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
	}
	if cfg.Export.Enabled {
		s.exporter, err = export.New(cfg.Export)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare export vault: %w", err)
		}
	}

	deps := ingest.Deps{
		Extractor: s.extractor,
		Dedup:     s.dedup,
		Enricher:  enricher,
		Scorer:    scorer,
		Chunker:   chunk.New(cfg.Ingest.Chunking),
		Embedder:  s.embedder,
		Vector:    s.store,
		Sparse:    s.sparse,
		Catalog:   s.catalog,
	}
	if s.archive != nil {
		deps.Archive = s.archive
	}
	if s.exporter != nil {
		deps.Exporter = s.exporter
	}
	s.pipeline, err = ingest.New(deps, cfg.Ingest, cfg.VectorStore.Collection)
	if err != nil {
		return nil, err
	}

	s.engine, err = retrieval.NewEngine(s.embedder, s.store, s.sparse, s.catalog, s.router, cfg.Search, cfg.VectorStore.Collection)
	if err != nil {
		return nil, err
	}

	ok = true
	return s, nil
}

// rebuildIndexes restores the in-memory dedup and sparse indexes from
// the catalog. Only indexed and archived documents re-enter dedup;
// only indexed documents' chunks re-enter the sparse index.
func (s *Service) rebuildIndexes(ctx context.Context) error {
	start := time.Now()

	s.dedup = dedup.NewIndex(s.cfg.Ingest.Dedup)
	err := s.catalog.ForEachLiveDocument(ctx, func(id, hash, fingerprint string) error {
		fp, err := dedup.ParseFingerprint(fingerprint)
		if err != nil {
			slog.Warn("skipping document with unreadable fingerprint", "doc_id", id, "error", err)
			return nil
		}
		s.dedup.Add(dedup.Signature{Hash: hash, Fingerprint: fp}, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild dedup index: %w", err)
	}

	s.sparse = sparse.NewIndex()
	var docID string
	var entries []sparse.Entry
	flush := func() {
		if docID != "" && len(entries) > 0 {
			s.sparse.AddBatch(docID, entries)
		}
		entries = entries[:0]
	}
	err = s.catalog.ForEachIndexedChunk(ctx, func(doc, chunkID, text string) error {
		if doc != docID {
			flush()
			docID = doc
		}
		entries = append(entries, sparse.Entry{ChunkID: chunkID, Text: text})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild sparse index: %w", err)
	}
	flush()

	slog.Info("indexes rebuilt from catalog",
		"documents", s.dedup.Len(),
		"chunks", s.sparse.Len(),
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

// Ingest processes one input through the full pipeline. Multi-item
// inputs may return several results alongside a joined error for the
// items that failed.
func (s *Service) Ingest(ctx context.Context, data []byte, opts IngestOptions) ([]*IngestResult, error) {
	return s.pipeline.Ingest(ctx, data, opts)
}

// IngestFiles ingests many files with bounded parallelism. The result
// slice is ordered like paths.
func (s *Service) IngestFiles(ctx context.Context, paths []string, opts IngestOptions) []*FileResult {
	return s.pipeline.IngestFiles(ctx, paths, opts)
}

// Search runs hybrid retrieval with the configured reranker.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ingest.InputError{Reason: "query is empty"}
	}
	start := time.Now()
	res, err := s.engine.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	observability.GetGlobalMetrics().RecordSearch(ctx, "search", time.Since(start))
	return res, nil
}

// Answer retrieves, gates, and synthesizes a cited reply. A confidence
// gate refusal returns a *retrieval.InsufficientEvidenceError.
func (s *Service) Answer(ctx context.Context, question string, opts SearchOptions) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &ingest.InputError{Reason: "question is empty"}
	}
	start := time.Now()
	ans, err := s.engine.Answer(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	observability.GetGlobalMetrics().RecordSearch(ctx, "answer", time.Since(start))
	return ans, nil
}

// Delete removes a document from every store. The catalog row is kept
// with status deleted; the content becomes ingestable again.
func (s *Service) Delete(ctx context.Context, docID string, opts DeleteOptions) error {
	return s.pipeline.Remove(ctx, docID, opts.DeleteExport)
}

// Reenrich reruns enrichment, scoring, and export for a stored
// document, keeping its identity and re-embedding only changed chunks.
func (s *Service) Reenrich(ctx context.Context, docID string) (*IngestResult, error) {
	return s.pipeline.Reenrich(ctx, docID)
}

// Stats reports catalog counts and LLM spend.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	catStats, err := s.catalog.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Catalog:            catStats,
		SpentTodayUSD:      s.ledger.TodayTotal(),
		RemainingBudgetUSD: s.router.RemainingBudget(),
	}, nil
}

// ReloadVocabulary re-reads the vocabulary file. Enrichment and scoring
// pick up the new closed lists on their next call.
func (s *Service) ReloadVocabulary() error {
	return s.vocab.Reload()
}

// Vault returns the export vault directory, empty when export is off.
func (s *Service) Vault() string {
	if s.exporter == nil {
		return ""
	}
	return s.exporter.Dir()
}

// MetricsHandler exposes the Prometheus scrape endpoint for an HTTP
// listener. It serves empty output when metrics are disabled.
func (s *Service) MetricsHandler() http.Handler {
	return s.obs.MetricsHandler()
}

// Close releases every component in reverse construction order.
func (s *Service) Close() error {
	var errs []error

	if s.extractor != nil {
		if err := s.extractor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("extractors: %w", err))
		}
	}
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("llm providers: %w", err))
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedder: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("vector store: %w", err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if s.obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
	}

	return errors.Join(errs...)
}

// observabilityConfig bridges the YAML-facing observability section to
// the manager's tracer and metrics settings.
func observabilityConfig(cfg config.ObservabilityConfig) observability.Config {
	return observability.Config{
		Tracing: observability.TracerConfig{
			Enabled:      cfg.Enabled && cfg.TracingEnabled,
			Endpoint:     cfg.OTLPEndpoint,
			SamplingRate: cfg.SampleRate,
			ServiceName:  cfg.ServiceName,
		},
		Metrics: observability.MetricsConfig{
			Enabled: cfg.Enabled && config.BoolValue(cfg.MetricsEnabled, true),
		},
	}
}
