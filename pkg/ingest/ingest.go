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

// Package ingest runs the document pipeline: extraction, duplicate
// admission, enrichment, scoring, chunking, embedding, persistence,
// and export.
//
// The catalog row is the commit point. Vector and sparse entries are
// written before it, so a document the catalog lists as indexed always
// has its index entries in place; a failure after partial writes
// triggers one best-effort rollback on a fresh context. Store writes
// for one document are serialized through a per-document lock, so a
// delete never interleaves with a re-enrichment of the same document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/chunk"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/dedup"
	"github.com/kadirpekel/sift/pkg/embedders"
	"github.com/kadirpekel/sift/pkg/enrich"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/observability"
	"github.com/kadirpekel/sift/pkg/scoring"
	"github.com/kadirpekel/sift/pkg/sparse"
	"github.com/kadirpekel/sift/pkg/vector"
)

// rollbackTimeout bounds the cleanup that runs after a failed ingest.
// Cleanup uses a fresh context: the trigger is often a cancellation.
const rollbackTimeout = 10 * time.Second

// Extractor turns raw input bytes into structured items.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (*extract.Extraction, error)
}

// Enricher derives structured metadata for one extracted item. It
// returns an error only when the caller's context ends; provider
// failures degrade into a fallback enrichment instead.
type Enricher interface {
	Enrich(ctx context.Context, item *extract.Item, filename string) (*enrich.Enrichment, error)
}

// Scorer computes score bundles and maintains the summary-vector
// corpus novelty is measured against.
type Scorer interface {
	Score(ctx context.Context, docID string, item *extract.Item, enr *enrich.Enrichment) (*scoring.Bundle, error)
	CommitSummary(ctx context.Context, docID, title string, bundle *scoring.Bundle) error
	RemoveSummary(ctx context.Context, docID string) error
}

// Catalog is the relational document store.
type Catalog interface {
	SaveDocument(ctx context.Context, doc *catalog.Document) error
	UpdateDocument(ctx context.Context, doc *catalog.Document) error
	UpdateStatus(ctx context.Context, docID, status string) error
	GetDocument(ctx context.Context, docID string) (*catalog.Document, error)
	ReplaceChunks(ctx context.Context, docID string, chunks []chunk.Chunk) error
	Chunks(ctx context.Context, docID string) ([]chunk.Chunk, error)
	DeleteChunks(ctx context.Context, docID string) error
}

// Exporter writes canonical Markdown artifacts.
type Exporter interface {
	Export(doc *catalog.Document) (string, error)
	Remove(relPath string) error
}

// Archiver stores raw input bytes by content hash.
type Archiver interface {
	Store(data []byte) (string, error)
	Read(hash string) ([]byte, error)
}

// Deps collects the pipeline's collaborators. Archive and Exporter may
// be nil when the corresponding feature is disabled.
type Deps struct {
	Extractor Extractor
	Dedup     *dedup.Index
	Enricher  Enricher
	Scorer    Scorer
	Chunker   *chunk.Chunker
	Embedder  embedders.Embedder
	Vector    vector.Provider
	Sparse    *sparse.Index
	Catalog   Catalog
	Archive   Archiver
	Exporter  Exporter
}

// Options control one ingest call.
type Options struct {
	// Filename is the input's original name, used for format detection
	// and title fallbacks. Recorded as the document source.
	Filename string

	// ForceReindex replaces an exact-duplicate document instead of
	// rejecting the input.
	ForceReindex bool

	// SkipExport suppresses artifact writing for this call.
	SkipExport bool

	// OverrideNearDup admits the input even when a near-duplicate
	// fingerprint is already registered.
	OverrideNearDup bool
}

// Result describes one document produced by an ingest.
type Result struct {
	DocID         string             `json:"doc_id"`
	DocType       string             `json:"doc_type"`
	Title         string             `json:"title"`
	Status        string             `json:"status"`
	DoIndex       bool               `json:"do_index"`
	GateReason    string             `json:"gate_reason,omitempty"`
	Quality       float64            `json:"quality"`
	Novelty       float64            `json:"novelty"`
	Actionability float64            `json:"actionability"`
	Signalness    float64            `json:"signalness"`
	ChunkCount    int                `json:"chunk_count"`
	Degraded      bool               `json:"degraded,omitempty"`
	ExportPath    string             `json:"export_path,omitempty"`
	CostUSD       float64            `json:"cost_usd"`
	Enrichment    *enrich.Enrichment `json:"enrichment,omitempty"`

	// Replaced is the id of the exact-duplicate document a
	// force-reindex tore down.
	Replaced string `json:"replaced,omitempty"`
}

// Pipeline executes ingests against one chunk collection.
type Pipeline struct {
	deps       Deps
	cfg        config.IngestConfig
	collection string
	retry      retrier
	locks      *docLocks

	// sem bounds concurrent extraction, the stage that holds whole
	// files in memory.
	sem chan struct{}
}

// New validates the dependency set and builds a pipeline.
func New(deps Deps, cfg config.IngestConfig, collection string) (*Pipeline, error) {
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Dedup == nil:
		return nil, fmt.Errorf("dedup index is required")
	case deps.Enricher == nil:
		return nil, fmt.Errorf("enricher is required")
	case deps.Scorer == nil:
		return nil, fmt.Errorf("scorer is required")
	case deps.Chunker == nil:
		return nil, fmt.Errorf("chunker is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case deps.Vector == nil:
		return nil, fmt.Errorf("vector store is required")
	case deps.Sparse == nil:
		return nil, fmt.Errorf("sparse index is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case collection == "":
		return nil, fmt.Errorf("collection is required")
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		deps:       deps,
		cfg:        cfg,
		collection: collection,
		retry:      newRetrier(cfg.Retry),
		locks:      newDocLocks(),
		sem:        make(chan struct{}, workers),
	}, nil
}

// Ingest processes one input. Multi-item formats produce several
// results: a chat export splits into one document per day. Partial
// results are returned alongside a joined error when some items fail;
// the error is nil only when every item succeeded.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, opts Options) ([]*Result, error) {
	if len(data) == 0 {
		return nil, &InputError{Reason: "input is empty"}
	}
	if p.cfg.MaxFileSize > 0 && int64(len(data)) > p.cfg.MaxFileSize {
		return nil, &InputError{Reason: fmt.Sprintf(
			"input is %d bytes, limit is %d", len(data), p.cfg.MaxFileSize)}
	}

	extraction, err := p.runExtraction(ctx, data, opts.Filename)
	if err != nil {
		return nil, err
	}

	meta := itemMeta{
		source: opts.Filename,
		mime:   mimeFor(extraction.Format, data),
	}
	if p.deps.Archive != nil {
		hash, err := p.deps.Archive.Store(data)
		if err != nil {
			slog.Warn("archive write failed, document will not be re-extractable",
				"source", opts.Filename, "error", err)
		} else {
			meta.archiveHash = hash
		}
	}

	var results []*Result
	var errs []error
	for i := range extraction.Items {
		res, err := p.ingestItem(ctx, &extraction.Items[i], meta, opts)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// itemMeta carries per-input facts shared by all of its items.
type itemMeta struct {
	source      string
	mime        string
	archiveHash string
}

func (p *Pipeline) ingestItem(ctx context.Context, item *extract.Item, meta itemMeta, opts Options) (*Result, error) {
	start := time.Now()

	docID := uuid.New().String()
	sig := dedup.Sign(item.Text, p.cfg.Dedup.ShingleSize)

	replaced, err := p.admit(ctx, sig, docID, opts)
	if err != nil {
		status := "failed"
		var dup *dedup.DuplicateError
		if errors.As(err, &dup) {
			status = "duplicate"
		}
		p.metrics().RecordIngest(ctx, status, time.Since(start), 0)
		return nil, err
	}

	res, err := p.process(ctx, docID, sig, item, meta, opts)
	if err != nil {
		status := "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = catalog.StatusAborted
		}
		p.metrics().RecordIngest(ctx, status, time.Since(start), 0)
		return nil, err
	}

	res.Replaced = replaced
	p.metrics().RecordIngest(ctx, res.Status, time.Since(start), res.ChunkCount)
	return res, nil
}

// admit registers the item's identity in the dedup index. With
// ForceReindex an exact-match incumbent is deleted, export artifact
// included since the replacement immediately writes its successor, and
// admission is retried. Near matches pass only with OverrideNearDup,
// which CheckAndInsert handles itself. Returns the replaced id, if any.
func (p *Pipeline) admit(ctx context.Context, sig dedup.Signature, docID string, opts Options) (string, error) {
	err := p.deps.Dedup.CheckAndInsert(sig, docID, opts.OverrideNearDup)
	if err == nil {
		return "", nil
	}
	var dup *dedup.DuplicateError
	if !opts.ForceReindex || !errors.As(err, &dup) || dup.Near {
		return "", err
	}

	if err := p.Remove(ctx, dup.DocID, true); err != nil {
		var nf *catalog.NotFoundError
		if !errors.As(err, &nf) {
			return "", fmt.Errorf("failed to replace document %s: %w", dup.DocID, err)
		}
		// Gone from the catalog already; only the fingerprint is stale.
		p.deps.Dedup.Remove(dup.DocID)
	}
	if err := p.deps.Dedup.CheckAndInsert(sig, docID, opts.OverrideNearDup); err != nil {
		return "", err
	}
	return dup.DocID, nil
}

// process runs the admitted item through enrichment, scoring, indexing,
// and persistence. Any failure unregisters the fingerprint, rolls back
// partial store writes, and best-effort records the abort.
func (p *Pipeline) process(ctx context.Context, docID string, sig dedup.Signature, item *extract.Item, meta itemMeta, opts Options) (*Result, error) {
	ingestedAt := time.Now().UTC()

	// Identity skeleton; also what an aborted row is written from.
	doc := &catalog.Document{
		ID:          docID,
		ContentHash: sig.Hash,
		Fingerprint: dedup.FormatFingerprint(sig.Fingerprint),
		ArchiveHash: meta.archiveHash,
		Source:      meta.source,
		MIME:        meta.mime,
		DocType:     item.TypeHint,
		Title:       item.Title,
		IngestedAt:  ingestedAt,
	}

	fail := func(cause error) error {
		p.deps.Dedup.Remove(docID)
		p.rollbackStores(docID)
		p.markAborted(doc, cause)
		return cause
	}

	enr, err := p.deps.Enricher.Enrich(ctx, item, meta.source)
	if err != nil {
		return nil, fail(err)
	}

	bundle, err := p.deps.Scorer.Score(ctx, docID, item, enr)
	if err != nil {
		return nil, fail(err)
	}

	chunks := retrievable(p.deps.Chunker.Split(docID, item))

	doc.DocType = enr.DocType
	doc.Title = enr.Title
	doc.Summary = enr.Summary
	doc.CreatedAt = resolveCreatedAt(item, enr, ingestedAt)
	doc.Quality = bundle.Quality
	doc.Novelty = bundle.Novelty
	doc.Actionability = bundle.Actionability
	doc.Signalness = bundle.Signalness
	doc.DoIndex = bundle.DoIndex
	doc.Status = catalog.StatusArchived
	if bundle.DoIndex {
		doc.Status = catalog.StatusIndexed
	}
	doc.Enrichment = enr
	doc.SuggestedTags = enr.SuggestedTags
	doc.EnrichmentVersion = enr.Version
	doc.Degraded = enr.Degraded
	doc.ChunkCount = len(chunks)
	doc.CostUSD = enr.CostUSD

	unlock := p.locks.lock(docID)
	defer unlock()

	if doc.DoIndex {
		if err := p.index(ctx, doc, chunks); err != nil {
			return nil, fail(err)
		}
	}

	if err := p.retry.do(ctx, "catalog save", func() error {
		return p.deps.Catalog.SaveDocument(ctx, doc)
	}); err != nil {
		return nil, fail(err)
	}
	if err := p.retry.do(ctx, "chunk save", func() error {
		return p.deps.Catalog.ReplaceChunks(ctx, docID, chunks)
	}); err != nil {
		return nil, fail(err)
	}

	// Archived documents keep their summary in the novelty corpus too:
	// a gated-out document still makes its repeats less novel.
	if err := p.deps.Scorer.CommitSummary(ctx, docID, doc.Title, bundle); err != nil {
		slog.Warn("failed to store summary embedding", "doc_id", docID, "error", err)
	}

	p.export(ctx, doc, opts)

	if bundle.GateReason != "" {
		slog.Info("document gated out of the index", "doc_id", docID, "reason", bundle.GateReason)
	}
	return resultFor(doc, bundle), nil
}

// index embeds the chunks and writes vector then sparse entries. The
// sparse index is memory-only and rebuilt from the catalog on startup,
// so it carries no rollback risk of its own.
func (p *Pipeline) index(ctx context.Context, doc *catalog.Document, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	var vectors [][]float32
	if err := p.retry.do(ctx, "embed", func() error {
		var embErr error
		vectors, embErr = p.deps.Embedder.EmbedBatch(ctx, texts)
		return embErr
	}); err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return &StorageError{Op: "embed", Err: fmt.Errorf(
			"got %d vectors for %d chunks", len(vectors), len(chunks))}
	}

	meta := chunkDocMeta(doc)
	items := make([]vector.Item, len(chunks))
	for i := range chunks {
		items[i] = vector.Item{
			ID:       chunks[i].ID,
			Vector:   vectors[i],
			Text:     chunks[i].Text,
			Metadata: chunks[i].Metadata(meta),
		}
	}

	upsertStart := time.Now()
	if err := p.retry.do(ctx, "vector upsert", func() error {
		return p.deps.Vector.Upsert(ctx, p.collection, items)
	}); err != nil {
		return err
	}
	p.metrics().RecordVectorUpsert(ctx, time.Since(upsertStart))

	entries := make([]sparse.Entry, len(chunks))
	for i := range chunks {
		entries[i] = sparse.Entry{ChunkID: chunks[i].ID, Text: chunks[i].Text}
	}
	p.deps.Sparse.AddBatch(doc.ID, entries)
	return nil
}

// export writes the canonical artifact. Export failures never fail the
// ingest: the catalog row is already durable and the artifact can be
// rewritten by a later re-enrichment.
func (p *Pipeline) export(ctx context.Context, doc *catalog.Document, opts Options) {
	if p.deps.Exporter == nil || opts.SkipExport {
		return
	}
	relPath, err := p.deps.Exporter.Export(doc)
	if err != nil {
		slog.Warn("export failed", "doc_id", doc.ID, "error", err)
		return
	}
	doc.ExportPath = relPath
	if err := p.deps.Catalog.UpdateDocument(ctx, doc); err != nil {
		slog.Warn("failed to record export path", "doc_id", doc.ID, "error", err)
	}
}

// runExtraction runs the extraction stage inside a bounded worker slot
// under the per-document extraction timeout. A blown budget is an
// extraction failure; only the caller's own cancellation propagates.
func (p *Pipeline) runExtraction(ctx context.Context, data []byte, filename string) (*extract.Extraction, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	exCtx := ctx
	if p.cfg.ExtractionTimeout > 0 {
		var cancel context.CancelFunc
		exCtx, cancel = context.WithTimeout(ctx, p.cfg.ExtractionTimeout)
		defer cancel()
	}

	extraction, err := p.deps.Extractor.Extract(exCtx, data, filename)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &extract.ExtractionError{
				Filename: filename,
				Err:      fmt.Errorf("extraction timed out after %s", p.cfg.ExtractionTimeout),
			}
		}
		return nil, err
	}
	return extraction, nil
}

// rollbackStores removes a document's partial store writes on a fresh
// context.
func (p *Pipeline) rollbackStores(docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	if err := p.deps.Vector.DeleteByDocID(ctx, p.collection, docID); err != nil {
		slog.Warn("rollback left vector entries behind", "doc_id", docID, "error", err)
	}
	p.deps.Sparse.RemoveByDoc(docID)
	if err := p.deps.Scorer.RemoveSummary(ctx, docID); err != nil {
		slog.Warn("rollback left a summary embedding behind", "doc_id", docID, "error", err)
	}
}

// markAborted best-effort records work cut short after admission. An
// existing row is flipped to aborted; a missing row is written only
// when the cause was a cancellation, so cancelled batch items stay
// visible without turning every transient failure into a document.
func (p *Pipeline) markAborted(doc *catalog.Document, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	err := p.deps.Catalog.UpdateStatus(ctx, doc.ID, catalog.StatusAborted)
	if err == nil {
		return
	}
	var nf *catalog.NotFoundError
	if !errors.As(err, &nf) {
		slog.Warn("failed to mark document aborted", "doc_id", doc.ID, "error", err)
		return
	}
	if !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return
	}
	doc.Status = catalog.StatusAborted
	if err := p.deps.Catalog.SaveDocument(ctx, doc); err != nil {
		slog.Warn("failed to record aborted document", "doc_id", doc.ID, "error", err)
	}
}

func (p *Pipeline) metrics() observability.Metrics {
	return observability.GetGlobalMetrics()
}

// retrievable drops ignored chunks. Ignore-marked content is neither
// indexed nor stored as chunk rows.
func retrievable(chunks []chunk.Chunk) []chunk.Chunk {
	out := chunks[:0]
	for _, ch := range chunks {
		if !ch.Ignored() {
			out = append(out, ch)
		}
	}
	return out
}

// resolveCreatedAt picks the document timestamp: the extractor's
// content timestamp wins, then the earliest enrichment date not in the
// future of the ingest, then the ingest time itself.
func resolveCreatedAt(item *extract.Item, enr *enrich.Enrichment, ingestedAt time.Time) time.Time {
	if !item.CreatedAt.IsZero() {
		return item.CreatedAt
	}
	var earliest time.Time
	for _, d := range enr.Dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil || t.After(ingestedAt) {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	if !earliest.IsZero() {
		return earliest
	}
	return ingestedAt
}

func chunkDocMeta(doc *catalog.Document) chunk.DocMeta {
	meta := chunk.DocMeta{
		DocID:         doc.ID,
		DocType:       doc.DocType,
		ContentHash:   doc.ContentHash,
		Title:         doc.Title,
		CreatedAt:     doc.CreatedAt,
		Quality:       doc.Quality,
		Novelty:       doc.Novelty,
		Actionability: doc.Actionability,
		Signalness:    doc.Signalness,
	}
	if enr := doc.Enrichment; enr != nil {
		meta.Topics = enr.Topics
		meta.Projects = enr.Projects
		meta.Places = enr.Places
	}
	return meta
}

func resultFor(doc *catalog.Document, bundle *scoring.Bundle) *Result {
	return &Result{
		DocID:         doc.ID,
		DocType:       doc.DocType,
		Title:         doc.Title,
		Status:        doc.Status,
		DoIndex:       doc.DoIndex,
		GateReason:    bundle.GateReason,
		Quality:       doc.Quality,
		Novelty:       doc.Novelty,
		Actionability: doc.Actionability,
		Signalness:    doc.Signalness,
		ChunkCount:    doc.ChunkCount,
		Degraded:      doc.Degraded,
		ExportPath:    doc.ExportPath,
		CostUSD:       doc.CostUSD,
		Enrichment:    doc.Enrichment,
	}
}

// mimeFor maps an extraction format to the stored MIME type.
func mimeFor(format extract.Format, data []byte) string {
	switch format {
	case extract.FormatPDF:
		return "application/pdf"
	case extract.FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case extract.FormatXlsx:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case extract.FormatPptx:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case extract.FormatImage:
		return http.DetectContentType(data)
	case extract.FormatHTML:
		return "text/html"
	case extract.FormatEmail:
		return "message/rfc822"
	case extract.FormatMarkdown:
		return "text/markdown"
	case extract.FormatChat, extract.FormatCode, extract.FormatText:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
