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

package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/chunk"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/dedup"
	"github.com/kadirpekel/sift/pkg/enrich"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/scoring"
	"github.com/kadirpekel/sift/pkg/sparse"
	"github.com/kadirpekel/sift/pkg/vector"
)

type stubExtractor struct {
	mu    sync.Mutex
	calls int
	fn    func(data []byte, filename string) (*extract.Extraction, error)
}

func (s *stubExtractor) Extract(ctx context.Context, data []byte, filename string) (*extract.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(data, filename)
	}
	return textExtraction(string(data)), nil
}

// textExtraction is the default single-item extraction of plain text.
func textExtraction(texts ...string) *extract.Extraction {
	ex := &extract.Extraction{Format: extract.FormatMarkdown, Extractor: "native"}
	for _, text := range texts {
		ex.Items = append(ex.Items, extract.Item{
			Text:     text,
			Blocks:   []extract.Block{{Kind: extract.BlockParagraph, Text: text}},
			TypeHint: "note",
		})
	}
	return ex
}

type stubEnricher struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, item *extract.Item) (*enrich.Enrichment, error)
}

func (s *stubEnricher) Enrich(ctx context.Context, item *extract.Item, filename string) (*enrich.Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, item)
	}
	return &enrich.Enrichment{
		Title:   "Test Document",
		Summary: "A short test document.",
		DocType: "note",
		Version: enrich.SchemaVersion,
		CostUSD: 0.001,
	}, nil
}

type stubScorer struct {
	mu       sync.Mutex
	bundle   *scoring.Bundle
	scoreErr error
	commits  []string
	removals []string
}

func (s *stubScorer) Score(ctx context.Context, docID string, item *extract.Item, enr *enrich.Enrichment) (*scoring.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.scoreErr != nil {
		return nil, s.scoreErr
	}
	if s.bundle != nil {
		cp := *s.bundle
		return &cp, nil
	}
	return &scoring.Bundle{Quality: 0.8, Novelty: 0.7, Actionability: 0.5, Signalness: 0.68, DoIndex: true}, nil
}

func (s *stubScorer) CommitSummary(ctx context.Context, docID, title string, bundle *scoring.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, docID)
	return nil
}

func (s *stubScorer) RemoveSummary(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removals = append(s.removals, docID)
	return nil
}

type memCatalog struct {
	mu         sync.Mutex
	docs       map[string]*catalog.Document
	chunks     map[string][]chunk.Chunk
	saveErr    error
	replaceErr error
	updates    int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		docs:   make(map[string]*catalog.Document),
		chunks: make(map[string][]chunk.Chunk),
	}
}

func (m *memCatalog) SaveDocument(_ context.Context, doc *catalog.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memCatalog) UpdateDocument(_ context.Context, doc *catalog.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return &catalog.NotFoundError{DocID: doc.ID}
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	m.updates++
	return nil
}

func (m *memCatalog) UpdateStatus(_ context.Context, docID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return &catalog.NotFoundError{DocID: docID}
	}
	doc.Status = status
	return nil
}

func (m *memCatalog) GetDocument(_ context.Context, docID string) (*catalog.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, &catalog.NotFoundError{DocID: docID}
	}
	cp := *doc
	return &cp, nil
}

func (m *memCatalog) ReplaceChunks(_ context.Context, docID string, chunks []chunk.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.chunks[docID] = append([]chunk.Chunk(nil), chunks...)
	return nil
}

func (m *memCatalog) Chunks(_ context.Context, docID string) ([]chunk.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chunk.Chunk(nil), m.chunks[docID]...), nil
}

func (m *memCatalog) DeleteChunks(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, docID)
	return nil
}

// byStatus returns the stored documents carrying the given status.
func (m *memCatalog) byStatus(status string) []*catalog.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*catalog.Document
	for _, doc := range m.docs {
		if doc.Status == status {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out
}

type stubVector struct {
	mu        sync.Mutex
	items     map[string]vector.Item
	upserts   int
	upsertErr error
	getErr    error
	deletes   []string
}

func newStubVector() *stubVector {
	return &stubVector{items: make(map[string]vector.Item)}
}

func (s *stubVector) Name() string { return "stub" }

func (s *stubVector) CreateCollection(context.Context, string, int) error { return nil }

func (s *stubVector) Upsert(_ context.Context, _ string, items []vector.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	for _, it := range items {
		s.items[it.ID] = it
	}
	return nil
}

func (s *stubVector) Search(context.Context, string, []float32, int) ([]vector.Match, error) {
	return nil, nil
}

func (s *stubVector) SearchWithFilter(context.Context, string, []float32, int, map[string]string) ([]vector.Match, error) {
	return nil, nil
}

func (s *stubVector) Get(_ context.Context, _ string, ids []string) ([]vector.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	var out []vector.Item
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *stubVector) DeleteByIDs(_ context.Context, _ string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

func (s *stubVector) DeleteByDocID(_ context.Context, _ string, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, docID)
	for id, it := range s.items {
		if it.Metadata[vector.MetaDocID] == docID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *stubVector) Count(context.Context, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *stubVector) Close() error { return nil }

// docItems returns the stored items belonging to docID.
func (s *stubVector) docItems(docID string) []vector.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vector.Item
	for _, it := range s.items {
		if it.Metadata[vector.MetaDocID] == docID {
			out = append(out, it)
		}
	}
	return out
}

type stubEmbedder struct {
	mu         sync.Mutex
	batchCalls int
	err        error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.batchCalls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (s *stubEmbedder) GetDimension() int    { return 3 }
func (s *stubEmbedder) GetModelName() string { return "stub-embed" }
func (s *stubEmbedder) Close() error         { return nil }

type stubExporter struct {
	mu      sync.Mutex
	exports []string
	removed []string
	err     error
	pathFn  func(doc *catalog.Document) string
}

func (s *stubExporter) Export(doc *catalog.Document) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports = append(s.exports, doc.ID)
	if s.pathFn != nil {
		return s.pathFn(doc), nil
	}
	return doc.ID + ".md", nil
}

func (s *stubExporter) Remove(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, relPath)
	return nil
}

type stubArchive struct {
	mu    sync.Mutex
	blobs map[string][]byte
	err   error
}

func newStubArchive() *stubArchive {
	return &stubArchive{blobs: make(map[string][]byte)}
}

func (s *stubArchive) Store(data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	s.mu.Lock()
	s.blobs[hash] = append([]byte(nil), data...)
	s.mu.Unlock()
	return hash, nil
}

func (s *stubArchive) Read(hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[hash]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

type testPipeline struct {
	*Pipeline
	extractor *stubExtractor
	enricher  *stubEnricher
	scorer    *stubScorer
	catalog   *memCatalog
	store     *stubVector
	embedder  *stubEmbedder
	sparseIx  *sparse.Index
	dedupIx   *dedup.Index
	exporter  *stubExporter
	archive   *stubArchive
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	cfg := config.IngestConfig{}
	cfg.SetDefaults()
	cfg.Workers = 4
	cfg.Chunking.Tokenizer = "chars"
	cfg.Retry.MaxRetries = 2

	tp := &testPipeline{
		extractor: &stubExtractor{},
		enricher:  &stubEnricher{},
		scorer:    &stubScorer{},
		catalog:   newMemCatalog(),
		store:     newStubVector(),
		embedder:  &stubEmbedder{},
		sparseIx:  sparse.NewIndex(),
		dedupIx:   dedup.NewIndex(cfg.Dedup),
		exporter:  &stubExporter{},
		archive:   newStubArchive(),
	}

	p, err := New(Deps{
		Extractor: tp.extractor,
		Dedup:     tp.dedupIx,
		Enricher:  tp.enricher,
		Scorer:    tp.scorer,
		Chunker:   chunk.New(cfg.Chunking),
		Embedder:  tp.embedder,
		Vector:    tp.store,
		Sparse:    tp.sparseIx,
		Catalog:   tp.catalog,
		Archive:   tp.archive,
		Exporter:  tp.exporter,
	}, cfg, "sift_chunks")
	require.NoError(t, err)

	// Tests never wait out real backoff delays.
	p.retry.sleep = func(context.Context, time.Duration) error { return nil }

	tp.Pipeline = p
	return tp
}

const sampleText = "Alpha kickoff notes. The team agreed on the rollout plan and the next review."

func TestIngestIndexesDocument(t *testing.T) {
	tp := newTestPipeline(t)

	results, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "notes/kickoff.md"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, catalog.StatusIndexed, res.Status)
	assert.True(t, res.DoIndex)
	assert.Equal(t, "Test Document", res.Title)
	assert.Equal(t, "note", res.DocType)
	assert.Greater(t, res.ChunkCount, 0)
	assert.Equal(t, res.DocID+".md", res.ExportPath)
	assert.InDelta(t, 0.001, res.CostUSD, 1e-9)

	doc, err := tp.catalog.GetDocument(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, dedup.Sign(sampleText, tp.cfg.Dedup.ShingleSize).Hash, doc.ContentHash)
	assert.Equal(t, "notes/kickoff.md", doc.Source)
	assert.Equal(t, "text/markdown", doc.MIME)
	assert.NotEmpty(t, doc.ArchiveHash)
	assert.Equal(t, res.ExportPath, doc.ExportPath)
	assert.False(t, doc.CreatedAt.IsZero())

	assert.Len(t, tp.store.docItems(res.DocID), res.ChunkCount)
	assert.Equal(t, res.ChunkCount, tp.sparseIx.Len())
	assert.Equal(t, []string{res.DocID}, tp.scorer.commits)
	assert.Equal(t, []string{res.DocID}, tp.exporter.exports)

	stored, err := tp.catalog.Chunks(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Len(t, stored, res.ChunkCount)
}

func TestIngestGatedOutDocument(t *testing.T) {
	tp := newTestPipeline(t)
	tp.scorer.bundle = &scoring.Bundle{
		Quality: 0.2, Novelty: 0.5, Actionability: 0.1, Signalness: 0.26,
		DoIndex: false, GateReason: "quality 0.20 below note floor 0.30",
	}

	results, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "low.md"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, catalog.StatusArchived, res.Status)
	assert.False(t, res.DoIndex)
	assert.Equal(t, "quality 0.20 below note floor 0.30", res.GateReason)

	// Nothing indexed, but the document is fully recorded and exported.
	assert.Empty(t, tp.store.docItems(res.DocID))
	assert.Zero(t, tp.sparseIx.Len())
	assert.Zero(t, tp.embedder.batchCalls)
	assert.Equal(t, []string{res.DocID}, tp.exporter.exports)

	stored, err := tp.catalog.Chunks(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestIngestDuplicateRejected(t *testing.T) {
	tp := newTestPipeline(t)

	first, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md"})
	require.NoError(t, err)
	require.Len(t, first, 1)

	results, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "b.md"})
	assert.Empty(t, results)

	var dup *dedup.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.False(t, dup.Near)
	assert.Equal(t, first[0].DocID, dup.DocID)

	// No second catalog row.
	assert.Len(t, tp.catalog.byStatus(catalog.StatusIndexed), 1)
}

func TestIngestForceReindexReplacesDuplicate(t *testing.T) {
	tp := newTestPipeline(t)

	first, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md"})
	require.NoError(t, err)

	second, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md", ForceReindex: true})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].DocID, second[0].Replaced)
	assert.NotEqual(t, first[0].DocID, second[0].DocID)

	// The incumbent is deleted, artifact included; the successor owns
	// the fingerprint now.
	old, err := tp.catalog.GetDocument(context.Background(), first[0].DocID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDeleted, old.Status)
	assert.Contains(t, tp.exporter.removed, first[0].ExportPath)
	assert.Empty(t, tp.store.docItems(first[0].DocID))
	assert.Len(t, tp.store.docItems(second[0].DocID), second[0].ChunkCount)

	_, err = tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md"})
	var dup *dedup.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, second[0].DocID, dup.DocID)
}

func TestIngestNearDuplicate(t *testing.T) {
	tp := newTestPipeline(t)

	// A registered fingerprint one bit away is a near match.
	sig := dedup.Sign(sampleText, tp.cfg.Dedup.ShingleSize)
	tp.dedupIx.Add(dedup.Signature{Hash: "other-content", Fingerprint: sig.Fingerprint ^ 1}, "prior-doc")

	results, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md"})
	assert.Empty(t, results)
	var dup *dedup.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Near)
	assert.Equal(t, "prior-doc", dup.DocID)

	// ForceReindex does not bypass near matches.
	_, err = tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md", ForceReindex: true})
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Near)

	results, err = tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md", OverrideNearDup: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIngestRollsBackOnChunkSaveFailure(t *testing.T) {
	tp := newTestPipeline(t)
	tp.catalog.replaceErr = errors.New("disk full")

	results, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md"})
	assert.Empty(t, results)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "chunk save", serr.Op)

	// Partial writes are gone and the catalog row is flipped to
	// aborted; the fingerprint is free again.
	assert.Empty(t, tp.store.items)
	assert.Zero(t, tp.sparseIx.Len())
	assert.Zero(t, tp.dedupIx.Len())
	assert.Len(t, tp.catalog.byStatus(catalog.StatusAborted), 1)

	tp.catalog.replaceErr = nil
	results, err = tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIngestCancellationMarksAborted(t *testing.T) {
	tp := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	tp.enricher.fn = func(context.Context, *extract.Item) (*enrich.Enrichment, error) {
		cancel()
		return nil, context.Canceled
	}

	results, err := tp.Ingest(ctx, []byte(sampleText), Options{Filename: "a.md"})
	assert.Empty(t, results)
	require.ErrorIs(t, err, context.Canceled)

	aborted := tp.catalog.byStatus(catalog.StatusAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, "a.md", aborted[0].Source)
	assert.NotEmpty(t, aborted[0].ContentHash)

	assert.Zero(t, tp.dedupIx.Len())
	assert.Empty(t, tp.store.items)
	assert.Zero(t, tp.sparseIx.Len())
}

func TestIngestMultiItem(t *testing.T) {
	tp := newTestPipeline(t)
	dayOne := "2026-03-01 chat: agreed to ship the beta."
	dayTwo := "2026-03-02 chat: follow-up review of the rollout."
	tp.extractor.fn = func([]byte, string) (*extract.Extraction, error) {
		return textExtraction(dayOne, dayTwo), nil
	}

	results, err := tp.Ingest(context.Background(), []byte("chat export"), Options{Filename: "chat.txt"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].DocID, results[1].DocID)
	assert.Len(t, tp.catalog.byStatus(catalog.StatusIndexed), 2)

	// Re-ingesting the export with one new day lands only the new day.
	dayThree := "2026-03-03 chat: closed out the launch checklist."
	tp.extractor.fn = func([]byte, string) (*extract.Extraction, error) {
		return textExtraction(dayOne, dayTwo, dayThree), nil
	}
	results, err = tp.Ingest(context.Background(), []byte("chat export v2"), Options{Filename: "chat.txt"})
	require.Len(t, results, 1)

	var dup *dedup.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Len(t, tp.catalog.byStatus(catalog.StatusIndexed), 3)
}

func TestIngestRejectsEmptyAndOversizeInput(t *testing.T) {
	tp := newTestPipeline(t)
	tp.cfg.MaxFileSize = 16

	var inputErr *InputError
	_, err := tp.Ingest(context.Background(), nil, Options{})
	require.ErrorAs(t, err, &inputErr)

	_, err = tp.Ingest(context.Background(), []byte("this input is longer than sixteen bytes"), Options{})
	require.ErrorAs(t, err, &inputErr)
	assert.Zero(t, tp.extractor.calls)
}

func TestIngestExtractionTimeout(t *testing.T) {
	tp := newTestPipeline(t)
	tp.cfg.ExtractionTimeout = 5 * time.Millisecond
	tp.extractor.fn = func([]byte, string) (*extract.Extraction, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, context.DeadlineExceeded
	}

	_, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "slow.pdf"})
	var exErr *extract.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "slow.pdf", exErr.Filename)
}

func TestIngestExportFailureIsNotFatal(t *testing.T) {
	tp := newTestPipeline(t)
	tp.exporter.err = errors.New("vault unwritable")

	results, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].ExportPath)
	assert.Equal(t, catalog.StatusIndexed, results[0].Status)
}

func TestIngestSkipExport(t *testing.T) {
	tp := newTestPipeline(t)

	results, err := tp.Ingest(context.Background(), []byte(sampleText), Options{Filename: "a.md", SkipExport: true})
	require.NoError(t, err)
	assert.Empty(t, tp.exporter.exports)
	assert.Empty(t, results[0].ExportPath)
}

func TestResolveCreatedAt(t *testing.T) {
	ingestedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	extracted := time.Date(2025, 12, 24, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		item extract.Item
		enr  enrich.Enrichment
		want time.Time
	}{
		{
			name: "extractor timestamp wins",
			item: extract.Item{CreatedAt: extracted},
			enr:  enrich.Enrichment{Dates: []string{"2026-01-01"}},
			want: extracted,
		},
		{
			name: "earliest past enrichment date",
			enr:  enrich.Enrichment{Dates: []string{"2026-03-05", "2026-02-01", "bad-date"}},
			want: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "future dates are not creation times",
			enr:  enrich.Enrichment{Dates: []string{"2026-04-01"}},
			want: ingestedAt,
		},
		{
			name: "fallback to ingest time",
			want: ingestedAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveCreatedAt(&tt.item, &tt.enr, ingestedAt)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMimeFor(t *testing.T) {
	tests := []struct {
		format extract.Format
		want   string
	}{
		{extract.FormatPDF, "application/pdf"},
		{extract.FormatEmail, "message/rfc822"},
		{extract.FormatMarkdown, "text/markdown"},
		{extract.FormatChat, "text/plain"},
		{extract.FormatUnknown, "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mimeFor(tt.format, nil), "format %s", tt.format)
	}
}

func TestIngestFiles(t *testing.T) {
	tp := newTestPipeline(t)
	dir := t.TempDir()

	paths := make([]string, 3)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("doc-%d.md", i))
		content := fmt.Sprintf("Document %d body with its own distinct content.", i)
		require.NoError(t, os.WriteFile(paths[i], []byte(content), 0o644))
	}
	missing := filepath.Join(dir, "missing.md")

	results := tp.IngestFiles(context.Background(), append(paths, missing), Options{})
	require.Len(t, results, 4)

	for i := 0; i < 3; i++ {
		require.NoError(t, results[i].Err, "file %d", i)
		assert.Equal(t, paths[i], results[i].Path)
		require.Len(t, results[i].Results, 1)
		doc, err := tp.catalog.GetDocument(context.Background(), results[i].Results[0].DocID)
		require.NoError(t, err)
		assert.Equal(t, paths[i], doc.Source)
	}

	var inputErr *InputError
	require.ErrorAs(t, results[3].Err, &inputErr)
	assert.Empty(t, results[3].Results)
}

func TestIngestFilesCancelled(t *testing.T) {
	tp := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := tp.IngestFiles(ctx, []string{"a.md", "b.md"}, Options{})
	require.Len(t, results, 2)
	for _, fr := range results {
		assert.ErrorIs(t, fr.Err, context.Canceled)
		assert.Empty(t, fr.Results)
	}
}
