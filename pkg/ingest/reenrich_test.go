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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/enrich"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/scoring"
)

// ingestOne runs one successful ingest and returns its result.
func ingestOne(t *testing.T, tp *testPipeline, text string) *Result {
	t.Helper()
	results, err := tp.Ingest(context.Background(), []byte(text), Options{Filename: "doc.md"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestReenrichReusesStoredVectors(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)
	require.Equal(t, 1, tp.embedder.batchCalls)

	before, err := tp.catalog.GetDocument(context.Background(), res.DocID)
	require.NoError(t, err)

	tp.enricher.fn = func(context.Context, *extract.Item) (*enrich.Enrichment, error) {
		return &enrich.Enrichment{
			Title:   "Revised Title",
			Summary: "Revised summary.",
			DocType: "note",
			Version: enrich.SchemaVersion + 1,
			CostUSD: 0.002,
		}, nil
	}

	updated, err := tp.Reenrich(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, res.DocID, updated.DocID)
	assert.Equal(t, "Revised Title", updated.Title)
	assert.InDelta(t, 0.003, updated.CostUSD, 1e-9)

	// Unchanged chunk text means no second embedding call.
	assert.Equal(t, 1, tp.embedder.batchCalls)

	after, err := tp.catalog.GetDocument(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, before.ContentHash, after.ContentHash)
	assert.Equal(t, before.Fingerprint, after.Fingerprint)
	assert.Equal(t, enrich.SchemaVersion+1, after.EnrichmentVersion)

	// The index entries carry the revised metadata.
	items := tp.store.docItems(res.DocID)
	require.NotEmpty(t, items)
	for _, it := range items {
		assert.Equal(t, "Revised Title", it.Metadata["title"])
	}
}

func TestReenrichReembedsWhenVectorFetchFails(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)
	require.Equal(t, 1, tp.embedder.batchCalls)

	tp.store.getErr = errors.New("get not supported")

	_, err := tp.Reenrich(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, 2, tp.embedder.batchCalls)
	assert.NotEmpty(t, tp.store.docItems(res.DocID))
}

func TestReenrichDemotesDocument(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)
	require.Equal(t, catalog.StatusIndexed, res.Status)

	tp.scorer.bundle = &scoring.Bundle{
		Quality: 0.3, Novelty: 0.2, Actionability: 0.1, Signalness: 0.24,
		DoIndex: false, GateReason: "signalness dropped below floor",
	}

	updated, err := tp.Reenrich(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusArchived, updated.Status)
	assert.Equal(t, "signalness dropped below floor", updated.GateReason)

	// Out of both indexes, chunk rows retained for a later promotion.
	assert.Empty(t, tp.store.docItems(res.DocID))
	assert.Zero(t, tp.sparseIx.Len())
	stored, err := tp.catalog.Chunks(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestReenrichPromotesDocument(t *testing.T) {
	tp := newTestPipeline(t)
	tp.scorer.bundle = &scoring.Bundle{
		Quality: 0.3, Novelty: 0.2, Actionability: 0.1, Signalness: 0.24, DoIndex: false,
	}
	res := ingestOne(t, tp, sampleText)
	require.Equal(t, catalog.StatusArchived, res.Status)
	require.Zero(t, tp.embedder.batchCalls)

	tp.scorer.bundle = &scoring.Bundle{
		Quality: 0.9, Novelty: 0.8, Actionability: 0.6, Signalness: 0.79, DoIndex: true,
	}

	updated, err := tp.Reenrich(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusIndexed, updated.Status)
	assert.Equal(t, 1, tp.embedder.batchCalls)
	assert.Len(t, tp.store.docItems(res.DocID), updated.ChunkCount)
	assert.Equal(t, updated.ChunkCount, tp.sparseIx.Len())
}

func TestReenrichFallsBackToCatalogChunks(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)

	// No archive: the item is rebuilt from stored chunk text.
	tp.Pipeline.deps.Archive = nil

	var enriched string
	tp.enricher.fn = func(_ context.Context, item *extract.Item) (*enrich.Enrichment, error) {
		enriched = item.Text
		return &enrich.Enrichment{Title: "Rebuilt", DocType: "note", Version: enrich.SchemaVersion}, nil
	}

	updated, err := tp.Reenrich(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, "Rebuilt", updated.Title)
	assert.Contains(t, enriched, "Alpha kickoff notes")
}

func TestReenrichRejectsDeletedDocument(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)
	require.NoError(t, tp.Remove(context.Background(), res.DocID, false))

	var inputErr *InputError
	_, err := tp.Reenrich(context.Background(), res.DocID)
	require.ErrorAs(t, err, &inputErr)
}

func TestReenrichUnknownDocument(t *testing.T) {
	tp := newTestPipeline(t)

	var nf *catalog.NotFoundError
	_, err := tp.Reenrich(context.Background(), "no-such-doc")
	require.ErrorAs(t, err, &nf)
}

func TestReenrichMovesArtifactOnTitleChange(t *testing.T) {
	tp := newTestPipeline(t)
	tp.exporter.pathFn = func(doc *catalog.Document) string {
		return doc.Title + ".md"
	}
	res := ingestOne(t, tp, sampleText)
	require.Equal(t, "Test Document.md", res.ExportPath)

	tp.enricher.fn = func(context.Context, *extract.Item) (*enrich.Enrichment, error) {
		return &enrich.Enrichment{Title: "Renamed", DocType: "note", Version: enrich.SchemaVersion}, nil
	}

	updated, err := tp.Reenrich(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed.md", updated.ExportPath)
	assert.Contains(t, tp.exporter.removed, "Test Document.md")

	doc, err := tp.catalog.GetDocument(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed.md", doc.ExportPath)
}

func TestRemoveDeletesDocument(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)

	require.NoError(t, tp.Remove(context.Background(), res.DocID, false))

	doc, err := tp.catalog.GetDocument(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDeleted, doc.Status)

	assert.Empty(t, tp.store.docItems(res.DocID))
	assert.Zero(t, tp.sparseIx.Len())
	assert.Zero(t, tp.dedupIx.Len())
	assert.Contains(t, tp.scorer.removals, res.DocID)

	stored, err := tp.catalog.Chunks(context.Background(), res.DocID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	// The artifact survives unless removal is requested.
	assert.Empty(t, tp.exporter.removed)

	// The content is admissible again under a new id.
	again := ingestOne(t, tp, sampleText)
	assert.NotEqual(t, res.DocID, again.DocID)
}

func TestRemoveIsNotRepeatable(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)

	require.NoError(t, tp.Remove(context.Background(), res.DocID, false))

	var nf *catalog.NotFoundError
	err := tp.Remove(context.Background(), res.DocID, false)
	require.ErrorAs(t, err, &nf)
}

func TestRemoveWithExportArtifact(t *testing.T) {
	tp := newTestPipeline(t)
	res := ingestOne(t, tp, sampleText)
	require.NotEmpty(t, res.ExportPath)

	require.NoError(t, tp.Remove(context.Background(), res.DocID, true))
	assert.Equal(t, []string{res.ExportPath}, tp.exporter.removed)
}

func TestRemoveUnknownDocument(t *testing.T) {
	tp := newTestPipeline(t)

	var nf *catalog.NotFoundError
	err := tp.Remove(context.Background(), "no-such-doc", false)
	require.ErrorAs(t, err, &nf)
}
