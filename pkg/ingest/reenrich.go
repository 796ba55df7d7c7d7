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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/chunk"
	"github.com/kadirpekel/sift/pkg/dedup"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/sparse"
	"github.com/kadirpekel/sift/pkg/vector"
)

// Reenrich reruns enrichment, scoring, chunking, and export for a
// stored document, reusing stored chunk vectors where the chunk text
// is unchanged. The document keeps its identity: id, content hash,
// fingerprint, and created_at are stable across re-enrichment. Cost
// accumulates on the document.
func (p *Pipeline) Reenrich(ctx context.Context, docID string) (*Result, error) {
	unlock := p.locks.lock(docID)
	defer unlock()

	doc, err := p.deps.Catalog.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != catalog.StatusIndexed && doc.Status != catalog.StatusArchived {
		return nil, &InputError{Reason: fmt.Sprintf("document %s is %s, not re-enrichable", docID, doc.Status)}
	}
	wasIndexed := doc.Status == catalog.StatusIndexed

	item, err := p.rebuildItem(ctx, doc)
	if err != nil {
		return nil, err
	}

	enr, err := p.deps.Enricher.Enrich(ctx, item, doc.Source)
	if err != nil {
		return nil, err
	}
	bundle, err := p.deps.Scorer.Score(ctx, docID, item, enr)
	if err != nil {
		return nil, err
	}

	chunks := retrievable(p.deps.Chunker.Split(docID, item))

	doc.DocType = enr.DocType
	doc.Title = enr.Title
	doc.Summary = enr.Summary
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
	doc.CostUSD += enr.CostUSD

	switch {
	case doc.DoIndex:
		if err := p.reindexChunks(ctx, doc, chunks, wasIndexed); err != nil {
			return nil, err
		}
	case wasIndexed:
		// Demoted by the new scores: pull the document out of the
		// indexes, keeping the catalog record and chunk rows.
		if err := p.retry.do(ctx, "vector delete", func() error {
			return p.deps.Vector.DeleteByDocID(ctx, p.collection, docID)
		}); err != nil {
			return nil, err
		}
		p.deps.Sparse.RemoveByDoc(docID)
	}

	if err := p.retry.do(ctx, "catalog update", func() error {
		return p.deps.Catalog.UpdateDocument(ctx, doc)
	}); err != nil {
		return nil, err
	}
	if err := p.retry.do(ctx, "chunk save", func() error {
		return p.deps.Catalog.ReplaceChunks(ctx, docID, chunks)
	}); err != nil {
		return nil, err
	}

	if err := p.deps.Scorer.CommitSummary(ctx, docID, doc.Title, bundle); err != nil {
		slog.Warn("failed to store summary embedding", "doc_id", docID, "error", err)
	}

	p.reexport(ctx, doc)
	return resultFor(doc, bundle), nil
}

// reexport rewrites the artifact, dropping the old file when a changed
// title moved the path.
func (p *Pipeline) reexport(ctx context.Context, doc *catalog.Document) {
	if p.deps.Exporter == nil {
		return
	}
	oldPath := doc.ExportPath
	relPath, err := p.deps.Exporter.Export(doc)
	if err != nil {
		slog.Warn("export failed", "doc_id", doc.ID, "error", err)
		return
	}
	if oldPath != "" && oldPath != relPath {
		if err := p.deps.Exporter.Remove(oldPath); err != nil {
			slog.Warn("failed to remove superseded artifact", "doc_id", doc.ID, "path", oldPath, "error", err)
		}
	}
	doc.ExportPath = relPath
	if err := p.deps.Catalog.UpdateDocument(ctx, doc); err != nil {
		slog.Warn("failed to record export path", "doc_id", doc.ID, "error", err)
	}
}

// reindexChunks rewrites a document's index entries, reusing stored
// vectors for chunks whose text is unchanged so re-enrichment does not
// pay to re-embed stable content.
func (p *Pipeline) reindexChunks(ctx context.Context, doc *catalog.Document, chunks []chunk.Chunk, wasIndexed bool) error {
	stored := make(map[string]vector.Item)
	if wasIndexed && len(chunks) > 0 {
		ids := make([]string, len(chunks))
		for i := range chunks {
			ids[i] = chunks[i].ID
		}
		items, err := p.deps.Vector.Get(ctx, p.collection, ids)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("failed to load stored vectors, re-embedding all chunks", "doc_id", doc.ID, "error", err)
		}
		for _, it := range items {
			stored[it.ID] = it
		}
	}

	vectors := make([][]float32, len(chunks))
	var toEmbed []int
	for i := range chunks {
		if it, ok := stored[chunks[i].ID]; ok && it.Text == chunks[i].Text && len(it.Vector) > 0 {
			vectors[i] = it.Vector
			continue
		}
		toEmbed = append(toEmbed, i)
	}

	if len(toEmbed) > 0 {
		texts := make([]string, len(toEmbed))
		for j, i := range toEmbed {
			texts[j] = chunks[i].Text
		}
		var fresh [][]float32
		if err := p.retry.do(ctx, "embed", func() error {
			var embErr error
			fresh, embErr = p.deps.Embedder.EmbedBatch(ctx, texts)
			return embErr
		}); err != nil {
			return err
		}
		if len(fresh) != len(toEmbed) {
			return &StorageError{Op: "embed", Err: fmt.Errorf(
				"got %d vectors for %d chunks", len(fresh), len(toEmbed))}
		}
		for j, i := range toEmbed {
			vectors[i] = fresh[j]
		}
	}

	// Old entries go first so renamed or dropped chunk ids do not
	// linger in the indexes.
	if err := p.retry.do(ctx, "vector delete", func() error {
		return p.deps.Vector.DeleteByDocID(ctx, p.collection, doc.ID)
	}); err != nil {
		return err
	}
	p.deps.Sparse.RemoveByDoc(doc.ID)

	if len(chunks) == 0 {
		return nil
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

	start := time.Now()
	if err := p.retry.do(ctx, "vector upsert", func() error {
		return p.deps.Vector.Upsert(ctx, p.collection, items)
	}); err != nil {
		return err
	}
	p.metrics().RecordVectorUpsert(ctx, time.Since(start))

	entries := make([]sparse.Entry, len(chunks))
	for i := range chunks {
		entries[i] = sparse.Entry{ChunkID: chunks[i].ID, Text: chunks[i].Text}
	}
	p.deps.Sparse.AddBatch(doc.ID, entries)
	return nil
}

// rebuildItem reconstructs the extraction item for a stored document,
// preferring a fresh extraction of the archived original and falling
// back to the catalog's chunk text.
func (p *Pipeline) rebuildItem(ctx context.Context, doc *catalog.Document) (*extract.Item, error) {
	if p.deps.Archive != nil && doc.ArchiveHash != "" {
		item, err := p.reextract(ctx, doc)
		if err == nil {
			return item, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("archive re-extraction failed, using catalog chunks", "doc_id", doc.ID, "error", err)
	}
	return p.itemFromChunks(ctx, doc)
}

func (p *Pipeline) reextract(ctx context.Context, doc *catalog.Document) (*extract.Item, error) {
	data, err := p.deps.Archive.Read(doc.ArchiveHash)
	if err != nil {
		return nil, err
	}
	extraction, err := p.runExtraction(ctx, data, doc.Source)
	if err != nil {
		return nil, err
	}
	// Multi-item sources: pick the item this document came from.
	for i := range extraction.Items {
		item := &extraction.Items[i]
		if dedup.Sign(item.Text, p.cfg.Dedup.ShingleSize).Hash == doc.ContentHash {
			return item, nil
		}
	}
	return nil, fmt.Errorf("no archived item matches content hash %s", doc.ContentHash)
}

// itemFromChunks rebuilds an item from stored chunk text. Chunk text is
// already rendered, so structure beyond section headings is not
// reconstructed.
func (p *Pipeline) itemFromChunks(ctx context.Context, doc *catalog.Document) (*extract.Item, error) {
	chunks, err := p.deps.Catalog.Chunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, &InputError{Reason: fmt.Sprintf("document %s has no stored text to re-enrich", doc.ID)}
	}

	item := &extract.Item{
		TypeHint:  doc.DocType,
		Title:     doc.Title,
		CreatedAt: doc.CreatedAt,
	}
	seen := make(map[string]bool)
	parts := make([]string, 0, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		if title := ch.SectionTitle(); title != "" && !seen[title] {
			seen[title] = true
			item.Blocks = append(item.Blocks, extract.Block{
				Kind:  extract.BlockHeading,
				Level: len(ch.SectionPath),
				Text:  title,
			})
		}
		item.Blocks = append(item.Blocks, extract.Block{
			Kind: extract.BlockParagraph,
			Text: ch.Text,
		})
		parts = append(parts, ch.Text)
	}
	item.Text = strings.Join(parts, "\n\n")
	return item, nil
}
