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

	"github.com/kadirpekel/sift/pkg/catalog"
)

// Remove deletes a document: vector entries, sparse entries, the dedup
// fingerprint, the summary embedding, and the chunk rows go away, and
// the catalog row is kept with status deleted so the id stays burned.
// The exported artifact is removed only when removeExport is set; the
// vault is otherwise treated as immutable history.
func (p *Pipeline) Remove(ctx context.Context, docID string, removeExport bool) error {
	unlock := p.locks.lock(docID)
	defer unlock()

	doc, err := p.deps.Catalog.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Status == catalog.StatusDeleted {
		return &catalog.NotFoundError{DocID: docID}
	}

	if err := p.retry.do(ctx, "vector delete", func() error {
		return p.deps.Vector.DeleteByDocID(ctx, p.collection, docID)
	}); err != nil {
		return err
	}
	p.deps.Sparse.RemoveByDoc(docID)
	p.deps.Dedup.Remove(docID)
	if err := p.deps.Scorer.RemoveSummary(ctx, docID); err != nil {
		slog.Warn("failed to remove summary embedding", "doc_id", docID, "error", err)
	}

	if err := p.retry.do(ctx, "catalog status", func() error {
		return p.deps.Catalog.UpdateStatus(ctx, docID, catalog.StatusDeleted)
	}); err != nil {
		return err
	}
	if err := p.retry.do(ctx, "chunk delete", func() error {
		return p.deps.Catalog.DeleteChunks(ctx, docID)
	}); err != nil {
		return err
	}

	if removeExport && p.deps.Exporter != nil && doc.ExportPath != "" {
		if err := p.deps.Exporter.Remove(doc.ExportPath); err != nil {
			return fmt.Errorf("failed to remove export artifact: %w", err)
		}
	}
	return nil
}
