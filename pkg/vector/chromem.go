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

package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	// PersistPath is a directory for file persistence. Empty keeps the
	// store purely in memory.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress enables gzip compression of the persisted file.
	Compress bool `yaml:"compress,omitempty"`
}

// ChromemProvider stores vectors in an embedded chromem-go database. The
// whole database is exported to a single gob file after each mutation and
// reloaded on startup.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	embeddingFunc chromem.EmbeddingFunc
}

// NewChromemProvider creates the embedded backend, loading any previously
// persisted database from cfg.PersistPath.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	db := chromem.NewDB()

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}

		dbPath := chromemFile(cfg.PersistPath, cfg.Compress)
		if _, err := os.Stat(dbPath); err == nil {
			if err := db.ImportFromFile(dbPath, ""); err != nil {
				slog.Warn("Failed to load persisted vector database, starting empty",
					"path", dbPath,
					"error", err)
				db = chromem.NewDB()
			} else {
				slog.Info("Loaded vector database", "path", dbPath)
			}
		}
	}

	// Vectors arrive pre-computed; chromem must never embed on its own.
	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called, but vectors are pre-computed")
	}

	return &ChromemProvider{
		db:            db,
		persistPath:   cfg.PersistPath,
		compress:      cfg.Compress,
		collections:   make(map[string]*chromem.Collection),
		embeddingFunc: identityEmbed,
	}, nil
}

// Name returns the provider name.
func (p *ChromemProvider) Name() string {
	return "chromem"
}

func chromemFile(dir string, compress bool) string {
	name := "vectors.gob"
	if compress {
		name += ".gz"
	}
	return filepath.Join(dir, name)
}

// getCollection gets or creates a collection.
func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock.
	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, p.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}

	p.collections[name] = col
	return col, nil
}

// CreateCollection ensures the collection exists. chromem collections are
// dimensionless, so dimension is ignored.
func (p *ChromemProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	_, err := p.getCollection(collection)
	return err
}

// Upsert stores all items with their pre-computed vectors.
func (p *ChromemProvider) Upsert(ctx context.Context, collection string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(items))
	for _, it := range items {
		docs = append(docs, chromem.Document{
			ID:        it.ID,
			Content:   it.Text,
			Metadata:  it.Metadata,
			Embedding: it.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist vector database after upsert", "error", err)
	}
	return nil
}

// Search returns the topK most similar items.
func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

// SearchWithFilter combines similarity search with metadata filtering.
func (p *ChromemProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than stored.
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Text:     r.Content,
			Vector:   r.Embedding,
			Metadata: r.Metadata,
		})
	}
	return out, nil
}

// Get fetches items by id, skipping unknown ids.
func (p *ChromemProvider) Get(ctx context.Context, collection string, ids []string) ([]Item, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			continue // unknown id
		}
		out = append(out, Item{
			ID:       doc.ID,
			Vector:   doc.Embedding,
			Text:     doc.Content,
			Metadata: doc.Metadata,
		})
	}
	return out, nil
}

// DeleteByIDs removes the listed items.
func (p *ChromemProvider) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist vector database after delete", "error", err)
	}
	return nil
}

// DeleteByDocID removes every item stored for the document.
func (p *ChromemProvider) DeleteByDocID(ctx context.Context, collection string, docID string) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, map[string]string{MetaDocID: docID}, nil); err != nil {
		return fmt.Errorf("failed to delete by doc id: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist vector database after delete", "error", err)
	}
	return nil
}

// Count returns the number of items in the collection.
func (p *ChromemProvider) Count(ctx context.Context, collection string) (int, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close persists the database a final time.
func (p *ChromemProvider) Close() error {
	return p.persist()
}

// persist exports the database to disk if persistence is enabled.
func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}

	dbPath := chromemFile(p.persistPath, p.compress)
	if err := p.db.ExportToFile(dbPath, p.compress, ""); err != nil {
		return fmt.Errorf("failed to persist vector database: %w", err)
	}
	return nil
}

// Ensure ChromemProvider implements Provider.
var _ Provider = (*ChromemProvider)(nil)
