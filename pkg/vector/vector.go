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

// Package vector provides dense vector storage for chunk and summary
// embeddings. The default backend is chromem-go (embedded, optional file
// persistence); Qdrant and Pinecone back larger or managed deployments.
//
// Vectors are always computed upstream; no backend ever calls an embedding
// model itself.
package vector

import "context"

// Reserved metadata keys. Backends that have no first-class text or external
// id field carry them in the payload under these keys; they never appear in
// Item.Metadata or Match.Metadata.
const (
	payloadTextKey = "content"
	payloadIDKey   = "sift_id"
)

// MetaDocID is the metadata key that ties a stored vector back to its source
// document. Every chunk and summary vector carries it; DeleteByDocID filters
// on it.
const MetaDocID = "doc_id"

// Item is one vector to store, keyed by the caller's id (a chunk id or a
// document id for summaries).
type Item struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Match is one search hit. Score is the backend's cosine similarity. Vector
// is populated so callers can run diversity math without a second fetch.
type Match struct {
	ID       string
	Score    float32
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Provider is a dense vector store backend.
type Provider interface {
	// Name returns the backend name ("chromem", "qdrant", "pinecone").
	Name() string

	// CreateCollection ensures the named collection exists with the given
	// vector dimension. Idempotent.
	CreateCollection(ctx context.Context, collection string, dimension int) error

	// Upsert stores all items in one call, replacing any existing entries
	// with the same ids.
	Upsert(ctx context.Context, collection string, items []Item) error

	// Search returns the topK most similar items.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error)

	// SearchWithFilter restricts search to items whose metadata contains
	// every key/value pair in filter.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Match, error)

	// Get fetches items by id. Unknown ids are skipped, so the result may
	// be shorter than the request.
	Get(ctx context.Context, collection string, ids []string) ([]Item, error)

	// DeleteByIDs removes the listed items. Unknown ids are ignored.
	DeleteByIDs(ctx context.Context, collection string, ids []string) error

	// DeleteByDocID removes every item whose metadata doc_id matches.
	DeleteByDocID(ctx context.Context, collection string, docID string) error

	// Count returns the number of items in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close flushes and releases backend resources.
	Close() error
}
