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
	"errors"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the managed Pinecone backend.
type PineconeConfig struct {
	// APIKey is required for Pinecone authentication.
	APIKey string `yaml:"api_key"`

	// IndexName is the Pinecone index holding all collections. The index
	// must already exist; collections map to namespaces within it.
	IndexName string `yaml:"index_name"`

	// Namespace prefixes collection namespaces, keeping several
	// deployments apart in one index (optional).
	Namespace string `yaml:"namespace,omitempty"`
}

// PineconeProvider stores vectors in a managed Pinecone index. Each
// collection lives in its own namespace.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string
	namespace string

	mu    sync.Mutex
	host  string
	conns map[string]*pinecone.IndexConnection
}

// NewPineconeProvider creates the Pinecone backend.
func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index name is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeProvider{
		client:    client,
		indexName: cfg.IndexName,
		namespace: cfg.Namespace,
		conns:     make(map[string]*pinecone.IndexConnection),
	}, nil
}

// Name returns the provider name.
func (p *PineconeProvider) Name() string {
	return "pinecone"
}

func (p *PineconeProvider) namespaceFor(collection string) string {
	if p.namespace != "" {
		return p.namespace + "-" + collection
	}
	return collection
}

// indexConn returns a cached connection to the collection's namespace. The
// index host is resolved once and reused.
func (p *PineconeProvider) indexConn(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	namespace := p.namespaceFor(collection)

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[namespace]; ok {
		return conn, nil
	}

	if p.host == "" {
		index, err := p.client.DescribeIndex(ctx, p.indexName)
		if err != nil {
			return nil, fmt.Errorf("failed to describe index %q: %w", p.indexName, err)
		}
		p.host = index.Host
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      p.host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index %q: %w", p.indexName, err)
	}

	p.conns[namespace] = conn
	return conn, nil
}

// CreateCollection verifies the index exists and matches the vector
// dimension. Pinecone indexes are created out of band; namespaces appear on
// first write.
func (p *PineconeProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	index, err := p.client.DescribeIndex(ctx, p.indexName)
	if err != nil {
		return fmt.Errorf("index %q not reachable (create it via the Pinecone console or API): %w", p.indexName, err)
	}
	if index.Dimension != int32(dimension) {
		return fmt.Errorf("index %q has dimension %d, embedder produces %d", p.indexName, index.Dimension, dimension)
	}

	p.mu.Lock()
	p.host = index.Host
	p.mu.Unlock()
	return nil
}

// Upsert stores all items in one request.
func (p *PineconeProvider) Upsert(ctx context.Context, collection string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	conn, err := p.indexConn(ctx, collection)
	if err != nil {
		return err
	}

	vectors := make([]*pinecone.Vector, 0, len(items))
	for _, it := range items {
		fields := make(map[string]interface{}, len(it.Metadata)+1)
		for k, v := range it.Metadata {
			fields[k] = v
		}
		fields[payloadTextKey] = it.Text

		metadata, err := structpb.NewStruct(fields)
		if err != nil {
			return fmt.Errorf("failed to convert metadata for %q: %w", it.ID, err)
		}

		vectors = append(vectors, &pinecone.Vector{
			Id:       it.ID,
			Values:   it.Vector,
			Metadata: metadata,
		})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert %d vectors: %w", len(vectors), err)
	}
	return nil
}

// Search returns the topK most similar items.
func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

// SearchWithFilter combines similarity search with metadata filtering.
func (p *PineconeProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	conn, err := p.indexConn(ctx, collection)
	if err != nil {
		return nil, err
	}

	var metadataFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metadataFilter, err = pineconeFilter(filter)
		if err != nil {
			return nil, err
		}
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	out := make([]Match, 0, len(resp.Matches))
	for _, scored := range resp.Matches {
		if scored.Vector == nil {
			continue
		}
		meta, text := pineconeMetadata(scored.Vector.Metadata)
		out = append(out, Match{
			ID:       scored.Vector.Id,
			Score:    scored.Score,
			Text:     text,
			Vector:   scored.Vector.Values,
			Metadata: meta,
		})
	}
	return out, nil
}

// Get fetches items by id, skipping unknown ids.
func (p *PineconeProvider) Get(ctx context.Context, collection string, ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := p.indexConn(ctx, collection)
	if err != nil {
		return nil, err
	}

	resp, err := conn.FetchVectors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vectors: %w", err)
	}

	out := make([]Item, 0, len(resp.Vectors))
	for _, id := range ids {
		v, ok := resp.Vectors[id]
		if !ok || v == nil {
			continue
		}
		meta, text := pineconeMetadata(v.Metadata)
		out = append(out, Item{
			ID:       v.Id,
			Vector:   v.Values,
			Text:     text,
			Metadata: meta,
		})
	}
	return out, nil
}

// DeleteByIDs removes the listed items.
func (p *PineconeProvider) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := p.indexConn(ctx, collection)
	if err != nil {
		return err
	}

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// DeleteByDocID removes every item stored for the document.
func (p *PineconeProvider) DeleteByDocID(ctx context.Context, collection string, docID string) error {
	conn, err := p.indexConn(ctx, collection)
	if err != nil {
		return err
	}

	filter, err := pineconeFilter(map[string]string{MetaDocID: docID})
	if err != nil {
		return err
	}

	if err := conn.DeleteVectorsByFilter(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete by doc id: %w", err)
	}
	return nil
}

// Count returns the number of items in the collection's namespace.
func (p *PineconeProvider) Count(ctx context.Context, collection string) (int, error) {
	conn, err := p.indexConn(ctx, collection)
	if err != nil {
		return 0, err
	}

	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to describe index stats: %w", err)
	}

	summary, ok := stats.Namespaces[p.namespaceFor(collection)]
	if !ok || summary == nil {
		return 0, nil
	}
	return int(summary.VectorCount), nil
}

// Close closes all namespace connections.
func (p *PineconeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for namespace, conn := range p.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close namespace %q: %w", namespace, err))
		}
	}
	p.conns = make(map[string]*pinecone.IndexConnection)
	return errors.Join(errs...)
}

// pineconeFilter builds an equality metadata filter.
func pineconeFilter(filter map[string]string) (*pinecone.MetadataFilter, error) {
	fields := make(map[string]interface{}, len(filter))
	for k, v := range filter {
		fields[k] = v
	}
	mf, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to convert filter: %w", err)
	}
	return mf, nil
}

// pineconeMetadata splits stored metadata into caller metadata and text.
func pineconeMetadata(metadata *pinecone.Metadata) (map[string]string, string) {
	meta := make(map[string]string)
	text := ""
	if metadata == nil {
		return meta, text
	}
	for k, v := range metadata.AsMap() {
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if k == payloadTextKey {
			text = s
			continue
		}
		meta[k] = s
	}
	return meta, text
}

// Ensure PineconeProvider implements Provider.
var _ Provider = (*PineconeProvider)(nil)
