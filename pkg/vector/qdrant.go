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
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// QdrantProvider stores vectors in a Qdrant server over gRPC.
type QdrantProvider struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrantProvider connects to a Qdrant server.
func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334 // qdrant gRPC port
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *QdrantProvider) Name() string {
	return "qdrant"
}

// CreateCollection ensures the collection exists with cosine distance.
func (p *QdrantProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", collection, err)
	}
	if exists {
		return nil
	}

	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", collection, err)
	}
	return nil
}

// Upsert stores all items in one request.
func (p *QdrantProvider) Upsert(ctx context.Context, collection string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(items))
	for _, it := range items {
		payload := make(map[string]*qdrant.Value, len(it.Metadata)+2)
		for k, v := range it.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}
		payload[payloadTextKey] = qdrant.NewValueString(it.Text)
		payload[payloadIDKey] = qdrant.NewValueString(it.ID)

		points = append(points, &qdrant.PointStruct{
			Id:      qdrantPointID(it.ID),
			Vectors: qdrant.NewVectors(it.Vector...),
			Payload: payload,
		})
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search returns the topK most similar items.
func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

// SearchWithFilter combines similarity search with metadata filtering.
func (p *QdrantProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	searchRequest := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if len(filter) > 0 {
		searchRequest.Filter = buildQdrantFilter(filter)
	}

	searchResult, err := p.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	out := make([]Match, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		meta, text, extID := decodeQdrantPayload(point.Payload)
		if extID == "" {
			extID = qdrantIDString(point.Id)
		}
		out = append(out, Match{
			ID:       extID,
			Score:    point.Score,
			Text:     text,
			Vector:   qdrantDenseVector(point.Vectors),
			Metadata: meta,
		})
	}
	return out, nil
}

// Get fetches items by id, skipping unknown ids.
func (p *QdrantProvider) Get(ctx context.Context, collection string, ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrantPointID(id))
	}

	points, err := p.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}

	out := make([]Item, 0, len(points))
	for _, point := range points {
		meta, text, extID := decodeQdrantPayload(point.Payload)
		if extID == "" {
			extID = qdrantIDString(point.Id)
		}
		out = append(out, Item{
			ID:       extID,
			Vector:   qdrantDenseVector(point.Vectors),
			Text:     text,
			Metadata: meta,
		})
	}
	return out, nil
}

// DeleteByIDs removes the listed items.
func (p *QdrantProvider) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrantPointID(id))
	}

	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// DeleteByDocID removes every item stored for the document.
func (p *QdrantProvider) DeleteByDocID(ctx context.Context, collection string, docID string) error {
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: buildQdrantFilter(map[string]string{MetaDocID: docID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by doc id: %w", err)
	}
	return nil
}

// Count returns the number of items in the collection.
func (p *QdrantProvider) Count(ctx context.Context, collection string) (int, error) {
	n, err := p.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

// qdrantPointID maps an external id to a Qdrant point id. Qdrant only
// accepts UUIDs or integers, so non-UUID ids (chunk ids carry a ":{ordinal}"
// suffix) become a deterministic UUIDv5; the original id rides along in the
// payload.
func qdrantPointID(id string) *qdrant.PointId {
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewID(u.String())
	}
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func qdrantIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	default:
		return ""
	}
}

// decodeQdrantPayload splits a point payload into caller metadata, the stored
// text, and the external id.
func decodeQdrantPayload(payload map[string]*qdrant.Value) (meta map[string]string, text, extID string) {
	meta = make(map[string]string, len(payload))
	for key, value := range payload {
		var s string
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			s = v.StringValue
		case *qdrant.Value_IntegerValue:
			s = strconv.FormatInt(v.IntegerValue, 10)
		case *qdrant.Value_DoubleValue:
			s = strconv.FormatFloat(v.DoubleValue, 'g', -1, 64)
		case *qdrant.Value_BoolValue:
			s = strconv.FormatBool(v.BoolValue)
		default:
			continue
		}

		switch key {
		case payloadTextKey:
			text = s
		case payloadIDKey:
			extID = s
		default:
			meta[key] = s
		}
	}
	return meta, text, extID
}

func qdrantDenseVector(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	vectorData := vectors.GetVector()
	if vectorData == nil {
		return nil
	}
	if dense, ok := vectorData.Vector.(*qdrant.VectorOutput_Dense); ok && dense.Dense != nil {
		return dense.Dense.Data
	}
	return nil
}

// buildQdrantFilter converts a metadata filter to a Qdrant must-filter.
func buildQdrantFilter(filter map[string]string) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// Ensure QdrantProvider implements Provider.
var _ Provider = (*QdrantProvider)(nil)
