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

package config

import (
	"fmt"
	"time"
)

// VectorStoreConfig configures the dense vector backend.
//
// Example YAML:
//
//	vector_store:
//	  type: chromem
//	  persist_path: .sift/vectors
//
//	vector_store:
//	  type: qdrant
//	  host: qdrant.example.com
//	  port: 6334
//	  api_key: ${QDRANT_API_KEY}
type VectorStoreConfig struct {
	// Type is the vector store type: "chromem", "qdrant", "pinecone".
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Store Type,enum=chromem,enum=qdrant,enum=pinecone,default=chromem"`

	// Host for external vector stores (qdrant).
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host"`

	// Port for external vector stores (qdrant gRPC).
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port"`

	// APIKey for authenticated access (qdrant cloud, pinecone).
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// EnableTLS enables TLS connections (qdrant).
	EnableTLS bool `yaml:"enable_tls,omitempty" json:"enable_tls,omitempty" jsonschema:"title=Enable TLS"`

	// PersistPath enables file persistence for chromem. Empty keeps the
	// store purely in memory.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty" jsonschema:"title=Persist Path"`

	// Compress enables gzip compression for chromem persistence.
	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty" jsonschema:"title=Compress"`

	// Collection holds chunk vectors.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty" jsonschema:"title=Chunk Collection,default=sift_chunks"`

	// SummaryCollection holds one summary vector per document, used for
	// novelty scoring.
	SummaryCollection string `yaml:"summary_collection,omitempty" json:"summary_collection,omitempty" jsonschema:"title=Summary Collection,default=sift_summaries"`

	// IndexName for Pinecone.
	IndexName string `yaml:"index_name,omitempty" json:"index_name,omitempty" jsonschema:"title=Pinecone Index"`

	// Namespace for Pinecone.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty" jsonschema:"title=Pinecone Namespace"`

	// Timeout bounds one vector store operation.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Operation Timeout"`
}

// SetDefaults applies default values.
func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem" // embedded, zero-config
	}
	if c.Type == "chromem" && c.PersistPath == "" {
		c.PersistPath = ".sift/vectors"
	}
	if c.Port == 0 && c.Type == "qdrant" {
		c.Port = 6334 // qdrant gRPC port
	}
	if c.Collection == "" {
		c.Collection = "sift_chunks"
	}
	if c.SummaryCollection == "" {
		c.SummaryCollection = "sift_summaries"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate checks the configuration for errors.
func (c *VectorStoreConfig) Validate() error {
	validTypes := map[string]bool{
		"chromem":  true,
		"qdrant":   true,
		"pinecone": true,
	}
	if !validTypes[c.Type] {
		return fmt.Errorf("invalid vector store type %q (valid: chromem, qdrant, pinecone)", c.Type)
	}

	if c.Type == "qdrant" && c.Host == "" {
		return fmt.Errorf("host is required for qdrant vector store")
	}
	if c.Type == "pinecone" {
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for pinecone vector store")
		}
		if c.IndexName == "" {
			return fmt.Errorf("index_name is required for pinecone vector store")
		}
	}
	if c.Collection == c.SummaryCollection {
		return fmt.Errorf("collection and summary_collection must differ")
	}

	return nil
}

// IsEmbedded returns true for embedded vector stores (chromem).
func (c *VectorStoreConfig) IsEmbedded() bool {
	return c.Type == "chromem"
}
