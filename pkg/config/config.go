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

// Package config defines the configuration tree and its loader.
//
// Every config type implements SetDefaults and Validate; the loader
// applies them after decoding, so components receive fully populated,
// checked values.
package config

import "fmt"

// Config is the root configuration for a sift process.
//
// Example YAML:
//
//	llms:
//	  primary:
//	    type: openai
//	    model: gpt-4o-mini
//	    api_key: ${OPENAI_API_KEY}
//	router:
//	  chain: [primary]
//	  daily_budget_usd: 5.0
//	embedder:
//	  type: openai
//	  model: text-embedding-3-small
//	vector_store:
//	  type: chromem
//	  persist_path: .sift/vectors
//	database:
//	  driver: sqlite
//	  database: .sift/catalog.db
type Config struct {
	// Version of the config schema (informational).
	Version string `yaml:"version,omitempty" json:"version,omitempty" jsonschema:"title=Version"`

	// LLMs declares the available LLM providers by name.
	LLMs map[string]*LLMConfig `yaml:"llms" json:"llms" jsonschema:"title=LLM Providers"`

	// Router orders providers into a fallback chain and caps spend.
	Router RouterConfig `yaml:"router" json:"router" jsonschema:"title=LLM Router"`

	// Embedder configures the embedding provider.
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder" jsonschema:"title=Embedder"`

	// VectorStore configures the dense vector backend.
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store" jsonschema:"title=Vector Store"`

	// Database configures the document catalog.
	Database DatabaseConfig `yaml:"database" json:"database" jsonschema:"title=Catalog Database"`

	// Vocabulary configures the controlled vocabularies.
	Vocabulary VocabularyConfig `yaml:"vocabulary" json:"vocabulary" jsonschema:"title=Controlled Vocabulary"`

	// Ingest configures the ingestion pipeline.
	Ingest IngestConfig `yaml:"ingest" json:"ingest" jsonschema:"title=Ingestion"`

	// Search configures hybrid retrieval and synthesis.
	Search SearchConfig `yaml:"search" json:"search" jsonschema:"title=Search"`

	// Export configures canonical Markdown export.
	Export ExportConfig `yaml:"export" json:"export" jsonschema:"title=Canonical Export"`

	// Observability configures tracing and metrics.
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability"`
}

// SetDefaults applies defaults across the whole tree.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	for _, llm := range c.LLMs {
		if llm == nil {
			continue
		}
		llm.SetDefaults()
	}
	c.Router.SetDefaults(c.LLMs)
	c.Embedder.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Database.SetDefaults()
	c.Vocabulary.SetDefaults()
	c.Ingest.SetDefaults()
	c.Search.SetDefaults()
	c.Export.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the whole tree. The first failure wins; errors name
// the offending section.
func (c *Config) Validate() error {
	if len(c.LLMs) == 0 {
		return fmt.Errorf("llms: at least one LLM provider is required")
	}
	for name, llm := range c.LLMs {
		if llm == nil {
			return fmt.Errorf("llms.%s: empty provider entry", name)
		}
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llms.%s: %w", name, err)
		}
	}
	if err := c.Router.Validate(c.LLMs); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Vocabulary.Validate(); err != nil {
		return fmt.Errorf("vocabulary: %w", err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// DefaultConfig returns a runnable zero-config setup: provider detected
// from the environment, embedded chromem store, sqlite catalog under
// .sift/, export into ./vault.
func DefaultConfig() *Config {
	llm := &LLMConfig{}
	llm.detectFromEnv()

	cfg := &Config{
		LLMs: map[string]*LLMConfig{"default": llm},
	}
	cfg.SetDefaults()
	return cfg
}
