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
	"os"
	"time"
)

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Type is the provider type: "openai" or "ollama".
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"title=Provider Type,enum=openai,enum=ollama"`

	// Model is the embedding model name.
	// OpenAI: "text-embedding-3-small", "text-embedding-3-large"
	// Ollama: "nomic-embed-text", "all-minilm"
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model"`

	// APIKey authenticates against the provider (OpenAI).
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// Host overrides the provider base URL.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Base URL"`

	// Dimension of the embedding vectors.
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty" jsonschema:"title=Vector Dimension,minimum=1"`

	// BatchSize caps how many texts go into one embedding request.
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty" jsonschema:"title=Batch Size,minimum=1,default=100"`

	// Timeout bounds one embedding batch request.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Batch Timeout"`

	// MaxRetries bounds HTTP-level retries inside one batch call.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,minimum=0"`
}

// SetDefaults fills provider-conventional values. With no explicit type
// the provider is detected from the environment: OpenAI when an API key
// is present, Ollama otherwise.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		if os.Getenv("OPENAI_API_KEY") != "" {
			c.Type = "openai"
		} else {
			c.Type = "ollama"
		}
	}
	if c.Model == "" {
		switch c.Type {
		case "openai":
			c.Model = "text-embedding-3-small"
		case "ollama":
			c.Model = "nomic-embed-text"
		}
	}
	if c.APIKey == "" && c.Type == "openai" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Host == "" && c.Type == "ollama" {
		c.Host = "http://localhost:11434"
	}
	if c.Dimension == 0 {
		switch c.Model {
		case "text-embedding-3-small", "text-embedding-ada-002":
			c.Dimension = 1536
		case "text-embedding-3-large":
			c.Dimension = 3072
		case "nomic-embed-text":
			c.Dimension = 768
		case "all-minilm":
			c.Dimension = 384
		}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.Timeout == 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// Validate checks the embedder configuration.
func (c *EmbedderConfig) Validate() error {
	switch c.Type {
	case "openai", "ollama":
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("invalid type %q (valid: openai, ollama)", c.Type)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for openai (or set OPENAI_API_KEY)")
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must be non-negative")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}
