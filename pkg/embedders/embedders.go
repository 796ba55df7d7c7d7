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

// Package embedders provides dense text embedding providers.
package embedders

import (
	"context"
	"fmt"

	"github.com/kadirpekel/sift/pkg/config"
)

// Embedder converts text into dense vectors. Implementations are safe
// for concurrent use.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in order. Inputs
	// larger than the provider's batch size are split internally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	GetDimension() int
	GetModelName() string
	Close() error
}

// New creates an embedder from config.
func New(cfg *config.EmbedderConfig) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder config cannot be nil")
	}
	switch cfg.Type {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s (supported: openai, ollama)", cfg.Type)
	}
}
