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

// SearchConfig configures hybrid retrieval and answer synthesis.
//
// Example YAML:
//
//	search:
//	  top_k: 8
//	  alpha: 0.6
//	  mmr_lambda: 0.5
//	  rerank: lexical
//	  hyde: false
//	  gate:
//	    min_coverage: 2
//	    min_top: 0.4
type SearchConfig struct {
	// TopK is the default result count.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty" jsonschema:"title=Top K,minimum=1,default=8"`

	// FetchMultiplier sizes each branch's candidate pool as a multiple
	// of top_k.
	FetchMultiplier int `yaml:"fetch_multiplier,omitempty" json:"fetch_multiplier,omitempty" jsonschema:"title=Fetch Multiplier,minimum=1,default=4"`

	// Alpha weights dense vs sparse in the combined score:
	// combined = alpha*dense + (1-alpha)*sparse.
	Alpha float64 `yaml:"alpha,omitempty" json:"alpha,omitempty" jsonschema:"title=Dense Weight,minimum=0,maximum=1,default=0.6"`

	// MMRLambda trades relevance against diversity in MMR selection.
	MMRLambda float64 `yaml:"mmr_lambda,omitempty" json:"mmr_lambda,omitempty" jsonschema:"title=MMR Lambda,minimum=0,maximum=1,default=0.5"`

	// HyDE enables hypothetical-document query expansion by default.
	HyDE bool `yaml:"hyde,omitempty" json:"hyde,omitempty" jsonschema:"title=HyDE"`

	// HyDEModel optionally pins HyDE generation to a provider from the
	// router chain.
	HyDEModel string `yaml:"hyde_model,omitempty" json:"hyde_model,omitempty" jsonschema:"title=HyDE Provider"`

	// Rerank selects the reranker: "lexical", "llm", or "none".
	Rerank string `yaml:"rerank,omitempty" json:"rerank,omitempty" jsonschema:"title=Reranker,enum=lexical,enum=llm,enum=none,default=lexical"`

	// RerankModel optionally pins LLM reranking to a provider.
	RerankModel string `yaml:"rerank_model,omitempty" json:"rerank_model,omitempty" jsonschema:"title=Rerank Provider"`

	// Gate configures the confidence gate.
	Gate GateThresholds `yaml:"gate,omitempty" json:"gate,omitempty" jsonschema:"title=Confidence Gate"`

	// Synthesis configures answer generation.
	Synthesis SynthesisConfig `yaml:"synthesis,omitempty" json:"synthesis,omitempty" jsonschema:"title=Synthesis"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 8
	}
	if c.FetchMultiplier == 0 {
		c.FetchMultiplier = 4
	}
	if c.Alpha == 0 {
		c.Alpha = 0.6
	}
	if c.MMRLambda == 0 {
		c.MMRLambda = 0.5
	}
	if c.Rerank == "" {
		c.Rerank = "lexical"
	}
	c.Gate.SetDefaults()
	c.Synthesis.SetDefaults()
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.FetchMultiplier < 1 {
		return fmt.Errorf("fetch_multiplier must be positive")
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in [0,1]")
	}
	if c.MMRLambda < 0 || c.MMRLambda > 1 {
		return fmt.Errorf("mmr_lambda must be in [0,1]")
	}
	switch c.Rerank {
	case "lexical", "llm", "none":
	default:
		return fmt.Errorf("invalid rerank %q (valid: lexical, llm, none)", c.Rerank)
	}
	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	return nil
}

// GateThresholds configures the confidence gate over reranked candidates.
type GateThresholds struct {
	// ScoreThreshold is the per-candidate score floor counted toward
	// coverage.
	ScoreThreshold float64 `yaml:"score_threshold,omitempty" json:"score_threshold,omitempty" jsonschema:"title=Score Threshold,minimum=0,maximum=1,default=0.3"`

	// MinCoverage is how many candidates must clear the threshold.
	MinCoverage int `yaml:"min_coverage,omitempty" json:"min_coverage,omitempty" jsonschema:"title=Min Coverage,minimum=1,default=2"`

	// MinTop is the floor for the best candidate's score.
	MinTop float64 `yaml:"min_top,omitempty" json:"min_top,omitempty" jsonschema:"title=Min Top Score,minimum=0,maximum=1,default=0.4"`
}

// SetDefaults applies default values.
func (c *GateThresholds) SetDefaults() {
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.3
	}
	if c.MinCoverage == 0 {
		c.MinCoverage = 2
	}
	if c.MinTop == 0 {
		c.MinTop = 0.4
	}
}

// Validate checks the gate thresholds.
func (c *GateThresholds) Validate() error {
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be in [0,1]")
	}
	if c.MinCoverage < 1 {
		return fmt.Errorf("min_coverage must be positive")
	}
	if c.MinTop < 0 || c.MinTop > 1 {
		return fmt.Errorf("min_top must be in [0,1]")
	}
	return nil
}

// SynthesisConfig configures cited answer generation.
type SynthesisConfig struct {
	// Model optionally pins synthesis to a provider from the router
	// chain. Empty uses the chain head.
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Preferred Provider"`

	// ContextBlocks is how many reranked candidates enter the prompt.
	ContextBlocks int `yaml:"context_blocks,omitempty" json:"context_blocks,omitempty" jsonschema:"title=Context Blocks,minimum=1,default=8"`

	// Timeout bounds one synthesis call.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Call Timeout"`
}

// SetDefaults applies default values.
func (c *SynthesisConfig) SetDefaults() {
	if c.ContextBlocks == 0 {
		c.ContextBlocks = 8
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate checks the synthesis configuration.
func (c *SynthesisConfig) Validate() error {
	if c.ContextBlocks < 1 {
		return fmt.Errorf("context_blocks must be positive")
	}
	return nil
}
