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
	"runtime"
	"time"
)

// IngestConfig configures the ingestion pipeline.
//
// Example YAML:
//
//	ingest:
//	  workers: 8
//	  ocr:
//	    enabled: true
//	    languages: [en, de]
//	  dedup:
//	    hamming_threshold: 3
//	  chunking:
//	    target_tokens: 512
//	  archive:
//	    enabled: true
type IngestConfig struct {
	// Workers limits parallel document extraction. Defaults to NumCPU.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty" jsonschema:"title=Extraction Workers,minimum=1"`

	// MaxFileSize rejects larger inputs, in bytes.
	MaxFileSize int64 `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty" jsonschema:"title=Max File Size (bytes),minimum=1"`

	// ExtractionTimeout bounds one document's extraction.
	ExtractionTimeout time.Duration `yaml:"extraction_timeout,omitempty" json:"extraction_timeout,omitempty" jsonschema:"title=Extraction Timeout"`

	// OCR configures image and scanned-PDF text recovery.
	OCR OCRConfig `yaml:"ocr,omitempty" json:"ocr,omitempty" jsonschema:"title=OCR"`

	// MCP configures delegation to an external MCP document parser.
	MCP MCPConfig `yaml:"mcp,omitempty" json:"mcp,omitempty" jsonschema:"title=MCP Parser"`

	// Dedup configures duplicate detection.
	Dedup DedupConfig `yaml:"dedup,omitempty" json:"dedup,omitempty" jsonschema:"title=Deduplication"`

	// Enrichment configures the LLM enrichment stage.
	Enrichment EnrichmentConfig `yaml:"enrichment,omitempty" json:"enrichment,omitempty" jsonschema:"title=Enrichment"`

	// Scoring configures quality gates per document type.
	Scoring ScoringConfig `yaml:"scoring,omitempty" json:"scoring,omitempty" jsonschema:"title=Scoring"`

	// Chunking configures structure-aware segmentation.
	Chunking ChunkingConfig `yaml:"chunking,omitempty" json:"chunking,omitempty" jsonschema:"title=Chunking"`

	// Retry configures storage-stage retries (vector upserts).
	Retry RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" jsonschema:"title=Storage Retry"`

	// Archive configures the original-bytes archive.
	Archive ArchiveConfig `yaml:"archive,omitempty" json:"archive,omitempty" jsonschema:"title=Archive"`
}

// SetDefaults applies default values.
func (c *IngestConfig) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 * 1024 * 1024 // 50MB
	}
	if c.ExtractionTimeout == 0 {
		c.ExtractionTimeout = 60 * time.Second
	}
	c.OCR.SetDefaults()
	c.MCP.SetDefaults()
	c.Dedup.SetDefaults()
	c.Enrichment.SetDefaults()
	c.Scoring.SetDefaults()
	c.Chunking.SetDefaults()
	c.Retry.SetDefaults()
	c.Archive.SetDefaults()
}

// Validate checks the ingestion configuration.
func (c *IngestConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if err := c.OCR.Validate(); err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	if err := c.MCP.Validate(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if err := c.Enrichment.Validate(); err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// OCRConfig configures Vision-based OCR.
type OCRConfig struct {
	// Enabled turns OCR on for images and text-less PDF pages.
	// Requires Google application credentials in the environment.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled"`

	// Languages hints the OCR engine (BCP-47 codes).
	Languages []string `yaml:"languages,omitempty" json:"languages,omitempty" jsonschema:"title=Language Hints"`

	// PageTimeout bounds OCR of a single page or image.
	PageTimeout time.Duration `yaml:"page_timeout,omitempty" json:"page_timeout,omitempty" jsonschema:"title=Per-Page Timeout"`
}

// SetDefaults applies default values.
func (c *OCRConfig) SetDefaults() {
	if len(c.Languages) == 0 {
		c.Languages = []string{"en"}
	}
	if c.PageTimeout == 0 {
		c.PageTimeout = 120 * time.Second
	}
}

// Validate checks the OCR configuration.
func (c *OCRConfig) Validate() error {
	if c.PageTimeout < 0 {
		return fmt.Errorf("page_timeout must be non-negative")
	}
	return nil
}

// MCPConfig configures an external MCP document-parser tool used for
// formats the native extractors do not cover (pptx and friends).
//
// Example YAML:
//
//	mcp:
//	  command: "docling-mcp"
//	  tool_names: [convert_document]
//	  extensions: [".pptx"]
type MCPConfig struct {
	// Command starts a stdio MCP server. Mutually exclusive with URL.
	Command string `yaml:"command,omitempty" json:"command,omitempty" jsonschema:"title=Server Command"`

	// Args are passed to Command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" jsonschema:"title=Command Args"`

	// URL connects to a running MCP server over SSE.
	URL string `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"title=Server URL"`

	// ToolNames are tried in order until one parses the document.
	ToolNames []string `yaml:"tool_names,omitempty" json:"tool_names,omitempty" jsonschema:"title=Tool Names"`

	// Extensions limits which file types delegate to MCP.
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty" jsonschema:"title=Extensions"`

	// Timeout bounds one parse call.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Call Timeout"`
}

// Enabled reports whether an MCP parser is configured.
func (c *MCPConfig) Enabled() bool {
	return c.Command != "" || c.URL != ""
}

// SetDefaults applies default values.
func (c *MCPConfig) SetDefaults() {
	if !c.Enabled() {
		return
	}
	if len(c.ToolNames) == 0 {
		c.ToolNames = []string{"convert_document"}
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".pptx", ".ppt"}
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}

// Validate checks the MCP configuration.
func (c *MCPConfig) Validate() error {
	if c.Command != "" && c.URL != "" {
		return fmt.Errorf("command and url are mutually exclusive")
	}
	return nil
}

// DedupConfig configures duplicate detection.
type DedupConfig struct {
	// HammingThreshold is the SimHash distance at or below which two
	// documents count as near-duplicates.
	HammingThreshold int `yaml:"hamming_threshold,omitempty" json:"hamming_threshold,omitempty" jsonschema:"title=Hamming Threshold,minimum=0,maximum=16,default=3"`

	// ShingleSize is the token window hashed into the fingerprint.
	ShingleSize int `yaml:"shingle_size,omitempty" json:"shingle_size,omitempty" jsonschema:"title=Shingle Size,minimum=1,default=3"`
}

// SetDefaults applies default values.
func (c *DedupConfig) SetDefaults() {
	if c.HammingThreshold == 0 {
		c.HammingThreshold = 3
	}
	if c.ShingleSize == 0 {
		c.ShingleSize = 3
	}
}

// Validate checks the dedup configuration.
func (c *DedupConfig) Validate() error {
	if c.HammingThreshold < 0 || c.HammingThreshold > 16 {
		return fmt.Errorf("hamming_threshold must be in [0,16]")
	}
	if c.ShingleSize < 1 {
		return fmt.Errorf("shingle_size must be positive")
	}
	return nil
}

// EnrichmentConfig configures the LLM enrichment stage.
type EnrichmentConfig struct {
	// Model optionally pins enrichment to a provider from the router
	// chain. Empty uses the chain head.
	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Preferred Provider"`

	// MaxInputTokens truncates document text fed to the model.
	MaxInputTokens int `yaml:"max_input_tokens,omitempty" json:"max_input_tokens,omitempty" jsonschema:"title=Max Input Tokens,minimum=100,default=8000"`

	// Timeout bounds one enrichment call.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Call Timeout"`
}

// SetDefaults applies default values.
func (c *EnrichmentConfig) SetDefaults() {
	if c.MaxInputTokens == 0 {
		c.MaxInputTokens = 8000
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the enrichment configuration.
func (c *EnrichmentConfig) Validate() error {
	if c.MaxInputTokens < 100 {
		return fmt.Errorf("max_input_tokens must be at least 100")
	}
	return nil
}

// ScoringConfig configures per-type index gates.
type ScoringConfig struct {
	// Gates maps canonical document types to their thresholds.
	// Unlisted types fall back to the "generic" gate.
	Gates map[string]GateConfig `yaml:"gates,omitempty" json:"gates,omitempty" jsonschema:"title=Type Gates"`
}

// GateConfig holds the index thresholds for one document type.
type GateConfig struct {
	// MinQuality is the quality floor for indexing.
	MinQuality float64 `yaml:"min_quality" json:"min_quality" jsonschema:"title=Min Quality,minimum=0,maximum=1"`

	// MinSignal is the signalness floor for indexing.
	MinSignal float64 `yaml:"min_signal" json:"min_signal" jsonschema:"title=Min Signalness,minimum=0,maximum=1"`
}

// DefaultGates returns the built-in gate table.
func DefaultGates() map[string]GateConfig {
	return map[string]GateConfig{
		"email_thread": {MinQuality: 0.70, MinSignal: 0.60},
		"chat_daily":   {MinQuality: 0.65, MinSignal: 0.60},
		"pdf_report":   {MinQuality: 0.75, MinSignal: 0.65},
		"web_article":  {MinQuality: 0.70, MinSignal: 0.60},
		"note":         {MinQuality: 0.60, MinSignal: 0.50},
		"text":         {MinQuality: 0.65, MinSignal: 0.55},
		"legal":        {MinQuality: 0.80, MinSignal: 0.70},
		"generic":      {MinQuality: 0.65, MinSignal: 0.55},
	}
}

// SetDefaults fills unlisted types from the built-in gate table.
func (c *ScoringConfig) SetDefaults() {
	defaults := DefaultGates()
	if c.Gates == nil {
		c.Gates = defaults
		return
	}
	for typ, gate := range defaults {
		if _, ok := c.Gates[typ]; !ok {
			c.Gates[typ] = gate
		}
	}
}

// Validate checks the scoring configuration.
func (c *ScoringConfig) Validate() error {
	for typ, gate := range c.Gates {
		if gate.MinQuality < 0 || gate.MinQuality > 1 {
			return fmt.Errorf("gates.%s: min_quality must be in [0,1]", typ)
		}
		if gate.MinSignal < 0 || gate.MinSignal > 1 {
			return fmt.Errorf("gates.%s: min_signal must be in [0,1]", typ)
		}
	}
	return nil
}

// ChunkingConfig configures structure-aware segmentation.
type ChunkingConfig struct {
	// TargetTokens is the accumulation target per chunk.
	TargetTokens int `yaml:"target_tokens,omitempty" json:"target_tokens,omitempty" jsonschema:"title=Target Tokens,minimum=400,maximum=800,default=512"`

	// MaxTokens is the hard cap; single tables and code blocks may
	// exceed it, which is recorded rather than split.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"title=Hard Cap Tokens,default=800"`

	// Tokenizer selects the token estimator: "cl100k" (tiktoken) or
	// "chars" (length/4 heuristic).
	Tokenizer string `yaml:"tokenizer,omitempty" json:"tokenizer,omitempty" jsonschema:"title=Tokenizer,enum=cl100k,enum=chars,default=cl100k"`
}

// SetDefaults applies default values.
func (c *ChunkingConfig) SetDefaults() {
	if c.TargetTokens == 0 {
		c.TargetTokens = 512
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 800
	}
	if c.Tokenizer == "" {
		c.Tokenizer = "cl100k"
	}
}

// Validate checks the chunking configuration.
func (c *ChunkingConfig) Validate() error {
	if c.TargetTokens < 400 || c.TargetTokens > 800 {
		return fmt.Errorf("target_tokens must be in [400,800]")
	}
	if c.MaxTokens < c.TargetTokens {
		return fmt.Errorf("max_tokens must be at least target_tokens")
	}
	switch c.Tokenizer {
	case "cl100k", "chars":
	default:
		return fmt.Errorf("invalid tokenizer %q (valid: cl100k, chars)", c.Tokenizer)
	}
	return nil
}

// RetryConfig configures exponential backoff for transient failures.
type RetryConfig struct {
	// MaxRetries is the maximum number of attempts after the first.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,minimum=0,default=4"`

	// BaseDelay is the initial delay; each retry doubles it.
	BaseDelay time.Duration `yaml:"base_delay,omitempty" json:"base_delay,omitempty" jsonschema:"title=Base Delay"`

	// MaxDelay caps the per-retry delay.
	MaxDelay time.Duration `yaml:"max_delay,omitempty" json:"max_delay,omitempty" jsonschema:"title=Max Delay"`
}

// SetDefaults applies default values.
func (c *RetryConfig) SetDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 4
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
}

// Validate checks the retry configuration.
func (c *RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must be non-negative")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay must be at least base_delay")
	}
	return nil
}

// ArchiveConfig configures the hash-addressed original-bytes archive.
type ArchiveConfig struct {
	// Enabled turns archiving on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled"`

	// Dir is the archive root directory.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" jsonschema:"title=Archive Directory"`
}

// SetDefaults applies default values.
func (c *ArchiveConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = ".sift/archive"
	}
}

// Validate checks the archive configuration.
func (c *ArchiveConfig) Validate() error {
	if c.Enabled && c.Dir == "" {
		return fmt.Errorf("dir is required when enabled")
	}
	return nil
}
