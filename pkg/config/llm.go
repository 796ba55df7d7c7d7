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

// LLMConfig configures one LLM provider entry.
type LLMConfig struct {
	// Type is the provider type: "openai", "anthropic", "gemini", "ollama".
	Type string `yaml:"type" json:"type" jsonschema:"title=Provider Type,enum=openai,enum=anthropic,enum=gemini,enum=ollama"`

	// Model is the model identifier sent to the provider.
	Model string `yaml:"model" json:"model" jsonschema:"title=Model"`

	// APIKey authenticates against the provider. Defaults to the
	// provider's conventional environment variable when empty.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key"`

	// Host overrides the provider base URL (self-hosted gateways, Ollama).
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Base URL"`

	// Temperature for generation.
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"title=Temperature,minimum=0,maximum=2"`

	// MaxTokens caps completion length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"title=Max Tokens,minimum=1"`

	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Request Timeout"`

	// MaxRetries bounds HTTP-level retries inside one provider call.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,minimum=0"`

	// InputPricePerMTok is the USD price per million input tokens,
	// used by the cost ledger.
	InputPricePerMTok float64 `yaml:"input_price_per_mtok,omitempty" json:"input_price_per_mtok,omitempty" jsonschema:"title=Input Price (USD/MTok),minimum=0"`

	// OutputPricePerMTok is the USD price per million output tokens.
	OutputPricePerMTok float64 `yaml:"output_price_per_mtok,omitempty" json:"output_price_per_mtok,omitempty" jsonschema:"title=Output Price (USD/MTok),minimum=0"`

	// RequestsPerMinute rate-limits this provider locally (0 = unlimited).
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty" json:"requests_per_minute,omitempty" jsonschema:"title=Requests/min,minimum=0"`

	// TokensPerMinute rate-limits total tokens locally (0 = unlimited).
	TokensPerMinute int `yaml:"tokens_per_minute,omitempty" json:"tokens_per_minute,omitempty" jsonschema:"title=Tokens/min,minimum=0"`
}

// SetDefaults fills provider-conventional values.
func (c *LLMConfig) SetDefaults() {
	if c.Type == "" {
		c.detectFromEnv()
	}
	if c.Model == "" {
		switch c.Type {
		case "openai":
			c.Model = "gpt-4o-mini"
		case "anthropic":
			c.Model = "claude-sonnet-4-20250514"
		case "gemini":
			c.Model = "gemini-2.0-flash"
		case "ollama":
			c.Model = "llama3.2"
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Type)
	}
	if c.Host == "" && c.Type == "ollama" {
		c.Host = "http://localhost:11434"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// Validate checks the provider entry.
func (c *LLMConfig) Validate() error {
	switch c.Type {
	case "openai", "anthropic", "gemini", "ollama":
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("invalid type %q (valid: openai, anthropic, gemini, ollama)", c.Type)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Type != "ollama" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for %s (or set the provider environment variable)", c.Type)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %g", c.Temperature)
	}
	if c.InputPricePerMTok < 0 || c.OutputPricePerMTok < 0 {
		return fmt.Errorf("prices must be non-negative")
	}
	if c.RequestsPerMinute < 0 || c.TokensPerMinute < 0 {
		return fmt.Errorf("rate limits must be non-negative")
	}
	return nil
}

// detectFromEnv picks a provider type from which API key is present.
// Order: Anthropic, OpenAI, Gemini, then Ollama as the keyless fallback.
func (c *LLMConfig) detectFromEnv() {
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		c.Type = "anthropic"
	case os.Getenv("OPENAI_API_KEY") != "":
		c.Type = "openai"
	case os.Getenv("GEMINI_API_KEY") != "", os.Getenv("GOOGLE_API_KEY") != "":
		c.Type = "gemini"
	default:
		c.Type = "ollama"
	}
}

func apiKeyFromEnv(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// RouterConfig orders providers into a fallback chain and enforces the
// daily budget.
type RouterConfig struct {
	// Chain lists LLM provider names in try-order. Defaults to all
	// configured providers sorted by name when empty.
	Chain []string `yaml:"chain,omitempty" json:"chain,omitempty" jsonschema:"title=Provider Chain"`

	// DailyBudgetUSD caps total spend per UTC day. Unset means no cap;
	// an explicit 0 refuses every routed call.
	DailyBudgetUSD *float64 `yaml:"daily_budget_usd,omitempty" json:"daily_budget_usd,omitempty" jsonschema:"title=Daily Budget (USD),minimum=0"`

	// LedgerDir is where daily cost ledgers are appended as JSON lines.
	LedgerDir string `yaml:"ledger_dir,omitempty" json:"ledger_dir,omitempty" jsonschema:"title=Ledger Directory"`
}

// SetDefaults derives the chain from the configured providers when unset.
func (c *RouterConfig) SetDefaults(llms map[string]*LLMConfig) {
	if len(c.Chain) == 0 {
		c.Chain = sortedKeys(llms)
	}
	if c.LedgerDir == "" {
		c.LedgerDir = ".sift/ledger"
	}
}

// Validate checks that every chain entry names a configured provider.
func (c *RouterConfig) Validate(llms map[string]*LLMConfig) error {
	if len(c.Chain) == 0 {
		return fmt.Errorf("chain must name at least one provider")
	}
	for _, name := range c.Chain {
		if _, ok := llms[name]; !ok {
			return fmt.Errorf("chain references unknown provider %q", name)
		}
	}
	if c.DailyBudgetUSD != nil && *c.DailyBudgetUSD < 0 {
		return fmt.Errorf("daily_budget_usd must be non-negative")
	}
	return nil
}

func sortedKeys(llms map[string]*LLMConfig) []string {
	keys := make([]string, 0, len(llms))
	for k := range llms {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
