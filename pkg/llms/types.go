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

// Package llms provides LLM providers (OpenAI, Anthropic, Gemini, Ollama),
// a fallback router with a daily budget, and the cost ledger that records
// every successful call.
package llms

import "context"

// Request is a single generation request. Structured, when set, asks the
// provider to constrain output to the given JSON schema using its native
// mechanism.
type Request struct {
	// System is the system instruction, empty for none.
	System string

	// Prompt is the user message.
	Prompt string

	// Model overrides the provider's configured model for this call.
	Model string

	// Temperature overrides the configured temperature when non-nil.
	Temperature *float64

	// MaxTokens overrides the configured completion cap when positive.
	MaxTokens int

	// Structured requests schema-constrained JSON output.
	Structured *StructuredSpec
}

// StructuredSpec describes the JSON schema the response must satisfy.
// Schema is a plain JSON-Schema document (type/properties/required/...).
type StructuredSpec struct {
	Name   string
	Schema map[string]any
}

// Usage reports measured token counts for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Response is a provider's reply. Model names the concrete model that
// answered, which may differ from the request when a router substituted.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// LLMProvider executes generation requests against one backend.
// Implementations are safe for concurrent use.
type LLMProvider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	GetModelName() string
	Close() error
}
