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

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/httpclient"
)

const (
	defaultAnthropicHost    = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicDefaultMaxToks = 2048
)

// AnthropicProvider talks to the Anthropic messages API. Structured
// output is obtained by inlining the schema into the system prompt and
// prefilling the assistant turn with "{", which pins the reply to JSON.
type AnthropicProvider struct {
	config     *config.LLMConfig
	host       string
	httpClient *httpclient.Client
}

// NewAnthropicProvider creates an Anthropic provider from config.
func NewAnthropicProvider(cfg *config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	host := cfg.Host
	if host == "" {
		host = defaultAnthropicHost
	}
	return &AnthropicProvider{
		config:     cfg,
		host:       strings.TrimRight(host, "/"),
		httpClient: newHTTPClient(cfg, httpclient.ParseAnthropicHeaders),
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements LLMProvider.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, prefilled := p.buildRequest(req)
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Anthropic returned HTTP %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode Anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("Anthropic error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := text.String()
	if prefilled {
		// The prefilled "{" is part of the JSON but not echoed back.
		out = "{" + out
	}

	model := parsed.Model
	if model == "" {
		model = body.Model
	}
	return &Response{
		Text:  out,
		Model: model,
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

// buildRequest assembles the wire request. The second return reports
// whether the assistant turn was prefilled for structured output.
func (p *AnthropicProvider) buildRequest(req *Request) (*anthropicRequest, bool) {
	system := req.System
	messages := []anthropicMessage{{Role: "user", Content: req.Prompt}}

	prefilled := false
	if req.Structured != nil {
		schemaJSON, err := json.Marshal(req.Structured.Schema)
		if err == nil {
			instruction := fmt.Sprintf(
				"Respond with a single JSON object that validates against this JSON schema. No prose, no markdown fences.\n\nSchema:\n%s",
				schemaJSON)
			if system != "" {
				system += "\n\n" + instruction
			} else {
				system = instruction
			}
		}
		messages = append(messages, anthropicMessage{Role: "assistant", Content: "{"})
		prefilled = true
	}

	maxTokens := pickMaxTokens(req, p.config)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxToks
	}
	temp := pickTemperature(req, p.config)

	return &anthropicRequest{
		Model:       pickModel(req, p.config),
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: &temp,
	}, prefilled
}

// GetModelName implements LLMProvider.
func (p *AnthropicProvider) GetModelName() string { return p.config.Model }

// Close implements LLMProvider.
func (p *AnthropicProvider) Close() error { return nil }
