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

const defaultOllamaHost = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server. Structured output
// passes the JSON schema through the chat API's format field, which
// Ollama enforces during sampling.
type OllamaProvider struct {
	config     *config.LLMConfig
	host       string
	httpClient *httpclient.Client
}

// NewOllamaProvider creates an Ollama provider from config. No API key
// is required.
func NewOllamaProvider(cfg *config.LLMConfig) (*OllamaProvider, error) {
	host := cfg.Host
	if host == "" {
		host = defaultOllamaHost
	}
	return &OllamaProvider{
		config:     cfg,
		host:       strings.TrimRight(host, "/"),
		httpClient: newHTTPClient(cfg, nil),
	}, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
	// Format is either the string "json" or a JSON schema object.
	Format any `json:"format,omitempty"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Generate implements LLMProvider.
func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body := p.buildRequest(req)
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama returned HTTP %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode Ollama response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("Ollama error: %s", parsed.Error)
	}

	model := parsed.Model
	if model == "" {
		model = body.Model
	}
	return &Response{
		Text:  parsed.Message.Content,
		Model: model,
		Usage: Usage{
			InputTokens:  parsed.PromptEvalCount,
			OutputTokens: parsed.EvalCount,
		},
	}, nil
}

func (p *OllamaProvider) buildRequest(req *Request) *ollamaRequest {
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	out := &ollamaRequest{
		Model:    pickModel(req, p.config),
		Messages: messages,
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: pickTemperature(req, p.config),
			NumPredict:  pickMaxTokens(req, p.config),
		},
	}
	if req.Structured != nil {
		if req.Structured.Schema != nil {
			out.Format = req.Structured.Schema
		} else {
			out.Format = "json"
		}
	}
	return out
}

// GetModelName implements LLMProvider.
func (p *OllamaProvider) GetModelName() string { return p.config.Model }

// Close implements LLMProvider.
func (p *OllamaProvider) Close() error { return nil }
