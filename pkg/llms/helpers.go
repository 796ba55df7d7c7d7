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
	"strings"

	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/httpclient"
)

// newHTTPClient builds the retrying client all raw-HTTP providers share.
// The header parser lets 429 backoff honor provider rate-limit headers.
func newHTTPClient(cfg *config.LLMConfig, parser httpclient.HeaderParser) *httpclient.Client {
	opts := []httpclient.Option{
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithMaxRetries(cfg.MaxRetries),
	}
	if parser != nil {
		opts = append(opts, httpclient.WithHeaderParser(parser))
	}
	return httpclient.New(opts...)
}

// pickModel resolves the model for a call: request override first, then
// the provider's configured model.
func pickModel(req *Request, cfg *config.LLMConfig) string {
	if req.Model != "" {
		return req.Model
	}
	return cfg.Model
}

// pickTemperature resolves the sampling temperature for a call.
func pickTemperature(req *Request, cfg *config.LLMConfig) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return cfg.Temperature
}

// pickMaxTokens resolves the completion cap for a call.
func pickMaxTokens(req *Request, cfg *config.LLMConfig) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return cfg.MaxTokens
}

// truncateBody keeps provider error bodies readable in wrapped errors.
func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
