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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/observability"
	"github.com/kadirpekel/sift/pkg/ratelimit"
)

// Operation tags for ledger entries.
const (
	OpEnrich     = "enrich"
	OpHyDE       = "hyde"
	OpRerank     = "rerank"
	OpSynthesize = "synthesize"
)

// Result is the outcome of a routed call.
type Result struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
	CostUSD  float64
}

// Router sends requests through an ordered provider chain. A provider
// failure (network error, 429/5xx, timeout, local rate-limit denial, or
// non-JSON output on a structured request) moves to the next entry; the
// first success terminates. Every successful call lands in the ledger,
// and calls are refused outright once the daily budget is spent.
type Router struct {
	registry *Registry
	ledger   *Ledger
	limiter  *ratelimit.Limiter
	chain    []string
	configs  map[string]*config.LLMConfig
	budget   *float64
}

// NewRouter wires the chain, limits, and budget from config. The
// registry must already hold every chain entry.
func NewRouter(registry *Registry, ledger *Ledger, routerCfg config.RouterConfig, llmCfgs map[string]*config.LLMConfig) (*Router, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	for _, name := range routerCfg.Chain {
		if _, err := registry.Get(name); err != nil {
			return nil, fmt.Errorf("router chain: %w", err)
		}
	}

	limiter := ratelimit.New()
	for name, cfg := range llmCfgs {
		if cfg == nil {
			continue
		}
		if cfg.RequestsPerMinute > 0 || cfg.TokensPerMinute > 0 {
			limiter.SetLimit(name, ratelimit.Limit{
				RequestsPerMinute: int64(cfg.RequestsPerMinute),
				TokensPerMinute:   int64(cfg.TokensPerMinute),
			})
		}
	}

	return &Router{
		registry: registry,
		ledger:   ledger,
		limiter:  limiter,
		chain:    routerCfg.Chain,
		configs:  llmCfgs,
		budget:   routerCfg.DailyBudgetUSD,
	}, nil
}

// Ledger exposes the cost ledger for stats reporting.
func (r *Router) Ledger() *Ledger { return r.ledger }

// Call routes one request. operation tags the ledger entry; preferred,
// when non-empty, names the provider to try before the configured chain.
func (r *Router) Call(ctx context.Context, operation, preferred string, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	// An explicit zero budget refuses every call; only an unset budget
	// means uncapped.
	if r.budget != nil {
		if spent := r.ledger.TodayTotal(); spent >= *r.budget {
			return nil, &BudgetExceededError{SpentUSD: spent, BudgetUSD: *r.budget}
		}
	}

	order := r.tryOrder(preferred)
	if len(order) == 0 {
		return nil, &ProvidersExhaustedError{}
	}

	var attempts []Attempt
	for _, name := range order {
		provider, err := r.registry.Get(name)
		if err != nil {
			attempts = append(attempts, Attempt{Provider: name, Err: err})
			continue
		}

		if check := r.limiter.Allow(name); !check.Allowed {
			slog.Debug("provider rate limited locally", "provider", name, "reason", check.Reason)
			attempts = append(attempts, Attempt{
				Provider: name,
				Model:    provider.GetModelName(),
				Err:      fmt.Errorf("local rate limit: %s", check.Reason),
			})
			continue
		}

		start := time.Now()
		resp, err := provider.Generate(ctx, req)
		duration := time.Since(start)

		if err == nil && req.Structured != nil {
			resp.Text = cleanJSONText(resp.Text)
			if !json.Valid([]byte(resp.Text)) {
				err = fmt.Errorf("structured output is not valid JSON")
			}
		}

		if err != nil {
			observability.GetGlobalMetrics().RecordLLMCall(ctx, name, provider.GetModelName(), operation, duration, 0, 0, 0, err)
			attempts = append(attempts, Attempt{Provider: name, Model: provider.GetModelName(), Err: err})
			if ctx.Err() != nil {
				// The caller is gone; trying further providers would
				// only burn their deadline.
				return nil, ctx.Err()
			}
			slog.Warn("provider call failed, trying next", "provider", name, "operation", operation, "error", err)
			continue
		}

		cost := r.costOf(name, resp.Usage)
		r.limiter.RecordTokens(name, int64(resp.Usage.Total()))
		entry := Entry{
			Provider:     name,
			Model:        resp.Model,
			Operation:    operation,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			CostUSD:      cost,
		}
		if err := r.ledger.Record(entry); err != nil {
			slog.Warn("failed to persist ledger entry", "provider", name, "error", err)
		}
		observability.GetGlobalMetrics().RecordLLMCall(ctx, name, resp.Model, operation, duration, resp.Usage.InputTokens, resp.Usage.OutputTokens, cost, nil)

		return &Result{
			Text:     resp.Text,
			Provider: name,
			Model:    resp.Model,
			Usage:    resp.Usage,
			CostUSD:  cost,
		}, nil
	}

	return nil, &ProvidersExhaustedError{Attempts: attempts}
}

// RemainingBudget reports today's unspent budget; -1 means uncapped.
func (r *Router) RemainingBudget() float64 {
	if r.budget == nil {
		return -1
	}
	return r.ledger.Remaining(*r.budget)
}

// tryOrder puts the preferred provider first, then the chain in
// configured order, without duplicates.
func (r *Router) tryOrder(preferred string) []string {
	order := make([]string, 0, len(r.chain)+1)
	if preferred != "" {
		if _, err := r.registry.Get(preferred); err == nil {
			order = append(order, preferred)
		} else {
			slog.Debug("preferred provider not registered, using chain", "preferred", preferred)
		}
	}
	for _, name := range r.chain {
		if len(order) > 0 && order[0] == name {
			continue
		}
		order = append(order, name)
	}
	return order
}

// costOf prices measured usage against the provider's configured rates.
func (r *Router) costOf(provider string, usage Usage) float64 {
	cfg, ok := r.configs[provider]
	if !ok || cfg == nil {
		return 0
	}
	return float64(usage.InputTokens)/1e6*cfg.InputPricePerMTok +
		float64(usage.OutputTokens)/1e6*cfg.OutputPricePerMTok
}

// cleanJSONText strips markdown fences some models wrap around JSON.
func cleanJSONText(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return s
}
