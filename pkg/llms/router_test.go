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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/sift/pkg/config"
)

type fakeProvider struct {
	model string
	text  string
	usage Usage
	err   error
	calls int
}

func (f *fakeProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Text: f.text, Model: f.model, Usage: f.usage}, nil
}

func (f *fakeProvider) GetModelName() string { return f.model }
func (f *fakeProvider) Close() error         { return nil }

func usd(v float64) *float64 { return &v }

func newTestRouter(t *testing.T, providers map[string]*fakeProvider, chain []string, budget *float64, llmCfgs map[string]*config.LLMConfig) *Router {
	t.Helper()
	registry := NewRegistry()
	for name, p := range providers {
		require.NoError(t, registry.Register(name, p))
	}
	ledger, err := NewLedger("")
	require.NoError(t, err)
	if llmCfgs == nil {
		llmCfgs = map[string]*config.LLMConfig{}
	}
	router, err := NewRouter(registry, ledger, config.RouterConfig{Chain: chain, DailyBudgetUSD: budget}, llmCfgs)
	require.NoError(t, err)
	return router
}

func TestRouterFirstSuccessWins(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "from a"}
	b := &fakeProvider{model: "model-b", text: "from b"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a, "b": b}, []string{"a", "b"}, nil, nil)

	result, err := router.Call(context.Background(), OpSynthesize, "", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from a", result.Text)
	assert.Equal(t, "a", result.Provider)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, b.calls, "second provider must not be called after a success")
}

func TestRouterFallsBackOnFailure(t *testing.T) {
	a := &fakeProvider{model: "model-a", err: fmt.Errorf("HTTP 503: unavailable")}
	b := &fakeProvider{model: "model-b", text: "from b"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a, "b": b}, []string{"a", "b"}, nil, nil)

	result, err := router.Call(context.Background(), OpEnrich, "", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestRouterPreferredProviderFirst(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "from a"}
	b := &fakeProvider{model: "model-b", text: "from b"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a, "b": b}, []string{"a", "b"}, nil, nil)

	result, err := router.Call(context.Background(), OpSynthesize, "b", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
	assert.Equal(t, 0, a.calls)
}

func TestRouterUnknownPreferredFallsBackToChain(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "from a"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a}, []string{"a"}, nil, nil)

	result, err := router.Call(context.Background(), OpSynthesize, "missing", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "a", result.Provider)
}

func TestRouterAllProvidersFail(t *testing.T) {
	a := &fakeProvider{model: "model-a", err: fmt.Errorf("boom a")}
	b := &fakeProvider{model: "model-b", err: fmt.Errorf("boom b")}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a, "b": b}, []string{"a", "b"}, nil, nil)

	_, err := router.Call(context.Background(), OpEnrich, "", &Request{Prompt: "hi"})
	var exhausted *ProvidersExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "a", exhausted.Attempts[0].Provider)
	assert.Equal(t, "b", exhausted.Attempts[1].Provider)
}

func TestRouterBudgetExceeded(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "ok"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a}, []string{"a"}, usd(0.05), nil)

	require.NoError(t, router.ledger.Record(Entry{Provider: "a", Operation: OpEnrich, CostUSD: 0.05}))

	_, err := router.Call(context.Background(), OpEnrich, "", &Request{Prompt: "hi"})
	var budgetErr *BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.InDelta(t, 0.05, budgetErr.SpentUSD, 1e-9)
	assert.Equal(t, 0, a.calls, "no provider call once the budget is spent")
	assert.InDelta(t, 0.0, router.RemainingBudget(), 1e-9)
}

func TestRouterZeroBudgetRefusesEveryCall(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "ok"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a}, []string{"a"}, usd(0), nil)

	_, err := router.Call(context.Background(), OpEnrich, "", &Request{Prompt: "hi"})
	var budgetErr *BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.InDelta(t, 0.0, budgetErr.BudgetUSD, 1e-9)
	assert.Equal(t, 0, a.calls, "zero cap must refuse before any provider call")
	assert.InDelta(t, 0.0, router.RemainingBudget(), 1e-9)
}

func TestRouterUnsetBudgetIsUncapped(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "ok"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a}, []string{"a"}, nil, nil)

	require.NoError(t, router.ledger.Record(Entry{Provider: "a", Operation: OpEnrich, CostUSD: 100}))

	result, err := router.Call(context.Background(), OpEnrich, "", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "a", result.Provider)
	assert.InDelta(t, -1.0, router.RemainingBudget(), 1e-9)
}

func TestRouterRecordsCostInLedger(t *testing.T) {
	a := &fakeProvider{
		model: "model-a",
		text:  "ok",
		usage: Usage{InputTokens: 1_000_000, OutputTokens: 500_000},
	}
	cfgs := map[string]*config.LLMConfig{
		"a": {InputPricePerMTok: 2.0, OutputPricePerMTok: 8.0},
	}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a}, []string{"a"}, nil, cfgs)

	result, err := router.Call(context.Background(), OpSynthesize, "", &Request{Prompt: "hi"})
	require.NoError(t, err)
	// 1.0 MTok in at $2 + 0.5 MTok out at $8
	assert.InDelta(t, 6.0, result.CostUSD, 1e-9)
	assert.InDelta(t, 6.0, router.Ledger().TodayTotal(), 1e-9)

	summary := router.Ledger().Summary(time.Now())
	assert.Equal(t, 1, summary.Calls)
	assert.InDelta(t, 6.0, summary.ByProvider["a"], 1e-9)
	assert.InDelta(t, 6.0, summary.ByOperation[OpSynthesize], 1e-9)
}

func TestRouterStructuredRejectsNonJSON(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "definitely not json"}
	b := &fakeProvider{model: "model-b", text: `{"title":"ok"}`}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a, "b": b}, []string{"a", "b"}, nil, nil)

	req := &Request{Prompt: "hi", Structured: &StructuredSpec{Name: "doc", Schema: map[string]any{"type": "object"}}}
	result, err := router.Call(context.Background(), OpEnrich, "", req)
	require.NoError(t, err)
	assert.Equal(t, "b", result.Provider)
	assert.Equal(t, `{"title":"ok"}`, result.Text)
}

func TestRouterStructuredStripsFences(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "```json\n{\"title\":\"ok\"}\n```"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a}, []string{"a"}, nil, nil)

	req := &Request{Prompt: "hi", Structured: &StructuredSpec{Schema: map[string]any{"type": "object"}}}
	result, err := router.Call(context.Background(), OpEnrich, "", req)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"ok"}`, result.Text)
}

func TestRouterLocalRateLimitSkipsProvider(t *testing.T) {
	a := &fakeProvider{model: "model-a", text: "from a"}
	b := &fakeProvider{model: "model-b", text: "from b"}
	cfgs := map[string]*config.LLMConfig{
		"a": {RequestsPerMinute: 1},
	}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a, "b": b}, []string{"a", "b"}, nil, cfgs)

	first, err := router.Call(context.Background(), OpHyDE, "", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "a", first.Provider)

	second, err := router.Call(context.Background(), OpHyDE, "", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "b", second.Provider, "rate-limited provider must be skipped")
	assert.Equal(t, 1, a.calls)
}

func TestRouterCanceledContextStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeProvider{model: "model-a", err: context.Canceled}
	b := &fakeProvider{model: "model-b", text: "from b"}
	router := newTestRouter(t, map[string]*fakeProvider{"a": a, "b": b}, []string{"a", "b"}, nil, nil)

	cancel()
	_, err := router.Call(ctx, OpSynthesize, "", &Request{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, b.calls, "no further providers after cancellation")
}

func TestCleanJSONText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced bare", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONText(tt.in))
		})
	}
}
