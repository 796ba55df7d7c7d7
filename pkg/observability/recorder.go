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

package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records pipeline telemetry. Implementations must tolerate zero
// values so call sites can record unconditionally.
type Metrics interface {
	// RecordIngest records one finished document: its outcome (indexed,
	// duplicate, gated_out, failed), total pipeline duration, and the
	// number of chunks written.
	RecordIngest(ctx context.Context, status string, duration time.Duration, chunks int)

	// RecordLLMCall records one provider round trip with its token usage
	// and estimated cost.
	RecordLLMCall(ctx context.Context, provider, model, operation string, duration time.Duration, inputTokens, outputTokens int, costUSD float64, err error)

	// RecordSearch records one search or answer request.
	RecordSearch(ctx context.Context, mode string, duration time.Duration)

	// RecordVectorUpsert records one vector store upsert batch.
	RecordVectorUpsert(ctx context.Context, duration time.Duration)

	// Handler serves the backing Prometheus registry over HTTP.
	Handler() http.Handler
}

type PrometheusMetrics struct {
	registry *prometheus.Registry

	ingestDuration metric.Float64Histogram
	ingestDocs     metric.Int64Counter
	chunksIndexed  metric.Int64Counter

	llmDuration metric.Float64Histogram
	llmTokens   metric.Int64Counter
	llmCost     metric.Float64Counter

	searchDuration       metric.Float64Histogram
	vectorUpsertDuration metric.Float64Histogram
}

func NewPrometheusMetrics(
	registry *prometheus.Registry,
	ingestDuration metric.Float64Histogram,
	ingestDocs metric.Int64Counter,
	chunksIndexed metric.Int64Counter,
	llmDuration metric.Float64Histogram,
	llmTokens metric.Int64Counter,
	llmCost metric.Float64Counter,
	searchDuration metric.Float64Histogram,
	vectorUpsertDuration metric.Float64Histogram,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		registry:             registry,
		ingestDuration:       ingestDuration,
		ingestDocs:           ingestDocs,
		chunksIndexed:        chunksIndexed,
		llmDuration:          llmDuration,
		llmTokens:            llmTokens,
		llmCost:              llmCost,
		searchDuration:       searchDuration,
		vectorUpsertDuration: vectorUpsertDuration,
	}
}

func (m *PrometheusMetrics) RecordIngest(ctx context.Context, status string, duration time.Duration, chunks int) {
	if m == nil || m.ingestDuration == nil || m.ingestDocs == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}

	m.ingestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.ingestDocs.Add(ctx, 1, metric.WithAttributes(attrs...))

	if chunks > 0 && m.chunksIndexed != nil {
		m.chunksIndexed.Add(ctx, int64(chunks))
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, provider, model, operation string, duration time.Duration, inputTokens, outputTokens int, costUSD float64, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))

	if m.llmTokens != nil {
		if inputTokens > 0 {
			m.llmTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(
				attribute.String("provider", provider),
				attribute.String("model", model),
				attribute.String("direction", "input"),
			))
		}
		if outputTokens > 0 {
			m.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(
				attribute.String("provider", provider),
				attribute.String("model", model),
				attribute.String("direction", "output"),
			))
		}
	}

	if costUSD > 0 && m.llmCost != nil {
		m.llmCost.Add(ctx, costUSD, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
		))
	}
}

func (m *PrometheusMetrics) RecordSearch(ctx context.Context, mode string, duration time.Duration) {
	if m == nil || m.searchDuration == nil {
		return
	}

	m.searchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

func (m *PrometheusMetrics) RecordVectorUpsert(ctx context.Context, duration time.Duration) {
	if m == nil || m.vectorUpsertDuration == nil {
		return
	}

	m.vectorUpsertDuration.Record(ctx, duration.Seconds())
}

func (m *PrometheusMetrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return unavailableHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, or a no-op one
// when none was installed.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return NoopMetrics{}
	}
	return globalMetrics
}
