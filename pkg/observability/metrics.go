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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the Prometheus metric instruments.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// InitMetrics builds the pipeline instruments backed by a dedicated
// Prometheus registry. When disabled it returns an instrument-less recorder
// whose methods are no-ops.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	registry := prometheus.NewRegistry()

	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("sift")

	ingestDuration, err := meter.Float64Histogram(
		"sift_ingest_duration_seconds",
		metric.WithDescription("Per-document ingest pipeline duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest duration histogram: %w", err)
	}

	ingestDocs, err := meter.Int64Counter(
		"sift_ingest_documents_total",
		metric.WithDescription("Total documents ingested, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest documents counter: %w", err)
	}

	chunksIndexed, err := meter.Int64Counter(
		"sift_chunks_indexed_total",
		metric.WithDescription("Total chunks written to the indexes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunks indexed counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"sift_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmTokens, err := meter.Int64Counter(
		"sift_llm_tokens_total",
		metric.WithDescription("Total tokens exchanged with LLM providers, by direction"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}

	llmCost, err := meter.Float64Counter(
		"sift_llm_cost_usd_total",
		metric.WithDescription("Estimated LLM spend in US dollars"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm cost counter: %w", err)
	}

	searchDuration, err := meter.Float64Histogram(
		"sift_search_duration_seconds",
		metric.WithDescription("Search and answer request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}

	vectorUpsertDuration, err := meter.Float64Histogram(
		"sift_vector_upsert_duration_seconds",
		metric.WithDescription("Vector store upsert batch duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector upsert histogram: %w", err)
	}

	return NewPrometheusMetrics(
		registry,
		ingestDuration,
		ingestDocs,
		chunksIndexed,
		llmDuration,
		llmTokens,
		llmCost,
		searchDuration,
		vectorUpsertDuration,
	), nil
}
