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
	"time"

	"go.opentelemetry.io/otel/trace/noop"
)

// NoopManager returns a Manager with telemetry disabled entirely. Use it when
// no observability configuration is present.
func NoopManager() *Manager {
	return &Manager{
		tracerProvider: noop.NewTracerProvider(),
		metrics:        NoopMetrics{},
	}
}

// NoopMetrics discards all recordings.
type NoopMetrics struct{}

func (NoopMetrics) RecordIngest(context.Context, string, time.Duration, int) {}

func (NoopMetrics) RecordLLMCall(context.Context, string, string, string, time.Duration, int, int, float64, error) {
}

func (NoopMetrics) RecordSearch(context.Context, string, time.Duration) {}

func (NoopMetrics) RecordVectorUpsert(context.Context, time.Duration) {}

// Handler responds 503 so scrapers can tell metrics are off.
func (NoopMetrics) Handler() http.Handler {
	return unavailableHandler()
}

func unavailableHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

var (
	_ Metrics = (*PrometheusMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
