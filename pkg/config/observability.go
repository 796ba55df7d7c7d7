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

import "fmt"

// ObservabilityConfig configures OpenTelemetry metrics and tracing.
//
// Example YAML:
//
//	observability:
//	  enabled: true
//	  tracing_enabled: true
//	  otlp_endpoint: localhost:4317
//	  sample_rate: 0.1
type ObservabilityConfig struct {
	// Enabled is the master switch.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled"`

	// MetricsEnabled turns on the Prometheus-backed meter provider.
	MetricsEnabled *bool `yaml:"metrics_enabled,omitempty" json:"metrics_enabled,omitempty" jsonschema:"title=Metrics Enabled,default=true"`

	// TracingEnabled turns on OTLP trace export.
	TracingEnabled bool `yaml:"tracing_enabled,omitempty" json:"tracing_enabled,omitempty" jsonschema:"title=Tracing Enabled"`

	// OTLPEndpoint is the gRPC collector endpoint for traces.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty" jsonschema:"title=OTLP Endpoint"`

	// SampleRate is the trace sampling ratio.
	SampleRate float64 `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty" jsonschema:"title=Sample Rate,minimum=0,maximum=1,default=1"`

	// ServiceName tags exported telemetry.
	ServiceName string `yaml:"service_name,omitempty" json:"service_name,omitempty" jsonschema:"title=Service Name,default=sift"`
}

// SetDefaults applies default values.
func (c *ObservabilityConfig) SetDefaults() {
	if c.MetricsEnabled == nil {
		c.MetricsEnabled = BoolPtr(true)
	}
	if c.OTLPEndpoint == "" {
		c.OTLPEndpoint = "localhost:4317"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.ServiceName == "" {
		c.ServiceName = "sift"
	}
}

// Validate checks the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be in [0,1]")
	}
	if c.Enabled && c.TracingEnabled && c.OTLPEndpoint == "" {
		return fmt.Errorf("otlp_endpoint is required when tracing is enabled")
	}
	return nil
}
