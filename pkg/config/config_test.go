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

import (
	"strings"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := &Config{
		LLMs: map[string]*LLMConfig{
			"primary": {
				Type:   "openai",
				Model:  "gpt-4o-mini",
				APIKey: "test-key",
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	cfg := testConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	if cfg.Router.Chain[0] != "primary" {
		t.Errorf("expected router chain [primary], got %v", cfg.Router.Chain)
	}
	if cfg.VectorStore.Type != "chromem" {
		t.Errorf("expected chromem default, got %s", cfg.VectorStore.Type)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite default, got %s", cfg.Database.Driver)
	}
	if cfg.Search.Alpha != 0.6 {
		t.Errorf("expected alpha 0.6, got %g", cfg.Search.Alpha)
	}
	if cfg.Search.MMRLambda != 0.5 {
		t.Errorf("expected mmr_lambda 0.5, got %g", cfg.Search.MMRLambda)
	}
	if cfg.Ingest.Chunking.TargetTokens != 512 {
		t.Errorf("expected target_tokens 512, got %d", cfg.Ingest.Chunking.TargetTokens)
	}
	if cfg.Ingest.Dedup.HammingThreshold != 3 {
		t.Errorf("expected hamming_threshold 3, got %d", cfg.Ingest.Dedup.HammingThreshold)
	}
	if cfg.Ingest.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected base_delay 500ms, got %v", cfg.Ingest.Retry.BaseDelay)
	}
}

func TestConfig_Validate_NoLLMs(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty llms")
	}
	if !strings.Contains(err.Error(), "llms") {
		t.Errorf("error should name the llms section: %v", err)
	}
}

func TestConfig_Validate_UnknownChainEntry(t *testing.T) {
	cfg := testConfig()
	cfg.Router.Chain = []string{"primary", "missing"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown chain entry")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("error should name the unknown provider: %v", err)
	}
}

func TestGateTable_Defaults(t *testing.T) {
	gates := DefaultGates()

	want := map[string][2]float64{
		"email_thread": {0.70, 0.60},
		"chat_daily":   {0.65, 0.60},
		"pdf_report":   {0.75, 0.65},
		"web_article":  {0.70, 0.60},
		"note":         {0.60, 0.50},
		"text":         {0.65, 0.55},
		"legal":        {0.80, 0.70},
		"generic":      {0.65, 0.55},
	}

	for typ, thresholds := range want {
		gate, ok := gates[typ]
		if !ok {
			t.Errorf("missing gate for %s", typ)
			continue
		}
		if gate.MinQuality != thresholds[0] || gate.MinSignal != thresholds[1] {
			t.Errorf("gate %s = (%g,%g), want (%g,%g)",
				typ, gate.MinQuality, gate.MinSignal, thresholds[0], thresholds[1])
		}
	}
}

func TestScoringConfig_PartialOverride(t *testing.T) {
	cfg := ScoringConfig{
		Gates: map[string]GateConfig{
			"legal": {MinQuality: 0.9, MinSignal: 0.8},
		},
	}
	cfg.SetDefaults()

	if cfg.Gates["legal"].MinQuality != 0.9 {
		t.Errorf("override lost: %v", cfg.Gates["legal"])
	}
	if cfg.Gates["note"].MinQuality != 0.60 {
		t.Errorf("unlisted type should get default: %v", cfg.Gates["note"])
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "sqlite path",
			cfg:  DatabaseConfig{Driver: "sqlite", Database: ".sift/catalog.db"},
			want: ".sift/catalog.db",
		},
		{
			name: "postgres with credentials",
			cfg: DatabaseConfig{
				Driver: "postgres", Host: "db", Port: 5432,
				Database: "sift", Username: "u", Password: "p", SSLMode: "disable",
			},
			want: "host=db port=5432 dbname=sift user=u password=p sslmode=disable",
		},
		{
			name: "mysql",
			cfg: DatabaseConfig{
				Driver: "mysql", Host: "db", Port: 3306,
				Database: "sift", Username: "u", Password: "p",
			},
			want: "u:p@tcp(db:3306)/sift?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDatabaseConfig_DriverName(t *testing.T) {
	cfg := DatabaseConfig{Driver: "sqlite"}
	if cfg.DriverName() != "sqlite3" {
		t.Errorf("sqlite should map to sqlite3 driver, got %s", cfg.DriverName())
	}
	if cfg.Dialect() != "sqlite" {
		t.Errorf("dialect should be sqlite, got %s", cfg.Dialect())
	}
}

func TestVectorStoreConfig_Validate(t *testing.T) {
	cfg := VectorStoreConfig{Type: "qdrant"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("qdrant without host should fail validation")
	}

	cfg = VectorStoreConfig{Type: "pinecone", APIKey: "k"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("pinecone without index_name should fail validation")
	}

	cfg = VectorStoreConfig{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("chromem default should validate: %v", err)
	}
	if cfg.Port != 0 {
		t.Errorf("chromem should not get a port default, got %d", cfg.Port)
	}
}

func TestVocabularyConfig_Validate(t *testing.T) {
	cfg := VocabularyConfig{
		Projects: []ProjectConfig{
			{ID: "alpha", Keywords: []string{"alpha"}},
			{ID: "alpha"},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("duplicate project id should fail validation")
	}

	cfg = VocabularyConfig{
		Projects: []ProjectConfig{
			{ID: "beta", From: "2026-06-01", To: "2026-01-01"},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("inverted date range should fail validation")
	}

	cfg = VocabularyConfig{
		Projects: []ProjectConfig{
			{ID: "gamma", From: "2026-01-01", To: "2026-06-01"},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid project rejected: %v", err)
	}
}

func TestChunkingConfig_Validate(t *testing.T) {
	cfg := ChunkingConfig{TargetTokens: 300}
	cfg.MaxTokens = 800
	cfg.Tokenizer = "cl100k"
	if err := cfg.Validate(); err == nil {
		t.Error("target below 400 should fail validation")
	}

	cfg = ChunkingConfig{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLLMConfig_Validate(t *testing.T) {
	cfg := &LLMConfig{Type: "openai", Model: "gpt-4o-mini"}
	if err := cfg.Validate(); err == nil {
		t.Error("openai without api key should fail validation")
	}

	cfg = &LLMConfig{Type: "ollama", Model: "llama3.2"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("ollama without api key should validate: %v", err)
	}
	if cfg.Host == "" {
		t.Error("ollama should default its host")
	}
}

func TestExportConfig_Defaults(t *testing.T) {
	cfg := ExportConfig{}
	cfg.SetDefaults()

	if cfg.Layout != "flat" {
		t.Errorf("expected flat layout default, got %s", cfg.Layout)
	}
	if !BoolValue(cfg.Stubs, false) {
		t.Error("stubs should default to true")
	}
}
