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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
llms:
  primary:
    type: openai
    model: gpt-4o-mini
    api_key: test-key
    timeout: 45s
router:
  chain: [primary]
  daily_budget_usd: 5.0
search:
  top_k: 12
  alpha: 0.7
`)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()

	if cfg.LLMs["primary"].Timeout != 45*time.Second {
		t.Errorf("duration hook failed: timeout = %v", cfg.LLMs["primary"].Timeout)
	}
	if cfg.Router.DailyBudgetUSD == nil || *cfg.Router.DailyBudgetUSD != 5.0 {
		t.Errorf("daily_budget_usd = %v, want 5.0", cfg.Router.DailyBudgetUSD)
	}
	if cfg.Search.TopK != 12 {
		t.Errorf("top_k = %d, want 12", cfg.Search.TopK)
	}
	if cfg.Search.Alpha != 0.7 {
		t.Errorf("alpha = %g, want 0.7", cfg.Search.Alpha)
	}
	// defaults fill the rest
	if cfg.Search.MMRLambda != 0.5 {
		t.Errorf("mmr_lambda default = %g, want 0.5", cfg.Search.MMRLambda)
	}
}

func TestLoadConfigFile_EnvExpansion(t *testing.T) {
	t.Setenv("SIFT_TEST_KEY", "expanded-key")
	t.Setenv("SIFT_TEST_MODEL", "")

	path := writeConfigFile(t, `
llms:
  primary:
    type: openai
    model: ${SIFT_TEST_MODEL:-gpt-4o-mini}
    api_key: ${SIFT_TEST_KEY}
`)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()

	if cfg.LLMs["primary"].APIKey != "expanded-key" {
		t.Errorf("api_key = %q, want expanded-key", cfg.LLMs["primary"].APIKey)
	}
	if cfg.LLMs["primary"].Model != "gpt-4o-mini" {
		t.Errorf("default expansion failed: model = %q", cfg.LLMs["primary"].Model)
	}
}

func TestLoadConfigFile_NotFound(t *testing.T) {
	_, _, err := LoadConfigFile(context.Background(), "/nonexistent/sift.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoadConfigFile_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "llms:\n  - broken: [unclosed\n")

	_, _, err := LoadConfigFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadConfigFile_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, `
llms:
  primary:
    type: openai
    model: gpt-4o-mini
    api_key: test-key
search:
  alpha: 1.5
`)

	_, _, err := LoadConfigFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected validation error for alpha out of range")
	}
}

func TestLoader_Watch_FileChange(t *testing.T) {
	path := writeConfigFile(t, `
llms:
  primary:
    type: openai
    model: gpt-4o-mini
    api_key: test-key
`)

	reloaded := make(chan *Config, 1)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()
	if cfg.Search.TopK != 8 {
		t.Fatalf("top_k default = %d, want 8", cfg.Search.TopK)
	}

	watched := NewLoader(loader.Provider(), WithOnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = watched.Watch(ctx)
	}()

	// Give the watcher a moment to attach before writing.
	time.Sleep(200 * time.Millisecond)

	updated := `
llms:
  primary:
    type: openai
    model: gpt-4o-mini
    api_key: test-key
search:
  top_k: 3
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to update config file: %v", err)
	}

	select {
	case c := <-reloaded:
		if c.Search.TopK != 3 {
			t.Errorf("reloaded top_k = %d, want 3", c.Search.TopK)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.LLMs) == 0 {
		t.Fatal("default config must declare an LLM")
	}
	if cfg.VectorStore.Type != "chromem" {
		t.Errorf("default vector store = %s, want chromem", cfg.VectorStore.Type)
	}
	if cfg.Database.Database != ".sift/catalog.db" {
		t.Errorf("default catalog path = %s", cfg.Database.Database)
	}
}
