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
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/sift/pkg/config"
)

// Registry holds the configured providers by name. The router resolves
// chain entries against it.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]LLMProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]LLMProvider)}
}

// NewRegistryFromConfig instantiates and registers every configured
// provider. On failure, already-created providers are closed.
func NewRegistryFromConfig(llms map[string]*config.LLMConfig) (*Registry, error) {
	r := NewRegistry()
	for name, cfg := range llms {
		provider, err := NewProvider(cfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create LLM provider %q: %w", name, err)
		}
		if err := r.Register(name, provider); err != nil {
			provider.Close()
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// NewProvider creates a provider for a single config entry.
func NewProvider(cfg *config.LLMConfig) (LLMProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("LLM config cannot be nil")
	}
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "gemini":
		return NewGeminiProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM type: %s (supported: openai, anthropic, gemini, ollama)", cfg.Type)
	}
}

// Register adds a provider under a name.
func (r *Registry) Register(name string, provider LLMProvider) error {
	if name == "" {
		return fmt.Errorf("LLM name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("LLM provider cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("LLM provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("LLM provider %q not found", name)
	}
	return provider, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, provider := range r.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.providers = make(map[string]LLMProvider)
	return errors.Join(errs...)
}
