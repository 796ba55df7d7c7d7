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

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
)

// ConsulProvider loads config from a Consul KV key and watches it with
// blocking queries.
type ConsulProvider struct {
	client *api.Client
	key    string
}

// NewConsulProvider creates a provider backed by Consul KV.
func NewConsulProvider(endpoints []string, key string) (*ConsulProvider, error) {
	if key == "" {
		return nil, fmt.Errorf("consul key is required")
	}

	cfg := api.DefaultConfig()
	if len(endpoints) > 0 {
		cfg.Address = endpoints[0]
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulProvider{
		client: client,
		key:    key,
	}, nil
}

// Type returns TypeConsul.
func (p *ConsulProvider) Type() Type {
	return TypeConsul
}

// Load reads the config key from Consul KV.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)
	pair, _, err := p.client.KV().Get(p.key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read consul key %s: %w", p.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s not found", p.key)
	}
	return pair.Value, nil
}

// Watch polls the key with Consul blocking queries and signals when the
// modify index advances.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	// Establish the baseline index first so the watch only reports
	// changes after this point.
	opts := (&api.QueryOptions{}).WithContext(ctx)
	_, meta, err := p.client.KV().Get(p.key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start consul watch: %w", err)
	}

	ch := make(chan struct{}, 1)
	go p.watchLoop(ctx, meta.LastIndex, ch)

	slog.Info("Watching consul key", "key", p.key)
	return ch, nil
}

func (p *ConsulProvider) watchLoop(ctx context.Context, lastIndex uint64, ch chan<- struct{}) {
	defer close(ch)

	for {
		opts := (&api.QueryOptions{
			WaitIndex: lastIndex,
			WaitTime:  5 * time.Minute,
		}).WithContext(ctx)

		_, meta, err := p.client.KV().Get(p.key, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Consul watch error", "key", p.key, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Index must advance strictly; equal means the blocking query
		// timed out without a change.
		if meta.LastIndex > lastIndex {
			lastIndex = meta.LastIndex
			select {
			case ch <- struct{}{}:
			default:
			}
		} else if meta.LastIndex < lastIndex {
			// Index reset (e.g. KV deleted and recreated); resync.
			lastIndex = meta.LastIndex
		}
	}
}

// Close releases resources. The Consul client has no explicit close.
func (p *ConsulProvider) Close() error {
	return nil
}

// Ensure ConsulProvider implements Provider
var _ Provider = (*ConsulProvider)(nil)
