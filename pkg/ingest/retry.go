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

package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/kadirpekel/sift/pkg/config"
)

// retrier reruns transient store operations with exponential backoff.
type retrier struct {
	cfg   config.RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetrier(cfg config.RetryConfig) retrier {
	return retrier{cfg: cfg, sleep: sleepCtx}
}

// do runs fn up to 1+MaxRetries times. Delays double from BaseDelay,
// capped at MaxDelay. Context errors end the loop immediately and are
// returned as-is; exhausting the retries yields a StorageError.
func (r retrier) do(ctx context.Context, op string, fn func() error) error {
	delay := r.cfg.BaseDelay
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= r.cfg.MaxRetries {
			break
		}
		slog.Warn("retrying storage operation",
			"op", op, "attempt", attempt+1, "delay", delay, "error", err)
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
	return &StorageError{Op: op, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
