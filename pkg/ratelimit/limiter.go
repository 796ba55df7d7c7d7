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

// Package ratelimit provides a per-identifier sliding-window limiter for
// request and token budgets. The LLM router consults it before every
// provider call; a denied check is treated as a provider failure and the
// chain moves on.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Window is the span over which per-minute limits are evaluated.
const Window = time.Minute

// Limit holds the per-minute caps for one identifier. Zero means no cap
// on that dimension.
type Limit struct {
	RequestsPerMinute int64
	TokensPerMinute   int64
}

// Usage is a point-in-time snapshot of one limited dimension.
type Usage struct {
	Kind      string // "requests" or "tokens"
	Current   int64
	Limit     int64
	Remaining int64
}

// CheckResult reports whether a call may proceed. When it may not,
// Reason names the exhausted dimension and RetryAfter estimates when the
// oldest window entry expires.
type CheckResult struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
	Usages     []Usage
}

type event struct {
	at     time.Time
	tokens int64
}

// Limiter tracks request and token usage per identifier over a sliding
// one-minute window. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[string][]event

	now func() time.Time
}

// New creates an empty limiter. Identifiers without a registered limit
// are always allowed.
func New() *Limiter {
	return &Limiter{
		limits:  make(map[string]Limit),
		windows: make(map[string][]event),
		now:     time.Now,
	}
}

// SetLimit registers or replaces the caps for an identifier.
func (l *Limiter) SetLimit(name string, limit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[name] = limit
}

// Check reports whether one more request would stay within the caps. It
// records nothing.
func (l *Limiter) Check(name string) *CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(name, l.now())
}

// Allow checks the caps and, when the call may proceed, records one
// request in the window. Token usage is reported separately through
// RecordTokens once the call completes and real counts are known.
func (l *Limiter) Allow(name string) *CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	result := l.checkLocked(name, now)
	if !result.Allowed {
		return result
	}
	l.windows[name] = append(l.windows[name], event{at: now})
	return result
}

// RecordTokens attributes measured token usage to the identifier's
// current window.
func (l *Limiter) RecordTokens(name string, tokens int64) {
	if tokens <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows[name] = append(l.windows[name], event{at: l.now(), tokens: tokens})
}

// Usage returns the current window totals for an identifier.
func (l *Limiter) Usage(name string) []Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := l.checkLocked(name, l.now())
	return result.Usages
}

// checkLocked prunes expired events and evaluates both dimensions.
// Callers hold l.mu.
func (l *Limiter) checkLocked(name string, now time.Time) *CheckResult {
	limit, ok := l.limits[name]
	if !ok || (limit.RequestsPerMinute <= 0 && limit.TokensPerMinute <= 0) {
		return &CheckResult{Allowed: true}
	}

	events := l.pruneLocked(name, now)

	var requests, tokens int64
	var oldest time.Time
	for _, e := range events {
		if oldest.IsZero() || e.at.Before(oldest) {
			oldest = e.at
		}
		if e.tokens > 0 {
			tokens += e.tokens
		} else {
			requests++
		}
	}

	result := &CheckResult{Allowed: true}
	if limit.RequestsPerMinute > 0 {
		result.Usages = append(result.Usages, usageOf("requests", requests, limit.RequestsPerMinute))
		if requests >= limit.RequestsPerMinute {
			result.Allowed = false
			result.Reason = fmt.Sprintf("request limit reached (%d/%d per minute)", requests, limit.RequestsPerMinute)
		}
	}
	if limit.TokensPerMinute > 0 {
		result.Usages = append(result.Usages, usageOf("tokens", tokens, limit.TokensPerMinute))
		if tokens >= limit.TokensPerMinute {
			result.Allowed = false
			if result.Reason == "" {
				result.Reason = fmt.Sprintf("token limit reached (%d/%d per minute)", tokens, limit.TokensPerMinute)
			}
		}
	}

	if !result.Allowed && !oldest.IsZero() {
		if retry := oldest.Add(Window).Sub(now); retry > 0 {
			result.RetryAfter = retry
		}
	}
	return result
}

// pruneLocked drops events older than the window. Callers hold l.mu.
func (l *Limiter) pruneLocked(name string, now time.Time) []event {
	events := l.windows[name]
	cutoff := now.Add(-Window)
	keep := events[:0]
	for _, e := range events {
		if e.at.After(cutoff) {
			keep = append(keep, e)
		}
	}
	l.windows[name] = keep
	return keep
}

func usageOf(kind string, current, limit int64) Usage {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Kind: kind, Current: current, Limit: limit, Remaining: remaining}
}
