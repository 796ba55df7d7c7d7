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

package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func newTestLimiter(at time.Time) (*Limiter, *time.Time) {
	clock := at
	l := New()
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestUnknownIdentifierAlwaysAllowed(t *testing.T) {
	l := New()
	if result := l.Allow("nobody"); !result.Allowed {
		t.Fatalf("expected unknown identifier to be allowed, got %q", result.Reason)
	}
}

func TestRequestLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	l.SetLimit("openai", Limit{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		if result := l.Allow("openai"); !result.Allowed {
			t.Fatalf("request %d unexpectedly denied: %s", i, result.Reason)
		}
	}
	result := l.Allow("openai")
	if result.Allowed {
		t.Fatal("third request should exceed the limit")
	}
	if result.Reason == "" {
		t.Error("denied result should carry a reason")
	}
	if result.RetryAfter <= 0 || result.RetryAfter > Window {
		t.Errorf("RetryAfter = %v, want within (0, %v]", result.RetryAfter, Window)
	}
}

func TestTokenLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	l.SetLimit("anthropic", Limit{TokensPerMinute: 1000})

	if result := l.Allow("anthropic"); !result.Allowed {
		t.Fatalf("first request denied: %s", result.Reason)
	}
	l.RecordTokens("anthropic", 1000)

	result := l.Allow("anthropic")
	if result.Allowed {
		t.Fatal("request should be denied once token budget is consumed")
	}
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(time.Now())
	l.SetLimit("openai", Limit{RequestsPerMinute: 1})

	if result := l.Allow("openai"); !result.Allowed {
		t.Fatalf("first request denied: %s", result.Reason)
	}
	if result := l.Allow("openai"); result.Allowed {
		t.Fatal("second request within the window should be denied")
	}

	*clock = clock.Add(Window + time.Second)
	if result := l.Allow("openai"); !result.Allowed {
		t.Fatalf("request after window expiry denied: %s", result.Reason)
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	l.SetLimit("openai", Limit{RequestsPerMinute: 1})

	for i := 0; i < 5; i++ {
		if result := l.Check("openai"); !result.Allowed {
			t.Fatalf("check %d denied although nothing was recorded", i)
		}
	}
}

func TestUsageSnapshot(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	l.SetLimit("openai", Limit{RequestsPerMinute: 10, TokensPerMinute: 500})

	l.Allow("openai")
	l.RecordTokens("openai", 120)

	usages := l.Usage("openai")
	if len(usages) != 2 {
		t.Fatalf("expected 2 usage dimensions, got %d", len(usages))
	}
	byKind := map[string]Usage{}
	for _, u := range usages {
		byKind[u.Kind] = u
	}
	if got := byKind["requests"]; got.Current != 1 || got.Remaining != 9 {
		t.Errorf("requests usage = %+v, want current 1 remaining 9", got)
	}
	if got := byKind["tokens"]; got.Current != 120 || got.Remaining != 380 {
		t.Errorf("tokens usage = %+v, want current 120 remaining 380", got)
	}
}

func TestConcurrentAllow(t *testing.T) {
	l := New()
	l.SetLimit("openai", Limit{RequestsPerMinute: 50})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if result := l.Allow("openai"); result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}
