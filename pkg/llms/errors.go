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
	"fmt"
	"strings"
)

// BudgetExceededError is returned by the router when the day's recorded
// spend has reached the configured cap. Callers may degrade gracefully
// (skip enrichment, refuse synthesis) instead of failing the operation.
type BudgetExceededError struct {
	SpentUSD  float64
	BudgetUSD float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily LLM budget exceeded: spent $%.4f of $%.2f", e.SpentUSD, e.BudgetUSD)
}

// Attempt records one failed provider call during a routed request.
type Attempt struct {
	Provider string
	Model    string
	Err      error
}

// ProvidersExhaustedError is returned when every provider in the chain
// failed. Attempts preserves the per-provider failures in try order.
type ProvidersExhaustedError struct {
	Attempts []Attempt
}

func (e *ProvidersExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no LLM providers available"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s/%s: %v", a.Provider, a.Model, a.Err))
	}
	return fmt.Sprintf("all %d LLM providers failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the last attempt's error for errors.Is/As chains.
func (e *ProvidersExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}
