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

package sift

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/dedup"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/ingest"
	"github.com/kadirpekel/sift/pkg/llms"
	"github.com/kadirpekel/sift/pkg/retrieval"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: "",
		},
		{
			name: "exact duplicate",
			err:  &dedup.DuplicateError{DocID: "doc-1"},
			want: KindDuplicate,
		},
		{
			name: "near duplicate",
			err:  &dedup.DuplicateError{DocID: "doc-1", Near: true},
			want: KindNearDuplicate,
		},
		{
			name: "wrapped duplicate",
			err:  fmt.Errorf("ingest a.md: %w", &dedup.DuplicateError{DocID: "doc-1"}),
			want: KindDuplicate,
		},
		{
			name: "extraction failure",
			err:  &extract.ExtractionError{Filename: "a.pdf", Err: errors.New("bad xref")},
			want: KindExtractionFailed,
		},
		{
			name: "invalid input",
			err:  &ingest.InputError{Reason: "input is empty"},
			want: KindInvalidInput,
		},
		{
			name: "storage failure",
			err:  &ingest.StorageError{Op: "vector upsert", Err: errors.New("connection refused")},
			want: KindStorageFailed,
		},
		{
			name: "budget exceeded",
			err:  &llms.BudgetExceededError{SpentUSD: 5.20, BudgetUSD: 5},
			want: KindBudgetExceeded,
		},
		{
			name: "insufficient evidence",
			err:  &retrieval.InsufficientEvidenceError{Coverage: 1, Top: 0.2},
			want: KindInsufficientEvidence,
		},
		{
			name: "unknown document",
			err:  &catalog.NotFoundError{DocID: "ghost"},
			want: KindInvalidInput,
		},
		{
			name: "cancellation",
			err:  context.Canceled,
			want: KindAborted,
		},
		{
			name: "wrapped deadline",
			err:  fmt.Errorf("ingest: %w", context.DeadlineExceeded),
			want: KindAborted,
		},
		{
			name: "unclassified",
			err:  errors.New("mystery"),
			want: KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

// A timeout inside a retried store operation belongs to the storage
// failure, not to the caller's context.
func TestErrorKindStorageTimeoutPrecedence(t *testing.T) {
	err := &ingest.StorageError{Op: "embed", Err: context.DeadlineExceeded}
	assert.Equal(t, KindStorageFailed, ErrorKind(err))
}

// Multi-item ingest joins per-item errors; classification still finds
// the typed error inside.
func TestErrorKindJoined(t *testing.T) {
	err := errors.Join(
		fmt.Errorf("item 2: %w", &dedup.DuplicateError{DocID: "doc-1", Near: true}),
		nil,
	)
	assert.Equal(t, KindNearDuplicate, ErrorKind(err))
}

// Provider chains unwrap to their last attempt, so a budget stop deep
// in the chain keeps its specific kind.
func TestErrorKindProvidersExhausted(t *testing.T) {
	err := &llms.ProvidersExhaustedError{
		Attempts: []llms.Attempt{
			{Provider: "openai", Model: "gpt-5", Err: errors.New("429")},
			{Provider: "local", Model: "llama3.3", Err: &llms.BudgetExceededError{SpentUSD: 3, BudgetUSD: 3}},
		},
	}
	assert.Equal(t, KindBudgetExceeded, ErrorKind(err))
}
