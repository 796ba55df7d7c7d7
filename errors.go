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

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/dedup"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/ingest"
	"github.com/kadirpekel/sift/pkg/llms"
	"github.com/kadirpekel/sift/pkg/retrieval"
)

// Error kinds form a closed vocabulary for result records, logs, and
// CLI output. KindEnrichmentDegraded and KindGatedOut never classify a
// Go error; they appear only as fields on ingest results.
const (
	KindExtractionFailed     = "extraction_failed"
	KindDuplicate            = "duplicate"
	KindNearDuplicate        = "near_duplicate"
	KindEnrichmentDegraded   = "enrichment_degraded"
	KindGatedOut             = "gated_out"
	KindStorageFailed        = "storage_failed"
	KindBudgetExceeded       = "budget_exceeded"
	KindInsufficientEvidence = "insufficient_evidence"
	KindAborted              = "aborted"
	KindInvalidInput         = "invalid_input"
	KindInternal             = "internal"
)

// ErrorKind classifies err into one of the Kind constants, traversing
// wrapped and joined errors. Typed errors win over bare context errors
// so that a per-attempt timeout buried inside a storage failure still
// reports as storage_failed; a nil err returns "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var dupErr *dedup.DuplicateError
	if errors.As(err, &dupErr) {
		if dupErr.Near {
			return KindNearDuplicate
		}
		return KindDuplicate
	}
	var extractErr *extract.ExtractionError
	if errors.As(err, &extractErr) {
		return KindExtractionFailed
	}
	var inputErr *ingest.InputError
	if errors.As(err, &inputErr) {
		return KindInvalidInput
	}
	var storageErr *ingest.StorageError
	if errors.As(err, &storageErr) {
		return KindStorageFailed
	}
	var budgetErr *llms.BudgetExceededError
	if errors.As(err, &budgetErr) {
		return KindBudgetExceeded
	}
	var evidenceErr *retrieval.InsufficientEvidenceError
	if errors.As(err, &evidenceErr) {
		return KindInsufficientEvidence
	}
	var notFoundErr *catalog.NotFoundError
	if errors.As(err, &notFoundErr) {
		return KindInvalidInput
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindAborted
	}
	return KindInternal
}
