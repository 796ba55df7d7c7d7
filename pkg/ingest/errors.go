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

import "fmt"

// InputError rejects an input before any pipeline work: empty data,
// an oversized file, or an operation aimed at a document in the wrong
// state.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

// StorageError reports a store operation that kept failing after the
// configured retries.
type StorageError struct {
	// Op names the failing operation ("embed", "vector upsert", ...).
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
