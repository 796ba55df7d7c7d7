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

// Package dedup detects exact and near duplicates of ingested text.
//
// Exact duplicates are SHA-256 collisions over whitespace-normalized text.
// Near duplicates are 64-bit SimHash fingerprints within a small Hamming
// distance; the fingerprint hashes sliding token shingles so reorderings
// and small edits land close while unrelated text lands far.
//
// The Index performs check-and-insert atomically under one mutex: two
// identical documents racing through ingestion yield exactly one winner,
// and the loser's error names the winner's id.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/kadirpekel/sift/pkg/config"
)

// DuplicateError reports a rejected ingest. DocID names the document
// already holding the content. Near distinguishes the advisory SimHash
// match, which callers may override, from the fatal exact-hash match.
type DuplicateError struct {
	DocID string
	Near  bool
}

func (e *DuplicateError) Error() string {
	if e.Near {
		return fmt.Sprintf("near-duplicate of document %s", e.DocID)
	}
	return fmt.Sprintf("exact duplicate of document %s", e.DocID)
}

// Signature is the pair of identities computed for one text.
type Signature struct {
	// Hash is the SHA-256 of the normalized text, lowercase hex.
	Hash string

	// Fingerprint is the 64-bit SimHash over token shingles.
	Fingerprint uint64
}

// Normalize trims the text and collapses whitespace runs to single
// spaces. Hashing always runs over the normalized form, so trailing
// whitespace and indentation changes do not defeat exact-match detection.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Sign computes the content hash and SimHash fingerprint for text.
func Sign(text string, shingleSize int) Signature {
	normalized := Normalize(text)
	sum := sha256.Sum256([]byte(normalized))
	return Signature{
		Hash:        hex.EncodeToString(sum[:]),
		Fingerprint: simhash(normalized, shingleSize),
	}
}

// FormatFingerprint renders a fingerprint as fixed-width hex for storage.
func FormatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

// ParseFingerprint reads a fingerprint stored by FormatFingerprint.
func ParseFingerprint(s string) (uint64, error) {
	fp, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return fp, nil
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// simhash folds FNV-1a-hashed shingles of shingleSize tokens into a
// 64-bit fingerprint (Charikar construction). Texts shorter than one
// shingle hash as a single shingle of all their tokens.
func simhash(text string, shingleSize int) uint64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	if shingleSize < 1 {
		shingleSize = 1
	}

	windows := len(tokens) - shingleSize + 1
	if windows < 1 {
		windows = 1
	}

	var weights [64]int
	for i := 0; i < windows; i++ {
		end := i + shingleSize
		if end > len(tokens) {
			end = len(tokens)
		}
		h := fnv.New64a()
		for j := i; j < end; j++ {
			h.Write([]byte(tokens[j]))
			h.Write([]byte{0})
		}
		v := h.Sum64()
		for b := 0; b < 64; b++ {
			if v&(1<<uint(b)) != 0 {
				weights[b]++
			} else {
				weights[b]--
			}
		}
	}

	var fp uint64
	for b := 0; b < 64; b++ {
		if weights[b] > 0 {
			fp |= 1 << uint(b)
		}
	}
	return fp
}

// tokenize lowercases and splits on anything that is not a letter or
// digit, so punctuation and spacing changes do not move the fingerprint.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// entry is one fingerprinted document in the index.
type entry struct {
	fingerprint uint64
	docID       string
}

// Index is the in-memory duplicate registry. It is rebuilt from the
// catalog at startup and kept current by the ingest pipeline.
type Index struct {
	mu        sync.Mutex
	threshold int
	byHash    map[string]string
	entries   []entry
	byDoc     map[string]int
}

// NewIndex creates an empty index with the configured Hamming threshold.
func NewIndex(cfg config.DedupConfig) *Index {
	return &Index{
		threshold: cfg.HammingThreshold,
		byHash:    make(map[string]string),
		byDoc:     make(map[string]int),
	}
}

// CheckAndInsert registers sig under docID unless the content is already
// present. An exact hash hit always fails. A fingerprint within the
// Hamming threshold fails unless overrideNear is set, in which case the
// document is registered anyway. The check and the insert happen under
// one lock, so concurrent identical ingests elect exactly one winner.
func (ix *Index) CheckAndInsert(sig Signature, docID string, overrideNear bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if winner, ok := ix.byHash[sig.Hash]; ok {
		return &DuplicateError{DocID: winner}
	}
	if !overrideNear {
		for _, e := range ix.entries {
			if Distance(e.fingerprint, sig.Fingerprint) <= ix.threshold {
				return &DuplicateError{DocID: e.docID, Near: true}
			}
		}
	}

	ix.insertLocked(sig, docID)
	return nil
}

// Add registers a known document without duplicate checks. Used when
// rebuilding the index from the catalog.
func (ix *Index) Add(sig Signature, docID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(sig, docID)
}

func (ix *Index) insertLocked(sig Signature, docID string) {
	ix.byHash[sig.Hash] = docID
	ix.byDoc[docID] = len(ix.entries)
	ix.entries = append(ix.entries, entry{fingerprint: sig.Fingerprint, docID: docID})
}

// Remove forgets a document, re-admitting its content. Called on delete
// and when rolling back a failed ingest.
func (ix *Index) Remove(docID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	pos, ok := ix.byDoc[docID]
	if !ok {
		return
	}
	delete(ix.byDoc, docID)

	for hash, owner := range ix.byHash {
		if owner == docID {
			delete(ix.byHash, hash)
			break
		}
	}

	last := len(ix.entries) - 1
	if pos != last {
		ix.entries[pos] = ix.entries[last]
		ix.byDoc[ix.entries[pos].docID] = pos
	}
	ix.entries = ix.entries[:last]
}

// Len reports how many documents the index holds.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}
