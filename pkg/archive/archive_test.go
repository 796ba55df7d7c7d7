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

package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("original document bytes")
	hash, err := a.Store(data)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	sum := sha256.Sum256(data)
	if want := hex.EncodeToString(sum[:]); hash != want {
		t.Errorf("hash = %s, want %s", hash, want)
	}
	if !a.Has(hash) {
		t.Error("Has = false after Store")
	}
	if !strings.HasSuffix(a.Path(hash), filepath.Join(hash[:2], hash+".bin")) {
		t.Errorf("Path = %s, want {root}/%s/%s.bin layout", a.Path(hash), hash[:2], hash)
	}

	got, err := a.Read(hash)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read = %q, want %q", got, data)
	}
}

func TestStoreIdempotent(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("same bytes twice")
	first, err := a.Store(data)
	if err != nil {
		t.Fatalf("first Store: %v", err)
	}
	second, err := a.Store(data)
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}
	if first != second {
		t.Errorf("hashes differ: %s vs %s", first, second)
	}

	got, err := a.Read(first)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("blob corrupted after re-store: %q", got)
	}

	// Exactly one blob file in the bucket, no leftover temp files.
	entries, err := os.ReadDir(filepath.Dir(a.Path(first)))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("bucket has %d entries, want 1", len(entries))
	}
}

func TestDistinctBytesDistinctBlobs(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h1, err := a.Store([]byte("one"))
	if err != nil {
		t.Fatalf("Store one: %v", err)
	}
	h2, err := a.Store([]byte("two"))
	if err != nil {
		t.Fatalf("Store two: %v", err)
	}
	if h1 == h2 {
		t.Error("distinct bytes produced the same hash")
	}
	if !a.Has(h1) || !a.Has(h2) {
		t.Error("both blobs should exist")
	}
}

func TestUnknownHash(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	unknown := strings.Repeat("ab", 32)
	if a.Has(unknown) {
		t.Error("Has = true for unknown hash")
	}
	if _, err := a.Read(unknown); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read unknown: err = %v, want os.ErrNotExist", err)
	}
}

func TestImplausibleHash(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := a.Path(""); got != "" {
		t.Errorf("Path(\"\") = %q, want empty", got)
	}
	if a.Has("x") {
		t.Error("Has = true for one-char hash")
	}
	if _, err := a.Read(""); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read(\"\"): err = %v, want os.ErrNotExist", err)
	}
}

func TestNewCreatesNestedRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "deep", "archive")
	if _, err := New(root); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root not created: %v", err)
	}

	if _, err := New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}
