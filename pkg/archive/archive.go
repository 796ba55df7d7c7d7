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

// Package archive stores original document bytes in a hash-addressed,
// write-once blob layout: {root}/{hash[:2]}/{hash}.bin. The address is
// the SHA-256 of the bytes themselves, so re-archiving identical input
// is a no-op and blobs never change after the first write.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Archive is a blob store rooted at one directory.
type Archive struct {
	root string
}

// New opens (creating if needed) an archive rooted at dir.
func New(dir string) (*Archive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive root cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &Archive{root: dir}, nil
}

// Store writes data under its own SHA-256 address and returns the hex
// hash. Storing bytes that are already present leaves the existing blob
// untouched.
func (a *Archive) Store(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	path := a.Path(hash)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive bucket: %w", err)
	}

	// Write to a temp file in the same directory and rename, so a
	// crashed write never leaves a half-blob at the final address.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("failed to create archive temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write archive blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close archive blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize archive blob: %w", err)
	}

	slog.Debug("archived original bytes", "hash", hash, "bytes", len(data))
	return hash, nil
}

// Path maps a hash to its blob location. It does not check existence;
// use Has for that. An implausible hash maps to "".
func (a *Archive) Path(hash string) string {
	if len(hash) < 2 {
		return ""
	}
	return filepath.Join(a.root, hash[:2], hash+".bin")
}

// Has reports whether a blob exists for the hash.
func (a *Archive) Has(hash string) bool {
	path := a.Path(hash)
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Read returns the blob bytes for the hash. Missing blobs return an
// error wrapping os.ErrNotExist.
func (a *Archive) Read(hash string) ([]byte, error) {
	path := a.Path(hash)
	if path == "" {
		return nil, fmt.Errorf("invalid archive hash %q: %w", hash, os.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive blob: %w", err)
	}
	return data, nil
}
