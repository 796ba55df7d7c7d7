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

// Package sparse maintains the in-process BM25 index over the chunk
// population. It is the lexical counterpart to the dense vector store:
// the same chunks live in both, keyed by the same chunk ids, and hybrid
// retrieval unions the two candidate lists. The index is rebuilt from
// the catalog on startup.
package sparse

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Okapi BM25 parameters.
const (
	k1 = 1.6
	b  = 0.75
)

// termPattern matches letter runs (combining marks included) and digit
// runs, so accented and non-Latin scripts tokenize usefully.
var termPattern = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

// Entry is one chunk to index.
type Entry struct {
	ChunkID string
	Text    string
}

// Result is one lexical match, scores unnormalized BM25.
type Result struct {
	ChunkID string
	DocID   string
	Score   float64
}

// Index is a BM25 inverted index. Reads run concurrently; writes take
// an exclusive lock held only for the duration of the add or remove.
type Index struct {
	mu          sync.RWMutex
	postings    map[string]map[string]int // term -> chunk id -> tf
	docFreq     map[string]int            // term -> number of chunks containing it
	lengths     map[string]int            // chunk id -> term count
	chunkTerms  map[string]map[string]int // chunk id -> term -> tf, for removal
	byDoc       map[string][]string       // doc id -> chunk ids
	docOf       map[string]string         // chunk id -> doc id
	totalLength int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		postings:   make(map[string]map[string]int),
		docFreq:    make(map[string]int),
		lengths:    make(map[string]int),
		chunkTerms: make(map[string]map[string]int),
		byDoc:      make(map[string][]string),
		docOf:      make(map[string]string),
	}
}

// Add indexes a single chunk. Re-adding a chunk id replaces its old
// entry. Text that yields no terms is not indexed.
func (ix *Index) Add(docID, chunkID, text string) {
	ix.AddBatch(docID, []Entry{{ChunkID: chunkID, Text: text}})
}

// AddBatch indexes all chunks of one document under a single lock
// acquisition. Ingest writes one batch per document.
func (ix *Index) AddBatch(docID string, entries []Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, e := range entries {
		ix.addLocked(docID, e.ChunkID, e.Text)
	}
}

func (ix *Index) addLocked(docID, chunkID, text string) {
	if prev, ok := ix.docOf[chunkID]; ok {
		ix.removeChunkLocked(prev, chunkID)
	}
	terms := tokenize(text)
	if len(terms) == 0 {
		return
	}

	tfs := make(map[string]int, len(terms))
	for _, term := range terms {
		tfs[term]++
	}
	for term, tf := range tfs {
		posting := ix.postings[term]
		if posting == nil {
			posting = make(map[string]int)
			ix.postings[term] = posting
		}
		posting[chunkID] = tf
		ix.docFreq[term]++
	}
	ix.chunkTerms[chunkID] = tfs
	ix.lengths[chunkID] = len(terms)
	ix.totalLength += len(terms)
	ix.docOf[chunkID] = docID
	ix.byDoc[docID] = append(ix.byDoc[docID], chunkID)
}

// RemoveByDoc drops every chunk of the document and returns how many
// were removed.
func (ix *Index) RemoveByDoc(docID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	chunkIDs := ix.byDoc[docID]
	for _, chunkID := range chunkIDs {
		ix.dropChunkLocked(chunkID)
		delete(ix.docOf, chunkID)
	}
	delete(ix.byDoc, docID)
	return len(chunkIDs)
}

// removeChunkLocked unindexes one chunk including its doc bookkeeping.
func (ix *Index) removeChunkLocked(docID, chunkID string) {
	ix.dropChunkLocked(chunkID)
	delete(ix.docOf, chunkID)
	ids := ix.byDoc[docID]
	for i, id := range ids {
		if id == chunkID {
			ix.byDoc[docID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ix.byDoc[docID]) == 0 {
		delete(ix.byDoc, docID)
	}
}

// dropChunkLocked reverses the posting and length bookkeeping only.
func (ix *Index) dropChunkLocked(chunkID string) {
	tfs, ok := ix.chunkTerms[chunkID]
	if !ok {
		return
	}
	for term := range tfs {
		posting := ix.postings[term]
		delete(posting, chunkID)
		if len(posting) == 0 {
			delete(ix.postings, term)
		}
		ix.docFreq[term]--
		if ix.docFreq[term] <= 0 {
			delete(ix.docFreq, term)
		}
	}
	ix.totalLength -= ix.lengths[chunkID]
	delete(ix.lengths, chunkID)
	delete(ix.chunkTerms, chunkID)
}

// Query scores the indexed chunks against the query terms and returns
// up to topK results, best first. Ties order by chunk id so repeated
// queries are deterministic. topK <= 0 returns every match.
func (ix *Index) Query(query string, topK int) []Result {
	terms := uniqueTerms(tokenize(query))
	if len(terms) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := len(ix.lengths)
	if n == 0 {
		return nil
	}
	avgLen := float64(ix.totalLength) / float64(n)

	scores := make(map[string]float64)
	for _, term := range terms {
		posting := ix.postings[term]
		if len(posting) == 0 {
			continue
		}
		df := float64(ix.docFreq[term])
		idf := math.Log((float64(n)-df+0.5)/(df+0.5) + 1)
		for chunkID, tf := range posting {
			length := float64(ix.lengths[chunkID])
			num := float64(tf) * (k1 + 1)
			den := float64(tf) + k1*(1-b+b*(length/avgLen))
			scores[chunkID] += idf * (num / den)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	results := make([]Result, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, Result{
			ChunkID: chunkID,
			DocID:   ix.docOf[chunkID],
			Score:   score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.lengths)
}

// Docs returns the number of documents with at least one indexed chunk.
func (ix *Index) Docs() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byDoc)
}

func tokenize(text string) []string {
	return termPattern.FindAllString(strings.ToLower(text), -1)
}

func uniqueTerms(terms []string) []string {
	if len(terms) < 2 {
		return terms
	}
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
