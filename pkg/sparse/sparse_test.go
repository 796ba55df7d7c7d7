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

package sparse

import (
	"math"
	"reflect"
	"testing"
)

func TestQuery_ScoreFormula(t *testing.T) {
	ix := NewIndex()
	ix.Add("doc-a", "doc-a:0", "apple banana")
	ix.Add("doc-b", "doc-b:0", "banana banana cherry")

	got := ix.Query("banana", 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}

	// N=2, df=2, avgLen=2.5.
	idf := math.Log((2.0-2.0+0.5)/(2.0+0.5) + 1)
	wantB := idf * (2 * (k1 + 1)) / (2 + k1*(1-b+b*(3.0/2.5)))
	wantA := idf * (1 * (k1 + 1)) / (1 + k1*(1-b+b*(2.0/2.5)))

	if got[0].ChunkID != "doc-b:0" {
		t.Fatalf("higher term frequency should rank first, got %s", got[0].ChunkID)
	}
	if math.Abs(got[0].Score-wantB) > 1e-12 {
		t.Errorf("expected score %v, got %v", wantB, got[0].Score)
	}
	if math.Abs(got[1].Score-wantA) > 1e-12 {
		t.Errorf("expected score %v, got %v", wantA, got[1].Score)
	}
	if got[0].DocID != "doc-b" || got[1].DocID != "doc-a" {
		t.Errorf("results must carry doc ids, got %+v", got)
	}
}

func TestQuery_RareTermOutranks(t *testing.T) {
	ix := NewIndex()
	ix.Add("d1", "d1:0", "quarterly report on revenue")
	ix.Add("d2", "d2:0", "status report for the team")
	ix.Add("d3", "d3:0", "incident report and followups")
	ix.Add("d4", "d4:0", "kubernetes migration report")

	got := ix.Query("kubernetes report", 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 results, got %d", len(got))
	}
	if got[0].ChunkID != "d4:0" {
		t.Errorf("chunk with the rare term should rank first, got %s", got[0].ChunkID)
	}
}

func TestQuery_TopKAndDeterminism(t *testing.T) {
	ix := NewIndex()
	ix.Add("d1", "d1:1", "identical text")
	ix.Add("d2", "d2:1", "identical text")
	ix.Add("d3", "d3:1", "identical text")

	got := ix.Query("identical", 2)
	if len(got) != 2 {
		t.Fatalf("expected topK to cap results, got %d", len(got))
	}
	// Equal scores fall back to chunk id order.
	if got[0].ChunkID != "d1:1" || got[1].ChunkID != "d2:1" {
		t.Errorf("tie order not deterministic: %+v", got)
	}

	again := ix.Query("identical", 2)
	if !reflect.DeepEqual(got, again) {
		t.Error("repeated query returned different order")
	}
}

func TestQuery_Empty(t *testing.T) {
	ix := NewIndex()
	if got := ix.Query("anything", 5); got != nil {
		t.Errorf("empty index should return nil, got %+v", got)
	}
	ix.Add("d1", "d1:0", "some text here")
	if got := ix.Query("", 5); got != nil {
		t.Errorf("empty query should return nil, got %+v", got)
	}
	if got := ix.Query("...!?", 5); got != nil {
		t.Errorf("punctuation-only query should return nil, got %+v", got)
	}
	if got := ix.Query("unrelated", 5); got != nil {
		t.Errorf("no matching terms should return nil, got %+v", got)
	}
}

func TestAdd_SkipsTermlessText(t *testing.T) {
	ix := NewIndex()
	ix.Add("d1", "d1:0", "--- ... !!!")
	if ix.Len() != 0 {
		t.Errorf("termless text should not be indexed, len %d", ix.Len())
	}
	if ix.Docs() != 0 {
		t.Errorf("termless text should not register the doc, docs %d", ix.Docs())
	}
}

func TestRemoveByDoc(t *testing.T) {
	ix := NewIndex()
	ix.AddBatch("doc-a", []Entry{
		{ChunkID: "doc-a:0", Text: "grafana dashboards for latency"},
		{ChunkID: "doc-a:1", Text: "alerting rules in grafana"},
	})
	ix.Add("doc-b", "doc-b:0", "postgres connection pooling")

	if n := ix.RemoveByDoc("doc-a"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if got := ix.Query("grafana", 5); got != nil {
		t.Errorf("removed doc still matches: %+v", got)
	}
	got := ix.Query("postgres", 5)
	if len(got) != 1 || got[0].ChunkID != "doc-b:0" {
		t.Errorf("unrelated doc should survive removal, got %+v", got)
	}
	if ix.Len() != 1 || ix.Docs() != 1 {
		t.Errorf("expected 1 chunk / 1 doc left, got %d / %d", ix.Len(), ix.Docs())
	}
	if n := ix.RemoveByDoc("never-indexed"); n != 0 {
		t.Errorf("unknown doc removal should be a no-op, got %d", n)
	}
}

// Removing a document must leave scores identical to an index that
// never saw it.
func TestRemoveByDoc_RestoresStatistics(t *testing.T) {
	fresh := NewIndex()
	fresh.Add("doc-a", "doc-a:0", "retry budget for the ingest worker")
	fresh.Add("doc-b", "doc-b:0", "worker pool sizing notes")

	dirty := NewIndex()
	dirty.Add("doc-a", "doc-a:0", "retry budget for the ingest worker")
	dirty.Add("doc-b", "doc-b:0", "worker pool sizing notes")
	dirty.Add("doc-c", "doc-c:0", "worker worker worker noise")
	dirty.RemoveByDoc("doc-c")

	want := fresh.Query("ingest worker", 10)
	got := dirty.Query("ingest worker", 10)
	if !reflect.DeepEqual(want, got) {
		t.Errorf("statistics not restored after removal:\n got %+v\nwant %+v", got, want)
	}
}

func TestAdd_ReplacesExistingChunk(t *testing.T) {
	ix := NewIndex()
	ix.Add("d1", "d1:0", "alpha release checklist")
	ix.Add("d1", "d1:0", "beta rollout checklist")

	if got := ix.Query("alpha", 5); got != nil {
		t.Errorf("replaced text still matches: %+v", got)
	}
	if got := ix.Query("beta", 5); len(got) != 1 {
		t.Errorf("new text should match once, got %+v", got)
	}
	if ix.Len() != 1 {
		t.Errorf("replacement must not grow the index, len %d", ix.Len())
	}
	if n := ix.RemoveByDoc("d1"); n != 1 {
		t.Errorf("doc bookkeeping duplicated on replace: removed %d", n)
	}
}

func TestTokenize_Unicode(t *testing.T) {
	ix := NewIndex()
	ix.Add("d1", "d1:0", "Müller reviewed 42 cafés in München")

	for _, q := range []string{"müller", "MÜLLER", "42", "cafés", "münchen"} {
		if got := ix.Query(q, 5); len(got) != 1 {
			t.Errorf("query %q: expected 1 match, got %+v", q, got)
		}
	}
	// Fused letter/digit input splits into separate term runs.
	if got := ix.Query("reviewed42", 5); len(got) != 1 {
		t.Errorf("fused query should split into terms, got %+v", got)
	}
}

func TestQuery_MultiTermAccumulates(t *testing.T) {
	ix := NewIndex()
	ix.Add("d1", "d1:0", "vector store migration")
	ix.Add("d2", "d2:0", "vector index compaction")

	both := ix.Query("vector migration", 5)
	if len(both) != 2 {
		t.Fatalf("expected 2 results, got %d", len(both))
	}
	if both[0].ChunkID != "d1:0" {
		t.Errorf("chunk matching both terms should rank first, got %s", both[0].ChunkID)
	}

	single := ix.Query("vector", 5)
	if both[0].Score <= single[0].Score {
		t.Error("second matching term should add to the score")
	}
}
