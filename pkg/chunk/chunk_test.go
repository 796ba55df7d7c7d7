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

package chunk

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/extract"
)

// testChunker uses the character estimator so tests never load the
// cl100k encoding.
func testChunker(target int) *Chunker {
	return New(config.ChunkingConfig{
		TargetTokens: target,
		MaxTokens:    800,
		Tokenizer:    "chars",
	})
}

func para(text string) extract.Block {
	return extract.Block{Kind: extract.BlockParagraph, Text: text}
}

func heading(level int, text string) extract.Block {
	return extract.Block{Kind: extract.BlockHeading, Level: level, Text: text}
}

func TestSplit_StructureAware(t *testing.T) {
	blocks := []extract.Block{
		heading(1, "Quarterly Report"),
		heading(2, "Revenue"),
		para("Revenue grew in the first quarter."),
		para("The second quarter held steady."),
		para("Forecasts remain positive."),
		{Kind: extract.BlockTable, Rows: [][]string{
			{"Region", "Total"}, {"EU", "10"}, {"US", "12"},
			{"APAC", "7"}, {"LATAM", "3"},
		}},
		{Kind: extract.BlockCode, Language: "sql", Text: "SELECT region, SUM(total)\nFROM revenue\nGROUP BY region;"},
		heading(2, "Outlook"),
		para("Hiring continues."),
		para("Margins compress slightly."),
		para("New partnerships open in autumn."),
	}
	item := &extract.Item{Blocks: blocks}

	chunks := testChunker(512).Split("doc-1", item)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d: %+v", len(chunks), chunks)
	}

	if chunks[0].Kind != KindHeadingSection {
		t.Errorf("chunk 0: expected heading_section, got %s", chunks[0].Kind)
	}
	wantPath := []string{"Quarterly Report", "Revenue"}
	if !reflect.DeepEqual(chunks[0].SectionPath, wantPath) {
		t.Errorf("chunk 0: expected path %v, got %v", wantPath, chunks[0].SectionPath)
	}
	if !strings.Contains(chunks[0].Text, "## Revenue") || !strings.Contains(chunks[0].Text, "Forecasts remain") {
		t.Errorf("chunk 0 should carry heading and paragraphs: %q", chunks[0].Text)
	}

	if chunks[1].Kind != KindTable || chunks[2].Kind != KindCode {
		t.Errorf("expected table then code, got %s, %s", chunks[1].Kind, chunks[2].Kind)
	}
	if chunks[3].Kind != KindHeadingSection || chunks[3].SectionTitle() != "Outlook" {
		t.Errorf("chunk 3: expected Outlook section, got %+v", chunks[3])
	}

	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("chunk %d: ordinal %d", i, c.Ordinal)
		}
		if c.ID != fmt.Sprintf("doc-1:%d", i) {
			t.Errorf("chunk %d: unexpected id %s", i, c.ID)
		}
	}
}

func TestSplit_TargetOpensNewChunk(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("word ", 360)) // ~450 tokens
	item := &extract.Item{Blocks: []extract.Block{para(big), para(big), para(big)}}

	chunks := testChunker(400).Split("doc-1", item)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Kind != KindParagraph {
			t.Errorf("chunk %d: expected paragraph, got %s", i, c.Kind)
		}
		if len(c.SectionPath) != 0 {
			t.Errorf("chunk %d: expected root section, got %v", i, c.SectionPath)
		}
	}
}

func TestSplit_TableNeverSplits(t *testing.T) {
	cell := strings.Repeat("x", 4000)
	item := &extract.Item{Blocks: []extract.Block{
		{Kind: extract.BlockTable, Rows: [][]string{{"col"}, {cell}}},
	}}

	chunks := testChunker(512).Split("doc-1", item)
	if len(chunks) != 1 {
		t.Fatalf("expected a single table chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Kind != KindTable {
		t.Errorf("expected table kind, got %s", c.Kind)
	}
	if !c.OverCap {
		t.Error("oversized table should be marked over cap")
	}
	if c.TokenEstimate <= 800 {
		t.Errorf("token estimate should be honest, got %d", c.TokenEstimate)
	}
}

func TestSplit_CodeSingleChunk(t *testing.T) {
	code := strings.Repeat("line of code\n", 30)
	item := &extract.Item{Blocks: []extract.Block{
		{Kind: extract.BlockCode, Language: "go", Text: code},
	}}

	chunks := testChunker(512).Split("doc-1", item)
	if len(chunks) != 1 || chunks[0].Kind != KindCode {
		t.Fatalf("expected a single code chunk, got %+v", chunks)
	}
	if chunks[0].OverCap {
		t.Error("30 lines should not exceed the cap")
	}
}

func TestSplit_IgnoredChunks(t *testing.T) {
	item := &extract.Item{Blocks: []extract.Block{
		para("visible before"),
		{Kind: extract.BlockIgnore, Text: "[[hidden-link]]"},
		para("visible after"),
	}}

	chunks := testChunker(512).Split("doc-1", item)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if !chunks[1].Ignored() || chunks[1].Text != "[[hidden-link]]" {
		t.Errorf("expected ignored middle chunk, got %+v", chunks[1])
	}
	if chunks[0].Ignored() || chunks[2].Ignored() {
		t.Error("visible chunks must not be ignored")
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("ordinals must cover ignored chunks too: %+v", c)
		}
	}
}

func TestSplit_HeadingWaitsForBody(t *testing.T) {
	item := &extract.Item{Blocks: []extract.Block{
		heading(2, "Results"),
		{Kind: extract.BlockTable, Rows: [][]string{{"k", "v"}, {"ok", "1"}}},
		para("The numbers look good."),
	}}

	chunks := testChunker(512).Split("doc-1", item)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Kind != KindTable {
		t.Errorf("table should come first, got %s", chunks[0].Kind)
	}
	if chunks[0].SectionTitle() != "Results" {
		t.Errorf("table should sit in the Results section, got %v", chunks[0].SectionPath)
	}
	if chunks[1].Kind != KindHeadingSection || !strings.Contains(chunks[1].Text, "## Results") {
		t.Errorf("heading should land with its section body: %+v", chunks[1])
	}
}

func TestSplit_BodylessHeadingsEmitNothing(t *testing.T) {
	item := &extract.Item{Blocks: []extract.Block{
		heading(1, "Top"),
		heading(2, "Sub"),
		para("only content"),
	}}

	chunks := testChunker(512).Split("doc-1", item)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %+v", len(chunks), chunks)
	}
	c := chunks[0]
	if !reflect.DeepEqual(c.SectionPath, []string{"Top", "Sub"}) {
		t.Errorf("unexpected section path %v", c.SectionPath)
	}
	if strings.Contains(c.Text, "# Top") {
		t.Errorf("bodyless ancestor heading must not leak into the chunk: %q", c.Text)
	}
}

func TestSplit_ListChunk(t *testing.T) {
	item := &extract.Item{Blocks: []extract.Block{
		{Kind: extract.BlockList, Items: []string{"first", "second", "third"}},
	}}

	chunks := testChunker(512).Split("doc-1", item)
	if len(chunks) != 1 || chunks[0].Kind != KindList {
		t.Fatalf("expected a single list chunk, got %+v", chunks)
	}
	if chunks[0].Text != "- first\n- second\n- third" {
		t.Errorf("unexpected list text %q", chunks[0].Text)
	}
}

func TestSplit_PageAttribution(t *testing.T) {
	p1 := strings.TrimSpace(strings.Repeat("alpha ", 300))
	p2 := strings.TrimSpace(strings.Repeat("gamma ", 300))
	item := &extract.Item{
		Text:   p1 + "\n\n" + p2,
		Blocks: []extract.Block{para(p1), para(p2)},
		PageMap: []extract.PageSpan{
			{Offset: 0, Page: 1},
			{Offset: len(p1) + 2, Page: 2},
		},
	}

	chunks := testChunker(400).Split("doc-1", item)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Page != 1 || chunks[1].Page != 2 {
		t.Errorf("expected pages 1 and 2, got %d and %d", chunks[0].Page, chunks[1].Page)
	}
}

func TestChunk_Metadata(t *testing.T) {
	c := Chunk{
		ID:          "doc-1:2",
		DocID:       "doc-1",
		Ordinal:     2,
		Kind:        KindHeadingSection,
		SectionPath: []string{"Report", "Revenue"},
		Page:        3,
	}
	meta := c.Metadata(DocMeta{
		DocID:       "doc-1",
		DocType:     "pdf_report",
		ContentHash: "abc123",
		Title:       "Quarterly Report",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Topics:      []string{"work/projects", "finance"},
		Projects:    []string{"alpha"},
		Quality:     0.8,
		Signalness:  0.71,
	})

	want := map[string]string{
		"doc_id":        "doc-1",
		"doc_type":      "pdf_report",
		"content_hash":  "abc123",
		"title":         "Quarterly Report",
		"chunk_type":    "heading_section",
		"sequence":      "2",
		"section_title": "Revenue",
		"section_path":  "Report > Revenue",
		"topics":        "work/projects,finance",
		"projects":      "alpha",
		"places":        "",
		"quality":       "0.8000",
		"novelty":       "0.0000",
		"actionability": "0.0000",
		"signalness":    "0.7100",
		"created_at":    "2026-03-01T12:00:00Z",
		"page":          "3",
	}
	if !reflect.DeepEqual(meta, want) {
		t.Errorf("metadata mismatch:\n got %v\nwant %v", meta, want)
	}

	path := ParseSectionPath(meta["section_path"])
	if !reflect.DeepEqual(path, []string{"Report", "Revenue"}) {
		t.Errorf("section path round trip failed: %v", path)
	}
	if ParseSectionPath("") != nil {
		t.Error("empty section path should parse to nil")
	}
}

func TestTokenCounter_CharEstimate(t *testing.T) {
	tc := NewTokenCounter("chars")

	if got := tc.Count("abcd"); got != 1 {
		t.Errorf("expected 1 token for 4 chars, got %d", got)
	}
	if got := tc.Count("abcde"); got != 2 {
		t.Errorf("expected ceil rounding, got %d", got)
	}
	if tc.Count("") != 0 {
		t.Error("empty text should count zero")
	}

	// Monotonic in length.
	prev := 0
	for i := 0; i < 40; i++ {
		n := tc.Count(strings.Repeat("a", i))
		if n < prev {
			t.Fatalf("estimate not monotonic at length %d", i)
		}
		prev = n
	}
}

func TestTokenCounter_Truncate(t *testing.T) {
	tc := NewTokenCounter("chars")

	text := strings.Repeat("abcd", 10)
	if got := tc.Truncate(text, 5); len(got) != 20 {
		t.Errorf("expected 20 bytes, got %d", len(got))
	}
	if got := tc.Truncate("short", 100); got != "short" {
		t.Errorf("under-limit text must pass through, got %q", got)
	}
	// Multi-byte runes are never split.
	accented := strings.Repeat("é", 20) // 2 bytes each
	cut := tc.Truncate(accented, 3)     // 12-byte budget
	if len(cut)%2 != 0 {
		t.Errorf("rune split at %d bytes", len(cut))
	}
	if tc.Truncate("anything", 0) != "" {
		t.Error("zero budget should truncate to empty")
	}
}
