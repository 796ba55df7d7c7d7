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

package extract

import (
	"context"
	"strings"
	"testing"
)

func TestParseBlocks_Headings(t *testing.T) {
	blocks := ParseBlocks("# Title\n\nSome text.\n\n## Section ##\n\nMore text.")

	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Kind != BlockHeading || blocks[0].Level != 1 || blocks[0].Text != "Title" {
		t.Errorf("unexpected first block: %+v", blocks[0])
	}
	if blocks[2].Kind != BlockHeading || blocks[2].Level != 2 || blocks[2].Text != "Section" {
		t.Errorf("closing hashes should be stripped: %+v", blocks[2])
	}
}

func TestParseBlocks_NotAHeading(t *testing.T) {
	blocks := ParseBlocks("#hashtag without space")
	if len(blocks) != 1 || blocks[0].Kind != BlockParagraph {
		t.Fatalf("expected one paragraph, got %+v", blocks)
	}
}

func TestParseBlocks_FencedCode(t *testing.T) {
	text := "intro\n\n```go\nfunc main() {}\n```\n\noutro"
	blocks := ParseBlocks(text)

	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}
	code := blocks[1]
	if code.Kind != BlockCode {
		t.Fatalf("expected code block, got %s", code.Kind)
	}
	if code.Language != "go" {
		t.Errorf("expected language go, got %q", code.Language)
	}
	if code.Text != "func main() {}" {
		t.Errorf("unexpected code text: %q", code.Text)
	}
}

func TestParseBlocks_UnclosedFenceConsumesRest(t *testing.T) {
	blocks := ParseBlocks("```\nline one\nline two")
	if len(blocks) != 1 || blocks[0].Kind != BlockCode {
		t.Fatalf("expected single code block, got %+v", blocks)
	}
	if blocks[0].Text != "line one\nline two" {
		t.Errorf("unexpected code text: %q", blocks[0].Text)
	}
}

func TestParseBlocks_Table(t *testing.T) {
	text := "| Name | Age |\n| --- | --- |\n| Ada | 36 |\n| Alan | 41 |\n\nafter"
	blocks := ParseBlocks(text)

	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(blocks), blocks)
	}
	table := blocks[0]
	if table.Kind != BlockTable {
		t.Fatalf("expected table, got %s", table.Kind)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows (header plus data), got %d", len(table.Rows))
	}
	if table.Rows[0][0] != "Name" || table.Rows[2][1] != "41" {
		t.Errorf("unexpected rows: %+v", table.Rows)
	}
}

func TestParseBlocks_PipeWithoutSeparatorIsParagraph(t *testing.T) {
	blocks := ParseBlocks("| not | a table\njust text")
	for _, b := range blocks {
		if b.Kind == BlockTable {
			t.Fatalf("pipe line without separator row must not become a table: %+v", blocks)
		}
	}
}

func TestParseBlocks_Lists(t *testing.T) {
	text := "- first\n- second\n  continues here\n* third\n1. numbered\n2) also numbered"
	blocks := ParseBlocks(text)

	if len(blocks) != 1 {
		t.Fatalf("expected one list block, got %d: %+v", len(blocks), blocks)
	}
	items := blocks[0].Items
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d: %v", len(items), items)
	}
	if items[1] != "second continues here" {
		t.Errorf("continuation line should extend the item: %q", items[1])
	}
	if items[3] != "numbered" || items[4] != "also numbered" {
		t.Errorf("ordered items mishandled: %v", items)
	}
}

func TestParseBlocks_IgnoreMarkers(t *testing.T) {
	text := "visible\n\n" + IgnoreStartMarker + "\nhidden link farm\n" + IgnoreEndMarker + "\n\nvisible again"
	blocks := ParseBlocks(text)

	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[1].Kind != BlockIgnore {
		t.Fatalf("expected ignore block, got %s", blocks[1].Kind)
	}
	if blocks[1].Text != "hidden link farm" {
		t.Errorf("unexpected ignore text: %q", blocks[1].Text)
	}
}

func TestParseBlocks_FrontMatterIgnored(t *testing.T) {
	text := "---\ntitle: Weekly Report\n---\n\n# Report\n\nbody"
	blocks := ParseBlocks(text)

	if blocks[0].Kind != BlockIgnore {
		t.Fatalf("front matter should become an ignore block, got %s", blocks[0].Kind)
	}
	if !strings.Contains(blocks[0].Text, "title: Weekly Report") {
		t.Errorf("front matter text lost: %q", blocks[0].Text)
	}
	if blocks[1].Kind != BlockHeading {
		t.Errorf("heading after front matter lost: %+v", blocks[1])
	}
}

func TestParseBlocks_PlainTextParagraphs(t *testing.T) {
	blocks := ParseBlocks("first paragraph\nstill first\n\nsecond paragraph")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(blocks))
	}
	if blocks[0].Text != "first paragraph\nstill first" {
		t.Errorf("unexpected paragraph: %q", blocks[0].Text)
	}
}

func TestBlockRender(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		want  string
	}{
		{"heading", Block{Kind: BlockHeading, Level: 2, Text: "Title"}, "## Title"},
		{"paragraph", Block{Kind: BlockParagraph, Text: "text"}, "text"},
		{"list", Block{Kind: BlockList, Items: []string{"a", "b"}}, "- a\n- b"},
		{"code", Block{Kind: BlockCode, Language: "go", Text: "x := 1"}, "```go\nx := 1\n```"},
		{
			"table",
			Block{Kind: BlockTable, Rows: [][]string{{"a", "b"}, {"1", "2"}}},
			"| a | b |\n| --- | --- |\n| 1 | 2 |",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.block.Render(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTextExtractor_Markdown(t *testing.T) {
	e := NewTextExtractor()
	text := "# Meeting Notes\n\nWe discussed the rollout.\n\n- decide owner\n- ship it"

	items, err := e.Extract(context.Background(), []byte(text), "notes.md")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.TypeHint != "note" {
		t.Errorf("expected note hint for markdown, got %q", item.TypeHint)
	}
	if item.Title != "Meeting Notes" {
		t.Errorf("expected title from first heading, got %q", item.Title)
	}
	if len(item.Blocks) != 3 {
		t.Errorf("expected 3 blocks, got %d: %+v", len(item.Blocks), item.Blocks)
	}
}

func TestTextExtractor_SourceCode(t *testing.T) {
	e := NewTextExtractor()
	src := "package main\n\nfunc main() {}\n"

	items, err := e.Extract(context.Background(), []byte(src), "main.go")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	blocks := items[0].Blocks
	if len(blocks) != 1 || blocks[0].Kind != BlockCode {
		t.Fatalf("expected a single code block, got %+v", blocks)
	}
	if blocks[0].Language != "go" {
		t.Errorf("expected language go, got %q", blocks[0].Language)
	}
}

func TestTextExtractor_RejectsBinary(t *testing.T) {
	e := NewTextExtractor()
	data := []byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8, 'h', 'i'}

	if _, err := e.Extract(context.Background(), data, "junk.txt"); err == nil {
		t.Fatal("expected error for binary content")
	}
}
