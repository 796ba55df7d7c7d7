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
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Ignore markers bound content that is kept in the document but never
// embedded or returned by retrieval. The canonical exporter wraps its
// cross-reference links in them so re-ingesting an exported file does not
// index the link farm.
const (
	IgnoreStartMarker = "<!-- sift:ignore -->"
	IgnoreEndMarker   = "<!-- sift:ignore:end -->"
)

var orderedItemRE = regexp.MustCompile(`^\d{1,3}[.)]\s+(.*)$`)

// ParseBlocks splits Markdown-shaped text into structural blocks: ATX
// headings, fenced code, pipe tables (requiring a separator row), lists with
// indented continuation lines, ignore-marker regions and blank-line-separated
// paragraphs. Plain text degrades gracefully to paragraphs.
func ParseBlocks(text string) []Block {
	lines := strings.Split(text, "\n")
	var blocks []Block
	var para []string
	var list []string

	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: strings.Join(para, "\n")})
			para = nil
		}
	}
	flushList := func() {
		if len(list) > 0 {
			blocks = append(blocks, Block{Kind: BlockList, Items: list})
			list = nil
		}
	}
	flush := func() {
		flushList()
		flushPara()
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		// YAML front matter is document metadata, not content.
		if i == 0 && trimmed == "---" {
			var body []string
			j := i + 1
			for ; j < len(lines); j++ {
				if strings.TrimSpace(lines[j]) == "---" {
					break
				}
				body = append(body, lines[j])
			}
			if j < len(lines) {
				blocks = append(blocks, Block{Kind: BlockIgnore, Text: strings.TrimSpace(strings.Join(body, "\n"))})
				i = j
				continue
			}
		}

		if trimmed == IgnoreStartMarker {
			flush()
			var body []string
			i++
			for ; i < len(lines); i++ {
				if strings.TrimSpace(lines[i]) == IgnoreEndMarker {
					break
				}
				body = append(body, lines[i])
			}
			blocks = append(blocks, Block{Kind: BlockIgnore, Text: strings.TrimSpace(strings.Join(body, "\n"))})
			continue
		}

		if fence, lang := fenceOpen(trimmed); fence != "" {
			flush()
			var body []string
			i++
			for ; i < len(lines); i++ {
				if strings.HasPrefix(strings.TrimSpace(lines[i]), fence) {
					break
				}
				body = append(body, lines[i])
			}
			blocks = append(blocks, Block{Kind: BlockCode, Language: lang, Text: strings.Join(body, "\n")})
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		if level, heading := atxHeading(trimmed); level > 0 {
			flush()
			blocks = append(blocks, Block{Kind: BlockHeading, Level: level, Text: heading})
			continue
		}

		if strings.HasPrefix(trimmed, "|") && i+1 < len(lines) && tableSeparator(strings.TrimSpace(lines[i+1])) {
			flush()
			rows := [][]string{splitTableRow(trimmed)}
			i += 2
			for ; i < len(lines); i++ {
				rowLine := strings.TrimSpace(lines[i])
				if !strings.HasPrefix(rowLine, "|") {
					i--
					break
				}
				rows = append(rows, splitTableRow(rowLine))
			}
			blocks = append(blocks, Block{Kind: BlockTable, Rows: rows})
			continue
		}

		if item, ok := listItem(trimmed); ok {
			flushPara()
			list = append(list, item)
			continue
		}
		if len(list) > 0 && (strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")) {
			list[len(list)-1] += " " + trimmed
			continue
		}

		flushList()
		para = append(para, trimmed)
	}
	flush()
	return blocks
}

func atxHeading(line string) (int, string) {
	if !strings.HasPrefix(line, "#") {
		return 0, ""
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, ""
	}
	if level == len(line) {
		return 0, ""
	}
	if line[level] != ' ' && line[level] != '\t' {
		return 0, ""
	}
	text := strings.TrimSpace(line[level:])
	text = strings.TrimSpace(strings.TrimRight(text, "#"))
	return level, text
}

func fenceOpen(line string) (fence, language string) {
	for _, f := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, f) {
			lang := strings.TrimSpace(strings.TrimPrefix(line, f))
			if i := strings.IndexAny(lang, " \t"); i >= 0 {
				lang = lang[:i]
			}
			return f, lang
		}
	}
	return "", ""
}

// tableSeparator matches the |---|:---:| row between a table header and its
// data rows.
func tableSeparator(line string) bool {
	if !strings.HasPrefix(line, "|") {
		return false
	}
	inner := strings.Trim(line, "|")
	if strings.TrimSpace(inner) == "" {
		return false
	}
	for _, cell := range strings.Split(inner, "|") {
		cell = strings.TrimSpace(cell)
		if !strings.Contains(cell, "-") {
			return false
		}
		for _, r := range cell {
			if r != '-' && r != ':' {
				return false
			}
		}
	}
	return true
}

func splitTableRow(line string) []string {
	inner := strings.Trim(strings.TrimSpace(line), "|")
	cells := strings.Split(inner, "|")
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = strings.TrimSpace(c)
	}
	return row
}

func listItem(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	if m := orderedItemRE.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, row := range rows {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString(" |")
		if i == 0 {
			sb.WriteByte('\n')
			sb.WriteString("|")
			sb.WriteString(strings.Repeat(" --- |", len(row)))
		}
		if i < len(rows)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// firstHeading returns the text of the first heading at or above maxLevel.
func firstHeading(blocks []Block, maxLevel int) string {
	for _, b := range blocks {
		if b.Kind == BlockHeading && b.Level <= maxLevel {
			return b.Text
		}
	}
	return ""
}

// TextExtractor handles plain text, Markdown and source code. It is the
// lowest-priority extractor and the last resort before the raw fallback.
type TextExtractor struct{}

// NewTextExtractor returns the text/markdown/code extractor.
func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Name() string { return "text" }

func (e *TextExtractor) Priority() int { return 10 }

func (e *TextExtractor) Supports(format Format, _ string) bool {
	switch format {
	case FormatMarkdown, FormatText, FormatCode:
		return true
	}
	return false
}

func (e *TextExtractor) Extract(_ context.Context, data []byte, filename string) ([]Item, error) {
	text := cleanText(string(data))
	if text == "" {
		return nil, fmt.Errorf("content of %q is not valid text", filename)
	}

	if lang := CodeLanguage(filename); lang != "" {
		return []Item{{
			Text:     text,
			Blocks:   []Block{{Kind: BlockCode, Language: lang, Text: text}},
			TypeHint: "text",
		}}, nil
	}

	blocks := ParseBlocks(text)
	hint := "text"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		hint = "note"
	}
	return []Item{{
		Text:     text,
		Blocks:   blocks,
		TypeHint: hint,
		Title:    firstHeading(blocks, 1),
	}}, nil
}

var _ Extractor = (*TextExtractor)(nil)
