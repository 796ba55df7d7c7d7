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
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// DocxExtractor flattens Word documents into paragraph blocks.
type DocxExtractor struct{}

// NewDocxExtractor returns the Word document extractor.
func NewDocxExtractor() *DocxExtractor { return &DocxExtractor{} }

func (e *DocxExtractor) Name() string { return "docx" }

func (e *DocxExtractor) Priority() int { return 80 }

func (e *DocxExtractor) Supports(format Format, _ string) bool { return format == FormatDocx }

func (e *DocxExtractor) Extract(_ context.Context, data []byte, filename string) ([]Item, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer doc.Close()

	paragraphs := docxParagraphs(doc.Editable().GetContent())
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("docx %q contains no text", filename)
	}

	blocks := make([]Block, 0, len(paragraphs))
	for _, p := range paragraphs {
		blocks = append(blocks, Block{Kind: BlockParagraph, Text: p})
	}
	return []Item{{
		Text:     strings.Join(paragraphs, "\n\n"),
		Blocks:   blocks,
		TypeHint: "generic",
	}}, nil
}

var (
	docxParaRE = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxTextRE = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
)

// docxParagraphs flattens WordprocessingML: one string per <w:p> paragraph,
// concatenating its <w:t> runs.
func docxParagraphs(content string) []string {
	var out []string
	for _, para := range docxParaRE.FindAllString(content, -1) {
		var sb strings.Builder
		for _, m := range docxTextRE.FindAllStringSubmatch(para, -1) {
			sb.WriteString(html.UnescapeString(m[1]))
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			out = append(out, text)
		}
	}
	return out
}

var _ Extractor = (*DocxExtractor)(nil)

// maxSheetCells caps the cells rendered per spreadsheet sheet to keep huge
// workbooks from flooding the document text.
const maxSheetCells = 1000

// XlsxExtractor renders each spreadsheet sheet as a heading plus a table
// block.
type XlsxExtractor struct{}

// NewXlsxExtractor returns the spreadsheet extractor.
func NewXlsxExtractor() *XlsxExtractor { return &XlsxExtractor{} }

func (e *XlsxExtractor) Name() string { return "xlsx" }

func (e *XlsxExtractor) Priority() int { return 80 }

func (e *XlsxExtractor) Supports(format Format, _ string) bool { return format == FormatXlsx }

func (e *XlsxExtractor) Extract(ctx context.Context, data []byte, filename string) ([]Item, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	var blocks []Block
	for _, sheet := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rows, rowsErr := f.GetRows(sheet)
		if rowsErr != nil {
			continue
		}
		table, truncated := sheetTable(rows)
		if len(table) == 0 {
			continue
		}
		blocks = append(blocks,
			Block{Kind: BlockHeading, Level: 2, Text: "Sheet: " + sheet},
			Block{Kind: BlockTable, Rows: table},
		)
		if truncated {
			blocks = append(blocks, Block{Kind: BlockParagraph,
				Text: fmt.Sprintf("(sheet truncated after %d cells)", maxSheetCells)})
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("xlsx %q contains no cells", filename)
	}

	return []Item{{
		Text:     renderBlocks(blocks),
		Blocks:   blocks,
		TypeHint: "generic",
	}}, nil
}

// sheetTable trims cells, drops empty rows and stops once the cell cap is
// reached.
func sheetTable(rows [][]string) ([][]string, bool) {
	var table [][]string
	cells := 0
	for _, row := range rows {
		out := make([]string, len(row))
		empty := true
		for i, cell := range row {
			out[i] = strings.TrimSpace(cell)
			if out[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		cells += len(out)
		if cells > maxSheetCells {
			return table, true
		}
		table = append(table, out)
	}
	return table, false
}

var _ Extractor = (*XlsxExtractor)(nil)
