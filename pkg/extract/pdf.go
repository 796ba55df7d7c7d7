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
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfMinTextLayer is the total character count below which the text layer
// counts as empty and the document is treated as scanned.
const pdfMinTextLayer = 50

// PDFExtractor reads the PDF text layer page by page. When the layer is
// effectively empty and OCR is configured, pages are recovered through
// Vision instead and the OCR confidence is recorded.
type PDFExtractor struct {
	ocr *VisionOCR
}

// NewPDFExtractor returns the PDF extractor. ocr may be nil, in which case
// scanned documents fail extraction.
func NewPDFExtractor(ocr *VisionOCR) *PDFExtractor { return &PDFExtractor{ocr: ocr} }

func (e *PDFExtractor) Name() string { return "pdf" }

func (e *PDFExtractor) Priority() int { return 80 }

func (e *PDFExtractor) Supports(format Format, _ string) bool { return format == FormatPDF }

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, filename string) (items []Item, err error) {
	// ledongthuc/pdf panics on malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("pdf %q has no pages", filename)
	}

	pages := make([]string, totalPages)
	for n := 1; n <= totalPages; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		pages[n-1] = cleanText(text)
	}

	ocrUsed := false
	var ocrConfidence float64
	if textLayerEmpty(pages) {
		if e.ocr == nil {
			return nil, fmt.Errorf("pdf %q has no text layer and ocr is disabled", filename)
		}
		ocrPages, conf, ocrErr := e.ocr.PDF(ctx, data, totalPages)
		if ocrErr != nil {
			return nil, fmt.Errorf("pdf has no text layer and ocr failed: %w", ocrErr)
		}
		pages = ocrPages
		ocrUsed = true
		ocrConfidence = conf
	}

	text, pageMap := joinPages(pages)
	if text == "" {
		return nil, fmt.Errorf("pdf %q has no extractable text", filename)
	}

	return []Item{{
		Text:          text,
		Blocks:        ParseBlocks(text),
		PageMap:       pageMap,
		TypeHint:      "pdf_report",
		OCRUsed:       ocrUsed,
		OCRConfidence: ocrConfidence,
	}}, nil
}

func textLayerEmpty(pages []string) bool {
	total := 0
	for _, p := range pages {
		total += len(p)
	}
	return total < pdfMinTextLayer
}

// joinPages concatenates non-empty pages with blank lines and records each
// page's start offset in the joined text.
func joinPages(pages []string) (string, []PageSpan) {
	var sb strings.Builder
	var spans []PageSpan
	for i, pg := range pages {
		if pg == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		spans = append(spans, PageSpan{Offset: sb.Len(), Page: i + 1})
		sb.WriteString(pg)
	}
	return sb.String(), spans
}

var _ Extractor = (*PDFExtractor)(nil)
