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

// Package extract turns raw document bytes into normalized UTF-8 text plus a
// best-effort structural block stream. Format detection runs on magic bytes
// and content sniffs with the filename extension as tiebreaker; per-format
// extractors are tried in priority order, falling back to a raw UTF-8 decode
// before giving up.
//
// One input may yield several items: a chat export produces one item per day,
// each carrying its own conversation thread.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kadirpekel/sift/pkg/config"
)

// BlockKind identifies one structural block variant.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
	BlockTable     BlockKind = "table"
	BlockCode      BlockKind = "code"
	BlockIgnore    BlockKind = "ignore"
)

// Block is one structural unit of a document. Only the fields matching Kind
// are set: Level and Text for headings, Text for paragraphs and ignore
// blocks, Items for lists, Rows for tables, Language and Text for code.
type Block struct {
	Kind     BlockKind
	Level    int
	Text     string
	Items    []string
	Rows     [][]string
	Language string
}

// Render returns the block as Markdown-shaped text.
func (b Block) Render() string {
	switch b.Kind {
	case BlockHeading:
		level := b.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " " + b.Text
	case BlockList:
		var sb strings.Builder
		for i, item := range b.Items {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("- ")
			sb.WriteString(item)
		}
		return sb.String()
	case BlockTable:
		return renderTable(b.Rows)
	case BlockCode:
		return "```" + b.Language + "\n" + b.Text + "\n```"
	default:
		return b.Text
	}
}

// renderBlocks joins rendered blocks with blank lines.
func renderBlocks(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if s := b.Render(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// PageSpan maps a byte offset in the extracted text to a 1-based page
// number. Spans are ordered by offset; each covers until the next span.
type PageSpan struct {
	Offset int
	Page   int
}

// Message is one utterance inside a conversation thread.
type Message struct {
	Sender    string
	Timestamp time.Time
	Body      string
}

// Thread groups ordered messages under one identifier: the normalized
// subject for email, the day stamp for chat exports. Depth counts thread
// ancestors (from email References headers).
type Thread struct {
	ID       string
	Messages []Message
	Depth    int
}

// Item is one extracted document. Text is always valid UTF-8; Blocks is the
// best-effort structural view of the same content.
type Item struct {
	// Text is the normalized plain text.
	Text string

	// Blocks is the structural block stream, in document order.
	Blocks []Block

	// PageMap maps text offsets to page numbers for paginated formats.
	PageMap []PageSpan

	// Thread is set for email and chat items.
	Thread *Thread

	// TypeHint suggests the canonical document type ("email_thread",
	// "pdf_report", ...). Enrichment may override it.
	TypeHint string

	// Title is the format-native title when one exists (email subject,
	// HTML article title). Empty when the format has none.
	Title string

	// CreatedAt is the content timestamp when extractable (email Date
	// header, article publish time, chat day). Zero otherwise.
	CreatedAt time.Time

	// OCRUsed marks text recovered via OCR rather than a native text
	// layer; OCRConfidence is the engine's mean confidence in [0,1].
	OCRUsed       bool
	OCRConfidence float64
}

// Extraction is the result of extracting one input.
type Extraction struct {
	Format    Format
	Extractor string
	Items     []Item
}

// ExtractionError reports that no extractor, including the raw UTF-8
// fallback, produced usable text.
type ExtractionError struct {
	Filename string
	Format   Format
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %q (format %s): %v", e.Filename, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor converts one format family into items.
type Extractor interface {
	// Name returns the extractor name for logging.
	Name() string

	// Supports reports whether this extractor handles the detected
	// format. The filename is available for extension-scoped extractors.
	Supports(format Format, filename string) bool

	// Extract produces one or more items from the raw bytes.
	Extract(ctx context.Context, data []byte, filename string) ([]Item, error)

	// Priority orders extractors; higher runs first.
	Priority() int
}

// Registry holds extractors sorted by descending priority.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an extractor and re-sorts by priority.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	sort.SliceStable(r.extractors, func(i, j int) bool {
		return r.extractors[i].Priority() > r.extractors[j].Priority()
	})
}

// Service is the extraction entry point used by the ingestion pipeline.
type Service struct {
	registry    *Registry
	maxFileSize int64
	vision      *VisionOCR
	mcp         *MCPExtractor
}

// NewService builds a registry from the ingestion configuration. The Vision
// client is created only when OCR is enabled; the MCP parser connects lazily
// on first use.
func NewService(ctx context.Context, cfg *config.IngestConfig) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ingest config is required")
	}

	s := &Service{
		registry:    NewRegistry(),
		maxFileSize: cfg.MaxFileSize,
	}

	if cfg.OCR.Enabled {
		ocr, err := NewVisionOCR(ctx, &cfg.OCR)
		if err != nil {
			return nil, fmt.Errorf("failed to create OCR client: %w", err)
		}
		s.vision = ocr
		s.registry.Register(NewImageExtractor(ocr))
	}

	if cfg.MCP.Enabled() {
		s.mcp = NewMCPExtractor(cfg.MCP)
		s.registry.Register(s.mcp)
	}

	s.registry.Register(NewPDFExtractor(s.vision))
	s.registry.Register(NewDocxExtractor())
	s.registry.Register(NewXlsxExtractor())
	s.registry.Register(NewEmailExtractor())
	s.registry.Register(NewHTMLExtractor())
	s.registry.Register(NewChatExtractor())
	s.registry.Register(NewTextExtractor())

	return s, nil
}

// Register adds a custom extractor.
func (s *Service) Register(e Extractor) {
	s.registry.Register(e)
}

// Extract detects the input format and runs the first supporting extractor.
// Extractor failures fall through to the next candidate, then to a raw UTF-8
// decode; binary garbage fails with an ExtractionError.
func (s *Service) Extract(ctx context.Context, data []byte, filename string) (*Extraction, error) {
	format := Detect(data, filename)

	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return nil, &ExtractionError{
			Filename: filename,
			Format:   format,
			Err:      fmt.Errorf("file size %d exceeds limit %d", len(data), s.maxFileSize),
		}
	}
	if len(data) == 0 {
		return nil, &ExtractionError{
			Filename: filename,
			Format:   format,
			Err:      errors.New("empty input"),
		}
	}

	var lastErr error
	for _, e := range s.registry.extractors {
		if !e.Supports(format, filename) {
			continue
		}
		items, err := e.Extract(ctx, data, filename)
		if err != nil {
			lastErr = err
			slog.Debug("Extractor failed, trying next",
				"extractor", e.Name(),
				"format", format,
				"filename", filename,
				"error", err,
			)
			continue
		}
		if len(items) == 0 {
			lastErr = fmt.Errorf("extractor %s produced no items", e.Name())
			continue
		}
		return &Extraction{Format: format, Extractor: e.Name(), Items: items}, nil
	}

	// Raw UTF-8 fallback.
	text := cleanText(string(data))
	if text == "" {
		if lastErr == nil {
			lastErr = errors.New("content is not valid text")
		}
		return nil, &ExtractionError{Filename: filename, Format: format, Err: lastErr}
	}
	slog.Warn("Falling back to raw text decode",
		"format", format,
		"filename", filename,
	)
	return &Extraction{
		Format:    format,
		Extractor: "raw",
		Items: []Item{{
			Text:     text,
			Blocks:   []Block{{Kind: BlockParagraph, Text: text}},
			TypeHint: "text",
		}},
	}, nil
}

// Close releases extractor resources (the Vision client, a connected MCP
// subprocess).
func (s *Service) Close() error {
	var errs []error
	if s.vision != nil {
		if err := s.vision.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.mcp != nil {
		if err := s.mcp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cleanText validates UTF-8, replacing invalid sequences. Content losing
// more than half its bytes to invalid sequences, or carrying NUL bytes after
// cleaning, is treated as binary and rejected with an empty return.
func cleanText(content string) string {
	if !utf8.ValidString(content) {
		cleaned := strings.ToValidUTF8(content, "")
		if len(cleaned) < len(content)/2 {
			return ""
		}
		content = cleaned
	}
	if strings.IndexByte(content, 0) >= 0 {
		nuls := strings.Count(content, "\x00")
		if nuls*20 > len(content) {
			return ""
		}
		content = strings.ReplaceAll(content, "\x00", "")
	}
	return strings.TrimSpace(content)
}
