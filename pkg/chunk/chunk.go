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

// Package chunk segments extracted documents into retrieval units.
//
// The chunker walks the structural block stream instead of raw text:
// headings maintain a section-path stack, tables and code blocks become
// exactly one chunk each regardless of size, and paragraphs and list
// items accumulate until the token target. Ignore-blocks are emitted as
// ignored chunks so the pipeline can count them, but they are never
// embedded and never surface in retrieval.
package chunk

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/vector"
)

// Chunk kinds.
const (
	KindHeadingSection = "heading_section"
	KindParagraph      = "paragraph"
	KindList           = "list"
	KindTable          = "table"
	KindCode           = "code"
	KindIgnored        = "ignored"
)

// Chunk is one retrieval unit of a document.
type Chunk struct {
	// ID is "{doc_id}:{ordinal}".
	ID      string
	DocID   string
	Ordinal int

	Kind string

	// SectionPath is the stack of enclosing heading titles, the chunk's
	// own section included.
	SectionPath []string

	Text          string
	TokenEstimate int

	// Page is the 1-based source page of the chunk's first content,
	// 0 when the source has no page map.
	Page int

	// OverCap marks a single table or code block that exceeded the
	// hard token cap and was kept whole anyway.
	OverCap bool
}

// SectionTitle returns the innermost enclosing heading, empty at root.
func (c *Chunk) SectionTitle() string {
	if len(c.SectionPath) == 0 {
		return ""
	}
	return c.SectionPath[len(c.SectionPath)-1]
}

// Ignored reports whether the chunk must be excluded from embedding
// and retrieval.
func (c *Chunk) Ignored() bool { return c.Kind == KindIgnored }

// DocMeta carries the owning document's identity, enrichment tags, and
// scores for metadata flattening.
type DocMeta struct {
	DocID       string
	DocType     string
	ContentHash string
	Title       string
	CreatedAt   time.Time

	Topics   []string
	Projects []string
	Places   []string

	Quality       float64
	Novelty       float64
	Actionability float64
	Signalness    float64
}

// Metadata flattens the document's enrichment and the chunk's position
// into the string map stored alongside the chunk vector. Lists are
// comma-joined for vector-store compatibility.
func (c *Chunk) Metadata(doc DocMeta) map[string]string {
	meta := map[string]string{
		vector.MetaDocID: doc.DocID,
		"doc_type":       doc.DocType,
		"content_hash":   doc.ContentHash,
		"title":          doc.Title,
		"chunk_type":     c.Kind,
		"sequence":       strconv.Itoa(c.Ordinal),
		"section_title":  c.SectionTitle(),
		"section_path":   strings.Join(c.SectionPath, " > "),
		"topics":         strings.Join(doc.Topics, ","),
		"projects":       strings.Join(doc.Projects, ","),
		"places":         strings.Join(doc.Places, ","),
		"quality":        formatScore(doc.Quality),
		"novelty":        formatScore(doc.Novelty),
		"actionability":  formatScore(doc.Actionability),
		"signalness":     formatScore(doc.Signalness),
	}
	if !doc.CreatedAt.IsZero() {
		meta["created_at"] = doc.CreatedAt.UTC().Format(time.RFC3339)
	}
	if c.Page > 0 {
		meta["page"] = strconv.Itoa(c.Page)
	}
	return meta
}

// ParseSectionPath reverses the section_path flattening.
func ParseSectionPath(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " > ")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Chunker segments block streams under a token budget.
type Chunker struct {
	target  int
	maxCap  int
	counter *TokenCounter
}

// New creates a chunker. An unavailable cl100k encoding falls back to
// the character estimate with a warning rather than failing.
func New(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{
		target:  cfg.TargetTokens,
		maxCap:  cfg.MaxTokens,
		counter: NewTokenCounter(cfg.Tokenizer),
	}
}

// Count exposes the chunker's token estimator.
func (c *Chunker) Count(text string) int { return c.counter.Count(text) }

// Split chunks one extracted item for the given document id. Ordinals
// number every emitted chunk, ignored ones included, in block order.
func (c *Chunker) Split(docID string, item *extract.Item) []Chunk {
	w := &walker{
		chunker: c,
		docID:   docID,
		source:  item.Text,
		pageMap: item.PageMap,
	}

	for _, block := range item.Blocks {
		switch block.Kind {
		case extract.BlockIgnore:
			w.flush()
			w.emit(KindIgnored, block.Text, block.Text)

		case extract.BlockHeading:
			w.flush()
			w.dropPending()
			w.enterSection(block.Level, block.Text)
			w.seedHeading(block)

		case extract.BlockTable:
			w.flush()
			w.emit(KindTable, block.Render(), firstRowAnchor(block))

		case extract.BlockCode:
			w.flush()
			w.emit(KindCode, block.Render(), block.Text)

		case extract.BlockList:
			for _, it := range block.Items {
				w.accumulate(unitList, "- "+it, it)
			}

		default:
			w.accumulate(unitParagraph, block.Text, block.Text)
		}
	}
	w.flush()

	return w.chunks
}

const (
	unitHeading = iota
	unitParagraph
	unitList
)

// unit is one accumulated piece of the open chunk.
type unit struct {
	kind int
	text string
}

// walker holds the accumulation state of one Split pass.
type walker struct {
	chunker *Chunker
	docID   string

	source  string
	pageMap []extract.PageSpan
	cursor  int

	stack  []string
	units  []unit
	tokens int

	// pending carries a heading whose section body was interrupted by a
	// table or code block, so the heading text still lands in the
	// section's first accumulated chunk.
	pending string

	// anchor is the raw text of the open chunk's first unit, used to
	// locate the chunk in the source for page attribution.
	anchor string

	chunks []Chunk
}

func (w *walker) enterSection(level int, title string) {
	if level < 1 {
		level = 1
	}
	if level <= len(w.stack) {
		w.stack = w.stack[:level-1]
	}
	w.stack = append(w.stack, title)
}

func (w *walker) seedHeading(block extract.Block) {
	w.pending = block.Render()
	w.anchor = block.Text
}

func (w *walker) dropPending() { w.pending = "" }

func (w *walker) accumulate(kind int, rendered, raw string) {
	if strings.TrimSpace(rendered) == "" {
		return
	}
	if w.pending != "" {
		w.units = append(w.units, unit{kind: unitHeading, text: w.pending})
		w.tokens = w.chunker.counter.Count(w.pending)
		w.pending = ""
	}
	t := w.chunker.counter.Count(rendered)
	if len(w.units) > 0 && w.tokens+t > w.chunker.target {
		w.flush()
	}
	if len(w.units) == 0 && w.anchor == "" {
		w.anchor = raw
	}
	w.units = append(w.units, unit{kind: kind, text: rendered})
	w.tokens += t
}

// flush closes the open accumulation into a chunk. Heading-only
// accumulations stay pending instead: the heading waits for body
// content in its own section rather than becoming a noise chunk.
func (w *walker) flush() {
	if len(w.units) == 0 {
		return
	}
	if len(w.units) == 1 && w.units[0].kind == unitHeading {
		w.pending = w.units[0].text
		w.units = w.units[:0]
		w.tokens = 0
		return
	}

	kind := KindParagraph
	hasHeading, allList := false, true
	for _, u := range w.units {
		if u.kind == unitHeading {
			hasHeading = true
		}
		if u.kind != unitList {
			allList = false
		}
	}
	if hasHeading {
		kind = KindHeadingSection
	} else if allList {
		kind = KindList
	}

	w.emit(kind, joinUnits(w.units), w.anchor)
	w.units = w.units[:0]
	w.tokens = 0
	w.anchor = ""
}

func (w *walker) emit(kind, text, anchor string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	ord := len(w.chunks)
	tokens := w.chunker.counter.Count(text)

	over := false
	if (kind == KindTable || kind == KindCode) && tokens > w.chunker.maxCap {
		over = true
		slog.Debug("chunk exceeds token cap, kept whole",
			"doc_id", w.docID, "ordinal", ord, "kind", kind, "tokens", tokens)
	}

	w.chunks = append(w.chunks, Chunk{
		ID:            fmt.Sprintf("%s:%d", w.docID, ord),
		DocID:         w.docID,
		Ordinal:       ord,
		Kind:          kind,
		SectionPath:   append([]string(nil), w.stack...),
		Text:          text,
		TokenEstimate: tokens,
		Page:          w.pageFor(anchor),
		OverCap:       over,
	})
}

// joinUnits renders accumulated units: consecutive list items sit on
// adjacent lines, everything else is paragraph-separated.
func joinUnits(units []unit) string {
	var sb strings.Builder
	for i, u := range units {
		if i > 0 {
			if u.kind == unitList && units[i-1].kind == unitList {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(u.text)
	}
	return sb.String()
}

// pageFor locates the anchor text in the source from the current cursor
// and maps its byte offset onto the page map. Unlocatable anchors keep
// the page unknown rather than guessing.
func (w *walker) pageFor(anchor string) int {
	if len(w.pageMap) == 0 || anchor == "" {
		return 0
	}
	anchor = anchorKey(anchor)
	if anchor == "" {
		return 0
	}
	idx := strings.Index(w.source[w.cursor:], anchor)
	if idx < 0 {
		return 0
	}
	offset := w.cursor + idx
	w.cursor = offset + len(anchor)

	page := 0
	for _, span := range w.pageMap {
		if span.Offset > offset {
			break
		}
		page = span.Page
	}
	return page
}

// anchorKey trims an anchor to its first line, capped at 64 bytes on a
// rune boundary.
func anchorKey(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 64 {
		cut := 64
		for cut > 0 && s[cut]&0xC0 == 0x80 {
			cut--
		}
		s = s[:cut]
	}
	return strings.TrimSpace(s)
}

func firstRowAnchor(block extract.Block) string {
	if len(block.Rows) == 0 || len(block.Rows[0]) == 0 {
		return ""
	}
	return block.Rows[0][0]
}
