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

// Package enrich classifies and tags extracted documents with a single
// structured LLM call against the controlled vocabularies. The model's
// answer is never trusted as-is: unknown tags move to suggested_tags,
// entities absent from the source text are dropped, and a total LLM
// failure degrades to weak metadata instead of failing the ingest.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/sift/pkg/chunk"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/extract"
	"github.com/kadirpekel/sift/pkg/llms"
	"github.com/kadirpekel/sift/pkg/vocab"
)

// SchemaVersion identifies the prompt+schema revision recorded with
// every enrichment. Bump when either changes shape.
const SchemaVersion = 1

// Title strategies, recorded so consumers can tell a model title from
// a mechanical fallback.
const (
	TitleFromModel    = "model"
	TitleFromHeading  = "heading"
	TitleFromSentence = "first_sentence"
	TitleFromFilename = "filename"
	TitleFromDefault  = "default"
)

// Degraded reasons.
const (
	DegradedBudget    = "budget_exceeded"
	DegradedExhausted = "providers_exhausted"
	DegradedBadSchema = "schema_invalid"
)

// A model title below this confidence is discarded in favor of the
// fallback chain.
const titleConfidenceFloor = 0.3

const maxSummaryChars = 400

// Enrichment is the validated metadata for one document. It marshals
// to the JSON stored in the catalog's enrichment column.
type Enrichment struct {
	Title         string   `json:"title"`
	TitleStrategy string   `json:"title_strategy"`
	Summary       string   `json:"summary,omitempty"`
	DocType       string   `json:"doc_type"`
	Topics        []string `json:"topics,omitempty"`
	Projects      []string `json:"projects,omitempty"`
	Places        []string `json:"places,omitempty"`
	RoleMentions  []string `json:"role_mentions,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	LocationsFree []string `json:"locations_free,omitempty"`
	Dates         []string `json:"dates,omitempty"`
	KeyPoints     []string `json:"key_points,omitempty"`

	// SuggestedTags collects model tags that were not in the
	// vocabularies, kept for curation instead of silently lost.
	SuggestedTags []string `json:"suggested_tags,omitempty"`

	Confidence     float64 `json:"confidence"`
	SourceModel    string  `json:"source_model_id,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	CostUSD        float64 `json:"cost_usd,omitempty"`
	Degraded       bool    `json:"degraded,omitempty"`
	DegradedReason string  `json:"degraded_reason,omitempty"`
	Version        int     `json:"version"`
}

// payload is the model-facing response shape. Every field is required
// so strict structured-output modes accept the schema.
type payload struct {
	Title         string   `json:"title" jsonschema:"required,description=Document title; empty string when the text offers none"`
	Summary       string   `json:"summary" jsonschema:"required,description=Summary of at most 400 characters"`
	DocType       string   `json:"doc_type" jsonschema:"required,enum=email_thread,enum=chat_daily,enum=pdf_report,enum=web_article,enum=note,enum=text,enum=legal,enum=generic"`
	Topics        []string `json:"topics" jsonschema:"required,description=Topics chosen only from the closed topic list"`
	Projects      []string `json:"projects" jsonschema:"required,description=Project ids chosen only from the closed project list"`
	Places        []string `json:"places" jsonschema:"required,description=Places chosen only from the closed place list"`
	RoleMentions  []string `json:"role_mentions" jsonschema:"required,description=Roles chosen only from the closed role list"`
	Organizations []string `json:"organizations" jsonschema:"required,description=Organization names appearing verbatim in the text"`
	LocationsFree []string `json:"locations_free" jsonschema:"required,description=Location names appearing verbatim in the text"`
	Dates         []string `json:"dates" jsonschema:"required,description=Dates from the text in YYYY-MM-DD form"`
	KeyPoints     []string `json:"key_points" jsonschema:"required,description=Ordered short key points"`
	Confidence    float64  `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
}

var canonicalTypes = func() map[string]bool {
	m := make(map[string]bool, 8)
	for typ := range config.DefaultGates() {
		m[typ] = true
	}
	return m
}()

const systemPrompt = "You extract structured metadata from documents. " +
	"Respond with a single JSON object satisfying the provided schema. " +
	"Use empty arrays and empty strings where nothing qualifies; never invent content."

// Enricher runs the enrichment stage.
type Enricher struct {
	router  *llms.Router
	vocab   *vocab.Store
	counter *chunk.TokenCounter
	cfg     config.EnrichmentConfig
	schema  map[string]any
}

// New builds an enricher over the router and vocabulary store. The
// token counter bounds how much document text reaches the model.
func New(router *llms.Router, store *vocab.Store, counter *chunk.TokenCounter, cfg config.EnrichmentConfig) (*Enricher, error) {
	schema, err := responseSchema()
	if err != nil {
		return nil, fmt.Errorf("building enrichment schema: %w", err)
	}
	return &Enricher{
		router:  router,
		vocab:   store,
		counter: counter,
		cfg:     cfg,
		schema:  schema,
	}, nil
}

// Enrich tags one extracted item. It returns an error only when the
// caller's context ends; every LLM failure mode degrades instead, so
// ingest can proceed with weak metadata.
func (e *Enricher) Enrich(ctx context.Context, item *extract.Item, filename string) (*Enrichment, error) {
	parent := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	req := &llms.Request{
		System:     systemPrompt,
		Prompt:     e.buildPrompt(item, filename),
		Structured: &llms.StructuredSpec{Name: "enrichment", Schema: e.schema},
	}
	res, err := e.router.Call(ctx, llms.OpEnrich, e.cfg.Model, req)
	if err != nil {
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return e.degraded(item, filename, err), nil
	}

	var p payload
	if err := json.Unmarshal([]byte(res.Text), &p); err != nil {
		slog.Warn("enrichment response does not match schema",
			"provider", res.Provider, "model", res.Model, "error", err)
		return e.degraded(item, filename, err), nil
	}

	enr := e.validate(&p, item, filename)
	enr.SourceModel = res.Model
	enr.Provider = res.Provider
	enr.CostUSD = res.CostUSD
	return enr, nil
}

// validate turns the raw model payload into a trusted enrichment:
// vocabulary membership enforced, entities checked against the source,
// dates normalized, summary clamped.
func (e *Enricher) validate(p *payload, item *extract.Item, filename string) *Enrichment {
	enr := &Enrichment{Version: SchemaVersion}
	var suggested []string

	keep := func(values []string, contains func(string) bool) []string {
		var kept []string
		for _, v := range cleanList(values) {
			if contains(v) {
				kept = append(kept, v)
			} else {
				suggested = append(suggested, v)
			}
		}
		return kept
	}
	enr.Topics = keep(p.Topics, e.vocab.ContainsTopic)
	enr.Projects = keep(p.Projects, e.vocab.ContainsProject)
	enr.Places = keep(p.Places, e.vocab.ContainsPlace)
	enr.RoleMentions = keep(p.RoleMentions, e.vocab.ContainsRole)

	// Watchlist matches count as project tags even when the model
	// missed them.
	for _, m := range e.vocab.MatchProjectsAt(item.Text, item.CreatedAt) {
		if !containsString(enr.Projects, m.ID) {
			enr.Projects = append(enr.Projects, m.ID)
		}
	}

	verbatim := func(values []string) []string {
		var kept []string
		for _, v := range cleanList(values) {
			if vocab.MatchesWholeWord(item.Text, v) {
				kept = append(kept, v)
			}
		}
		return kept
	}
	enr.Organizations = verbatim(p.Organizations)
	enr.LocationsFree = verbatim(p.LocationsFree)

	enr.Dates = normalizeDates(p.Dates)
	enr.KeyPoints = cleanList(p.KeyPoints)
	enr.Summary = clampRunes(strings.TrimSpace(p.Summary), maxSummaryChars)
	enr.SuggestedTags = cleanList(suggested)
	enr.Confidence = clamp01(p.Confidence)
	enr.DocType = resolveDocType(p.DocType, item.TypeHint)

	title := strings.TrimSpace(p.Title)
	if title != "" && enr.Confidence >= titleConfidenceFloor {
		enr.Title, enr.TitleStrategy = title, TitleFromModel
	} else {
		enr.Title, enr.TitleStrategy = fallbackTitle(item, filename)
	}
	return enr
}

// degraded builds the weak-metadata result used when no provider
// produced a usable answer.
func (e *Enricher) degraded(item *extract.Item, filename string, cause error) *Enrichment {
	title, strategy := fallbackTitle(item, filename)
	reason := degradedReason(cause)
	slog.Warn("enrichment degraded", "reason", reason, "title", title, "error", cause)
	return &Enrichment{
		Title:          title,
		TitleStrategy:  strategy,
		DocType:        canonicalType(item.TypeHint),
		Confidence:     0.1,
		Degraded:       true,
		DegradedReason: reason,
		Version:        SchemaVersion,
	}
}

func degradedReason(err error) string {
	var budget *llms.BudgetExceededError
	if errors.As(err, &budget) {
		return DegradedBudget
	}
	var exhausted *llms.ProvidersExhaustedError
	if errors.As(err, &exhausted) {
		return DegradedExhausted
	}
	return DegradedBadSchema
}

func (e *Enricher) buildPrompt(item *extract.Item, filename string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the document below and fill every schema field.\n\n")
	sb.WriteString("Hard constraints:\n")
	sb.WriteString("- select topics ONLY from this list; if none match, return empty\n")
	sb.WriteString("- do not fabricate people, organizations, or locations — only extract strings that appear verbatim in the text\n")
	sb.WriteString("- do not use example entries as examples to include\n\n")

	writeVocab(&sb, "Topics", e.vocab.Topics())
	writeVocab(&sb, "Projects", projectIDs(e.vocab.Projects()))
	writeVocab(&sb, "Places", e.vocab.Places())
	writeVocab(&sb, "Roles", e.vocab.Roles())
	writeVocab(&sb, "Document types", sortedTypes())

	fmt.Fprintf(&sb, "\nType hint: %s\n", canonicalType(item.TypeHint))
	if filename != "" {
		fmt.Fprintf(&sb, "Filename: %s\n", filename)
	}
	if item.Title != "" {
		fmt.Fprintf(&sb, "Native title: %s\n", item.Title)
	}
	if !item.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "Content date: %s\n", item.CreatedAt.Format("2006-01-02"))
	}

	sb.WriteString("\nField notes: summary at most 400 characters; dates in YYYY-MM-DD; key_points short, in document order.\n")
	sb.WriteString("\nDocument:\n")
	sb.WriteString(e.counter.Truncate(item.Text, e.cfg.MaxInputTokens))
	return sb.String()
}

func writeVocab(sb *strings.Builder, label string, values []string) {
	fmt.Fprintf(sb, "%s (closed set): ", label)
	if len(values) == 0 {
		sb.WriteString("(empty)")
	} else {
		sb.WriteString(strings.Join(values, ", "))
	}
	sb.WriteString("\n")
}

func projectIDs(projects []vocab.Project) []string {
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids
}

func sortedTypes() []string {
	types := make([]string, 0, len(canonicalTypes))
	for typ := range canonicalTypes {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// resolveDocType keeps format-certain extractor hints; for everything
// else the model classifies content within the closed set.
func resolveDocType(modelType, hint string) string {
	switch hint {
	case "email_thread", "chat_daily", "web_article":
		return hint
	}
	return canonicalType(modelType, hint)
}

// canonicalType returns the first candidate that is a canonical
// document type, "generic" when none is.
func canonicalType(candidates ...string) string {
	for _, c := range candidates {
		if canonicalTypes[c] {
			return c
		}
	}
	return "generic"
}

// fallbackTitle walks the mechanical title chain: first heading with at
// least three words, then a short first sentence, then the filename
// stem, then the default.
func fallbackTitle(item *extract.Item, filename string) (string, string) {
	for _, b := range item.Blocks {
		if b.Kind == extract.BlockHeading && len(strings.Fields(b.Text)) >= 3 {
			return strings.TrimSpace(b.Text), TitleFromHeading
		}
	}
	if s := firstSentence(item.Text); s != "" {
		return s, TitleFromSentence
	}
	if stem := filenameStem(filename); stem != "" {
		return stem, TitleFromFilename
	}
	return "Untitled document", TitleFromDefault
}

// firstSentence returns the leading sentence when it is 120 characters
// or fewer, empty otherwise.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	cut := strings.IndexFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	s := text
	if cut >= 0 {
		s = text[:cut]
	}
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > 120 {
		return ""
	}
	return s
}

// filenameStem normalizes a filename into title-ish text: extension
// stripped, separators spaced.
func filenameStem(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return strings.Join(strings.Fields(stem), " ")
}

// responseSchema reflects the payload struct into a plain JSON-Schema
// map for the router's structured-output path.
func responseSchema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&payload{})

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	delete(m, "$schema")
	delete(m, "$id")
	// Strict modes reject undeclared keys.
	m["additionalProperties"] = false
	return m, nil
}

func normalizeDates(dates []string) []string {
	layouts := []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}
	var out []string
	seen := make(map[string]struct{})
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		for _, layout := range layouts {
			t, err := time.Parse(layout, d)
			if err != nil {
				continue
			}
			iso := t.Format("2006-01-02")
			if _, ok := seen[iso]; !ok {
				seen[iso] = struct{}{}
				out = append(out, iso)
			}
			break
		}
	}
	return out
}

// cleanList trims, drops empties, and dedupes preserving order.
func cleanList(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}
