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

// Package export writes canonical Markdown artifacts for ingested
// documents.
//
// Each artifact carries the enrichment fields as YAML front matter, a
// body derived from the summary and key points, and an XRef block of
// wiki-links to entity stub files. The XRef block sits inside ignore
// markers so re-ingesting an exported file never embeds its own
// cross-references as content. Stubs live under refs/ and are created
// once; their body is a back-link query, not a maintained list, so
// exports never have to rewrite them.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/enrich"
)

// Ignore markers wrapping content that must never be chunked or
// embedded when the artifact is read back in.
const (
	IgnoreMarker    = "<!-- sift:ignore -->"
	IgnoreMarkerEnd = "<!-- sift:ignore:end -->"
)

// Entity kinds with a stub directory under refs/.
const (
	EntityProject = "project"
	EntityPlace   = "place"
	EntityRole    = "role"
)

var stubDirs = map[string]string{
	EntityProject: "projects",
	EntityPlace:   "places",
	EntityRole:    "roles",
}

// Exporter writes artifacts and entity stubs under one vault root.
type Exporter struct {
	dir    string
	layout string
	stubs  bool
}

// New creates the vault root and returns an exporter for it.
func New(cfg config.ExportConfig) (*Exporter, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("export dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	return &Exporter{
		dir:    cfg.Dir,
		layout: cfg.Layout,
		stubs:  config.BoolValue(cfg.Stubs, true),
	}, nil
}

// Dir returns the vault root.
func (e *Exporter) Dir() string { return e.dir }

// Export writes the canonical artifact for doc, creating entity stubs
// for its projects, places, and roles. The returned path is relative to
// the vault root. Existing artifacts at the same path are replaced.
func (e *Exporter) Export(doc *catalog.Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("document is required")
	}

	relPath := e.ArtifactPath(doc)
	abs, err := e.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	content, err := render(doc)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(abs, []byte(content)); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	if e.stubs {
		enr := docEnrichment(doc)
		if err := e.writeStubs(EntityProject, enr.Projects); err != nil {
			return "", err
		}
		if err := e.writeStubs(EntityPlace, enr.Places); err != nil {
			return "", err
		}
		if err := e.writeStubs(EntityRole, enr.RoleMentions); err != nil {
			return "", err
		}
	}

	return relPath, nil
}

// Remove deletes an exported artifact by its vault-relative path.
// Missing files are not an error. Entity stubs stay: other documents
// may reference them.
func (e *Exporter) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}
	abs, err := e.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact: %w", err)
	}
	return nil
}

// ArtifactPath computes the vault-relative artifact path for doc.
//
// flat:   YYYY-MM-DD__{type}__{slug}__{shortid}.md
// nested: {type}/{yyyy-mm-dd}/{slug}__{shortid}.md
func (e *Exporter) ArtifactPath(doc *catalog.Document) string {
	date := doc.CreatedAt
	if date.IsZero() {
		date = doc.IngestedAt
	}
	day := date.Format("2006-01-02")
	slug := Slugify(doc.Title)
	short := shortID(doc.ID)

	if e.layout == "nested" {
		return filepath.Join(doc.DocType, day, fmt.Sprintf("%s__%s.md", slug, short))
	}
	return fmt.Sprintf("%s__%s__%s__%s.md", day, doc.DocType, slug, short)
}

// resolve joins a vault-relative path, rejecting escapes.
func (e *Exporter) resolve(relPath string) (string, error) {
	clean := filepath.Clean(relPath)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the vault", relPath)
	}
	return filepath.Join(e.dir, clean), nil
}

// frontMatter is the artifact header. Field order is the wire order;
// Extra keys append after the required set.
type frontMatter struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	Type               string   `yaml:"type"`
	CreatedAt          string   `yaml:"created_at"`
	Topics             []string `yaml:"topics"`
	Projects           []string `yaml:"projects"`
	Places             []string `yaml:"places"`
	Summary            string   `yaml:"summary"`
	QualityScore       float64  `yaml:"quality_score"`
	NoveltyScore       float64  `yaml:"novelty_score"`
	ActionabilityScore float64  `yaml:"actionability_score"`
	Signalness         float64  `yaml:"signalness"`
	DoIndex            bool     `yaml:"do_index"`
	EnrichmentVersion  int      `yaml:"enrichment_version"`
	ContentHash        string   `yaml:"content_hash"`

	Extra map[string]any `yaml:",inline"`
}

func render(doc *catalog.Document) (string, error) {
	enr := docEnrichment(doc)

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = doc.IngestedAt
	}

	fm := frontMatter{
		ID:                 doc.ID,
		Title:              doc.Title,
		Type:               doc.DocType,
		CreatedAt:          createdAt.Format(time.RFC3339),
		Topics:             orEmpty(enr.Topics),
		Projects:           orEmpty(enr.Projects),
		Places:             orEmpty(enr.Places),
		Summary:            doc.Summary,
		QualityScore:       round4(doc.Quality),
		NoveltyScore:       round4(doc.Novelty),
		ActionabilityScore: round4(doc.Actionability),
		Signalness:         round4(doc.Signalness),
		DoIndex:            doc.DoIndex,
		EnrichmentVersion:  doc.EnrichmentVersion,
		ContentHash:        doc.ContentHash,
		Extra:              extraKeys(doc, enr),
	}

	header, err := yaml.Marshal(&fm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal front matter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(header)
	sb.WriteString("---\n")

	sb.WriteString("\n# ")
	sb.WriteString(doc.Title)
	sb.WriteString("\n")

	if doc.Summary != "" {
		sb.WriteString("\n")
		sb.WriteString(doc.Summary)
		sb.WriteString("\n")
	}

	writeBody(&sb, enr.KeyPoints)
	writeXRef(&sb, enr)

	return sb.String(), nil
}

// extraKeys collects the permitted non-required header keys. Only
// populated values appear, so minimal documents stay minimal.
func extraKeys(doc *catalog.Document, enr *enrich.Enrichment) map[string]any {
	extra := make(map[string]any)
	if doc.Source != "" {
		extra["source"] = doc.Source
	}
	if !doc.IngestedAt.IsZero() {
		extra["ingested_at"] = doc.IngestedAt.Format(time.RFC3339)
	}
	if len(enr.RoleMentions) > 0 {
		extra["role_mentions"] = enr.RoleMentions
	}
	if len(enr.Organizations) > 0 {
		extra["organizations"] = enr.Organizations
	}
	if len(enr.LocationsFree) > 0 {
		extra["locations_free"] = enr.LocationsFree
	}
	if len(enr.Dates) > 0 {
		extra["dates"] = enr.Dates
	}
	if len(doc.SuggestedTags) > 0 {
		extra["suggested_tags"] = doc.SuggestedTags
	}
	if doc.Degraded {
		extra["enrichment_degraded"] = true
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// Body section classification. A key point opening with a decision or
// completion verb is an outcome; one carrying a figure or date is
// evidence; the rest stay key points.
var outcomeOpeners = []string{
	"decided", "agreed", "approved", "rejected", "resolved", "completed",
	"shipped", "launched", "signed", "closed", "cancelled", "canceled",
}

var digitPattern = regexp.MustCompile(`\d`)

func writeBody(sb *strings.Builder, keyPoints []string) {
	var points, evidence, outcomes []string
	for _, p := range keyPoints {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		switch classifyPoint(p) {
		case "outcome":
			outcomes = append(outcomes, p)
		case "evidence":
			evidence = append(evidence, p)
		default:
			points = append(points, p)
		}
	}

	writeSection(sb, "Key Points", points)
	writeSection(sb, "Evidence", evidence)
	writeSection(sb, "Outcomes", outcomes)
}

func classifyPoint(p string) string {
	lower := strings.ToLower(p)
	for _, opener := range outcomeOpeners {
		if strings.HasPrefix(lower, opener) {
			return "outcome"
		}
	}
	if digitPattern.MatchString(p) {
		return "evidence"
	}
	return "point"
}

func writeSection(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n## ")
	sb.WriteString(title)
	sb.WriteString("\n\n")
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}

func writeXRef(sb *strings.Builder, enr *enrich.Enrichment) {
	var links []string
	for _, p := range enr.Projects {
		links = append(links, stubLink(EntityProject, p))
	}
	for _, p := range enr.Places {
		links = append(links, stubLink(EntityPlace, p))
	}
	for _, r := range enr.RoleMentions {
		links = append(links, stubLink(EntityRole, r))
	}
	if len(links) == 0 {
		return
	}

	sb.WriteString("\n")
	sb.WriteString(IgnoreMarker)
	sb.WriteString("\n## XRef\n\n")
	for _, link := range links {
		sb.WriteString("- ")
		sb.WriteString(link)
		sb.WriteString("\n")
	}
	sb.WriteString(IgnoreMarkerEnd)
	sb.WriteString("\n")
}

func stubLink(kind, name string) string {
	return fmt.Sprintf("[[refs/%s/%s]]", stubDirs[kind], Slugify(name))
}

// writeStubs creates one stub per entity, skipping names whose stub
// already exists. Stubs are never rewritten: curators may edit them.
func (e *Exporter) writeStubs(kind string, names []string) error {
	for _, name := range names {
		slug := Slugify(name)
		rel := filepath.Join("refs", stubDirs[kind], slug+".md")
		abs, err := e.resolve(rel)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("failed to create stub directory: %w", err)
		}
		if err := writeAtomic(abs, []byte(stubContent(kind, name))); err != nil {
			return fmt.Errorf("failed to write %s stub %q: %w", kind, name, err)
		}
	}
	return nil
}

// stubContent is the guaranteed stub body: identity front matter and a
// back-link query enumerating referring documents. No document list is
// materialized, so stubs never go stale.
func stubContent(kind, name string) string {
	queryKey := map[string]string{
		EntityProject: "projects",
		EntityPlace:   "places",
		EntityRole:    "role_mentions",
	}[kind]

	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "entity: %s\n", yamlScalar(name))
	fmt.Fprintf(&sb, "kind: %s\n", kind)
	sb.WriteString("---\n\n")
	fmt.Fprintf(&sb, "# %s\n\n", name)
	sb.WriteString("Documents referencing this entity:\n\n")
	sb.WriteString("```query\n")
	fmt.Fprintf(&sb, "%s:%q\n", queryKey, name)
	sb.WriteString("```\n")
	return sb.String()
}

// yamlScalar renders one string value, quoting when it carries
// structural characters.
func yamlScalar(s string) string {
	if strings.ContainsAny(s, ":#{}[]|>&*!%@`\"'") || strings.TrimSpace(s) != s {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Slugify normalizes an entity name or title into a filesystem- and
// wiki-link-safe slug: lowercase, letter and digit runs joined by
// single dashes, at most 60 runes.
func Slugify(s string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			sb.WriteRune('-')
			lastDash = true
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if runes := []rune(slug); len(runes) > 60 {
		slug = strings.Trim(string(runes[:60]), "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}

// shortID is the first four hex characters of a document id.
func shortID(id string) string {
	hex := strings.Map(func(r rune) rune {
		if r == '-' {
			return -1
		}
		return r
	}, strings.ToLower(id))
	if len(hex) > 4 {
		return hex[:4]
	}
	return hex
}

// writeAtomic writes through a same-directory temp file and rename, so
// readers never observe a half-written artifact.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sift-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func docEnrichment(doc *catalog.Document) *enrich.Enrichment {
	if doc.Enrichment != nil {
		return doc.Enrichment
	}
	return &enrich.Enrichment{}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
