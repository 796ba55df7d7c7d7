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

package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/sift/pkg/catalog"
	"github.com/kadirpekel/sift/pkg/config"
	"github.com/kadirpekel/sift/pkg/enrich"
)

func testDocument() *catalog.Document {
	return &catalog.Document{
		ID:                "b61dcb0a-3c4f-4f1e-9e2a-0a39f7a0c111",
		ContentHash:       "deadbeef",
		Source:            "notes/meeting.md",
		DocType:           "meeting_notes",
		Title:             "Q3 Planning Meeting",
		Summary:           "The team aligned on the Q3 roadmap.",
		CreatedAt:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		IngestedAt:        time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
		Quality:           0.8,
		Novelty:           0.6,
		Actionability:     0.7,
		Signalness:        0.71,
		DoIndex:           true,
		Status:            catalog.StatusIndexed,
		EnrichmentVersion: enrich.SchemaVersion,
		Enrichment: &enrich.Enrichment{
			Topics:       []string{"planning", "roadmap"},
			Projects:     []string{"Alpha", "Beta Rollout"},
			Places:       []string{"Berlin"},
			RoleMentions: []string{"tech lead"},
			Dates:        []string{"2026-03-01"},
			KeyPoints: []string{
				"Decided to ship the beta by April",
				"Budget increased to 40k",
				"Daniel will own the rollout plan",
			},
		},
		SuggestedTags: []string{"quarterly"},
	}
}

func newTestExporter(t *testing.T, layout string) *Exporter {
	t.Helper()
	e, err := New(config.ExportConfig{
		Enabled: true,
		Dir:     t.TempDir(),
		Layout:  layout,
		Stubs:   config.BoolPtr(true),
	})
	require.NoError(t, err)
	return e
}

func readArtifact(t *testing.T, e *Exporter, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.Dir(), relPath))
	require.NoError(t, err)
	return string(data)
}

// parseFrontMatter splits an artifact into its YAML header and body.
func parseFrontMatter(t *testing.T, content string) (map[string]any, string) {
	t.Helper()
	require.True(t, strings.HasPrefix(content, "---\n"), "artifact must open with a front matter fence")
	rest := content[len("---\n"):]
	idx := strings.Index(rest, "\n---\n")
	require.GreaterOrEqual(t, idx, 0, "artifact must close the front matter fence")

	var fm map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rest[:idx+1]), &fm))
	return fm, rest[idx+len("\n---\n"):]
}

func TestExportFlatLayout(t *testing.T) {
	e := newTestExporter(t, "flat")
	doc := testDocument()

	relPath, err := e.Export(doc)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01__meeting_notes__q3-planning-meeting__b61d.md", relPath)

	content := readArtifact(t, e, relPath)
	fm, body := parseFrontMatter(t, content)

	assert.Equal(t, doc.ID, fm["id"])
	assert.Equal(t, "Q3 Planning Meeting", fm["title"])
	assert.Equal(t, "meeting_notes", fm["type"])
	assert.Equal(t, "2026-03-01T10:00:00Z", fm["created_at"])
	assert.Equal(t, []any{"planning", "roadmap"}, fm["topics"])
	assert.Equal(t, []any{"Alpha", "Beta Rollout"}, fm["projects"])
	assert.Equal(t, []any{"Berlin"}, fm["places"])
	assert.Equal(t, true, fm["do_index"])
	assert.Equal(t, "deadbeef", fm["content_hash"])
	assert.InDelta(t, 0.8, fm["quality_score"], 1e-9)
	assert.InDelta(t, 0.71, fm["signalness"], 1e-9)

	// Extras appear alongside the required keys.
	assert.Equal(t, "notes/meeting.md", fm["source"])
	assert.Equal(t, []any{"tech lead"}, fm["role_mentions"])
	assert.Equal(t, []any{"quarterly"}, fm["suggested_tags"])

	assert.Contains(t, body, "# Q3 Planning Meeting")
	assert.Contains(t, body, "The team aligned on the Q3 roadmap.")
}

func TestExportNestedLayout(t *testing.T) {
	e := newTestExporter(t, "nested")
	doc := testDocument()

	relPath, err := e.Export(doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("meeting_notes", "2026-03-01", "q3-planning-meeting__b61d.md"), relPath)

	_, err = os.Stat(filepath.Join(e.Dir(), relPath))
	require.NoError(t, err)
}

func TestFrontMatterKeyOrder(t *testing.T) {
	e := newTestExporter(t, "flat")
	relPath, err := e.Export(testDocument())
	require.NoError(t, err)

	content := readArtifact(t, e, relPath)
	required := []string{
		"id:", "title:", "type:", "created_at:", "topics:", "projects:",
		"places:", "summary:", "quality_score:", "novelty_score:",
		"actionability_score:", "signalness:", "do_index:",
		"enrichment_version:", "content_hash:",
	}

	last := -1
	for _, key := range required {
		idx := strings.Index(content, "\n"+key)
		if strings.HasPrefix(content[4:], key) {
			idx = 0
		}
		require.GreaterOrEqual(t, idx, 0, "missing front matter key %q", key)
		assert.Greater(t, idx, last, "key %q out of order", key)
		last = idx
	}
}

func TestBodySections(t *testing.T) {
	e := newTestExporter(t, "flat")
	relPath, err := e.Export(testDocument())
	require.NoError(t, err)

	_, body := parseFrontMatter(t, readArtifact(t, e, relPath))

	assert.Contains(t, body, "## Key Points\n\n- Daniel will own the rollout plan")
	assert.Contains(t, body, "## Evidence\n\n- Budget increased to 40k")
	assert.Contains(t, body, "## Outcomes\n\n- Decided to ship the beta by April")
}

func TestXRefWrappedInIgnoreMarkers(t *testing.T) {
	e := newTestExporter(t, "flat")
	relPath, err := e.Export(testDocument())
	require.NoError(t, err)

	content := readArtifact(t, e, relPath)
	start := strings.Index(content, IgnoreMarker)
	end := strings.Index(content, IgnoreMarkerEnd)
	require.GreaterOrEqual(t, start, 0)
	require.Greater(t, end, start)

	xref := content[start:end]
	assert.Contains(t, xref, "## XRef")
	assert.Contains(t, xref, "[[refs/projects/alpha]]")
	assert.Contains(t, xref, "[[refs/projects/beta-rollout]]")
	assert.Contains(t, xref, "[[refs/places/berlin]]")
	assert.Contains(t, xref, "[[refs/roles/tech-lead]]")

	// Content sections stay outside the ignored span.
	assert.NotContains(t, xref, "## Key Points")
}

func TestNoXRefWithoutEntities(t *testing.T) {
	e := newTestExporter(t, "flat")
	doc := testDocument()
	doc.Enrichment.Projects = nil
	doc.Enrichment.Places = nil
	doc.Enrichment.RoleMentions = nil

	relPath, err := e.Export(doc)
	require.NoError(t, err)

	content := readArtifact(t, e, relPath)
	assert.NotContains(t, content, IgnoreMarker)
	assert.NotContains(t, content, "## XRef")

	// Required list keys still render, as empty sequences.
	fm, _ := parseFrontMatter(t, content)
	assert.Equal(t, []any{}, fm["projects"])
	assert.Equal(t, []any{}, fm["places"])
}

func TestStubsCreatedOnceAndPreserved(t *testing.T) {
	e := newTestExporter(t, "flat")
	doc := testDocument()

	_, err := e.Export(doc)
	require.NoError(t, err)

	stubPath := filepath.Join(e.Dir(), "refs", "projects", "alpha.md")
	stub, err := os.ReadFile(stubPath)
	require.NoError(t, err)
	assert.Contains(t, string(stub), "entity: Alpha")
	assert.Contains(t, string(stub), "kind: project")
	assert.Contains(t, string(stub), "```query")
	assert.Contains(t, string(stub), `projects:"Alpha"`)

	_, err = os.Stat(filepath.Join(e.Dir(), "refs", "places", "berlin.md"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(e.Dir(), "refs", "roles", "tech-lead.md"))
	require.NoError(t, err)

	// Curator edits survive re-export.
	edited := "---\nentity: Alpha\n---\n\nHand-curated notes.\n"
	require.NoError(t, os.WriteFile(stubPath, []byte(edited), 0o644))

	_, err = e.Export(doc)
	require.NoError(t, err)
	after, err := os.ReadFile(stubPath)
	require.NoError(t, err)
	assert.Equal(t, edited, string(after))
}

func TestStubsDisabled(t *testing.T) {
	e, err := New(config.ExportConfig{
		Dir:   t.TempDir(),
		Stubs: config.BoolPtr(false),
	})
	require.NoError(t, err)

	_, err = e.Export(testDocument())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(e.Dir(), "refs"))
	assert.True(t, os.IsNotExist(err))
}

func TestGatedOutDocumentStillExports(t *testing.T) {
	e := newTestExporter(t, "flat")
	doc := testDocument()
	doc.DoIndex = false
	doc.Status = catalog.StatusArchived

	relPath, err := e.Export(doc)
	require.NoError(t, err)

	fm, _ := parseFrontMatter(t, readArtifact(t, e, relPath))
	assert.Equal(t, false, fm["do_index"])
}

func TestCreatedAtFallsBackToIngestTime(t *testing.T) {
	e := newTestExporter(t, "flat")
	doc := testDocument()
	doc.CreatedAt = time.Time{}

	relPath, err := e.Export(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(relPath, "2026-03-02__"), "path %q should use the ingest date", relPath)

	fm, _ := parseFrontMatter(t, readArtifact(t, e, relPath))
	assert.Equal(t, "2026-03-02T08:30:00Z", fm["created_at"])
}

func TestExportReplacesExistingArtifact(t *testing.T) {
	e := newTestExporter(t, "flat")
	doc := testDocument()

	relPath, err := e.Export(doc)
	require.NoError(t, err)

	doc.Summary = "Rewritten after re-enrichment."
	again, err := e.Export(doc)
	require.NoError(t, err)
	assert.Equal(t, relPath, again)

	content := readArtifact(t, e, relPath)
	assert.Contains(t, content, "Rewritten after re-enrichment.")
	assert.NotContains(t, content, "The team aligned on the Q3 roadmap.")
}

func TestRemove(t *testing.T) {
	e := newTestExporter(t, "flat")
	relPath, err := e.Export(testDocument())
	require.NoError(t, err)

	require.NoError(t, e.Remove(relPath))
	_, err = os.Stat(filepath.Join(e.Dir(), relPath))
	assert.True(t, os.IsNotExist(err))

	// Missing file and empty path are both no-ops.
	assert.NoError(t, e.Remove(relPath))
	assert.NoError(t, e.Remove(""))

	// Escapes are rejected.
	assert.Error(t, e.Remove("../outside.md"))
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Alpha", "alpha"},
		{"spaces", "Beta Rollout", "beta-rollout"},
		{"punctuation", "Q3: Planning & Review!", "q3-planning-review"},
		{"collapses dashes", "a -- b", "a-b"},
		{"unicode letters", "München Trip", "münchen-trip"},
		{"empty", "", "untitled"},
		{"symbols only", "!!!", "untitled"},
		{"caps length", strings.Repeat("long-word ", 20),
			strings.TrimSuffix(strings.Repeat("long-word-", 6), "-")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slugify(tt.input)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), 60)
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "b61d", shortID("b61dcb0a-3c4f-4f1e-9e2a-0a39f7a0c111"))
	assert.Equal(t, "ab", shortID("ab"))
	assert.Equal(t, "abcd", shortID("a-b-c-d-e"))
}

func TestDegradedDocumentKeepsRequiredKeys(t *testing.T) {
	e := newTestExporter(t, "flat")
	doc := testDocument()
	doc.Degraded = true
	doc.Enrichment = &enrich.Enrichment{Degraded: true, DegradedReason: "budget_exhausted"}
	doc.Summary = ""
	doc.SuggestedTags = nil

	relPath, err := e.Export(doc)
	require.NoError(t, err)

	fm, body := parseFrontMatter(t, readArtifact(t, e, relPath))
	for _, key := range []string{
		"id", "title", "type", "created_at", "topics", "projects", "places",
		"summary", "quality_score", "novelty_score", "actionability_score",
		"signalness", "do_index", "enrichment_version", "content_hash",
	} {
		assert.Contains(t, fm, key, "required key %q", key)
	}
	assert.Equal(t, true, fm["enrichment_degraded"])
	assert.Contains(t, body, "# Q3 Planning Meeting")
	assert.NotContains(t, body, "## Key Points")
}
