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

package vocab

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kadirpekel/sift/pkg/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.VocabularyConfig{
		Topics: []string{"health/sleep", "work/projects"},
		Projects: []config.ProjectConfig{
			{ID: "alpha", Keywords: []string{"alpha", "kickoff", "machine learning"}},
			{ID: "beta", Keywords: []string{"beta rollout"}},
		},
		Places: []string{"Berlin", "Amsterdam"},
		Roles:  []string{"presenter", "reviewer"},
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return s
}

func TestTopics_AncestorExpansion(t *testing.T) {
	s := testStore(t)

	want := []string{"health", "health/sleep", "work", "work/projects"}
	if got := s.Topics(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, topic := range want {
		if !s.ContainsTopic(topic) {
			t.Errorf("expected topic %q to be contained", topic)
		}
	}
	if s.ContainsTopic("health/sleep/naps") {
		t.Error("descendant not in vocabulary must not be contained")
	}
	if s.ContainsTopic("Health") {
		t.Error("topic containment is exact-string")
	}
}

func TestContains(t *testing.T) {
	s := testStore(t)

	if !s.ContainsProject("alpha") || s.ContainsProject("gamma") {
		t.Error("unexpected project containment")
	}
	if !s.ContainsPlace("Berlin") || s.ContainsPlace("berlin") {
		t.Error("place containment is exact-string")
	}
	if !s.ContainsRole("presenter") || s.ContainsRole("author") {
		t.Error("unexpected role containment")
	}
}

func TestMatchProjects(t *testing.T) {
	s := testStore(t)

	matches := s.MatchProjects("Project Alpha kick-off in Berlin. The ALPHA team and machine\nlearning crew attend.")
	if len(matches) != 1 {
		t.Fatalf("expected 1 matching project, got %+v", matches)
	}
	m := matches[0]
	if m.ID != "alpha" {
		t.Errorf("expected project alpha, got %s", m.ID)
	}
	// "alpha" hits twice but counts once; "machine learning" matches
	// across the line break; "kickoff" is absent ("kick-off" is two
	// tokens).
	want := []string{"alpha", "machine learning"}
	if !reflect.DeepEqual(m.Keywords, want) {
		t.Errorf("expected keywords %v, got %v", want, m.Keywords)
	}
}

func TestMatchProjects_WholeTokenBoundary(t *testing.T) {
	s := testStore(t)

	if got := s.MatchProjects("the alphabet soup recipe"); len(got) != 0 {
		t.Errorf("substring inside a token must not match: %+v", got)
	}
	if got := s.MatchProjects("deploy (alpha) today"); len(got) != 1 {
		t.Errorf("punctuation-delimited token should match: %+v", got)
	}
}

func TestMatchProjectsAt_DateRange(t *testing.T) {
	s, err := New(config.VocabularyConfig{
		Projects: []config.ProjectConfig{
			{ID: "alpha", Keywords: []string{"alpha"}, From: "2026-01-01", To: "2026-06-30"},
		},
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	text := "alpha status update"
	during := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lastDay := time.Date(2026, 6, 30, 23, 0, 0, 0, time.UTC)
	after := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if got := s.MatchProjectsAt(text, during); len(got) != 1 {
		t.Errorf("expected match during active range, got %+v", got)
	}
	if got := s.MatchProjectsAt(text, lastDay); len(got) != 1 {
		t.Errorf("to date is inclusive, got %+v", got)
	}
	if got := s.MatchProjectsAt(text, after); len(got) != 0 {
		t.Errorf("expected no match after range, got %+v", got)
	}
	if got := s.MatchProjectsAt(text, time.Time{}); len(got) != 1 {
		t.Errorf("zero time must not restrict, got %+v", got)
	}
}

func TestMatchesWholeWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		term string
		want bool
	}{
		{"exact", "met with Acme Corp yesterday", "Acme Corp", true},
		{"case insensitive", "met with ACME CORP", "acme corp", true},
		{"substring rejected", "scalpel on the table", "alp", false},
		{"start boundary", "Berlin is lovely", "berlin", true},
		{"end boundary", "we visited Berlin", "berlin", true},
		{"digit boundary", "alpha2 release", "alpha", false},
		{"across newline", "machine\nlearning pipeline", "machine learning", true},
		{"empty term", "anything", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesWholeWord(tt.text, tt.term); got != tt.want {
				t.Errorf("MatchesWholeWord(%q, %q) = %v, want %v", tt.text, tt.term, got, tt.want)
			}
		})
	}
}

func TestFileLoading_MergeAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	content := `topics:
  - finance/tax
places:
  - Hamburg
projects:
  - id: alpha
    keywords: [alpha-from-file]
  - id: gamma
    keywords: [gamma]
roles:
  - author
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write vocabulary file: %v", err)
	}

	s, err := New(config.VocabularyConfig{
		File:   path,
		Topics: []string{"health"},
		Projects: []config.ProjectConfig{
			{ID: "alpha", Keywords: []string{"alpha"}},
		},
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	for _, topic := range []string{"finance", "finance/tax", "health"} {
		if !s.ContainsTopic(topic) {
			t.Errorf("expected merged topic %q", topic)
		}
	}
	if !s.ContainsPlace("Hamburg") || !s.ContainsRole("author") {
		t.Error("file entries missing")
	}
	if !s.ContainsProject("gamma") {
		t.Error("file project missing")
	}

	// Inline overrides the file entry with the same id.
	var alpha Project
	for _, p := range s.Projects() {
		if p.ID == "alpha" {
			alpha = p
		}
	}
	if !reflect.DeepEqual(alpha.Keywords, []string{"alpha"}) {
		t.Errorf("inline project should override file entry, got %v", alpha.Keywords)
	}
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(config.VocabularyConfig{File: "/nonexistent/vocab.yaml"})
	if err == nil {
		t.Fatal("expected error for missing vocabulary file")
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.yaml")
	if err := os.WriteFile(path, []byte("places: [Berlin]\n"), 0o644); err != nil {
		t.Fatalf("failed to write vocabulary file: %v", err)
	}

	s, err := New(config.VocabularyConfig{File: path})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	if s.ContainsPlace("Oslo") {
		t.Fatal("Oslo should not be present before reload")
	}

	// Reload without source changes keeps lookups identical.
	before := s.Places()
	if err := s.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reflect.DeepEqual(s.Places(), before) {
		t.Error("no-op reload changed lookups")
	}

	if err := os.WriteFile(path, []byte("places: [Berlin, Oslo]\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite vocabulary file: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !s.ContainsPlace("Oslo") {
		t.Error("reload should pick up the new place")
	}

	// A broken source keeps the old snapshot.
	if err := os.WriteFile(path, []byte("places: {broken"), 0o644); err != nil {
		t.Fatalf("failed to corrupt vocabulary file: %v", err)
	}
	if err := s.Reload(); err == nil {
		t.Fatal("expected reload error for broken file")
	}
	if !s.ContainsPlace("Oslo") {
		t.Error("failed reload must keep the previous snapshot")
	}
}
