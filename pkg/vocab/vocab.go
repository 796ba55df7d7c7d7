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

// Package vocab holds the controlled vocabularies: topics, projects,
// places, and role identifiers. The sets are closed; enrichment output
// is validated against them and anything outside lands in suggested
// tags instead.
//
// The store is immutable after load. The only write is an explicit
// Reload, which swaps a freshly built snapshot under a write lock, so
// reads never observe a half-updated vocabulary.
package vocab

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/sift/pkg/config"
)

// Project is one controlled project with its watchlist.
type Project struct {
	ID       string
	Keywords []string

	// From and To bound the active range, inclusive. Zero means
	// unbounded on that side.
	From time.Time
	To   time.Time
}

// ActiveAt reports whether the project's date range covers t. A zero t
// matches every project.
func (p Project) ActiveAt(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && t.After(p.To.Add(24*time.Hour-time.Nanosecond)) {
		return false
	}
	return true
}

// ProjectMatch reports one project whose watchlist hit the text.
type ProjectMatch struct {
	ID string

	// Keywords lists the distinct watchlist keywords found, in
	// watchlist order.
	Keywords []string
}

// snapshot is one immutable build of the vocabulary.
type snapshot struct {
	topics   []string
	topicSet map[string]bool

	projects   []Project
	projectSet map[string]bool

	places   []string
	placeSet map[string]bool

	roles   []string
	roleSet map[string]bool
}

// Store serves vocabulary lookups. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	cfg  config.VocabularyConfig
	data *snapshot
}

// New loads the vocabulary from the config's file (when set) merged
// with its inline lists.
func New(cfg config.VocabularyConfig) (*Store, error) {
	data, err := build(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("vocabulary loaded",
		"topics", len(data.topics),
		"projects", len(data.projects),
		"places", len(data.places),
		"roles", len(data.roles))
	return &Store{cfg: cfg, data: data}, nil
}

// Reload rebuilds the vocabulary from its sources. On failure the
// current snapshot stays in place.
func (s *Store) Reload() error {
	data, err := build(s.cfg)
	if err != nil {
		return fmt.Errorf("vocabulary reload: %w", err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	slog.Info("vocabulary reloaded", "topics", len(data.topics), "projects", len(data.projects))
	return nil
}

func (s *Store) snapshot() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// ContainsTopic reports exact-string membership in the closed topic
// set, ancestor paths included.
func (s *Store) ContainsTopic(topic string) bool {
	return s.snapshot().topicSet[topic]
}

// ContainsProject reports membership by project id.
func (s *Store) ContainsProject(id string) bool {
	return s.snapshot().projectSet[id]
}

// ContainsPlace reports exact-string membership in the place set.
func (s *Store) ContainsPlace(place string) bool {
	return s.snapshot().placeSet[place]
}

// ContainsRole reports membership in the role-identifier set.
func (s *Store) ContainsRole(role string) bool {
	return s.snapshot().roleSet[role]
}

// Topics returns the ordered topic list, ancestors before descendants.
func (s *Store) Topics() []string {
	data := s.snapshot()
	out := make([]string, len(data.topics))
	copy(out, data.topics)
	return out
}

// Places returns the ordered place list.
func (s *Store) Places() []string {
	data := s.snapshot()
	out := make([]string, len(data.places))
	copy(out, data.places)
	return out
}

// Roles returns the ordered role-identifier list.
func (s *Store) Roles() []string {
	data := s.snapshot()
	out := make([]string, len(data.roles))
	copy(out, data.roles)
	return out
}

// Projects returns the ordered project list.
func (s *Store) Projects() []Project {
	data := s.snapshot()
	out := make([]Project, len(data.projects))
	copy(out, data.projects)
	return out
}

// MatchProjects scans text for watchlist keywords of every project,
// case-insensitively at whole-token boundaries.
func (s *Store) MatchProjects(text string) []ProjectMatch {
	return s.MatchProjectsAt(text, time.Time{})
}

// MatchProjectsAt is MatchProjects restricted to projects active at the
// given time. A zero time disables the restriction.
func (s *Store) MatchProjectsAt(text string, at time.Time) []ProjectMatch {
	data := s.snapshot()
	hay := foldText(text)

	var matches []ProjectMatch
	for _, p := range data.projects {
		if !p.ActiveAt(at) {
			continue
		}
		var hits []string
		for _, kw := range p.Keywords {
			if containsWholeWord(hay, foldText(kw)) {
				hits = append(hits, kw)
			}
		}
		if len(hits) > 0 {
			matches = append(matches, ProjectMatch{ID: p.ID, Keywords: hits})
		}
	}
	return matches
}

// MatchesWholeWord reports whether term occurs in text at token
// boundaries, case-insensitively. Multi-word terms match across
// collapsed whitespace.
func MatchesWholeWord(text, term string) bool {
	return containsWholeWord(foldText(text), foldText(term))
}

// foldText lowercases and collapses whitespace so multi-word terms
// match across line breaks.
func foldText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsWholeWord(hay, term string) bool {
	if term == "" {
		return false
	}
	for start := 0; start <= len(hay)-len(term); {
		idx := strings.Index(hay[start:], term)
		if idx < 0 {
			return false
		}
		idx += start
		if boundaryBefore(hay, idx) && boundaryAfter(hay, idx+len(term)) {
			return true
		}
		start = idx + 1
	}
	return false
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:idx])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, idx int) bool {
	if idx >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[idx:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// build assembles a snapshot from the file (when configured) merged
// with the inline lists. Inline project entries override file entries
// with the same id.
func build(cfg config.VocabularyConfig) (*snapshot, error) {
	merged := config.VocabularyConfig{
		Topics:   cfg.Topics,
		Projects: cfg.Projects,
		Places:   cfg.Places,
		Roles:    cfg.Roles,
	}

	if cfg.File != "" {
		raw, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
		}
		var fileCfg config.VocabularyConfig
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse vocabulary file %s: %w", cfg.File, err)
		}
		merged.Topics = append(fileCfg.Topics, cfg.Topics...)
		merged.Projects = mergeProjects(fileCfg.Projects, cfg.Projects)
		merged.Places = append(fileCfg.Places, cfg.Places...)
		merged.Roles = append(fileCfg.Roles, cfg.Roles...)
	}

	data := &snapshot{
		topicSet:   make(map[string]bool),
		projectSet: make(map[string]bool),
		placeSet:   make(map[string]bool),
		roleSet:    make(map[string]bool),
	}

	for _, t := range merged.Topics {
		for _, path := range withAncestors(t) {
			if !data.topicSet[path] {
				data.topicSet[path] = true
				data.topics = append(data.topics, path)
			}
		}
	}
	for _, p := range merged.Projects {
		proj, err := buildProject(p)
		if err != nil {
			return nil, err
		}
		if !data.projectSet[proj.ID] {
			data.projectSet[proj.ID] = true
			data.projects = append(data.projects, proj)
		}
	}
	for _, p := range merged.Places {
		if p != "" && !data.placeSet[p] {
			data.placeSet[p] = true
			data.places = append(data.places, p)
		}
	}
	for _, r := range merged.Roles {
		if r != "" && !data.roleSet[r] {
			data.roleSet[r] = true
			data.roles = append(data.roles, r)
		}
	}
	return data, nil
}

// mergeProjects keeps file entries, with inline entries overriding by
// id, preserving first-seen order.
func mergeProjects(file, inline []config.ProjectConfig) []config.ProjectConfig {
	override := make(map[string]config.ProjectConfig, len(inline))
	for _, p := range inline {
		override[p.ID] = p
	}
	out := make([]config.ProjectConfig, 0, len(file)+len(inline))
	seen := make(map[string]bool, len(file))
	for _, p := range file {
		if o, ok := override[p.ID]; ok {
			p = o
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	for _, p := range inline {
		if !seen[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func buildProject(p config.ProjectConfig) (Project, error) {
	if p.ID == "" {
		return Project{}, fmt.Errorf("project with empty id")
	}
	proj := Project{ID: p.ID, Keywords: append([]string(nil), p.Keywords...)}
	var err error
	if p.From != "" {
		if proj.From, err = time.Parse("2006-01-02", p.From); err != nil {
			return Project{}, fmt.Errorf("project %s: invalid from date: %w", p.ID, err)
		}
	}
	if p.To != "" {
		if proj.To, err = time.Parse("2006-01-02", p.To); err != nil {
			return Project{}, fmt.Errorf("project %s: invalid to date: %w", p.ID, err)
		}
	}
	return proj, nil
}

// withAncestors expands "a/b/c" into ["a", "a/b", "a/b/c"].
func withAncestors(topic string) []string {
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if topic == "" {
		return nil
	}
	parts := strings.Split(topic, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}
