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

package config

import (
	"fmt"
	"time"
)

// VocabularyConfig declares the controlled vocabularies, inline and/or
// from a YAML file. File entries and inline entries are merged.
//
// Example YAML:
//
//	vocabulary:
//	  file: vocab.yaml
//	  topics: [health/sleep, work/projects]
//	  projects:
//	    - id: alpha
//	      keywords: [alpha, kickoff]
//	  places: [Berlin, Amsterdam]
//	  roles: [presenter, reviewer]
type VocabularyConfig struct {
	// File is an optional YAML file with topics/projects/places/roles keys.
	File string `yaml:"file,omitempty" json:"file,omitempty" jsonschema:"title=Vocabulary File"`

	// Topics is the closed topic set. Entries may be hierarchical
	// paths like "health/sleep".
	Topics []string `yaml:"topics,omitempty" json:"topics,omitempty" jsonschema:"title=Topics"`

	// Projects is the closed project set with watchlist keywords.
	Projects []ProjectConfig `yaml:"projects,omitempty" json:"projects,omitempty" jsonschema:"title=Projects"`

	// Places is the closed place set.
	Places []string `yaml:"places,omitempty" json:"places,omitempty" jsonschema:"title=Places"`

	// Roles is the closed role-identifier set.
	Roles []string `yaml:"roles,omitempty" json:"roles,omitempty" jsonschema:"title=Roles"`
}

// ProjectConfig declares one controlled project.
type ProjectConfig struct {
	// ID is the project identifier used in tags.
	ID string `yaml:"id" json:"id" jsonschema:"title=Project ID"`

	// Keywords is the watchlist scanned against document text.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty" jsonschema:"title=Watchlist Keywords"`

	// From bounds the project's active range (ISO date, inclusive).
	From string `yaml:"from,omitempty" json:"from,omitempty" jsonschema:"title=Active From"`

	// To bounds the project's active range (ISO date, inclusive).
	To string `yaml:"to,omitempty" json:"to,omitempty" jsonschema:"title=Active To"`
}

// SetDefaults applies default values.
func (c *VocabularyConfig) SetDefaults() {}

// Validate checks the vocabulary configuration.
func (c *VocabularyConfig) Validate() error {
	seen := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		if p.ID == "" {
			return fmt.Errorf("projects[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("projects[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if err := p.validateDates(); err != nil {
			return fmt.Errorf("projects[%d] (%s): %w", i, p.ID, err)
		}
	}
	return nil
}

func (p *ProjectConfig) validateDates() error {
	var from, to time.Time
	var err error
	if p.From != "" {
		if from, err = time.Parse("2006-01-02", p.From); err != nil {
			return fmt.Errorf("invalid from date %q: %w", p.From, err)
		}
	}
	if p.To != "" {
		if to, err = time.Parse("2006-01-02", p.To); err != nil {
			return fmt.Errorf("invalid to date %q: %w", p.To, err)
		}
	}
	if p.From != "" && p.To != "" && to.Before(from) {
		return fmt.Errorf("to date %s precedes from date %s", p.To, p.From)
	}
	return nil
}
