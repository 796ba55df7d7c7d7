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

import "fmt"

// ExportConfig configures canonical Markdown export.
//
// Example YAML:
//
//	export:
//	  enabled: true
//	  dir: ./vault
//	  layout: flat
type ExportConfig struct {
	// Enabled turns canonical export on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled"`

	// Dir is the vault root directory.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" jsonschema:"title=Vault Directory"`

	// Layout selects the artifact path scheme:
	// "flat":   YYYY-MM-DD__{type}__{slug}__{shortid}.md
	// "nested": {type}/{yyyy-mm-dd}/{slug}__{shortid}.md
	Layout string `yaml:"layout,omitempty" json:"layout,omitempty" jsonschema:"title=Layout,enum=flat,enum=nested,default=flat"`

	// Stubs controls entity stub creation under refs/.
	Stubs *bool `yaml:"stubs,omitempty" json:"stubs,omitempty" jsonschema:"title=Entity Stubs,default=true"`
}

// SetDefaults applies default values.
func (c *ExportConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "./vault"
	}
	if c.Layout == "" {
		c.Layout = "flat"
	}
	if c.Stubs == nil {
		c.Stubs = BoolPtr(true)
	}
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	if c.Enabled && c.Dir == "" {
		return fmt.Errorf("dir is required when enabled")
	}
	switch c.Layout {
	case "flat", "nested":
	default:
		return fmt.Errorf("invalid layout %q (valid: flat, nested)", c.Layout)
	}
	return nil
}
