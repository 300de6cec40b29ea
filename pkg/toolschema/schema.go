// Copyright 2025 Tom Barlow
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

// Package toolschema loads the declarative parameter shape of Galaxy tools.
//
// A tool catalog (Galaxy's tool_conf.xml) groups tool definition files into
// sections. LoadSchemas reads the catalog, peeks at the root element of every
// listed definition file, and fully parses only the files whose (id, version)
// was requested. Templates then bind each step to its schema through
// Template.AddToolsMetadata.
package toolschema

import "strings"

// DefaultToolVersion is the version Galaxy assumes when a definition omits it.
const DefaultToolVersion = "1.0.0"

// Ref identifies a tool by id and version. An empty Version acts as a
// wildcard when matching.
type Ref struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// Matches reports whether a tool declared with (id, version) satisfies r.
func (r Ref) Matches(id, version string) bool {
	if r.ID != id {
		return false
	}
	return r.Version == "" || r.Version == version
}

// String renders the reference as id/version.
func (r Ref) String() string {
	if r.Version == "" {
		return r.ID
	}
	return r.ID + "/" + r.Version
}

// Schema is the parsed parameter shape of one tool definition.
type Schema struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description,omitempty"`
	Parameters   []ParameterSpec   `json:"parameters"`
	Conditionals []ConditionalSpec `json:"conditionals,omitempty"`

	// Path is the definition file the schema was read from.
	Path string `json:"path,omitempty"`
}

// Ref returns the schema's identity.
func (s *Schema) Ref() Ref {
	return Ref{ID: s.ID, Version: s.Version}
}

// Parameter finds a parameter by name among the flat parameters, the
// conditional selectors and every conditional branch.
func (s *Schema) Parameter(name string) (*ParameterSpec, bool) {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i], true
		}
	}
	for i := range s.Conditionals {
		c := &s.Conditionals[i]
		if c.Selector.Name == name {
			return &c.Selector, true
		}
		for j := range c.Branches {
			for k := range c.Branches[j].Parameters {
				if c.Branches[j].Parameters[k].Name == name {
					return &c.Branches[j].Parameters[k], true
				}
			}
		}
	}
	return nil, false
}

// ParameterSpec describes one declared tool parameter.
type ParameterSpec struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Type    string `json:"type"`
	Size    string `json:"size,omitempty"`
	Format  string `json:"format,omitempty"`
	Default string `json:"default,omitempty"`
	Help    string `json:"help,omitempty"`

	// Group is the enclosing repeat name for parameters declared inside a
	// repeat block; step connections to them carry a "<group>_<n>|" prefix.
	Group string `json:"group,omitempty"`

	Optional bool `json:"optional,omitempty"`
}

// DisplayLabel returns the label, falling back to the name.
func (p *ParameterSpec) DisplayLabel() string {
	if strings.TrimSpace(p.Label) != "" {
		return p.Label
	}
	return p.Name
}

// IsData reports whether the parameter takes a dataset.
func (p *ParameterSpec) IsData() bool {
	return p.Type == "data" || p.Type == "data_collection"
}

// Option is one selectable value of a select parameter.
type Option struct {
	Text     string `json:"text"`
	Value    string `json:"value"`
	Selected bool   `json:"selected,omitempty"`
}

// WhenBranch holds the parameters active when a conditional's selector has
// the branch value.
type WhenBranch struct {
	Value      string          `json:"value"`
	Parameters []ParameterSpec `json:"parameters"`
}

// ConditionalSpec is a selector parameter with per-option parameter branches.
type ConditionalSpec struct {
	Name     string        `json:"name"`
	Selector ParameterSpec `json:"selector"`
	Options  []Option      `json:"options"`
	Branches []WhenBranch  `json:"branches"`
}

// Branch returns the branch for the given selector value.
func (c *ConditionalSpec) Branch(value string) (*WhenBranch, bool) {
	for i := range c.Branches {
		if c.Branches[i].Value == value {
			return &c.Branches[i], true
		}
	}
	return nil, false
}

// DefaultValue returns the selector value used when nothing is chosen: the
// option flagged selected, else the first option.
func (c *ConditionalSpec) DefaultValue() string {
	for _, opt := range c.Options {
		if opt.Selected {
			return opt.Value
		}
	}
	if len(c.Options) > 0 {
		return c.Options[0].Value
	}
	return c.Selector.Default
}

// Find returns the first schema matching (id, version), treating an empty
// version as a wildcard.
func Find(schemas []*Schema, id, version string) *Schema {
	ref := Ref{ID: id, Version: version}
	for _, s := range schemas {
		if s != nil && ref.Matches(s.ID, s.Version) {
			return s
		}
	}
	return nil
}
