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

package template

import (
	"sort"
	"strings"

	"github.com/tombee/galaxyrun/pkg/toolschema"
	"github.com/tombee/galaxyrun/pkg/toolstate"
)

// Step is one node of a template graph.
type Step struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Label       string   `json:"label,omitempty"`
	Type        string   `json:"type"`
	ToolID      string   `json:"tool_id,omitempty"`
	ToolVersion string   `json:"tool_version,omitempty"`
	Annotation  string   `json:"annotation,omitempty"`
	Position    Position `json:"position"`

	// Connections maps an input key to its upstream outputs. Keys of inputs
	// declared inside a repeat carry a prefix such as "queries_0|".
	Connections map[string][]Connection `json:"input_connections,omitempty"`

	Inputs  []StepInput  `json:"inputs,omitempty"`
	Outputs []StepOutput `json:"outputs,omitempty"`

	// State is the decoded tool state. Null entries are present with a nil
	// value.
	State map[string]any `json:"tool_state"`

	// Tool is the resolved schema, nil until bound or when no definition
	// was found.
	Tool *toolschema.Schema `json:"tool,omitempty"`
}

// Position is the editor layout position of a step.
type Position struct {
	Left float64 `mapstructure:"left" json:"left"`
	Top  float64 `mapstructure:"top" json:"top"`
}

// Connection references an output of an upstream step.
type Connection struct {
	StepID     int    `mapstructure:"id" json:"id"`
	OutputName string `mapstructure:"output_name" json:"output_name"`
}

// StepInput is a declared input of an input step.
type StepInput struct {
	Name        string `mapstructure:"name" json:"name"`
	Description string `mapstructure:"description" json:"description,omitempty"`
}

// StepOutput is a declared output of a step.
type StepOutput struct {
	Name string `mapstructure:"name" json:"name"`
	Type string `mapstructure:"type" json:"type"`
}

// IsInput reports whether the step is a raw input rather than a tool call.
func (s *Step) IsInput() bool {
	switch s.Type {
	case StepTypeDataInput, StepTypeCollectionIn, StepTypeParameterInput:
		return true
	}
	return s.Type != StepTypeTool && s.ToolID == "" && len(s.Inputs) > 0
}

// ToolRef returns the step's tool identity.
func (s *Step) ToolRef() toolschema.Ref {
	return toolschema.Ref{ID: s.ToolID, Version: s.ToolVersion}
}

// InputLabel returns the name callers use to bind data to an input step:
// the label, else the first declared input name, else the "name" tool state
// entry, else the step name.
func (s *Step) InputLabel() string {
	if s.Label != "" {
		return s.Label
	}
	if len(s.Inputs) > 0 && s.Inputs[0].Name != "" {
		return s.Inputs[0].Name
	}
	if name, ok := s.State["name"].(string); ok && name != "" {
		return name
	}
	return s.Name
}

// ConnectionFor returns the connections feeding the named parameter. A key
// matches when it equals param or ends with "|"+param, so "queries_0|input2"
// resolves for "input2". The matched key is returned alongside.
func (s *Step) ConnectionFor(param string) (string, []Connection, bool) {
	if conns, ok := s.Connections[param]; ok {
		return param, conns, true
	}
	suffix := "|" + param
	for _, key := range sortedKeys(s.Connections) {
		if strings.HasSuffix(key, suffix) {
			return key, s.Connections[key], true
		}
	}
	return "", nil, false
}

// Parameters returns the flat parameters of the bound tool followed by the
// parameters of each conditional's active branch. It returns nil when no
// tool schema is bound.
func (s *Step) Parameters() []toolschema.ParameterSpec {
	if s.Tool == nil {
		return nil
	}
	params := append([]toolschema.ParameterSpec(nil), s.Tool.Parameters...)
	for i := range s.Tool.Conditionals {
		c := &s.Tool.Conditionals[i]
		params = append(params, c.Selector)
		if branch, ok := c.Branch(s.ActiveBranch(c)); ok {
			params = append(params, branch.Parameters...)
		}
	}
	return params
}

// ActiveBranch returns the selector value recorded in the step state for a
// conditional, falling back to the conditional's default.
func (s *Step) ActiveBranch(c *toolschema.ConditionalSpec) string {
	if group, ok := s.State[c.Name].(map[string]any); ok {
		if v, ok := group[c.Selector.Name]; ok && v != nil {
			return toolstate.Format(v)
		}
	}
	return c.DefaultValue()
}

func sortedKeys(m map[string][]Connection) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
