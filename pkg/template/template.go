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

// Package template models the static structure of a Galaxy workflow template
// (a ".ga" export): its ordered steps, the tool each step invokes, the
// connections between steps and every step's decoded tool state.
//
// Templates are immutable after Parse and may be shared between runs.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-viper/mapstructure/v2"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/toolschema"
	"github.com/tombee/galaxyrun/pkg/toolstate"
)

// Step types found in Galaxy exports.
const (
	StepTypeTool           = "tool"
	StepTypeDataInput      = "data_input"
	StepTypeCollectionIn   = "data_collection_input"
	StepTypeParameterInput = "parameter_input"
)

// Template is a parsed workflow template.
type Template struct {
	Name          string  `json:"name"`
	Annotation    string  `json:"annotation,omitempty"`
	FormatVersion string  `json:"format_version,omitempty"`
	Steps         []*Step `json:"steps"`

	raw []byte
}

type rawTemplate struct {
	Name          string         `mapstructure:"name"`
	Annotation    string         `mapstructure:"annotation"`
	FormatVersion string         `mapstructure:"format-version"`
	Steps         map[string]any `mapstructure:"steps"`
}

type rawStep struct {
	ID               *int                    `mapstructure:"id"`
	Name             string                  `mapstructure:"name"`
	Label            string                  `mapstructure:"label"`
	Type             string                  `mapstructure:"type"`
	ToolID           string                  `mapstructure:"tool_id"`
	ToolVersion      string                  `mapstructure:"tool_version"`
	Annotation       string                  `mapstructure:"annotation"`
	Position         Position                `mapstructure:"position"`
	InputConnections map[string][]Connection `mapstructure:"input_connections"`
	Inputs           []StepInput             `mapstructure:"inputs"`
	Outputs          []StepOutput            `mapstructure:"outputs"`
	ToolState        any                     `mapstructure:"tool_state"`
}

// Parse parses a template document. The document is validated against the
// embedded workflow schema first; steps are then ordered by their numeric key
// and each step's tool state is decoded.
func Parse(raw []byte) (*Template, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &errors.ParseError{Source: "template", Reason: "invalid JSON", Cause: err}
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	var rt rawTemplate
	if err := decodeWeak(doc, &rt); err != nil {
		return nil, &errors.ParseError{Source: "template", Reason: "unexpected document shape", Cause: err}
	}

	keys, err := sortedStepKeys(rt.Steps)
	if err != nil {
		return nil, err
	}

	t := &Template{
		Name:          rt.Name,
		Annotation:    rt.Annotation,
		FormatVersion: rt.FormatVersion,
		Steps:         make([]*Step, 0, len(keys)),
		raw:           append([]byte(nil), raw...),
	}
	for _, k := range keys {
		step, err := parseStep(k.index, rt.Steps[k.key])
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", k.key, err)
		}
		t.Steps = append(t.Steps, step)
	}
	return t, nil
}

type stepKey struct {
	key   string
	index int
}

// sortedStepKeys orders the step map by numeric key. Lexical order would put
// "10" before "2".
func sortedStepKeys(steps map[string]any) ([]stepKey, error) {
	keys := make([]stepKey, 0, len(steps))
	for k := range steps {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, &errors.ParseError{
				Source: "template",
				Reason: fmt.Sprintf("step key %q is not a number", k),
			}
		}
		keys = append(keys, stepKey{key: k, index: n})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].index < keys[j].index })
	return keys, nil
}

func parseStep(index int, v any) (*Step, error) {
	var rs rawStep
	if err := decodeWeak(v, &rs); err != nil {
		return nil, &errors.ParseError{Source: "template step", Reason: "unexpected step shape", Cause: err}
	}

	stateJSON, err := json.Marshal(rs.ToolState)
	if err != nil {
		return nil, &errors.ParseError{Source: "tool_state", Reason: "cannot re-encode", Cause: err}
	}
	state, err := toolstate.DecodeDocument(stateJSON)
	if err != nil {
		return nil, err
	}

	id := index
	if rs.ID != nil {
		id = *rs.ID
	}

	return &Step{
		ID:          id,
		Name:        rs.Name,
		Label:       rs.Label,
		Type:        rs.Type,
		ToolID:      rs.ToolID,
		ToolVersion: rs.ToolVersion,
		Annotation:  rs.Annotation,
		Position:    rs.Position,
		Connections: rs.InputConnections,
		Inputs:      rs.Inputs,
		Outputs:     rs.Outputs,
		State:       state,
	}, nil
}

// decodeWeak decodes loosely typed JSON values: ids may be numbers or
// strings, and a connection may be a single object or a list of them.
func decodeWeak(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// Raw returns the document the template was parsed from.
func (t *Template) Raw() []byte {
	return t.raw
}

// Step returns the step with the given id.
func (t *Template) Step(id int) *Step {
	for _, s := range t.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ToolReferences returns each distinct (tool id, version) pair used by a
// tool step, in step order.
func (t *Template) ToolReferences() []toolschema.Ref {
	seen := make(map[toolschema.Ref]bool)
	var refs []toolschema.Ref
	for _, s := range t.Steps {
		if s.ToolID == "" {
			continue
		}
		ref := s.ToolRef()
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// AddToolsMetadata returns a copy of the template whose tool steps are bound
// to the first matching schema. Steps without a match keep a nil Tool.
func (t *Template) AddToolsMetadata(schemas []*toolschema.Schema) *Template {
	bound := *t
	bound.Steps = make([]*Step, len(t.Steps))
	for i, s := range t.Steps {
		cp := *s
		if cp.ToolID != "" {
			cp.Tool = toolschema.Find(schemas, cp.ToolID, cp.ToolVersion)
		}
		bound.Steps[i] = &cp
	}
	return &bound
}

// InputNames returns the labels of the template's input steps in step order.
func (t *Template) InputNames() []string {
	var names []string
	for _, s := range t.Steps {
		if s.IsInput() {
			names = append(names, s.InputLabel())
		}
	}
	return names
}
