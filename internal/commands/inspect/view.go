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

package inspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/galaxyrun/pkg/template"
	"github.com/tombee/galaxyrun/pkg/toolschema"
	"github.com/tombee/galaxyrun/pkg/toolstate"
)

// TemplateView is the rendering model of a template.
type TemplateView struct {
	Name          string     `json:"name"`
	Annotation    string     `json:"annotation,omitempty"`
	FormatVersion string     `json:"format_version,omitempty"`
	Inputs        []string   `json:"inputs"`
	Tools         []ToolView `json:"tools"`
	Steps         []StepView `json:"steps"`
}

// ToolView is one distinct tool used by the template.
type ToolView struct {
	ID       string `json:"id"`
	Version  string `json:"version,omitempty"`
	Resolved bool   `json:"resolved"`
}

// StepView is one step. Number is the 1-based position used by run --param.
type StepView struct {
	Number       int              `json:"number"`
	ID           int              `json:"id"`
	Name         string           `json:"name"`
	Label        string           `json:"label,omitempty"`
	Type         string           `json:"type"`
	Tool         string           `json:"tool,omitempty"`
	Annotation   string           `json:"annotation,omitempty"`
	Connections  []ConnectionView `json:"connections,omitempty"`
	State        map[string]any   `json:"state,omitempty"`
	Parameters   []ParameterView  `json:"parameters,omitempty"`
	Conditionals []ConditionView  `json:"conditionals,omitempty"`
}

// ConnectionView is an input fed by upstream step outputs.
type ConnectionView struct {
	Key     string   `json:"key"`
	Sources []string `json:"sources"`
}

// ParameterView is a declared tool parameter with its recorded value.
type ParameterView struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Default     string   `json:"default,omitempty"`
	Value       string   `json:"value,omitempty"`
	ConnectedTo []string `json:"connected_to,omitempty"`
}

// ConditionView is a conditional and its active branch.
type ConditionView struct {
	Name     string   `json:"name"`
	Selector string   `json:"selector"`
	Active   string   `json:"active"`
	Options  []string `json:"options"`
}

// NewTemplateView builds the view. Steps bound to a tool schema also list
// their parameters and conditionals.
func NewTemplateView(t *template.Template) *TemplateView {
	numbers := make(map[int]int, len(t.Steps))
	for i, s := range t.Steps {
		numbers[s.ID] = i + 1
	}

	v := &TemplateView{
		Name:          t.Name,
		Annotation:    t.Annotation,
		FormatVersion: t.FormatVersion,
		Inputs:        t.InputNames(),
		Tools:         []ToolView{},
		Steps:         make([]StepView, 0, len(t.Steps)),
	}
	if v.Inputs == nil {
		v.Inputs = []string{}
	}

	resolved := make(map[toolschema.Ref]bool)
	for i, s := range t.Steps {
		sv := StepView{
			Number:     i + 1,
			ID:         s.ID,
			Name:       s.Name,
			Label:      s.Label,
			Type:       s.Type,
			Annotation: s.Annotation,
			State:      s.State,
		}
		if s.IsInput() {
			sv.Label = s.InputLabel()
		}
		if s.ToolID != "" {
			sv.Tool = s.ToolRef().String()
			if s.Tool != nil {
				resolved[s.ToolRef()] = true
			}
		}

		for _, key := range connectionKeys(s) {
			sv.Connections = append(sv.Connections, ConnectionView{
				Key:     key,
				Sources: sources(s.Connections[key], numbers),
			})
		}

		for _, p := range s.Parameters() {
			pv := ParameterView{
				Name:    p.Name,
				Label:   p.DisplayLabel(),
				Type:    p.Type,
				Default: p.Default,
			}
			if val, ok := s.State[p.Name]; ok {
				pv.Value = toolstate.Format(val)
			}
			if _, conns, ok := s.ConnectionFor(p.Name); ok {
				pv.ConnectedTo = sources(conns, numbers)
			}
			sv.Parameters = append(sv.Parameters, pv)
		}

		if s.Tool != nil {
			for j := range s.Tool.Conditionals {
				c := &s.Tool.Conditionals[j]
				cv := ConditionView{
					Name:     c.Name,
					Selector: c.Selector.Name,
					Active:   s.ActiveBranch(c),
				}
				for _, opt := range c.Options {
					cv.Options = append(cv.Options, opt.Value)
				}
				sv.Conditionals = append(sv.Conditionals, cv)
			}
		}

		v.Steps = append(v.Steps, sv)
	}

	for _, ref := range t.ToolReferences() {
		v.Tools = append(v.Tools, ToolView{ID: ref.ID, Version: ref.Version, Resolved: resolved[ref]})
	}
	return v
}

func connectionKeys(s *template.Step) []string {
	keys := make([]string, 0, len(s.Connections))
	for k := range s.Connections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sources renders connections as "#<step number>.<output>".
func sources(conns []template.Connection, numbers map[int]int) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		ref := fmt.Sprintf("step %d", c.StepID)
		if n, ok := numbers[c.StepID]; ok {
			ref = fmt.Sprintf("#%d", n)
		}
		if c.OutputName != "" {
			ref += "." + c.OutputName
		}
		out = append(out, ref)
	}
	return out
}

func formatState(state map[string]any) string {
	parts := make([]string, 0, len(state))
	for _, k := range toolstate.Keys(state) {
		parts = append(parts, k+"="+toolstate.Format(state[k]))
	}
	return strings.Join(parts, ", ")
}
