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

package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/galaxyrun/pkg/errors"
)

// TypeRule maps inputs to a Galaxy datatype. When is an expression over
// template, input, file (base name) and ext (extension without the dot).
type TypeRule struct {
	When string `yaml:"when" json:"when"`
	Type string `yaml:"type" json:"type"`
}

// TabularMarker in a template name selects the tabular datatype when no
// rules are configured.
const TabularMarker = "Tabular"

type compiledRule struct {
	program  *vm.Program
	source   string
	dataType string
}

// typeResolver picks the datatype for each upload.
type typeResolver struct {
	rules       []compiledRule
	defaultType string
}

func typeEnv(template, input, path string) map[string]any {
	return map[string]any{
		"template": template,
		"input":    input,
		"file":     filepath.Base(path),
		"ext":      strings.TrimPrefix(filepath.Ext(path), "."),
	}
}

func newTypeResolver(rules []TypeRule, defaultType string) (*typeResolver, error) {
	if defaultType == "" {
		defaultType = "txt"
	}
	r := &typeResolver{defaultType: defaultType}
	for i, rule := range rules {
		if rule.Type == "" {
			return nil, &errors.ConfigError{Key: fmt.Sprintf("upload.type_rules[%d].type", i), Reason: "must not be empty"}
		}
		prog, err := expr.Compile(rule.When, expr.Env(typeEnv("", "", "")), expr.AsBool())
		if err != nil {
			return nil, &errors.ConfigError{Key: fmt.Sprintf("upload.type_rules[%d].when", i), Reason: "invalid expression", Cause: err}
		}
		r.rules = append(r.rules, compiledRule{program: prog, source: rule.When, dataType: rule.Type})
	}
	return r, nil
}

// Resolve returns the datatype for one input. It returns an error only when
// a rule fails at evaluation time.
func (r *typeResolver) Resolve(template, input, path string) (string, error) {
	if len(r.rules) == 0 {
		if strings.Contains(template, TabularMarker) {
			return "tabular", nil
		}
		return r.defaultType, nil
	}

	env := typeEnv(template, input, path)
	for _, rule := range r.rules {
		out, err := expr.Run(rule.program, env)
		if err != nil {
			return r.defaultType, fmt.Errorf("type rule %q: %w", rule.source, err)
		}
		if match, _ := out.(bool); match {
			return rule.dataType, nil
		}
	}
	return r.defaultType, nil
}
