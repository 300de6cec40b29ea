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

package run

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/toolstate"
)

// InputArg is a parsed --input flag.
type InputArg struct {
	Name string
	Path string
}

// ParamArg is a parsed --param flag.
type ParamArg struct {
	Step  int
	Name  string
	Value any
}

// ParseInputs parses name=path pairs. Paths must name existing files.
func ParseInputs(args []string) ([]InputArg, error) {
	inputs := make([]InputArg, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || path == "" {
			return nil, &errors.ValidationError{
				Field:      "input",
				Message:    fmt.Sprintf("invalid input %q", arg),
				Suggestion: "use --input <label>=<path>",
			}
		}
		if seen[name] {
			return nil, &errors.ValidationError{Field: "input", Message: fmt.Sprintf("input %q given twice", name)}
		}
		seen[name] = true

		info, err := os.Stat(path)
		if err != nil {
			return nil, &errors.LocalIOError{Op: "stat input", Path: path, Cause: err}
		}
		if info.IsDir() {
			return nil, &errors.ValidationError{Field: "input", Message: fmt.Sprintf("input %q is a directory: %s", name, path)}
		}
		inputs = append(inputs, InputArg{Name: name, Path: path})
	}
	return inputs, nil
}

// ParseParams parses step.name=value overrides. The value is decoded the way
// tool state is, so "2" becomes an integer and "{...}" a map.
func ParseParams(args []string) ([]ParamArg, error) {
	params := make([]ParamArg, 0, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, invalidParam(arg)
		}
		stepText, name, ok := strings.Cut(key, ".")
		if !ok || name == "" {
			return nil, invalidParam(arg)
		}
		step, err := strconv.Atoi(stepText)
		if err != nil || step < 1 {
			return nil, invalidParam(arg)
		}
		value, err := toolstate.Decode(raw)
		if err != nil {
			return nil, &errors.ValidationError{
				Field:   "param",
				Message: fmt.Sprintf("cannot decode value of %q: %v", key, err),
			}
		}
		params = append(params, ParamArg{Step: step, Name: name, Value: value})
	}
	return params, nil
}

func invalidParam(arg string) error {
	return &errors.ValidationError{
		Field:      "param",
		Message:    fmt.Sprintf("invalid parameter %q", arg),
		Suggestion: "use --param <step>.<name>=<value>, where step is the 1-based step number",
	}
}
