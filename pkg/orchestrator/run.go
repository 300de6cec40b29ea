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
	"context"
	"sort"
	"sync"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/template"
)

// Input binds a template input label to a local file.
type Input struct {
	Name string
	Path string
}

// Artifact is an output bound to a run.
type Artifact struct {
	OutputID string
	Name     string
	DataType string

	// Path is the local file, empty until downloaded.
	Path string

	// Downloaded is false when the transfer failed; Path may then hold a
	// partial file.
	Downloaded bool
}

// Run is one invocation of a template against a remote container.
// Inputs and parameters are set before Orchestrator.Run; a Run is never
// executed twice.
type Run struct {
	ID           string
	TemplateName string

	// ContainerID is the history inputs are uploaded to. Empty means a new
	// history is created.
	ContainerID string

	AutoDownload bool
	DownloadDir  string

	template *template.Template
	orch     *Orchestrator

	mu                 sync.Mutex
	inputs             []Input
	params             map[int]map[string]any
	started            bool
	phase              Phase
	executionContainer string
	outputIDs          []string
	pending            map[string]Artifact
	outputs            map[string]*Artifact
}

// Template returns the parsed template the run executes.
func (r *Run) Template() *template.Template {
	return r.template
}

// AddInput binds a local file to the template input with the given label.
// Inputs are uploaded in the order they are added.
func (r *Run) AddInput(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, Input{Name: name, Path: path})
}

// Inputs returns the bound inputs in order.
func (r *Run) Inputs() []Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Input(nil), r.inputs...)
}

// SetParameter overrides a tool parameter of the step with the given
// 1-based number.
func (r *Run) SetParameter(step int, name string, value any) error {
	if step < 1 {
		return &errors.ValidationError{Field: "step", Message: "step numbers start at 1"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.params == nil {
		r.params = make(map[int]map[string]any)
	}
	if r.params[step] == nil {
		r.params[step] = make(map[string]any)
	}
	r.params[step][name] = value
	return nil
}

// Parameters returns a copy of the overrides.
func (r *Run) Parameters() map[int]map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]map[string]any, len(r.params))
	for step, p := range r.params {
		cp := make(map[string]any, len(p))
		for k, v := range p {
			cp[k] = v
		}
		out[step] = cp
	}
	return out
}

// Phase returns the furthest phase the run reached.
func (r *Run) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Run) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// ExecutionContainerID returns the history holding the outputs.
func (r *Run) ExecutionContainerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executionContainer
}

// OutputIDs returns the produced output ids in server order.
func (r *Run) OutputIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outputIDs...)
}

// OutputNames returns the names of all known outputs, downloaded or not.
func (r *Run) OutputNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	for name := range r.outputs {
		seen[name] = true
	}
	for name := range r.pending {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outputs returns the output bindings made so far.
func (r *Run) Outputs() map[string]*Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Artifact, len(r.outputs))
	for k, v := range r.outputs {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (r *Run) bindOutput(name string, a *Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outputs == nil {
		r.outputs = make(map[string]*Artifact)
	}
	r.outputs[name] = a
	delete(r.pending, name)
}

// Output returns the named output. When the run does not download
// automatically, the first call downloads it and later calls return the
// cached artifact.
func (r *Run) Output(ctx context.Context, name string) (*Artifact, error) {
	r.mu.Lock()
	if a, ok := r.outputs[name]; ok {
		cp := *a
		r.mu.Unlock()
		return &cp, nil
	}
	art, ok := r.pending[name]
	container := r.executionContainer
	r.mu.Unlock()

	if !ok {
		return nil, &errors.NotFoundError{Resource: "output", ID: name}
	}

	a, _, err := r.orch.fetchOutput(ctx, r, container, &art)
	if err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}
