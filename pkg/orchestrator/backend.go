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
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/galaxy"
	"github.com/tombee/galaxyrun/pkg/poller"
	"github.com/tombee/galaxyrun/pkg/template"
)

// ImportedSuffix is appended by Galaxy to the name of workflows imported
// through the API.
const ImportedSuffix = " (imported from API)"

// Backend is a remote workflow engine.
type Backend interface {
	// EnsureTemplate makes a template named name available remotely,
	// importing tmpl when it is absent.
	EnsureTemplate(ctx context.Context, name string, tmpl *template.Template) error

	CreateContainer(ctx context.Context, name string) (string, error)

	// Upload sends one input file. The returned artifact carries the
	// remote status even when err is non-nil.
	Upload(ctx context.Context, containerID, path, dataType string) (*UploadedArtifact, error)

	Launch(ctx context.Context, req LaunchRequest) (*Launch, error)

	PollReady(ctx context.Context, containerID string, maxAttempts int, interval time.Duration) (*poller.Result, error)

	DescribeOutput(ctx context.Context, containerID, outputID string) (*OutputInfo, error)
	FetchOutput(ctx context.Context, containerID, outputID string) (io.ReadCloser, error)
}

// UploadedArtifact is an input accepted by the backend.
type UploadedArtifact struct {
	ID         string
	Name       string
	StatusCode int
}

// LaunchRequest binds a run's uploaded inputs and parameter overrides.
type LaunchRequest struct {
	TemplateName string
	ContainerID  string

	// Inputs maps an input label to the id of its uploaded artifact.
	Inputs map[string]string

	// Parameters maps a 1-based step number to parameter overrides.
	Parameters map[int]map[string]any
}

// Launch is a started execution.
type Launch struct {
	TemplateID  string
	ContainerID string
	OutputIDs   []string
}

// OutputInfo describes a produced artifact.
type OutputInfo struct {
	Name     string
	DataType string
}

// GalaxyBackend runs templates on a Galaxy server.
type GalaxyBackend struct {
	api    galaxy.API
	poller *poller.Poller
}

var _ Backend = (*GalaxyBackend)(nil)

// NewGalaxyBackend creates a backend over api. Poller options configure the
// readiness waits.
func NewGalaxyBackend(api galaxy.API, opts ...poller.Option) *GalaxyBackend {
	b := &GalaxyBackend{api: api}
	b.poller = poller.New(poller.StateSourceFunc(b.containerState), opts...)
	return b
}

// Ping checks that the server answers an authenticated request.
func (b *GalaxyBackend) Ping(ctx context.Context) error {
	_, err := b.api.ListWorkflows(ctx)
	return err
}

func (b *GalaxyBackend) containerState(ctx context.Context, containerID string) (*poller.State, error) {
	h, err := b.api.ShowHistory(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return &poller.State{State: h.State, Counts: h.StateDetails}, nil
}

// EnsureTemplate implements Backend. Presence is checked by name, so
// importing the same template twice is avoided but not required to fail.
func (b *GalaxyBackend) EnsureTemplate(ctx context.Context, name string, tmpl *template.Template) error {
	if _, err := b.findWorkflow(ctx, name); err == nil {
		return nil
	} else if !isNotFound(err) {
		return err
	}
	if tmpl == nil {
		return &errors.NotFoundError{Resource: "template", ID: name}
	}
	_, err := b.api.ImportWorkflow(ctx, tmpl.Raw())
	return err
}

// findWorkflow returns the most recently updated workflow named name or
// name+ImportedSuffix.
func (b *GalaxyBackend) findWorkflow(ctx context.Context, name string) (*galaxy.Workflow, error) {
	workflows, err := b.api.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	var best *galaxy.Workflow
	for i := range workflows {
		wf := &workflows[i]
		if wf.Deleted || !matchesTemplateName(wf.Name, name) {
			continue
		}
		// Later entries win ties; the server lists oldest first.
		if best == nil || wf.UpdateTime >= best.UpdateTime {
			best = wf
		}
	}
	if best == nil {
		return nil, &errors.NotFoundError{Resource: "template", ID: name}
	}
	return best, nil
}

func matchesTemplateName(remote, name string) bool {
	return remote == name || remote == name+ImportedSuffix
}

func isNotFound(err error) bool {
	var nf *errors.NotFoundError
	return errors.As(err, &nf)
}

// CreateContainer implements Backend.
func (b *GalaxyBackend) CreateContainer(ctx context.Context, name string) (string, error) {
	h, err := b.api.CreateHistory(ctx, name)
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

// Upload implements Backend.
func (b *GalaxyBackend) Upload(ctx context.Context, containerID, path, dataType string) (*UploadedArtifact, error) {
	res, err := b.api.Upload(ctx, containerID, path, dataType)
	if res == nil {
		return nil, err
	}
	art := &UploadedArtifact{StatusCode: res.StatusCode}
	if len(res.Outputs) > 0 {
		art.ID = res.Outputs[0].ID
		art.Name = res.Outputs[0].Name
	}
	if err == nil && art.ID == "" {
		err = &errors.RemoteError{Operation: "upload dataset", StatusCode: res.StatusCode, Message: "no dataset created"}
	}
	return art, err
}

// Launch implements Backend. Inputs are bound to workflow input slots by
// label and parameter overrides to remote step ids through a StepTable.
func (b *GalaxyBackend) Launch(ctx context.Context, req LaunchRequest) (*Launch, error) {
	wf, err := b.findWorkflow(ctx, req.TemplateName)
	if err != nil {
		return nil, err
	}
	detail, err := b.api.ShowWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, err
	}

	run := galaxy.RunRequest{
		WorkflowID: wf.ID,
		History:    galaxy.HistoryRef(req.ContainerID),
		DatasetMap: make(map[string]galaxy.DatasetRef, len(req.Inputs)),
	}
	for _, label := range sortedLabels(req.Inputs) {
		slot, ok := detail.SlotForLabel(label)
		if !ok {
			return nil, &errors.ValidationError{
				Field:      "input",
				Message:    fmt.Sprintf("template %q has no input labelled %q", req.TemplateName, label),
				Suggestion: "inputs available: " + strings.Join(slotLabels(detail), ", "),
			}
		}
		run.DatasetMap[slot] = galaxy.DatasetRef{Src: "hda", ID: req.Inputs[label]}
	}

	if len(req.Parameters) > 0 {
		table := template.NewStepTable(detail.StepIDs())
		run.Parameters = make(map[string]map[string]any, len(req.Parameters))
		for step, params := range req.Parameters {
			id, err := table.Lookup(step)
			if err != nil {
				return nil, err
			}
			run.Parameters[id] = params
		}
	}

	resp, err := b.api.RunWorkflow(ctx, run)
	if err != nil {
		return nil, err
	}
	container := resp.History
	if container == "" {
		container = req.ContainerID
	}
	return &Launch{TemplateID: wf.ID, ContainerID: container, OutputIDs: resp.Outputs}, nil
}

func sortedLabels(m map[string]string) []string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func slotLabels(d *galaxy.WorkflowDetail) []string {
	labels := make([]string, 0, len(d.Inputs))
	for _, in := range d.Inputs {
		labels = append(labels, in.Label)
	}
	sort.Strings(labels)
	return labels
}

// PollReady implements Backend.
func (b *GalaxyBackend) PollReady(ctx context.Context, containerID string, maxAttempts int, interval time.Duration) (*poller.Result, error) {
	return b.poller.WaitUntilReady(ctx, containerID, maxAttempts, interval)
}

// DescribeOutput implements Backend.
func (b *GalaxyBackend) DescribeOutput(ctx context.Context, containerID, outputID string) (*OutputInfo, error) {
	ds, err := b.api.ShowDataset(ctx, containerID, outputID)
	if err != nil {
		return nil, err
	}
	return &OutputInfo{Name: ds.Name, DataType: ds.Extension()}, nil
}

// FetchOutput implements Backend.
func (b *GalaxyBackend) FetchOutput(ctx context.Context, containerID, outputID string) (io.ReadCloser, error) {
	return b.api.Download(ctx, containerID, outputID)
}
