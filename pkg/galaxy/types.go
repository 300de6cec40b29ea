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

package galaxy

import (
	"context"
	"encoding/json"
	"io"
)

// API is the subset of the Galaxy REST API used to run workflows.
type API interface {
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	ImportWorkflow(ctx context.Context, raw []byte) (*Workflow, error)
	ShowWorkflow(ctx context.Context, id string) (*WorkflowDetail, error)
	RunWorkflow(ctx context.Context, req RunRequest) (*RunResponse, error)

	CreateHistory(ctx context.Context, name string) (*History, error)
	ShowHistory(ctx context.Context, id string) (*History, error)
	ListContents(ctx context.Context, historyID string) ([]ContentItem, error)

	Upload(ctx context.Context, historyID, path, fileType string) (*UploadResult, error)
	ShowDataset(ctx context.Context, historyID, datasetID string) (*Dataset, error)
	Download(ctx context.Context, historyID, datasetID string) (io.ReadCloser, error)
}

// Workflow is a stored workflow as listed by the server.
type Workflow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url,omitempty"`
	Owner      string `json:"owner,omitempty"`
	UpdateTime string `json:"update_time,omitempty"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// WorkflowDetail is the server's view of one stored workflow.
type WorkflowDetail struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Inputs maps an input slot key to its label.
	Inputs map[string]WorkflowInput `json:"inputs"`

	// Steps is keyed by the server-assigned step id.
	Steps map[string]WorkflowStep `json:"steps"`
}

// WorkflowInput is one input slot of a stored workflow.
type WorkflowInput struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
	UUID  string `json:"uuid,omitempty"`
}

// WorkflowStep is one step of a stored workflow.
type WorkflowStep struct {
	ID         FlexString     `json:"id"`
	Type       string         `json:"type"`
	ToolID     string         `json:"tool_id,omitempty"`
	Annotation string         `json:"annotation,omitempty"`
	InputSteps map[string]any `json:"input_steps,omitempty"`
}

// StepIDs returns the keys of Steps in no particular order.
func (d *WorkflowDetail) StepIDs() []string {
	ids := make([]string, 0, len(d.Steps))
	for id := range d.Steps {
		ids = append(ids, id)
	}
	return ids
}

// SlotForLabel returns the input slot key whose label equals label.
func (d *WorkflowDetail) SlotForLabel(label string) (string, bool) {
	for key, in := range d.Inputs {
		if in.Label == label {
			return key, true
		}
	}
	return "", false
}

// DatasetRef points a workflow input slot at a dataset.
type DatasetRef struct {
	Src string `json:"src"`
	ID  string `json:"id"`
}

// RunRequest launches a stored workflow into an existing history.
type RunRequest struct {
	WorkflowID string                    `json:"workflow_id"`
	History    string                    `json:"history"`
	DatasetMap map[string]DatasetRef     `json:"ds_map"`
	Parameters map[string]map[string]any `json:"parameters,omitempty"`
}

// HistoryRef formats the history field of a RunRequest.
func HistoryRef(historyID string) string {
	return "hist_id=" + historyID
}

// RunResponse identifies where a launched workflow writes its outputs.
type RunResponse struct {
	History string   `json:"history"`
	Outputs []string `json:"outputs"`
}

// History is a Galaxy history with its aggregate state.
type History struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// State is "ok" once every item succeeded.
	State string `json:"state,omitempty"`

	// StateDetails counts items per state.
	StateDetails map[string]int `json:"state_details,omitempty"`
}

// ContentItem is one entry of a history's contents.
type ContentItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HID     int    `json:"hid,omitempty"`
	Type    string `json:"type,omitempty"`
	State   string `json:"state,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Visible bool   `json:"visible,omitempty"`
}

// Dataset describes a dataset in a history.
type Dataset struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
	FileExt  string `json:"file_ext,omitempty"`
	DataType string `json:"data_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Extension returns the dataset's Galaxy datatype extension.
func (d *Dataset) Extension() string {
	if d.FileExt != "" {
		return d.FileExt
	}
	return d.DataType
}

// UploadResult is the outcome of an upload submission.
type UploadResult struct {
	StatusCode int       `json:"-"`
	Outputs    []Dataset `json:"outputs"`
}

// FlexString accepts a JSON string or number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String implements fmt.Stringer.
func (f FlexString) String() string {
	return string(f)
}
