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

// Package galaxyfake runs an in-memory Galaxy server for tests.
//
// The server implements the endpoints used by the galaxy client: workflows
// can be imported, listed, shown and run; histories hold uploaded and
// produced datasets. Running a workflow concatenates its input datasets, in
// input slot order, into a single output dataset, which is what the bundled
// "cat1" tool does.
package galaxyfake

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

// StepIDOffset is added to a template's step key to form the server step id,
// so tests notice when local and remote ids are confused.
const StepIDOffset = 100

// Dataset is a stored dataset.
type Dataset struct {
	ID        string
	HistoryID string
	Name      string
	Ext       string
	State     string
	Content   []byte
}

// History is a stored history.
type History struct {
	ID       string
	Name     string
	Datasets []*Dataset
}

// Workflow is a stored workflow.
type Workflow struct {
	ID         string
	Name       string
	UpdateTime time.Time
	Definition map[string]any
}

// Run records one workflow launch.
type Run struct {
	WorkflowID string
	History    string
	DatasetMap map[string]map[string]string
	Parameters map[string]map[string]any
}

// Server is a fake Galaxy server.
type Server struct {
	*httptest.Server

	// APIKey is the key every request must carry.
	APIKey string

	// HistoryState, when set, overrides the computed state of a history.
	// call counts ShowHistory requests for that history, starting at 1.
	HistoryState func(historyID string, call int) (string, map[string]int)

	// UploadStatus, when non-zero, is returned by every upload.
	UploadStatus int

	mu         sync.Mutex
	nextID     int
	workflows  []*Workflow
	histories  map[string]*History
	datasets   map[string]*Dataset
	stateCalls map[string]int
	runs       []Run
	uploads    int
}

// New starts a server that is closed when the test ends.
func New(t testing.TB, apiKey string) *Server {
	t.Helper()
	s := &Server{
		APIKey:     apiKey,
		histories:  make(map[string]*History),
		datasets:   make(map[string]*Dataset),
		stateCalls: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/workflows", s.listWorkflows)
	mux.HandleFunc("POST /api/workflows", s.postWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.showWorkflow)
	mux.HandleFunc("POST /api/histories", s.createHistory)
	mux.HandleFunc("GET /api/histories/{id}", s.showHistory)
	mux.HandleFunc("GET /api/histories/{id}/contents", s.listContents)
	mux.HandleFunc("GET /api/histories/{id}/contents/{cid}", s.showDataset)
	mux.HandleFunc("GET /api/histories/{id}/contents/{cid}/display", s.display)
	mux.HandleFunc("POST /api/tools", s.upload)

	s.Server = httptest.NewServer(s.authenticate(mux))
	t.Cleanup(s.Close)
	return s
}

// AddWorkflow stores a workflow definition as if it had been imported.
func (s *Server) AddWorkflow(name string, definition map[string]any, updated time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf := &Workflow{ID: s.newID("wf"), Name: name, UpdateTime: updated, Definition: definition}
	s.workflows = append(s.workflows, wf)
	return wf.ID
}

// Workflows returns the stored workflows.
func (s *Server) Workflows() []Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Workflow, len(s.workflows))
	for i, wf := range s.workflows {
		out[i] = *wf
	}
	return out
}

// Runs returns the recorded launches.
func (s *Server) Runs() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Run(nil), s.runs...)
}

// Uploads returns the number of upload requests received.
func (s *Server) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// History returns a stored history.
func (s *Server) History(id string) (*History, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[id]
	return h, ok
}

func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s%04x", prefix, s.nextID)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" && r.Header.Get("x-api-key") != s.APIKey {
			writeError(w, http.StatusForbidden, "Provided API key is not valid.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, map[string]any{
			"id":          wf.ID,
			"name":        wf.Name,
			"update_time": wf.UpdateTime.UTC().Format("2006-01-02T15:04:05.000000"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) postWorkflows(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if raw, ok := body["workflow"]; ok {
		s.importWorkflow(w, raw)
		return
	}
	s.runWorkflow(w, body)
}

func (s *Server) importWorkflow(w http.ResponseWriter, raw json.RawMessage) {
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		writeError(w, http.StatusBadRequest, "workflow is not a JSON object")
		return
	}
	name, _ := def["name"].(string)

	s.mu.Lock()
	wf := &Workflow{ID: s.newID("wf"), Name: name + " (imported from API)", UpdateTime: time.Now(), Definition: def}
	s.workflows = append(s.workflows, wf)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"id": wf.ID, "name": wf.Name})
}

func (s *Server) findWorkflow(id string) *Workflow {
	for _, wf := range s.workflows {
		if wf.ID == id {
			return wf
		}
	}
	return nil
}

func (s *Server) showWorkflow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf := s.findWorkflow(r.PathValue("id"))
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	inputs := map[string]any{}
	steps := map[string]any{}
	defSteps, _ := wf.Definition["steps"].(map[string]any)
	for key, v := range defSteps {
		step, _ := v.(map[string]any)
		n, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		id := strconv.Itoa(n + StepIDOffset)
		steps[id] = map[string]any{"id": n + StepIDOffset, "type": step["type"], "tool_id": step["tool_id"]}
		if step["type"] == "data_input" {
			inputs[id] = map[string]any{"label": inputLabel(step), "value": ""}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": wf.ID, "name": wf.Name, "inputs": inputs, "steps": steps})
}

func dataInputs(wf *Workflow) int {
	steps, _ := wf.Definition["steps"].(map[string]any)
	n := 0
	for _, v := range steps {
		if step, _ := v.(map[string]any); step["type"] == "data_input" {
			n++
		}
	}
	return n
}

func inputLabel(step map[string]any) string {
	if label, ok := step["label"].(string); ok && label != "" {
		return label
	}
	if ins, ok := step["inputs"].([]any); ok && len(ins) > 0 {
		if in, ok := ins[0].(map[string]any); ok {
			if name, ok := in["name"].(string); ok {
				return name
			}
		}
	}
	return ""
}

func (s *Server) runWorkflow(w http.ResponseWriter, body map[string]json.RawMessage) {
	var run Run
	_ = json.Unmarshal(body["workflow_id"], &run.WorkflowID)
	_ = json.Unmarshal(body["history"], &run.History)
	_ = json.Unmarshal(body["ds_map"], &run.DatasetMap)
	_ = json.Unmarshal(body["parameters"], &run.Parameters)

	s.mu.Lock()
	defer s.mu.Unlock()
	wf := s.findWorkflow(run.WorkflowID)
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}
	if missing := dataInputs(wf) - len(run.DatasetMap); missing > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("workflow has %d unbound inputs", missing))
		return
	}
	var historyID string
	if _, err := fmt.Sscanf(run.History, "hist_id=%s", &historyID); err != nil {
		writeError(w, http.StatusBadRequest, "history must be hist_id=<id>")
		return
	}
	h, ok := s.histories[historyID]
	if !ok {
		writeError(w, http.StatusBadRequest, "history not found")
		return
	}

	slots := make([]string, 0, len(run.DatasetMap))
	for slot := range run.DatasetMap {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		a, _ := strconv.Atoi(slots[i])
		b, _ := strconv.Atoi(slots[j])
		return a < b
	})
	var content []byte
	for _, slot := range slots {
		ds, ok := s.datasets[run.DatasetMap[slot]["id"]]
		if !ok {
			writeError(w, http.StatusBadRequest, "dataset not found: "+run.DatasetMap[slot]["id"])
			return
		}
		content = append(content, ds.Content...)
	}

	out := &Dataset{ID: s.newID("ds"), HistoryID: h.ID, Name: "Concatenate datasets on data 1 and data 2", Ext: "txt", State: "ok", Content: content}
	s.datasets[out.ID] = out
	h.Datasets = append(h.Datasets, out)
	s.runs = append(s.runs, run)

	writeJSON(w, http.StatusOK, map[string]any{"history": h.ID, "outputs": []string{out.ID}})
}

func (s *Server) createHistory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	h := &History{ID: s.newID("h"), Name: body.Name}
	s.histories[h.ID] = h
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"id": h.ID, "name": h.Name})
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[id]
	if !ok {
		writeError(w, http.StatusNotFound, "history not found")
		return
	}
	s.stateCalls[id]++

	state := "ok"
	counts := map[string]int{"ok": 0, "running": 0, "queued": 0, "error": 0}
	for _, ds := range h.Datasets {
		counts[ds.State]++
		if ds.State != "ok" {
			state = ds.State
		}
	}
	if s.HistoryState != nil {
		state, counts = s.HistoryState(id, s.stateCalls[id])
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": h.ID, "name": h.Name, "state": state, "state_details": counts})
}

func (s *Server) listContents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "history not found")
		return
	}
	out := make([]map[string]any, 0, len(h.Datasets))
	for i, ds := range h.Datasets {
		out = append(out, map[string]any{"id": ds.ID, "name": ds.Name, "hid": i + 1, "state": ds.State, "type": "file", "visible": true})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) dataset(r *http.Request) (*Dataset, bool) {
	ds, ok := s.datasets[r.PathValue("cid")]
	if !ok || ds.HistoryID != r.PathValue("id") {
		return nil, false
	}
	return ds, true
}

func (s *Server) showDataset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.dataset(r)
	if !ok {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": ds.ID, "name": ds.Name, "state": ds.State, "file_ext": ds.Ext, "file_size": len(ds.Content),
	})
}

func (s *Server) display(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ds, ok := s.dataset(r)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(ds.Content)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.uploads++
	status := s.UploadStatus
	s.mu.Unlock()
	if status >= 400 {
		writeError(w, status, "upload rejected")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	if r.FormValue("tool_id") != "upload1" {
		writeError(w, http.StatusBadRequest, "unexpected tool")
		return
	}
	var inputs map[string]any
	if err := json.Unmarshal([]byte(r.FormValue("inputs")), &inputs); err != nil {
		writeError(w, http.StatusBadRequest, "inputs is not JSON")
		return
	}
	file, _, err := r.FormFile("files_0|file_data")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[r.FormValue("history_id")]
	if !ok {
		writeError(w, http.StatusBadRequest, "history not found")
		return
	}
	name, _ := inputs["files_0|NAME"].(string)
	ext, _ := inputs["file_type"].(string)
	ds := &Dataset{ID: s.newID("ds"), HistoryID: h.ID, Name: name, Ext: ext, State: "ok", Content: content}
	s.datasets[ds.ID] = ds
	h.Datasets = append(h.Datasets, ds)

	writeJSON(w, http.StatusOK, map[string]any{
		"outputs": []map[string]any{{"id": ds.ID, "name": ds.Name, "file_ext": ds.Ext}},
		"jobs":    []map[string]any{{"id": s.newID("job"), "state": "ok"}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"err_msg": msg, "err_code": status * 1000})
}
