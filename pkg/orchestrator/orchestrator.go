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

// Package orchestrator drives a workflow template through a remote
// workflow engine: template import, input upload, launch, the readiness
// waits and output retrieval.
//
// Remote failures never abort a run. They are logged and turn the boolean
// result of Orchestrator.Run false. Only interruption of ctx, local file
// errors and caller mistakes are returned as errors.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/galaxyrun/internal/log"
	"github.com/tombee/galaxyrun/internal/metrics"
	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/poller"
	"github.com/tombee/galaxyrun/pkg/template"
)

const tracerName = "github.com/tombee/galaxyrun/pkg/orchestrator"

// RunRecord summarizes a finished run.
type RunRecord struct {
	ID                   string `json:"id"`
	Template             string `json:"template"`
	ContainerID          string `json:"history_id,omitempty"`
	ExecutionContainerID string `json:"execution_history_id,omitempty"`
	Phase                string `json:"phase"`
	Success              bool   `json:"success"`

	// Outputs maps output names to local paths; empty paths are outputs
	// that were not downloaded.
	Outputs map[string]string `json:"outputs,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// RunRecorder persists run outcomes.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// Orchestrator executes runs against a Backend. It is safe for concurrent
// use by independent runs.
type Orchestrator struct {
	cfg      Config
	backend  Backend
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	recorder RunRecorder
	types    *typeResolver
	now      func() time.Time

	mu        sync.Mutex
	templates map[string]*template.Template
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records run, transfer and poll counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer used for phase spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithRecorder stores every finished run in r.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an Orchestrator. The configuration is validated and the
// upload type rules compiled up front.
func New(cfg Config, backend Backend, opts ...Option) (*Orchestrator, error) {
	if backend == nil {
		return nil, &errors.ConfigError{Key: "backend", Reason: "no backend configured"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	types, err := newTypeResolver(cfg.TypeRules, cfg.DefaultType)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		backend:   backend,
		logger:    slog.Default(),
		types:     types,
		now:       time.Now,
		templates: make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o, nil
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// TemplatePath returns the file a template name resolves to.
func (o *Orchestrator) TemplatePath(name string) string {
	return o.cfg.TemplatePath(name)
}

// LoadTemplate reads and parses the named template. Parsed templates are
// cached and shared read-only between runs.
func (o *Orchestrator) LoadTemplate(name string) (*template.Template, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.templates[name]; ok {
		return t, nil
	}

	t, err := ReadTemplate(o.TemplatePath(name), name)
	if err != nil {
		return nil, err
	}
	o.templates[name] = t
	return t, nil
}

// ReadTemplate parses the template document at path. name is used in
// errors and as the template name when the document declares none.
func ReadTemplate(path, name string) (*template.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "template", ID: name}
		}
		return nil, &errors.LocalIOError{Op: "read", Path: path, Cause: err}
	}
	t, err := template.Parse(raw)
	if err != nil {
		var perr *errors.ParseError
		if errors.As(err, &perr) && (perr.Source == "" || perr.Source == "template") {
			perr.Source = path
		}
		return nil, err
	}
	if t.Name == "" {
		t.Name = name
	}
	return t, nil
}

// NewRun creates a run of the named template with the configured download
// defaults.
func (o *Orchestrator) NewRun(name string) (*Run, error) {
	t, err := o.LoadTemplate(name)
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:           uuid.NewString(),
		TemplateName: name,
		AutoDownload: o.cfg.AutoDownload,
		DownloadDir:  o.cfg.DownloadDir,
		template:     t,
		orch:         o,
	}, nil
}

func (o *Orchestrator) runLogger(run *Run) *slog.Logger {
	return log.WithRunContext(o.logger, run.ID, run.TemplateName)
}

// Run executes run and reports whether it succeeded: the execution became
// ready, every automatic download succeeded and the last output could be
// fetched. A run can be executed once.
func (o *Orchestrator) Run(ctx context.Context, run *Run) (bool, error) {
	run.mu.Lock()
	if run.started {
		run.mu.Unlock()
		return false, &errors.ValidationError{Field: "run", Message: fmt.Sprintf("run %s was already executed", run.ID)}
	}
	run.started = true
	run.orch = o
	run.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "galaxyrun.run", trace.WithAttributes(
		attribute.String("galaxyrun.run_id", run.ID),
		attribute.String("galaxyrun.template", run.TemplateName),
	))
	defer span.End()

	logger := o.runLogger(run)
	started := o.now()
	logger.Info("run started", "inputs", len(run.Inputs()), "auto_download", run.AutoDownload)

	ok, err := o.execute(ctx, run)

	result := "failed"
	switch {
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("run aborted", "phase", run.Phase().String(), log.Error(err))
	case ok:
		result = "succeeded"
		logger.Info("run succeeded", log.Duration(o.now().Sub(started).Milliseconds()))
	default:
		span.SetStatus(codes.Error, "run degraded")
		logger.Warn("run finished unsuccessfully", "phase", run.Phase().String())
	}
	span.SetAttributes(attribute.Bool("galaxyrun.success", ok), attribute.String("galaxyrun.phase", run.Phase().String()))
	o.metrics.RunFinished(result)
	o.record(ctx, run, ok, err, started)
	return ok, err
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) (bool, error) {
	logger := o.runLogger(run)

	if run.ContainerID == "" {
		name := o.cfg.ContainerName
		if name == "" {
			name = run.TemplateName
		}
		var id string
		err := o.phase(ctx, "create_container", func(ctx context.Context) error {
			var err error
			id, err = o.backend.CreateContainer(ctx, name)
			return err
		})
		if err != nil {
			if errors.IsInterruption(err) {
				return false, err
			}
			logger.Warn("cannot create history", "name", name, log.Error(err))
			return false, nil
		}
		run.ContainerID = id
		logger.Info("history created", log.ContainerKey, id, "name", name)
	}

	err := o.phase(ctx, PhaseTemplateEnsured.String(), func(ctx context.Context) error {
		return o.backend.EnsureTemplate(ctx, run.TemplateName, run.template)
	})
	if err != nil {
		if errors.IsInterruption(err) {
			return false, err
		}
		logger.Warn("cannot ensure template is available remotely", log.Error(err))
	}
	run.setPhase(PhaseTemplateEnsured)

	var (
		uploaded    map[string]string
		allUploaded bool
	)
	err = o.phase(ctx, PhaseInputsUploaded.String(), func(ctx context.Context) error {
		var err error
		uploaded, allUploaded, err = o.uploadInputs(ctx, run)
		return err
	})
	if err != nil {
		return false, err
	}
	run.setPhase(PhaseInputsUploaded)

	if _, err := o.waitReady(ctx, run, "upload", run.ContainerID, o.cfg.UploadAttempts, o.cfg.UploadInterval); err != nil {
		return false, err
	}
	run.setPhase(PhaseUploadReady)

	var launch *Launch
	err = o.phase(ctx, PhaseLaunched.String(), func(ctx context.Context) error {
		var err error
		launch, err = o.backend.Launch(ctx, LaunchRequest{
			TemplateName: run.TemplateName,
			ContainerID:  run.ContainerID,
			Inputs:       uploaded,
			Parameters:   run.Parameters(),
		})
		return err
	})
	if err != nil {
		if errors.IsFatal(err) {
			return false, err
		}
		logger.Warn("launch failed", log.Error(err))
		return false, nil
	}
	run.mu.Lock()
	run.executionContainer = launch.ContainerID
	run.outputIDs = append([]string(nil), launch.OutputIDs...)
	run.mu.Unlock()
	run.setPhase(PhaseLaunched)
	logger.Info("workflow launched",
		"workflow_id", launch.TemplateID,
		log.ContainerKey, launch.ContainerID,
		"outputs", len(launch.OutputIDs))

	res, err := o.waitReady(ctx, run, "execution", launch.ContainerID, o.cfg.ExecutionAttempts, o.cfg.ExecutionInterval)
	if err != nil {
		return false, err
	}
	ready := res.Ready
	if ready {
		run.setPhase(PhaseExecutionReady)
	} else {
		run.setPhase(PhaseTimedOut)
	}

	var downloaded bool
	err = o.phase(ctx, PhaseOutputsRetrieved.String(), func(ctx context.Context) error {
		var err error
		downloaded, err = o.retrieveOutputs(ctx, run)
		return err
	})
	if err != nil {
		return false, err
	}
	run.setPhase(PhaseOutputsRetrieved)

	sane, err := o.checkResults(ctx, run)
	if err != nil {
		return false, err
	}
	run.setPhase(PhaseDone)

	return allUploaded && ready && downloaded && sane, nil
}

// phase runs fn inside a span and records its duration.
func (o *Orchestrator) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "galaxyrun."+name)
	defer span.End()

	start := o.now()
	err := fn(ctx)
	o.metrics.ObservePhase(name, o.now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// uploadInputs sends every input to the run's history and returns the
// uploaded artifact id per input label, and whether every upload was
// accepted. Failed uploads are logged and left out; a missing local file is
// an error.
func (o *Orchestrator) uploadInputs(ctx context.Context, run *Run) (map[string]string, bool, error) {
	logger := log.WithPhase(o.runLogger(run), PhaseInputsUploaded.String())
	uploaded := make(map[string]string)
	all := true

	for _, in := range run.Inputs() {
		info, err := os.Stat(in.Path)
		if err != nil {
			return nil, false, &errors.LocalIOError{Op: "stat", Path: in.Path, Cause: err}
		}
		if info.IsDir() {
			return nil, false, &errors.LocalIOError{Op: "read", Path: in.Path, Cause: fmt.Errorf("is a directory")}
		}

		dataType, err := o.types.Resolve(run.TemplateName, in.Name, in.Path)
		if err != nil {
			logger.Warn("type rule failed, using default type", log.InputKey, in.Name, log.Error(err))
			dataType = o.cfg.DefaultType
		}

		art, err := o.backend.Upload(ctx, run.ContainerID, in.Path, dataType)
		status := 0
		if art != nil {
			status = art.StatusCode
		}
		if err != nil {
			if errors.IsFatal(err) {
				return nil, false, err
			}
			all = false
			o.metrics.Upload("failed")
			logger.Warn("upload failed",
				log.InputKey, in.Name,
				"path", in.Path,
				"status", status,
				log.Error(err))
			continue
		}
		o.metrics.Upload("ok")
		uploaded[in.Name] = art.ID
		logger.Info("input uploaded",
			log.InputKey, in.Name,
			"dataset_id", art.ID,
			"type", dataType,
			"status", status)
	}
	return uploaded, all, nil
}

// waitReady polls a history. A container that never becomes ready is
// logged and reported through the result, not as an error.
func (o *Orchestrator) waitReady(ctx context.Context, run *Run, phase, containerID string, attempts int, interval time.Duration) (*poller.Result, error) {
	var res *poller.Result
	err := o.phase(ctx, phase+"_wait", func(ctx context.Context) error {
		var err error
		res, err = o.backend.PollReady(ctx, containerID, attempts, interval)
		return err
	})
	if err != nil {
		if errors.IsInterruption(err) {
			return nil, err
		}
		o.runLogger(run).Warn("readiness check failed", log.PhaseKey, phase, log.Error(err))
		return &poller.Result{}, nil
	}

	// The final state query counts as an attempt.
	o.metrics.PollAttempts(phase, res.Attempts+1)
	if !res.Ready {
		o.runLogger(run).Warn("history not ready",
			log.PhaseKey, phase,
			log.ContainerKey, containerID,
			"attempts", res.Attempts,
			"state", res.FinalState)
	}
	return res, nil
}

// retrieveOutputs downloads every output when the run downloads
// automatically. Otherwise it records the output names for Run.Output.
func (o *Orchestrator) retrieveOutputs(ctx context.Context, run *Run) (bool, error) {
	container := run.ExecutionContainerID()
	ids := run.OutputIDs()

	if run.AutoDownload {
		all := true
		for _, id := range ids {
			_, ok, err := o.downloadOutput(ctx, run, container, id)
			if err != nil {
				return false, err
			}
			all = all && ok
		}
		return all, nil
	}

	pending := make(map[string]Artifact, len(ids))
	for _, id := range ids {
		art, err := o.describeOutput(ctx, run, container, id)
		if err != nil {
			return false, err
		}
		pending[art.Name] = *art
	}
	run.mu.Lock()
	run.pending = pending
	run.mu.Unlock()
	return true, nil
}

// checkResults fetches the last output to the diagnostic path and checks
// that the file was written. An empty file is only logged.
func (o *Orchestrator) checkResults(ctx context.Context, run *Run) (bool, error) {
	logger := o.runLogger(run)
	ids := run.OutputIDs()
	if len(ids) == 0 {
		logger.Warn("workflow produced no outputs")
		return false, nil
	}
	last := ids[len(ids)-1]

	path := o.cfg.DiagnosticPath
	if path == "" {
		path = filepath.Join(os.TempDir(), "galaxyrun-diagnostic-"+run.ID)
	}
	f, err := os.Create(path)
	if err != nil {
		return false, &errors.LocalIOError{Op: "create", Path: path, Cause: err}
	}

	ok, err := o.streamOutput(ctx, logger.With(log.OutputKey, last), f, run.ExecutionContainerID(), last)
	if err != nil || !ok {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("diagnostic copy missing", "path", path, log.Error(err))
		return false, nil
	}
	if info.Size() == 0 {
		logger.Warn("last output is empty", log.OutputKey, last, "path", path)
	}
	return true, nil
}

func (o *Orchestrator) record(ctx context.Context, run *Run, ok bool, runErr error, started time.Time) {
	if o.recorder == nil {
		return
	}
	rec := RunRecord{
		ID:                   run.ID,
		Template:             run.TemplateName,
		ContainerID:          run.ContainerID,
		ExecutionContainerID: run.ExecutionContainerID(),
		Phase:                run.Phase().String(),
		Success:              ok,
		Outputs:              make(map[string]string),
		StartedAt:            started,
		FinishedAt:           o.now(),
	}
	for _, name := range run.OutputNames() {
		rec.Outputs[name] = ""
	}
	for name, a := range run.Outputs() {
		if a.Downloaded {
			rec.Outputs[name] = a.Path
		}
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	// Record even when ctx was cancelled.
	if err := o.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		o.runLogger(run).Warn("cannot record run", log.Error(err))
	}
}
