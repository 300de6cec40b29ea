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
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/galaxyrun/internal/commands/completion"
	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/metrics"
	"github.com/tombee/galaxyrun/internal/runstore"
	"github.com/tombee/galaxyrun/internal/tracing"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

type options struct {
	inputs      []string
	params      []string
	downloadDir string
	lazy        bool
	history     string
	metricsFile string
	trace       bool
	noRecord    bool
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run <template>",
		Short: "Run a workflow template on Galaxy",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run uploads the inputs to a Galaxy history, launches the template
against them, waits for the workflow to finish and downloads its outputs.

The template is read from <templates.dir>/<template><templates.suffix> and
imported into Galaxy when no workflow of that name exists yet.

Inputs are bound by the label of the template's input steps:
  --input input1=./hello.txt --input input2=./world.txt

Tool parameters are overridden by 1-based step number:
  --param 3.num_lines=2

Exit codes:
  0  the run succeeded
  1  the run finished but did not succeed
  2  the template is missing or malformed
  3  configuration or credentials are invalid`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteTemplates,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplate(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Input dataset as label=path (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "Tool parameter override as step.name=value (repeatable)")
	cmd.Flags().StringVarP(&opts.downloadDir, "download-dir", "o", "", "Directory for downloaded outputs (default: download.dir or temporary files)")
	cmd.Flags().BoolVar(&opts.lazy, "lazy", false, "List outputs without downloading them")
	cmd.Flags().StringVar(&opts.history, "history", "", "Upload into an existing history instead of creating one")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics for this run to a file")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Export phase spans to stderr")
	cmd.Flags().BoolVar(&opts.noRecord, "no-record", false, "Do not record the run in the history database")

	_ = cmd.RegisterFlagCompletionFunc("input", completion.CompleteInputLabels)

	return cmd
}

func runTemplate(cmd *cobra.Command, name string, opts options) error {
	inputs, err := ParseInputs(opts.inputs)
	if err != nil {
		return err
	}
	params, err := ParseParams(opts.params)
	if err != nil {
		return err
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	if opts.downloadDir != "" {
		cfg.Download.Dir = opts.downloadDir
	}
	logger := shared.NewLogger(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := shared.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}

	version, _, _ := shared.GetVersion()
	tp, err := tracing.Setup(tracing.Config{
		Enabled:        opts.trace,
		ServiceVersion: version,
		Output:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to flush spans", "error", err)
		}
	}()

	m := metrics.New()
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithTracer(tp.Tracer(tracing.InstrumentationName)),
	}

	if !opts.noRecord {
		store, err := openStore(cfg.StorePath)
		if err != nil {
			logger.Warn("run history disabled", "error", err)
		} else {
			defer store.Close()
			orchOpts = append(orchOpts, orchestrator.WithRecorder(store))
		}
	}

	orch, err := orchestrator.New(cfg.Orchestrator(session.Credentials.History), session.Backend, orchOpts...)
	if err != nil {
		return err
	}

	run, err := orch.NewRun(name)
	if err != nil {
		return err
	}
	if opts.history != "" {
		run.ContainerID = opts.history
	}
	if opts.lazy {
		run.AutoDownload = false
	}
	for _, in := range inputs {
		run.AddInput(in.Name, in.Path)
	}
	for _, p := range params {
		if err := run.SetParameter(p.Step, p.Name, p.Value); err != nil {
			return err
		}
	}

	ok, runErr := orch.Run(ctx, run)

	if opts.metricsFile != "" {
		if err := m.WriteTextfile(opts.metricsFile); err != nil {
			logger.Warn("failed to write metrics", "path", opts.metricsFile, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	rep := newReport(run, ok)
	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	} else if !shared.GetQuiet() {
		rep.print(cmd.OutOrStdout())
	}

	if !ok {
		return shared.NewRunFailedError(fmt.Sprintf("run %s of %s did not succeed (reached %s)", run.ID, name, run.Phase()), nil)
	}
	return nil
}

func openStore(path func() (string, error)) (*runstore.Store, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}
	return runstore.Open(runstore.Config{Path: p, WAL: true})
}

type outputEntry struct {
	Name       string `json:"name"`
	ID         string `json:"id,omitempty"`
	DataType   string `json:"data_type,omitempty"`
	Path       string `json:"path,omitempty"`
	Downloaded bool   `json:"downloaded"`
}

type report struct {
	shared.JSONResponse
	RunID              string        `json:"run_id"`
	Template           string        `json:"template"`
	HistoryID          string        `json:"history_id,omitempty"`
	ExecutionHistoryID string        `json:"execution_history_id,omitempty"`
	Phase              string        `json:"phase"`
	Outputs            []outputEntry `json:"outputs"`
}

func newReport(run *orchestrator.Run, ok bool) *report {
	rep := &report{
		JSONResponse:       shared.NewJSONResponse("run", ok),
		RunID:              run.ID,
		Template:           run.TemplateName,
		HistoryID:          run.ContainerID,
		ExecutionHistoryID: run.ExecutionContainerID(),
		Phase:              run.Phase().String(),
		Outputs:            []outputEntry{},
	}

	bound := run.Outputs()
	for _, name := range run.OutputNames() {
		entry := outputEntry{Name: name}
		if a, ok := bound[name]; ok {
			entry.ID = a.OutputID
			entry.DataType = a.DataType
			entry.Path = a.Path
			entry.Downloaded = a.Downloaded
		}
		rep.Outputs = append(rep.Outputs, entry)
	}
	return rep
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "%s %s %s\n", shared.RenderResult(r.Success), r.Template, shared.Muted.Render(r.RunID))
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("history:  "), r.HistoryID)
	if r.ExecutionHistoryID != "" && r.ExecutionHistoryID != r.HistoryID {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("outputs in:"), r.ExecutionHistoryID)
	}
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("phase:    "), r.Phase)

	if len(r.Outputs) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.Header.Render("Outputs"))
	for _, o := range r.Outputs {
		switch {
		case o.Downloaded:
			fmt.Fprintf(w, "  %s\n", shared.RenderOK(o.Name+"  "+shared.Muted.Render(o.Path)))
		case o.Path != "":
			fmt.Fprintf(w, "  %s\n", shared.RenderWarn(o.Name+"  partial: "+shared.Muted.Render(o.Path)))
		default:
			fmt.Fprintf(w, "  %s %s\n", shared.SymbolInfo, o.Name)
		}
	}
}
