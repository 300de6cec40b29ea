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

package history

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/galaxyrun/internal/commands/completion"
	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/runstore"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

// NewCommand creates the history command
func NewCommand() *cobra.Command {
	var filter runstore.Filter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `History lists the runs recorded by 'galaxyrun run', newest first, from the
database at store.path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *runstore.Store) error {
				runs, err := store.List(ctx, filter)
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), struct {
						shared.JSONResponse
						Runs []*orchestrator.RunRecord `json:"runs"`
					}{shared.NewJSONResponse("history", true), runs})
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringVarP(&filter.Template, "template", "t", "", "Only list runs of this template")
	_ = cmd.RegisterFlagCompletionFunc("template", completion.CompleteTemplateFlag)

	cmd.AddCommand(newShowCommand())
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <run-id>",
		Short:             "Show one recorded run and its outputs",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *runstore.Store) error {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return shared.EmitJSON(cmd.OutOrStdout(), struct {
						shared.JSONResponse
						Run *orchestrator.RunRecord `json:"run"`
					}{shared.NewJSONResponse("history show", true), rec})
				}
				printRun(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

func withStore(cmd *cobra.Command, fn func(context.Context, *runstore.Store) error) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	path, err := cfg.StorePath()
	if err != nil {
		return err
	}
	store, err := runstore.Open(runstore.Config{Path: path})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, store)
}

func printRuns(w io.Writer, runs []*orchestrator.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s %s  %s  %s  %s\n",
			shared.RenderResult(r.Success),
			r.ID,
			r.Template,
			r.StartedAt.Local().Format(time.DateTime),
			shared.Muted.Render(r.Phase),
		)
	}
}

func printRun(w io.Writer, r *orchestrator.RunRecord) {
	fmt.Fprintf(w, "%s %s %s\n", shared.RenderResult(r.Success), r.Template, shared.Muted.Render(r.ID))
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("history:   "), r.ContainerID)
	if r.ExecutionContainerID != "" {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("outputs in:"), r.ExecutionContainerID)
	}
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("phase:     "), r.Phase)
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("started:   "), r.StartedAt.Local().Format(time.DateTime))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("duration:  "), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("error:     "), r.Error)
	}

	if len(r.Outputs) == 0 {
		return
	}
	names := make([]string, 0, len(r.Outputs))
	for name := range r.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.Header.Render("Outputs"))
	for _, name := range names {
		fmt.Fprintf(w, "  %s %s  %s\n", shared.SymbolInfo, name, shared.Muted.Render(r.Outputs[name]))
	}
}
