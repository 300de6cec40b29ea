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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/galaxyrun/internal/commands/completion"
	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/config"
	"github.com/tombee/galaxyrun/internal/jq"
	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
	"github.com/tombee/galaxyrun/pkg/template"
	"github.com/tombee/galaxyrun/pkg/toolschema"
)

// NewCommand creates the inspect command
func NewCommand() *cobra.Command {
	var (
		tools     bool
		jqExpr    string
		catalog   string
		showState bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <template>",
		Short: "Show the steps, connections and tool state of a template",
		Annotations: map[string]string{
			"group": "templates",
		},
		Long: `Inspect parses a template and prints its steps in execution order.

For each step it shows the step number used by 'galaxyrun run --param', the
bound tool, where each input connection comes from and the decoded tool
state. With --tools the tool definitions listed in templates.tool_catalog
are loaded so that every declared parameter and conditional branch is shown.

The argument is a template name, resolved in templates.dir, or a path to a
template file.`,
		Example: `  galaxyrun inspect Concat
  galaxyrun inspect ./workflows/Concat.ga --tools
  galaxyrun inspect Concat --jq '.steps[] | select(.type == "tool") | .tool'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteTemplates,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], tools, catalog, jqExpr, showState)
		},
	}

	cmd.Flags().BoolVar(&tools, "tools", false, "Load tool definitions and show declared parameters")
	cmd.Flags().StringVar(&catalog, "tool-catalog", "", "Tool catalog to use (default: templates.tool_catalog)")
	cmd.Flags().StringVar(&jqExpr, "jq", "", "Filter the JSON view with a jq expression")
	cmd.Flags().BoolVar(&showState, "state", true, "Show decoded tool state")

	return cmd
}

func runInspect(cmd *cobra.Command, arg string, tools bool, catalog, jqExpr string, showState bool) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	t, err := loadTemplate(cfg, arg)
	if err != nil {
		return err
	}

	if tools {
		if catalog == "" {
			catalog = cfg.Templates.ToolCatalog
		}
		if catalog == "" {
			return &errors.ConfigError{Key: "templates.tool_catalog", Reason: "--tools needs a tool catalog"}
		}
		schemas, err := toolschema.LoadSchemas(t.ToolReferences(), catalog, logger)
		if err != nil {
			return err
		}
		t = t.AddToolsMetadata(schemas)
	}

	view := NewTemplateView(t)
	out := cmd.OutOrStdout()

	if jqExpr != "" {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		result, err := jq.Apply(ctx, jqExpr, view)
		if err != nil {
			return err
		}
		return shared.EmitJSON(out, result)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, struct {
			shared.JSONResponse
			Template *TemplateView `json:"template"`
		}{shared.NewJSONResponse("inspect", true), view})
	}

	printView(out, view, showState)
	return nil
}

// loadTemplate reads arg as a file when it names one, and as a template
// name otherwise.
func loadTemplate(cfg *config.Config, arg string) (*template.Template, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		name := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		return orchestrator.ReadTemplate(arg, name)
	}
	return orchestrator.ReadTemplate(cfg.Orchestrator("").TemplatePath(arg), arg)
}

func printView(w io.Writer, v *TemplateView, showState bool) {
	fmt.Fprintln(w, shared.Header.Render(v.Name))
	if v.Annotation != "" {
		fmt.Fprintf(w, "  %s\n", v.Annotation)
	}
	if v.FormatVersion != "" {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("format:"), v.FormatVersion)
	}
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("inputs:"), strings.Join(v.Inputs, ", "))

	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.Header.Render("Steps"))
	for _, s := range v.Steps {
		title := s.Name
		if s.Label != "" && s.Label != s.Name {
			title += " (" + s.Label + ")"
		}
		line := fmt.Sprintf("  #%d %s %s", s.Number, shared.Muted.Render("["+s.Type+"]"), title)
		if s.Tool != "" {
			line += "  " + shared.Muted.Render(s.Tool)
		}
		fmt.Fprintln(w, line)

		if s.Annotation != "" {
			fmt.Fprintf(w, "      %s\n", s.Annotation)
		}
		for _, c := range s.Connections {
			fmt.Fprintf(w, "      %s <- %s\n", c.Key, strings.Join(c.Sources, ", "))
		}
		for _, p := range s.Parameters {
			value := p.Value
			if len(p.ConnectedTo) > 0 {
				value = "<- " + strings.Join(p.ConnectedTo, ", ")
			}
			fmt.Fprintf(w, "      %s %s = %s\n", shared.RenderLabel(p.Label), shared.Muted.Render("("+p.Name+", "+p.Type+")"), value)
		}
		for _, c := range s.Conditionals {
			fmt.Fprintf(w, "      %s %s.%s = %s %s\n", shared.RenderLabel("conditional"), c.Name, c.Selector, c.Active,
				shared.Muted.Render("["+strings.Join(c.Options, "|")+"]"))
		}
		if showState && len(s.State) > 0 {
			fmt.Fprintf(w, "      %s %s\n", shared.RenderLabel("state:"), formatState(s.State))
		}
	}

	if len(v.Tools) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.Header.Render("Tools"))
	for _, tool := range v.Tools {
		ref := toolschema.Ref{ID: tool.ID, Version: tool.Version}.String()
		if tool.Resolved {
			fmt.Fprintf(w, "  %s\n", shared.RenderOK(ref))
		} else {
			fmt.Fprintf(w, "  %s %s\n", shared.SymbolInfo, ref)
		}
	}
}
