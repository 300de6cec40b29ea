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

package templates

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/config"
	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

// Entry is one template file found under the templates directory.
type Entry struct {
	// Name is what 'galaxyrun run' accepts: the path relative to the
	// templates directory without the suffix.
	Name string `json:"name"`

	Path     string   `json:"path"`
	Declared string   `json:"declared_name,omitempty"`
	Steps    int      `json:"steps"`
	Inputs   []string `json:"inputs,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewCommand creates the templates command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the templates available to run",
		Annotations: map[string]string{
			"group": "templates",
		},
		Long: `Templates lists every file under templates.dir (recursively) that ends in
templates.suffix, with its declared name, step count and input labels.
Templates that fail to parse are listed with the error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			entries, err := Discover(cfg)
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					Dir       string  `json:"dir"`
					Templates []Entry `json:"templates"`
				}{shared.NewJSONResponse("templates", true), cfg.Templates.Dir, entries})
			}
			printEntries(cmd.OutOrStdout(), cfg.Templates.Dir, entries)
			return nil
		},
	}

	return cmd
}

// Discover finds and parses the templates under cfg.Templates.Dir. A
// missing directory yields no entries.
func Discover(cfg *config.Config) ([]Entry, error) {
	dir := cfg.Templates.Dir
	suffix := cfg.Templates.Suffix

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, &errors.LocalIOError{Op: "stat", Path: dir, Cause: err}
	}
	if !info.IsDir() {
		return nil, &errors.ConfigError{Key: "templates.dir", Reason: fmt.Sprintf("%s is not a directory", dir)}
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*"+suffix, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &errors.ConfigError{Key: "templates.suffix", Reason: "invalid template pattern", Cause: err}
	}
	sort.Strings(matches)

	entries := make([]Entry, 0, len(matches))
	for _, rel := range matches {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		name := strings.TrimSuffix(rel, suffix)
		entry := Entry{Name: name, Path: path}

		t, err := orchestrator.ReadTemplate(path, name)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Declared = t.Name
			entry.Steps = len(t.Steps)
			entry.Inputs = t.InputNames()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func printEntries(w io.Writer, dir string, entries []Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No templates found in %s\n", dir)
		return
	}

	fmt.Fprintln(w, shared.Header.Render("Templates in "+dir))
	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(w, "  %s\n", shared.RenderError(e.Name+"  "+shared.Muted.Render(e.Error)))
			continue
		}
		line := fmt.Sprintf("%s  %d steps", e.Name, e.Steps)
		if len(e.Inputs) > 0 {
			line += "  inputs: " + strings.Join(e.Inputs, ", ")
		}
		if e.Declared != e.Name {
			line += "  " + shared.StatusWarn.Render("declared as "+e.Declared)
		}
		fmt.Fprintf(w, "  %s\n", shared.RenderOK(line))
	}
}
