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

package completion

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/commands/templates"
	"github.com/tombee/galaxyrun/internal/runstore"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

const (
	maxRunCompletions = 50
	storeTimeout      = 500 * time.Millisecond
)

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns an empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// CompleteTemplates completes the first argument with template names.
func CompleteTemplates(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return CompleteTemplateFlag(cmd, args, toComplete)
}

// CompleteTemplateFlag completes a flag value with template names.
func CompleteTemplateFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		entries, err := templates.Discover(cfg)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		out := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Error != "" || !strings.HasPrefix(e.Name, toComplete) {
				continue
			}
			out = append(out, fmt.Sprintf("%s\t%d steps", e.Name, e.Steps))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteInputLabels completes --input with the input labels of the
// template named by the first argument, as "label=".
func CompleteInputLabels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if strings.Contains(toComplete, "=") {
		return nil, cobra.ShellCompDirectiveDefault
	}
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		cfg, err := shared.LoadConfig()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		t, err := orchestrator.ReadTemplate(cfg.Orchestrator("").TemplatePath(args[0]), args[0])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var out []string
		for _, label := range t.InputNames() {
			if strings.HasPrefix(label, toComplete) {
				out = append(out, label+"=")
			}
		}
		return out, cobra.ShellCompDirectiveNoSpace | cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteRunIDs completes recorded run ids, newest first, described by
// template and phase.
func CompleteRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		path, err := cfg.StorePath()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		if _, err := os.Stat(path); err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		store, err := runstore.Open(runstore.Config{Path: path})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		runs, err := store.List(ctx, runstore.Filter{Limit: maxRunCompletions})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		out := make([]string, 0, len(runs))
		for _, r := range runs {
			if strings.HasPrefix(r.ID, toComplete) {
				out = append(out, r.ID+"\t"+describe(r))
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

func describe(r *orchestrator.RunRecord) string {
	result := "failed"
	if r.Success {
		result = "ok"
	}
	return fmt.Sprintf("%s (%s, %s)", r.Template, result, r.Phase)
}
