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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/galaxyrun/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for galaxyrun
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "galaxyrun",
		Short: "galaxyrun - run Galaxy workflow templates from the command line",
		Long: `galaxyrun runs workflow templates on a Galaxy server. It imports the
template when the server does not have it, uploads the input datasets,
launches the workflow, waits for it to finish and downloads the outputs.

Run 'galaxyrun templates' to list the templates in your templates directory.
Run 'galaxyrun inspect <template>' to see its inputs and step numbers.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // Errors are printed by HandleExitError with the exit code
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/galaxyrun/config.yaml)")

	return cmd
}

// HandleExitError prints err and exits with its exit code
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
