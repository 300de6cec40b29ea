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

/*
Package cli provides the root command and shared configuration for the galaxyrun CLI.

This package creates the main Cobra command and handles global concerns like
version information, persistent flags and exit codes. Individual commands are
implemented in the internal/commands subpackages.

# Command Tree

	galaxyrun
	├── run           Run a template on Galaxy
	├── inspect       Show steps, connections and tool state of a template
	├── templates     List templates in the templates directory
	├── history       List recorded runs
	│   └── show      Show one recorded run
	├── config        Show the effective configuration
	│   ├── show
	│   └── path
	├── secrets       Store API keys in the system keychain
	│   ├── set
	│   └── delete
	├── doctor        Check configuration, credentials and server access
	├── completion    Generate shell completion scripts
	└── version       Show version

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(run.NewCommand())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--verbose, -v    Enable debug logging
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

  - 0: Success
  - 1: The run finished without succeeding, or another failure
  - 2: The template is missing or malformed
  - 3: Configuration or credentials are invalid
  - 130: Interrupted
*/
package cli
