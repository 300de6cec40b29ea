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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/galaxyrun/internal/cli"
	"github.com/tombee/galaxyrun/internal/commands/completion"
	configcmd "github.com/tombee/galaxyrun/internal/commands/config"
	"github.com/tombee/galaxyrun/internal/commands/diagnostics"
	"github.com/tombee/galaxyrun/internal/commands/history"
	"github.com/tombee/galaxyrun/internal/commands/inspect"
	"github.com/tombee/galaxyrun/internal/commands/run"
	"github.com/tombee/galaxyrun/internal/commands/secrets"
	"github.com/tombee/galaxyrun/internal/commands/templates"
	versioncmd "github.com/tombee/galaxyrun/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Execution
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(history.NewCommand())

	// Templates
	rootCmd.AddCommand(templates.NewCommand())
	rootCmd.AddCommand(inspect.NewCommand())

	// Configuration
	rootCmd.AddCommand(configcmd.NewCommand())
	rootCmd.AddCommand(secrets.NewCommand())

	// Diagnostics
	rootCmd.AddCommand(diagnostics.NewDoctorCommand())

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Ctrl-C interrupts the readiness waits and transfers of a run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.HandleExitError(err)
	}
}
