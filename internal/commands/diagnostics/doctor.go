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

package diagnostics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/commands/templates"
	"github.com/tombee/galaxyrun/internal/config"
	"github.com/tombee/galaxyrun/internal/log"
	"github.com/tombee/galaxyrun/pkg/errors"
)

// Check statuses.
const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// pingTimeout bounds the server check.
const pingTimeout = 30 * time.Second

// Check is the outcome of one doctor check.
type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Result collects every check. Healthy is false when any check failed;
// warnings do not count.
type Result struct {
	Checks  []Check `json:"checks"`
	Healthy bool    `json:"healthy"`
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if c.Status == StatusFail {
		r.Healthy = false
	}
}

// pinger is implemented by backends that can check connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and server access",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Long: `Doctor checks that galaxyrun is ready to run templates:
  - the configuration loads and validates
  - server credentials resolve, including keyring references
  - the server accepts the API key
  - the templates directory holds loadable templates
  - the tool catalog and run history database are reachable

A failed check exits with code 1.`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	result := Diagnose(cmd.Context())

	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Result
		}{shared.NewJSONResponse("doctor", result.Healthy), result}); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), result)
	}

	if !result.Healthy {
		return shared.NewRunFailedError("one or more checks failed", nil)
	}
	return nil
}

// Diagnose runs every check against the configuration the other commands
// would load. Checks after a failed prerequisite are skipped.
func Diagnose(ctx context.Context) Result {
	result := Result{Healthy: true}

	cfg, err := shared.LoadConfig()
	if err != nil {
		result.add(Check{Name: "config", Status: StatusFail, Detail: err.Error(),
			Suggestion: "Fix the file named by --config or " + defaultPath()})
		return result
	}
	result.add(Check{Name: "config", Status: StatusOK, Detail: configDetail()})

	checkTemplates(&result, cfg)
	checkToolCatalog(&result, cfg)
	checkStore(&result, cfg)
	checkServer(ctx, &result, cfg)
	return result
}

func configDetail() string {
	if p := shared.GetConfigPath(); p != "" {
		return p
	}
	p := defaultPath()
	if _, err := os.Stat(p); err != nil {
		return "defaults and environment only"
	}
	return p
}

func defaultPath() string {
	p, err := config.ConfigPath()
	if err != nil {
		return "the default config file"
	}
	return p
}

func checkTemplates(result *Result, cfg *config.Config) {
	entries, err := templates.Discover(cfg)
	if err != nil {
		result.add(Check{Name: "templates", Status: StatusFail, Detail: err.Error()})
		return
	}
	if len(entries) == 0 {
		result.add(Check{Name: "templates", Status: StatusWarn,
			Detail:     fmt.Sprintf("no *%s files in %s", cfg.Templates.Suffix, cfg.Templates.Dir),
			Suggestion: "Set templates.dir or GALAXYRUN_TEMPLATES_DIR"})
		return
	}

	var broken []string
	for _, e := range entries {
		if e.Error != "" {
			broken = append(broken, e.Name)
		}
	}
	if len(broken) > 0 {
		result.add(Check{Name: "templates", Status: StatusWarn,
			Detail:     fmt.Sprintf("%d of %d templates cannot be loaded: %s", len(broken), len(entries), strings.Join(broken, ", ")),
			Suggestion: "Run 'galaxyrun templates' for details"})
		return
	}
	result.add(Check{Name: "templates", Status: StatusOK,
		Detail: fmt.Sprintf("%d templates in %s", len(entries), cfg.Templates.Dir)})
}

func checkToolCatalog(result *Result, cfg *config.Config) {
	path := cfg.Templates.ToolCatalog
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		result.add(Check{Name: "tool_catalog", Status: StatusWarn, Detail: err.Error(),
			Suggestion: "inspect --tools needs templates.tool_catalog"})
		return
	}
	result.add(Check{Name: "tool_catalog", Status: StatusOK, Detail: path})
}

func checkStore(result *Result, cfg *config.Config) {
	path, err := cfg.StorePath()
	if err != nil {
		result.add(Check{Name: "store", Status: StatusWarn, Detail: err.Error()})
		return
	}
	if _, err := os.Stat(path); err == nil {
		result.add(Check{Name: "store", Status: StatusOK, Detail: path})
		return
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		result.add(Check{Name: "store", Status: StatusWarn,
			Detail: fmt.Sprintf("%s does not exist yet", filepath.Dir(path))})
		return
	}
	result.add(Check{Name: "store", Status: StatusOK, Detail: path + " (created on first run)"})
}

func checkServer(ctx context.Context, result *Result, cfg *config.Config) {
	session, err := shared.Connect(ctx, cfg, log.Discard())
	if err != nil {
		result.add(Check{Name: "credentials", Status: StatusFail, Detail: err.Error(),
			Suggestion: "Set galaxy.url and galaxy.api_key, or GALAXY_URL and GALAXY_API_KEY"})
		return
	}
	result.add(Check{Name: "credentials", Status: StatusOK, Detail: session.Credentials.URL})

	p, ok := session.Backend.(pinger)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		check := Check{Name: "server", Status: StatusFail, Detail: err.Error()}
		var remote *errors.RemoteError
		if errors.As(err, &remote) && (remote.StatusCode == http.StatusUnauthorized || remote.StatusCode == http.StatusForbidden) {
			check.Suggestion = "Check the API key; 'galaxyrun secrets set' stores one in the keychain"
		}
		result.add(check)
		return
	}
	result.add(Check{Name: "server", Status: StatusOK, Detail: "API key accepted"})
}

func printResult(w io.Writer, result Result) {
	fmt.Fprintln(w, shared.Header.Render("galaxyrun doctor"))
	fmt.Fprintln(w)
	for _, c := range result.Checks {
		line := fmt.Sprintf("%-13s %s", c.Name, c.Detail)
		switch c.Status {
		case StatusOK:
			fmt.Fprintln(w, shared.RenderOK(line))
		case StatusWarn:
			fmt.Fprintln(w, shared.RenderWarn(line))
		default:
			fmt.Fprintln(w, shared.RenderError(line))
		}
		if c.Suggestion != "" {
			fmt.Fprintln(w, "  "+shared.Muted.Render(c.Suggestion))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.RenderResult(result.Healthy))
}
