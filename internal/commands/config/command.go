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

package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/config"
	"github.com/tombee/galaxyrun/internal/secrets"
)

// NewCommand creates the config command. Without a subcommand it runs show.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View the effective configuration",
		Annotations: map[string]string{
			"group": "configuration",
		},
		Long: `Config prints the configuration galaxyrun would use: the file named by
--config or the default location, environment overrides and built-in
defaults. Literal API keys are masked.`,
		Args: cobra.NoArgs,
		RunE: runShow,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  runShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cmd
}

func configPath() (string, error) {
	if p := shared.GetConfigPath(); p != "" {
		return p, nil
	}
	p, err := config.ConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to determine config path: %w", err)
	}
	return p, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	masked := *cfg
	masked.Galaxy.APIKey = maskAPIKey(cfg.Galaxy.APIKey)

	raw, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if shared.GetJSON() {
		// Round trip through YAML so the keys match the file format.
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Config map[string]any `json:"config"`
		}{shared.NewJSONResponse("config", true), doc})
	}

	path, _ := configPath()
	printYAML(cmd.OutOrStdout(), path, raw)
	return nil
}

func printYAML(w io.Writer, path string, raw []byte) {
	fmt.Fprintln(w, shared.Header.Render("Configuration: "+path))
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)
	w.Write(raw)
}

// maskAPIKey hides a literal key. References such as keyring:main are shown
// as written.
func maskAPIKey(key string) string {
	switch {
	case key == "":
		return ""
	case secrets.DefaultResolver().IsReference(key):
		return key
	case len(key) <= 8:
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
