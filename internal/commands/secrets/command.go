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

package secrets

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/secrets"
	"github.com/tombee/galaxyrun/pkg/errors"
)

// NewCommand creates the secrets command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Store Galaxy API keys in the system keychain",
		Annotations: map[string]string{
			"group": "configuration",
		},
		Long: `Secrets stores values in the system keychain under the "galaxyrun" service.
A stored key is referenced from configuration as keyring:<name>:

  galaxy:
    api_key: keyring:main

Examples:
  galaxyrun secrets set main
  echo "$KEY" | galaxyrun secrets set main
  galaxyrun secrets delete main`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newDeleteCommand())
	return cmd
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret read from stdin or a hidden prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validateName(name); err != nil {
				return err
			}
			value, err := readValue(cmd)
			if err != nil {
				return fmt.Errorf("failed to read secret value: %w", err)
			}
			if value == "" {
				return &errors.ValidationError{Field: "value", Message: "secret value cannot be empty"}
			}
			if err := secrets.NewKeyringBackend().Set(cmd.Context(), name, value); err != nil {
				return err
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Stored keyring:"+name))
			}
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secrets.NewKeyringBackend().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Deleted keyring:"+args[0]))
			}
			return nil
		},
	}
}

// readValue reads the whole of a piped stdin, or prompts without echo when
// stdin is a terminal.
func readValue(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter secret value (hidden): ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateName(name string) error {
	switch {
	case name == "":
		return &errors.ValidationError{Field: "name", Message: "secret name cannot be empty"}
	case strings.ContainsAny(name, " \t\\"):
		return &errors.ValidationError{
			Field:      "name",
			Message:    fmt.Sprintf("invalid secret name %q", name),
			Suggestion: "Use letters, digits and forward slashes, e.g. servers/main",
		}
	}
	return nil
}
