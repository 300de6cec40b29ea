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

package shared

import (
	"fmt"
	"io"
	"os"

	"github.com/tombee/galaxyrun/pkg/errors"
)

// Exit codes for galaxyrun commands
const (
	ExitSuccess         = 0
	ExitRunFailed       = 1
	ExitInvalidTemplate = 2
	ExitConfigError     = 3
	ExitInterrupted     = 130 // 128 + SIGINT
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewRunFailedError reports a run that finished with a false result.
func NewRunFailedError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitRunFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidTemplateError creates an error for unreadable or malformed
// template documents
func NewInvalidTemplateError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidTemplate,
		Message: msg,
		Cause:   cause,
	}
}

// NewConfigError creates an error for configuration and credential problems
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitConfigError,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var parseErr *errors.ParseError
	var notFound *errors.NotFoundError
	if errors.As(err, &parseErr) || (errors.As(err, &notFound) && notFound.Resource == "template") {
		return ExitInvalidTemplate
	}

	var cfgErr *errors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}

	if errors.IsInterruption(err) {
		return ExitInterrupted
	}

	return ExitRunFailed
}

// HandleExitError prints err and exits with the matching code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	printError(os.Stderr, err)
	os.Exit(ExitCodeFor(err))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())

	var validation *errors.ValidationError
	if errors.As(err, &validation) && validation.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", validation.Suggestion)
	}
}
