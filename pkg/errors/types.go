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

// Package errors defines the error taxonomy shared by galaxyrun packages.
//
// Remote-side degradation is reported through the boolean result of a run and
// through logs; the types here describe the failures that do propagate to the
// caller (configuration, parsing, local I/O, caller mistakes) plus RemoteError,
// which backends return so the orchestrator can log and degrade.
package errors

import (
	"fmt"
	"time"
)

// ValidationError represents a caller mistake such as an unknown step number
// in a parameter override or a malformed CLI argument.
type ValidationError struct {
	// Field identifies which input failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "template", "output", "tool")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError represents missing or invalid endpoint/credential configuration.
// It is fatal at startup and surfaces before any run begins.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "galaxy.url")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ParseError represents a malformed template document, tool definition or
// tool-state token. It is fatal for that one document only.
type ParseError struct {
	// Source names the document or token being parsed
	Source string

	// Reason explains what could not be parsed
	Reason string

	// Cause is the underlying decoder error, if any
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error in %s: %s", e.Source, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// RemoteError represents a failure reported by, or while talking to, the
// remote workflow server.
type RemoteError struct {
	// Operation is the remote call that failed (e.g., "upload", "launch")
	Operation string

	// StatusCode is the HTTP status code (0 for transport failures)
	StatusCode int

	// Message is the server's error message, if any
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("remote %s failed", e.Operation)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *RemoteError) ErrorType() string {
	return "remote"
}

// IsRetryable reports whether the status suggests a transient condition.
func (e *RemoteError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}

// LocalIOError represents a failure creating or writing a local file.
// It is fatal for the run that hit it.
type LocalIOError struct {
	// Op is the file operation (e.g., "create", "write")
	Op string

	// Path is the local path involved
	Path string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local %s %s: %v", e.Op, e.Path, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *LocalIOError) Unwrap() error {
	return e.Cause
}

// TimeoutError describes a wait that exhausted its attempt budget.
// The poller reports it in its result; it is not fatal.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "upload readiness")
	Operation string

	// Duration is the total budget that elapsed
	Duration time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// ErrorClassifier defines methods for programmatic error handling.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	ErrorType() string

	// IsRetryable returns true if the operation could succeed when repeated.
	IsRetryable() bool
}
