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

package orchestrator

import (
	"path/filepath"
	"time"

	"github.com/tombee/galaxyrun/pkg/errors"
)

// Config is the immutable configuration of an Orchestrator.
type Config struct {
	// ContainerName names histories created for runs that do not supply
	// one. Empty means the run's template name.
	ContainerName string

	// TemplatesDir holds template documents named <name><TemplateSuffix>.
	TemplatesDir   string
	TemplateSuffix string

	// UploadAttempts and UploadInterval bound the wait for uploaded inputs.
	UploadAttempts int
	UploadInterval time.Duration

	// ExecutionAttempts and ExecutionInterval bound the wait for the
	// launched workflow.
	ExecutionAttempts int
	ExecutionInterval time.Duration

	// DefaultType is the upload datatype used when no rule matches.
	DefaultType string

	// TypeRules choose an upload datatype per input; first match wins.
	TypeRules []TypeRule

	// DiagnosticPath receives a copy of the last output for the result
	// sanity check. Empty means a file in the system temp directory.
	DiagnosticPath string

	// AutoDownload and DownloadDir are the defaults for new runs.
	AutoDownload bool
	DownloadDir  string
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		TemplatesDir:      "workflows",
		TemplateSuffix:    ".ga",
		UploadAttempts:    60,
		UploadInterval:    5 * time.Second,
		ExecutionAttempts: 720,
		ExecutionInterval: 5 * time.Second,
		DefaultType:       "txt",
		AutoDownload:      true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.UploadAttempts < 1 {
		return &errors.ConfigError{Key: "upload.max_attempts", Reason: "must be at least 1"}
	}
	if c.ExecutionAttempts < 1 {
		return &errors.ConfigError{Key: "execution.max_attempts", Reason: "must be at least 1"}
	}
	if c.UploadInterval < 0 || c.ExecutionInterval < 0 {
		return &errors.ConfigError{Key: "interval", Reason: "must not be negative"}
	}
	if c.TemplateSuffix == "" {
		return &errors.ConfigError{Key: "templates.suffix", Reason: "must not be empty"}
	}
	return nil
}

// TemplatePath returns the file a template name resolves to.
func (c Config) TemplatePath(name string) string {
	return filepath.Join(c.TemplatesDir, name+c.TemplateSuffix)
}
