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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/galaxyrun/internal/log"
	"github.com/tombee/galaxyrun/pkg/errors"
)

// CleanFileName replaces characters that are unsafe in file names (control
// characters, DEL and \ / < > : " | ? *) with '_'.
func CleanFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		switch r {
		case '\\', '/', '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		return r
	}, name)
}

// UniquePath returns dir/name, or dir/base-N.ext with the smallest N >= 1
// for which no file exists yet.
func UniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if !exists(candidate) {
		return candidate
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// outputFileName builds the local file name for an output, adding the
// datatype as extension when the name has none.
func outputFileName(name, dataType string) string {
	clean := CleanFileName(name)
	if dataType != "" && filepath.Ext(clean) == "" {
		clean += "." + CleanFileName(dataType)
	}
	return clean
}

// downloadOutput resolves an output's name and datatype, then fetches it.
func (o *Orchestrator) downloadOutput(ctx context.Context, run *Run, containerID, outputID string) (*Artifact, bool, error) {
	art, err := o.describeOutput(ctx, run, containerID, outputID)
	if err != nil {
		return nil, false, err
	}
	return o.fetchOutput(ctx, run, containerID, art)
}

// describeOutput looks up an output's display name and datatype. When the
// server cannot tell, the output id is used as name. Only interruption is
// returned as an error.
func (o *Orchestrator) describeOutput(ctx context.Context, run *Run, containerID, outputID string) (*Artifact, error) {
	art := &Artifact{OutputID: outputID, Name: outputID}
	info, err := o.backend.DescribeOutput(ctx, containerID, outputID)
	switch {
	case err != nil && errors.IsInterruption(err):
		return nil, err
	case err != nil:
		o.runLogger(run).Warn("cannot describe output, using its id as name",
			log.ContainerKey, containerID, log.OutputKey, outputID, log.Error(err))
	default:
		if info.Name != "" {
			art.Name = info.Name
		}
		art.DataType = info.DataType
	}
	return art, nil
}

// fetchOutput streams a described output to a local file and binds it to
// the run under art.Name. The binding is made whether or not the transfer
// succeeded; the returned bool reports success. Failing to create the local
// file is returned as an error.
func (o *Orchestrator) fetchOutput(ctx context.Context, run *Run, containerID string, art *Artifact) (*Artifact, bool, error) {
	logger := o.runLogger(run).With(log.ContainerKey, containerID, log.OutputKey, art.OutputID)

	f, err := o.createOutputFile(run, outputFileName(art.Name, art.DataType))
	if err != nil {
		return nil, false, err
	}
	art.Path = f.Name()

	ok, err := o.streamOutput(ctx, logger, f, containerID, art.OutputID)
	art.Downloaded = ok
	run.bindOutput(art.Name, art)
	if err != nil {
		return art, false, err
	}

	if ok {
		o.metrics.Download("ok")
		logger.Info("output downloaded", "name", art.Name, "path", art.Path)
	} else {
		o.metrics.Download("failed")
	}
	return art, ok, nil
}

func (o *Orchestrator) createOutputFile(run *Run, name string) (*os.File, error) {
	if run.DownloadDir == "" {
		f, err := os.CreateTemp("", "galaxyrun-*-"+name)
		if err != nil {
			return nil, &errors.LocalIOError{Op: "create", Path: filepath.Join(os.TempDir(), name), Cause: err}
		}
		return f, nil
	}

	if err := os.MkdirAll(run.DownloadDir, 0o755); err != nil {
		return nil, &errors.LocalIOError{Op: "create directory", Path: run.DownloadDir, Cause: err}
	}
	path := UniquePath(run.DownloadDir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &errors.LocalIOError{Op: "create", Path: path, Cause: err}
	}
	return f, nil
}

// streamOutput copies a remote artifact into f and closes f. Remote failures
// return false with a nil error; local write failures and interruption are
// returned as errors.
func (o *Orchestrator) streamOutput(ctx context.Context, logger *slog.Logger, f *os.File, containerID, outputID string) (bool, error) {
	defer f.Close()

	body, err := o.backend.FetchOutput(ctx, containerID, outputID)
	if err != nil {
		if errors.IsInterruption(err) {
			return false, err
		}
		logger.Warn("output download failed", log.Error(err))
		return false, nil
	}
	defer body.Close()

	if _, err := io.Copy(f, body); err != nil {
		if errors.IsInterruption(err) {
			return false, err
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return false, &errors.LocalIOError{Op: "write", Path: f.Name(), Cause: err}
		}
		logger.Warn("output download interrupted", log.Error(err))
		return false, nil
	}
	if err := f.Sync(); err != nil {
		return false, &errors.LocalIOError{Op: "write", Path: f.Name(), Cause: err}
	}
	return true, nil
}
