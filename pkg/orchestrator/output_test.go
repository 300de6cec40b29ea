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

package orchestrator_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

func TestCleanFileName(t *testing.T) {
	tests := map[string]string{
		"a:b":           "a_b",
		"a/b\\c":        "a_b_c",
		"plain.txt":     "plain.txt",
		"<x>|\"y\"?*":   "_x___y___",
		"tab\there\x7f": "tab_here_",
		"data 1 on 2":   "data 1 on 2",
	}
	for in, want := range tests {
		assert.Equal(t, want, orchestrator.CleanFileName(in), "input %q", in)
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "base.txt"), orchestrator.UniquePath(dir, "base.txt"))

	for _, name := range []string{"base.txt", "base-1.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	assert.Equal(t, filepath.Join(dir, "base-2.txt"), orchestrator.UniquePath(dir, "base.txt"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "noext"), nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "noext-1"), orchestrator.UniquePath(dir, "noext"))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", orchestrator.PhaseIdle.String())
	assert.Equal(t, "timed_out", orchestrator.PhaseTimedOut.String())
	assert.Equal(t, "outputs_retrieved", orchestrator.PhaseOutputsRetrieved.String())
	assert.Equal(t, "unknown", orchestrator.Phase(42).String())
}
