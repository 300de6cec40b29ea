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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/testing/galaxyfake"
)

const apiKey = "test-key"

func setup(t *testing.T, url, key string) {
	t.Helper()
	for _, k := range []string{"GALAXY_URL", "GALAXY_API_KEY", "GALAXY_HISTORY", "GALAXYRUN_CREDENTIALS",
		"GALAXYRUN_TEMPLATES_DIR", "GALAXYRUN_STORE_PATH"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(templates, 0o755))
	raw, err := os.ReadFile("../../../pkg/template/testdata/concat.ga")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(templates, "Concat.ga"), raw, 0o644))

	cfg := fmt.Sprintf("galaxy:\n  url: %q\n  api_key: %q\ntemplates:\n  dir: %s\nhttp:\n  retry_attempts: 0\nstore:\n  path: %s\n",
		url, key, templates, filepath.Join(dir, "runs.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
}

func statuses(r Result) map[string]string {
	m := make(map[string]string)
	for _, c := range r.Checks {
		m[c.Name] = c.Status
	}
	return m
}

func TestDiagnose_Healthy(t *testing.T) {
	server := galaxyfake.New(t, apiKey)
	setup(t, server.URL, apiKey)

	result := Diagnose(context.Background())
	assert.True(t, result.Healthy)
	assert.Equal(t, map[string]string{
		"config":      StatusOK,
		"templates":   StatusOK,
		"store":       StatusOK,
		"credentials": StatusOK,
		"server":      StatusOK,
	}, statuses(result))
}

func TestDiagnose_RejectedKey(t *testing.T) {
	server := galaxyfake.New(t, apiKey)
	setup(t, server.URL, "wrong")

	result := Diagnose(context.Background())
	assert.False(t, result.Healthy)
	last := result.Checks[len(result.Checks)-1]
	assert.Equal(t, "server", last.Name)
	assert.Equal(t, StatusFail, last.Status)
	assert.NotEmpty(t, last.Suggestion)
}

func TestDiagnose_MissingCredentials(t *testing.T) {
	setup(t, "", "")

	result := Diagnose(context.Background())
	assert.False(t, result.Healthy)
	assert.Equal(t, StatusFail, statuses(result)["credentials"])
	assert.NotContains(t, statuses(result), "server")
}

func TestDoctorCommand_JSONExitCode(t *testing.T) {
	setup(t, "", "")
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	cmd := NewDoctorCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, shared.ExitRunFailed, shared.ExitCodeFor(err))

	var got struct {
		Command string  `json:"command"`
		Success bool    `json:"success"`
		Healthy bool    `json:"healthy"`
		Checks  []Check `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "doctor", got.Command)
	assert.False(t, got.Success)
	assert.False(t, got.Healthy)
	assert.NotEmpty(t, got.Checks)
}
