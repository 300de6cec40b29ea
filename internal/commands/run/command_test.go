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

package run

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
	"github.com/tombee/galaxyrun/internal/runstore"
	"github.com/tombee/galaxyrun/internal/testing/galaxyfake"
	"github.com/tombee/galaxyrun/pkg/errors"
)

const apiKey = "test-key"

type fixture struct {
	server    *galaxyfake.Server
	dir       string
	downloads string
	store     string
	input1    string
	input2    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	for _, key := range []string{"GALAXY_URL", "GALAXY_API_KEY", "GALAXY_HISTORY", "GALAXYRUN_CREDENTIALS",
		"GALAXYRUN_TEMPLATES_DIR", "GALAXYRUN_DOWNLOAD_DIR", "GALAXYRUN_STORE_PATH", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	f := &fixture{server: galaxyfake.New(t, apiKey), dir: t.TempDir()}
	f.downloads = filepath.Join(f.dir, "downloads")
	f.store = filepath.Join(f.dir, "runs.db")

	templates := filepath.Join(f.dir, "templates")
	require.NoError(t, os.MkdirAll(templates, 0o755))
	raw, err := os.ReadFile("../../../pkg/template/testdata/concat.ga")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(templates, "Concat.ga"), raw, 0o644))

	f.input1 = filepath.Join(f.dir, "hello.txt")
	f.input2 = filepath.Join(f.dir, "play.txt")
	require.NoError(t, os.WriteFile(f.input1, []byte("Hello!!!\n"), 0o644))
	require.NoError(t, os.WriteFile(f.input2, []byte("Play?\n"), 0o644))

	cfg := fmt.Sprintf(`galaxy:
  url: %s
  api_key: %s
templates:
  dir: %s
upload:
  max_attempts: 3
  interval: 1ms
execution:
  max_attempts: 3
  interval: 1ms
settle_delay: 1ms
download:
  auto: true
  dir: %s
diagnostic_path: %s
http:
  retry_attempts: 0
log:
  level: error
store:
  path: %s
`, f.server.URL, apiKey, templates, f.downloads, filepath.Join(f.dir, "diagnostic"), f.store)
	cfgPath := filepath.Join(f.dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	shared.SetConfigPathForTest(cfgPath)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand_Concatenate(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "Concat", "--input", "input1="+f.input1, "--input", "input2="+f.input2)
	require.NoError(t, err)
	assert.Contains(t, out, "Concat")
	assert.Contains(t, out, "Concatenate datasets on data 1 and data 2")

	content, err := os.ReadFile(filepath.Join(f.downloads, "Concatenate datasets on data 1 and data 2.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello!!!\nPlay?\n", string(content))

	store, err := runstore.Open(runstore.Config{Path: f.store})
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), runstore.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, "Concat", runs[0].Template)
}

func TestRunCommand_JSON(t *testing.T) {
	f := newFixture(t)
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out, err := execute(t, "Concat", "-i", "input1="+f.input1, "-i", "input2="+f.input2, "--lazy", "--no-record")
	require.NoError(t, err)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.True(t, rep.Success)
	assert.Equal(t, "run", rep.Command)
	assert.Equal(t, "done", rep.Phase)
	require.Len(t, rep.Outputs, 1)
	assert.False(t, rep.Outputs[0].Downloaded)
	assert.NoFileExists(t, f.store)
}

func TestRunCommand_FailedRunExitCode(t *testing.T) {
	f := newFixture(t)
	f.server.UploadStatus = 500

	_, err := execute(t, "Concat", "--input", "input1="+f.input1, "--input", "input2="+f.input2, "--no-record")
	require.Error(t, err)
	assert.Equal(t, shared.ExitRunFailed, shared.ExitCodeFor(err))
}

func TestRunCommand_MissingTemplate(t *testing.T) {
	newFixture(t)

	_, err := execute(t, "Nope")
	var notFound *errors.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, shared.ExitInvalidTemplate, shared.ExitCodeFor(err))
}

func TestRunCommand_MissingCredentials(t *testing.T) {
	newFixture(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))
	shared.SetConfigPathForTest(cfgPath)

	_, err := execute(t, "Concat")
	assert.Equal(t, shared.ExitConfigError, shared.ExitCodeFor(err))
}

func TestRunCommand_MetricsFile(t *testing.T) {
	f := newFixture(t)
	metricsPath := filepath.Join(f.dir, "galaxyrun.prom")

	_, err := execute(t, "Concat", "-i", "input1="+f.input1, "-i", "input2="+f.input2, "--no-record", "--metrics-file", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `galaxyrun_runs_total{result="succeeded"} 1`)
}

func TestRunCommand_BadParam(t *testing.T) {
	newFixture(t)

	_, err := execute(t, "Concat", "--param", "three.x=1")
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)
}
