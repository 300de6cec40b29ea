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

package templates

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/config"
)

func writeTemplates(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	raw, err := os.ReadFile("../../../pkg/template/testdata/concat.ga")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "text"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Concat.ga"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "text", "Concat copy.ga"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.ga"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	return dir
}

func TestDiscover(t *testing.T) {
	cfg := config.Default()
	cfg.Templates.Dir = writeTemplates(t)

	entries, err := Discover(cfg)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Broken", entries[0].Name)
	assert.NotEmpty(t, entries[0].Error)

	assert.Equal(t, "Concat", entries[1].Name)
	assert.Equal(t, "Concat", entries[1].Declared)
	assert.Equal(t, 3, entries[1].Steps)
	assert.Equal(t, []string{"input1", "input2"}, entries[1].Inputs)

	assert.Equal(t, "text/Concat copy", entries[2].Name)
}

func TestDiscover_MissingDir(t *testing.T) {
	cfg := config.Default()
	cfg.Templates.Dir = filepath.Join(t.TempDir(), "none")

	entries, err := Discover(cfg)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTemplatesCommand(t *testing.T) {
	dir := writeTemplates(t)
	t.Setenv("GALAXYRUN_TEMPLATES_DIR", dir)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))
	shared.SetConfigPathForTest(cfgPath)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Concat  3 steps  inputs: input1, input2")
	assert.Contains(t, out.String(), "declared as Concat")

	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })
	out.Reset()
	cmd = NewCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Templates []Entry `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Len(t, resp.Templates, 3)
}
