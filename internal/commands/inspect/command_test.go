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

package inspect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/pkg/errors"
)

const catTool = `<tool id="cat1" name="Concatenate datasets" version="1.0.0">
  <inputs>
    <param name="input1" type="data" label="Concatenate Dataset"/>
    <repeat name="queries" title="Dataset">
      <param name="input2" type="data" label="Select"/>
    </repeat>
  </inputs>
</tool>`

func setup(t *testing.T) (templates, catalog string) {
	t.Helper()
	t.Setenv("GALAXYRUN_TEMPLATES_DIR", "")
	dir := t.TempDir()

	templates = filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(templates, 0o755))
	raw, err := os.ReadFile("../../../pkg/template/testdata/concat.ga")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(templates, "Concat.ga"), raw, 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tools"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools", "cat.xml"), []byte(catTool), 0o644))
	catalog = filepath.Join(dir, "tool_conf.xml")
	require.NoError(t, os.WriteFile(catalog, []byte(`<toolbox tool_path="tools"><section id="text" name="Text"><tool file="cat.xml"/></section></toolbox>`), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("templates:\n  dir: %s\n  tool_catalog: %s\nlog:\n  level: error\n", templates, catalog)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	shared.SetConfigPathForTest(cfgPath)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return templates, catalog
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect_Text(t *testing.T) {
	setup(t)

	out, err := execute(t, "Concat")
	require.NoError(t, err)
	assert.Contains(t, out, "Concat")
	assert.Contains(t, out, "input1, input2")
	assert.Contains(t, out, "#3")
	assert.Contains(t, out, "cat1/1.0.0")
	assert.Contains(t, out, "queries_0|input2 <- #2.output")
	assert.Contains(t, out, "input1=null")
}

func TestInspect_FilePath(t *testing.T) {
	templates, _ := setup(t)

	out, err := execute(t, filepath.Join(templates, "Concat.ga"), "--state=false")
	require.NoError(t, err)
	assert.Contains(t, out, "input1 <- #1.output")
	assert.NotContains(t, out, "state:")
}

func TestInspect_Tools(t *testing.T) {
	setup(t)
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out, err := execute(t, "Concat", "--tools")
	require.NoError(t, err)

	var resp struct {
		Success  bool          `json:"success"`
		Template *TemplateView `json:"template"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Template.Tools, 1)
	assert.True(t, resp.Template.Tools[0].Resolved)

	step := resp.Template.Steps[2]
	require.Len(t, step.Parameters, 2)
	assert.Equal(t, "Concatenate Dataset", step.Parameters[0].Label)
	assert.Equal(t, []string{"#1.output"}, step.Parameters[0].ConnectedTo)
	assert.Equal(t, "input2", step.Parameters[1].Name)
	assert.Equal(t, []string{"#2.output"}, step.Parameters[1].ConnectedTo)
}

func TestInspect_JQ(t *testing.T) {
	setup(t)

	out, err := execute(t, "Concat", "--jq", `[.steps[] | select(.type == "tool") | .tool]`)
	require.NoError(t, err)

	var tools []string
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	assert.Equal(t, []string{"cat1/1.0.0"}, tools)
}

func TestInspect_Errors(t *testing.T) {
	templates, _ := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(templates, "Broken.ga"), []byte(`{"name": `), 0o644))

	_, err := execute(t, "Missing")
	var notFound *errors.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = execute(t, "Broken")
	var parseErr *errors.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Equal(t, shared.ExitInvalidTemplate, shared.ExitCodeFor(err))

	_, err = execute(t, "Concat", "--jq", ".steps[")
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)
}
