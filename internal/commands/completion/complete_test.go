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

package completion

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/internal/commands/shared"
	"github.com/tombee/galaxyrun/internal/runstore"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

func configure(t *testing.T) (templatesDir, storePath string) {
	t.Helper()
	t.Setenv("GALAXYRUN_TEMPLATES_DIR", "")
	t.Setenv("GALAXYRUN_STORE_PATH", "")
	dir := t.TempDir()

	templatesDir = filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(templatesDir, 0o755))
	raw, err := os.ReadFile("../../../pkg/template/testdata/concat.ga")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "Concat.ga"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(templatesDir, "Broken.ga"), []byte("{"), 0o644))

	storePath = filepath.Join(dir, "runs.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("templates:\n  dir: %s\nstore:\n  path: %s\n", templatesDir, storePath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	shared.SetConfigPathForTest(cfgPath)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return templatesDir, storePath
}

func TestSafeCompletionWrapper(t *testing.T) {
	results, directive := SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		panic("boom")
	})
	assert.Empty(t, results)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	results, _ = SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveDefault
	})
	assert.NotNil(t, results)
}

func TestCompleteTemplates(t *testing.T) {
	configure(t)

	got, directive := CompleteTemplates(&cobra.Command{}, nil, "Con")
	assert.Equal(t, []string{"Concat\t3 steps"}, got)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	got, _ = CompleteTemplates(&cobra.Command{}, []string{"Concat"}, "")
	assert.Empty(t, got)
}

func TestCompleteInputLabels(t *testing.T) {
	configure(t)

	got, directive := CompleteInputLabels(&cobra.Command{}, []string{"Concat"}, "in")
	assert.Equal(t, []string{"input1=", "input2="}, got)
	assert.NotZero(t, directive&cobra.ShellCompDirectiveNoSpace)

	_, directive = CompleteInputLabels(&cobra.Command{}, []string{"Concat"}, "input1=./da")
	assert.Equal(t, cobra.ShellCompDirectiveDefault, directive)

	got, _ = CompleteInputLabels(&cobra.Command{}, []string{"Missing"}, "")
	assert.Empty(t, got)
}

func TestCompleteRunIDs(t *testing.T) {
	_, storePath := configure(t)

	got, _ := CompleteRunIDs(&cobra.Command{}, nil, "")
	assert.Empty(t, got)
	assert.NoFileExists(t, storePath)

	store, err := runstore.Open(runstore.Config{Path: storePath})
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(context.Background(), orchestrator.RunRecord{
		ID: "abc-1", Template: "Concat", Phase: "done", Success: true, StartedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	got, _ = CompleteRunIDs(&cobra.Command{}, nil, "abc")
	assert.Equal(t, []string{"abc-1\tConcat (ok, done)"}, got)
}

func TestCompletionCommand(t *testing.T) {
	root := &cobra.Command{Use: "galaxyrun"}
	root.AddCommand(NewCommand())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", "bash"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "galaxyrun")

	root.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, root.Execute())
}
