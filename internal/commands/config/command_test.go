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

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/internal/commands/shared"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, key := range []string{"GALAXY_URL", "GALAXY_API_KEY", "GALAXY_HISTORY"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return path
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

func TestShow_MasksLiteralKey(t *testing.T) {
	path := writeConfig(t, "galaxy:\n  url: https://usegalaxy.example\n  api_key: abcdefghijkl\n")

	out, err := execute(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, "api_key: abcd****ijkl")
	assert.NotContains(t, out, "abcdefghijkl")
	assert.Contains(t, out, "url: https://usegalaxy.example")
}

func TestShow_JSON(t *testing.T) {
	writeConfig(t, "galaxy:\n  url: https://usegalaxy.example\n  api_key: keyring:main\n")
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	out, err := execute(t)
	require.NoError(t, err)

	var got struct {
		Command string `json:"command"`
		Config  struct {
			Galaxy map[string]any `json:"galaxy"`
		} `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "config", got.Command)
	assert.Equal(t, "keyring:main", got.Config.Galaxy["api_key"])
	assert.Equal(t, "https://usegalaxy.example", got.Config.Galaxy["url"])
}

func TestPath(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")

	out, err := execute(t, "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestMaskAPIKey(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"short":            "****",
		"env:GALAXY_KEY":   "env:GALAXY_KEY",
		"0123456789abcdef": "0123********cdef",
	}
	for in, want := range tests {
		assert.Equal(t, want, maskAPIKey(in), in)
	}
}
