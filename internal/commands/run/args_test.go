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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/pkg/errors"
)

func TestParseInputs(t *testing.T) {
	dir := t.TempDir()
	hello := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(hello, []byte("Hello!!!\n"), 0o644))

	got, err := ParseInputs([]string{"input1=" + hello})
	require.NoError(t, err)
	assert.Equal(t, []InputArg{{Name: "input1", Path: hello}}, got)

	tests := []struct {
		name string
		args []string
	}{
		{"no separator", []string{"input1"}},
		{"empty name", []string{"=" + hello}},
		{"empty path", []string{"input1="}},
		{"duplicate", []string{"input1=" + hello, "input1=" + hello}},
		{"directory", []string{"input1=" + dir}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInputs(tt.args)
			var verr *errors.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	_, err = ParseInputs([]string{"input1=" + filepath.Join(dir, "missing.txt")})
	var ioErr *errors.LocalIOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestParseParams(t *testing.T) {
	got, err := ParseParams([]string{
		"3.num_lines=2",
		"3.cond|mode=fast",
		`4.settings={"a": "1", "b": "true"}`,
		"4.ratio=0.5",
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, ParamArg{Step: 3, Name: "num_lines", Value: int64(2)}, got[0])
	assert.Equal(t, ParamArg{Step: 3, Name: "cond|mode", Value: "fast"}, got[1])
	assert.Equal(t, map[string]any{"a": int64(1), "b": true}, got[2].Value)
	assert.Equal(t, 0.5, got[3].Value)
}

func TestParseParams_Invalid(t *testing.T) {
	for _, arg := range []string{"num_lines=2", "x.num_lines=2", "0.num_lines=2", "3.=2", "3.num_lines"} {
		t.Run(arg, func(t *testing.T) {
			_, err := ParseParams([]string{arg})
			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "param", verr.Field)
		})
	}
}
