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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/pkg/errors"
)

func TestTypeResolver_NoRules(t *testing.T) {
	r, err := newTypeResolver(nil, "")
	require.NoError(t, err)

	typ, err := r.Resolve("ConcatTabular", "input1", "/data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "tabular", typ)

	typ, err = r.Resolve("Concat", "input1", "/data/a.tsv")
	require.NoError(t, err)
	assert.Equal(t, "txt", typ)
}

func TestTypeResolver_FirstMatchWins(t *testing.T) {
	r, err := newTypeResolver([]TypeRule{
		{When: `ext in ["tsv", "tab"]`, Type: "tabular"},
		{When: `input == "reads"`, Type: "fastqsanger"},
		{When: `file startsWith "ref"`, Type: "fasta"},
		{When: `true`, Type: "bed"},
	}, "txt")
	require.NoError(t, err)

	tests := []struct {
		input, path, want string
	}{
		{"table", "/d/x.tsv", "tabular"},
		{"reads", "/d/r.tsv", "tabular"},
		{"reads", "/d/r.fq", "fastqsanger"},
		{"genome", "/d/ref.fa", "fasta"},
		{"other", "/d/o.dat", "bed"},
	}
	for _, tt := range tests {
		t.Run(tt.input+tt.path, func(t *testing.T) {
			typ, err := r.Resolve("Tabular", tt.input, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ)
		})
	}
}

func TestTypeResolver_DefaultWhenNothingMatches(t *testing.T) {
	r, err := newTypeResolver([]TypeRule{{When: `template == "x"`, Type: "tabular"}}, "data")
	require.NoError(t, err)

	typ, err := r.Resolve("ConcatTabular", "a", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "data", typ)
}

func TestTypeResolver_InvalidRules(t *testing.T) {
	tests := []struct {
		name string
		rule TypeRule
		key  string
	}{
		{"syntax", TypeRule{When: `input ==`, Type: "txt"}, "upload.type_rules[0].when"},
		{"not boolean", TypeRule{When: `input`, Type: "txt"}, "upload.type_rules[0].when"},
		{"unknown variable", TypeRule{When: `size > 3`, Type: "txt"}, "upload.type_rules[0].when"},
		{"empty type", TypeRule{When: `true`}, "upload.type_rules[0].type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTypeResolver([]TypeRule{tt.rule}, "txt")
			var cfgErr *errors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}
