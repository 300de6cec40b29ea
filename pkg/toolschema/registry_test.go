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

package toolschema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catTool = `<tool id="cat1" name="Concatenate datasets" version="1.0.0">
  <description>tail-to-head</description>
  <inputs>
    <param name="input1" type="data" label="Concatenate Dataset" format="txt"/>
    <repeat name="queries" title="Dataset">
      <param name="input2" type="data" label="Select"/>
    </repeat>
  </inputs>
</tool>`

const filterTool = `<tool id="Filter1" name="Filter" version="1.1.0">
  <inputs>
    <param name="input" type="data" label="Filter"/>
    <param name="cond" size="40" type="text" value="c1=='chr22'" label="With following condition">
      <help>Double equal signs are required</help>
    </param>
    <conditional name="header">
      <param name="mode" type="select" label="Header lines">
        <option value="skip">Skip</option>
        <option value="keep" selected="true">Keep</option>
      </param>
      <when value="skip">
        <param name="header_lines" type="integer" value="0" label="Number of header lines"/>
      </when>
      <when value="keep"/>
    </conditional>
  </inputs>
</tool>`

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	toolDir := filepath.Join(dir, "tools", "filters")
	require.NoError(t, os.MkdirAll(toolDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "catWrapper.xml"), []byte(catTool), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "filtering.xml"), []byte(filterTool), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "macros.xml"), []byte(`<macros><token name="x">1</token></macros>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "broken.xml"), []byte(`<tool id="broken" version="1"><inputs>`), 0o644))

	catalog := `<?xml version="1.0"?>
<toolbox tool_path="tools">
  <section id="textutil" name="Text Manipulation">
    <tool file="filters/catWrapper.xml"/>
    <tool file="filters/macros.xml"/>
  </section>
  <section id="filters" name="Filter and Sort">
    <tool file="filters/filtering.xml"/>
    <tool file="filters/broken.xml"/>
    <tool file="filters/missing.xml"/>
  </section>
</toolbox>`
	path := filepath.Join(dir, "tool_conf.xml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))
	return path
}

func TestReadCatalog(t *testing.T) {
	path := writeCatalog(t)

	cat, err := ReadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Sections, 2)
	assert.Equal(t, "Text Manipulation", cat.Sections[0].Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "tools", "filters", "catWrapper.xml"), cat.Sections[0].Files[0])
	assert.Len(t, cat.Files(), 5)
}

func TestLoadSchemas_OnlyRequested(t *testing.T) {
	path := writeCatalog(t)

	schemas, err := LoadSchemas([]Ref{{ID: "cat1", Version: "1.0.0"}}, path, nil)
	require.NoError(t, err)
	require.Len(t, schemas, 1)

	cat := schemas[0]
	assert.Equal(t, "cat1", cat.ID)
	assert.Equal(t, "Concatenate datasets", cat.Name)
	assert.Equal(t, "tail-to-head", cat.Description)
	require.Len(t, cat.Parameters, 2)
	assert.Equal(t, "input1", cat.Parameters[0].Name)
	assert.Equal(t, "txt", cat.Parameters[0].Format)
	assert.Equal(t, "queries", cat.Parameters[1].Group)
	assert.True(t, cat.Parameters[1].IsData())
}

func TestLoadSchemas_EmptyVersionIsWildcard(t *testing.T) {
	path := writeCatalog(t)

	schemas, err := LoadSchemas([]Ref{{ID: "Filter1"}, {ID: "cat1", Version: "9.9"}}, path, nil)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "Filter1", schemas[0].ID)
	assert.Equal(t, "1.1.0", schemas[0].Version)
}

func TestLoadSchemas_MissingCatalog(t *testing.T) {
	_, err := LoadSchemas([]Ref{{ID: "cat1"}}, filepath.Join(t.TempDir(), "nope.xml"), nil)
	assert.Error(t, err)
}

func TestParse_Conditionals(t *testing.T) {
	s, err := Parse([]byte(filterTool))
	require.NoError(t, err)

	require.Len(t, s.Parameters, 2)
	assert.Equal(t, "Double equal signs are required", s.Parameters[1].Help)
	assert.Equal(t, "c1=='chr22'", s.Parameters[1].Default)
	assert.Equal(t, "40", s.Parameters[1].Size)

	require.Len(t, s.Conditionals, 1)
	c := s.Conditionals[0]
	assert.Equal(t, "header", c.Name)
	assert.Equal(t, "mode", c.Selector.Name)
	assert.Equal(t, []Option{{Text: "Skip", Value: "skip"}, {Text: "Keep", Value: "keep", Selected: true}}, c.Options)
	assert.Equal(t, "keep", c.DefaultValue())

	branch, ok := c.Branch("skip")
	require.True(t, ok)
	require.Len(t, branch.Parameters, 1)
	assert.Equal(t, "header_lines", branch.Parameters[0].Name)

	p, ok := s.Parameter("header_lines")
	require.True(t, ok)
	assert.Equal(t, "Number of header lines", p.DisplayLabel())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`<tool name="x"/>`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not xml`))
	assert.Error(t, err)
}

func TestParse_DefaultVersion(t *testing.T) {
	s, err := Parse([]byte(`<tool id="sort1" name="Sort"><inputs/></tool>`))
	require.NoError(t, err)
	assert.Equal(t, DefaultToolVersion, s.Version)
}

func TestRefMatchesAndFind(t *testing.T) {
	assert.True(t, Ref{ID: "cat1"}.Matches("cat1", "2.0"))
	assert.True(t, Ref{ID: "cat1", Version: "1.0"}.Matches("cat1", "1.0"))
	assert.False(t, Ref{ID: "cat1", Version: "1.0"}.Matches("cat1", "2.0"))
	assert.False(t, Ref{ID: "cat1"}.Matches("cat2", "1.0"))

	schemas := []*Schema{{ID: "cat1", Version: "1.0"}, {ID: "cat1", Version: "2.0"}}
	assert.Equal(t, "1.0", Find(schemas, "cat1", "").Version)
	assert.Equal(t, "2.0", Find(schemas, "cat1", "2.0").Version)
	assert.Nil(t, Find(schemas, "cat1", "3.0"))
}
