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
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/galaxyrun/pkg/errors"
)

// Catalog is a parsed tool catalog document.
type Catalog struct {
	// Path is the catalog file location.
	Path string

	// ToolPath is the directory definition files are resolved against.
	ToolPath string

	Sections []Section
}

// Section groups definition files under a display name.
type Section struct {
	ID    string
	Name  string
	Files []string
}

type xmlToolbox struct {
	XMLName  xml.Name     `xml:"toolbox"`
	ToolPath string       `xml:"tool_path,attr"`
	Sections []xmlSection `xml:"section"`
	Tools    []xmlToolRef `xml:"tool"`
}

type xmlSection struct {
	ID    string       `xml:"id,attr"`
	Name  string       `xml:"name,attr"`
	Tools []xmlToolRef `xml:"tool"`
}

type xmlToolRef struct {
	File string `xml:"file,attr"`
}

// ReadCatalog parses a tool catalog. Top-level tool entries are collected in
// an unnamed section.
func ReadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool catalog: %w", err)
	}

	var tb xmlToolbox
	if err := xml.Unmarshal(data, &tb); err != nil {
		return nil, &errors.ParseError{Source: path, Reason: "invalid tool catalog", Cause: err}
	}

	base := filepath.Dir(path)
	toolPath := base
	if tb.ToolPath != "" {
		toolPath = tb.ToolPath
		if !filepath.IsAbs(toolPath) {
			toolPath = filepath.Join(base, toolPath)
		}
	}

	cat := &Catalog{Path: path, ToolPath: toolPath}
	for _, s := range tb.Sections {
		cat.Sections = append(cat.Sections, Section{ID: s.ID, Name: s.Name, Files: cat.resolve(s.Tools)})
	}
	if len(tb.Tools) > 0 {
		cat.Sections = append(cat.Sections, Section{Files: cat.resolve(tb.Tools)})
	}
	return cat, nil
}

func (c *Catalog) resolve(refs []xmlToolRef) []string {
	files := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.File == "" {
			continue
		}
		f := r.File
		if !filepath.IsAbs(f) {
			f = filepath.Join(c.ToolPath, f)
		}
		files = append(files, f)
	}
	return files
}

// Files returns every definition file across sections, in catalog order.
func (c *Catalog) Files() []string {
	var files []string
	for _, s := range c.Sections {
		files = append(files, s.Files...)
	}
	return files
}

// LoadSchemas parses the definition files of every requested tool listed in
// the catalog at catalogPath. A requested tool without a definition file is
// simply absent from the result; so is a definition that fails to parse.
func LoadSchemas(refs []Ref, catalogPath string, logger *slog.Logger) ([]*Schema, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := ReadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}

	var schemas []*Schema
	for _, file := range cat.Files() {
		header, err := readHeader(file)
		if err != nil {
			logger.Warn("skipping unreadable tool definition", "path", file, "error", err)
			continue
		}
		if header == nil || !requested(refs, header.ID, header.Version) {
			continue
		}

		schema, err := ParseFile(file)
		if err != nil {
			logger.Warn("skipping malformed tool definition", "path", file, "error", err)
			continue
		}
		schemas = append(schemas, schema)
	}

	for _, ref := range refs {
		if Find(schemas, ref.ID, ref.Version) == nil {
			logger.Debug("no tool definition found", "tool", ref.String())
		}
	}
	return schemas, nil
}

func requested(refs []Ref, id, version string) bool {
	for _, r := range refs {
		if r.Matches(id, version) {
			return true
		}
	}
	return false
}

// readHeader reads only the root element of a definition file. It returns nil
// when the document is not a tool definition (e.g. a macro file).
func readHeader(path string) (*Ref, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "tool" {
			return nil, nil
		}
		ref := &Ref{Version: DefaultToolVersion}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "id":
				ref.ID = attr.Value
			case "version":
				ref.Version = attr.Value
			}
		}
		return ref, nil
	}
}

type xmlTool struct {
	XMLName     xml.Name  `xml:"tool"`
	ID          string    `xml:"id,attr"`
	Name        string    `xml:"name,attr"`
	Version     string    `xml:"version,attr"`
	Description string    `xml:"description"`
	Inputs      xmlInputs `xml:"inputs"`
}

type xmlInputs struct {
	Params       []xmlParam       `xml:"param"`
	Repeats      []xmlRepeat      `xml:"repeat"`
	Conditionals []xmlConditional `xml:"conditional"`
}

type xmlParam struct {
	Name     string      `xml:"name,attr"`
	Label    string      `xml:"label,attr"`
	Type     string      `xml:"type,attr"`
	Size     string      `xml:"size,attr"`
	Format   string      `xml:"format,attr"`
	Value    string      `xml:"value,attr"`
	Help     string      `xml:"help,attr"`
	Optional string      `xml:"optional,attr"`
	HelpText string      `xml:"help"`
	Options  []xmlOption `xml:"option"`
}

type xmlOption struct {
	Value    string `xml:"value,attr"`
	Selected string `xml:"selected,attr"`
	Text     string `xml:",chardata"`
}

type xmlRepeat struct {
	Name   string     `xml:"name,attr"`
	Params []xmlParam `xml:"param"`
}

type xmlConditional struct {
	Name  string    `xml:"name,attr"`
	Param xmlParam  `xml:"param"`
	Whens []xmlWhen `xml:"when"`
}

type xmlWhen struct {
	Value  string     `xml:"value,attr"`
	Params []xmlParam `xml:"param"`
}

// ParseFile parses one tool definition file.
func ParseFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool definition: %w", err)
	}
	schema, err := Parse(data)
	if err != nil {
		var parseErr *errors.ParseError
		if errors.As(err, &parseErr) {
			parseErr.Source = path
		}
		return nil, err
	}
	schema.Path = path
	return schema, nil
}

// Parse parses a tool definition document.
func Parse(data []byte) (*Schema, error) {
	var t xmlTool
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&t); err != nil {
		return nil, &errors.ParseError{Source: "tool definition", Reason: "invalid XML", Cause: err}
	}
	if t.ID == "" {
		return nil, &errors.ParseError{Source: "tool definition", Reason: "tool has no id"}
	}

	s := &Schema{
		ID:          t.ID,
		Name:        t.Name,
		Version:     t.Version,
		Description: strings.TrimSpace(t.Description),
	}
	if s.Version == "" {
		s.Version = DefaultToolVersion
	}

	for _, p := range t.Inputs.Params {
		s.Parameters = append(s.Parameters, p.spec(""))
	}
	for _, r := range t.Inputs.Repeats {
		for _, p := range r.Params {
			s.Parameters = append(s.Parameters, p.spec(r.Name))
		}
	}
	for _, c := range t.Inputs.Conditionals {
		s.Conditionals = append(s.Conditionals, c.spec())
	}
	return s, nil
}

func (p xmlParam) spec(group string) ParameterSpec {
	help := p.Help
	if help == "" {
		help = strings.TrimSpace(p.HelpText)
	}
	return ParameterSpec{
		Name:     p.Name,
		Label:    p.Label,
		Type:     p.Type,
		Size:     p.Size,
		Format:   p.Format,
		Default:  p.Value,
		Help:     help,
		Group:    group,
		Optional: strings.EqualFold(p.Optional, "true"),
	}
}

func (c xmlConditional) spec() ConditionalSpec {
	cs := ConditionalSpec{
		Name:     c.Name,
		Selector: c.Param.spec(""),
	}
	for _, o := range c.Param.Options {
		cs.Options = append(cs.Options, Option{
			Text:     strings.TrimSpace(o.Text),
			Value:    o.Value,
			Selected: strings.EqualFold(o.Selected, "true"),
		})
	}
	for _, w := range c.Whens {
		branch := WhenBranch{Value: w.Value}
		for _, p := range w.Params {
			branch.Parameters = append(branch.Parameters, p.spec(""))
		}
		cs.Branches = append(cs.Branches, branch)
	}
	return cs
}
