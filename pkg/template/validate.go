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

package template

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/schemas"
)

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func workflowSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString(schemas.WorkflowSchemaURL, schemas.GetWorkflowSchemaString())
	})
	return compiledSchema, schemaErr
}

// Validate checks a decoded template document against the embedded workflow
// schema. Numbers in doc must be json.Number or float64.
func Validate(doc any) error {
	schema, err := workflowSchema()
	if err != nil {
		return errors.Wrap(err, "compiling workflow schema")
	}
	if err := schema.Validate(doc); err != nil {
		return &errors.ParseError{Source: "template", Reason: "does not match the workflow schema", Cause: err}
	}
	return nil
}
