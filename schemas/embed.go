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

// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// WorkflowSchemaURL is the identifier the workflow schema is compiled under.
const WorkflowSchemaURL = "https://galaxyrun.dev/schemas/galaxy_workflow.schema.json"

// Embed the Galaxy workflow JSON Schema so template documents can be checked
// before their steps are decoded.
//
//go:embed galaxy_workflow.schema.json
var workflowSchema []byte

// GetWorkflowSchema returns the embedded workflow JSON Schema as raw bytes.
func GetWorkflowSchema() []byte {
	return workflowSchema
}

// GetWorkflowSchemaString returns the embedded workflow JSON Schema as a string.
func GetWorkflowSchemaString() string {
	return string(workflowSchema)
}
