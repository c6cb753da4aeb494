// Package schemas embeds the JSON Schemas used to validate structured data
// blocks and deployment workflow files.
package schemas

import _ "embed"

// StructuredDataSchemaJSON validates JSON-LD blocks embedded in pages.
//
//go:embed structured-data.schema.json
var StructuredDataSchemaJSON string

// WorkflowSchemaJSON validates the shape of a deployment workflow file.
//
//go:embed workflow.schema.json
var WorkflowSchemaJSON string
