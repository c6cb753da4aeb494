// Package validation checks structured documents against the embedded JSON Schemas.
package validation

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/caxton-dev/sitecheck/schemas"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// structuredDataSchema is the compiled JSON Schema for JSON-LD blocks.
var structuredDataSchema *jsonschema.Schema

// workflowSchema is the compiled JSON Schema for deployment workflows.
var workflowSchema *jsonschema.Schema

func init() {
	structuredDataSchema = mustCompileSchema(schemas.StructuredDataSchemaJSON, "structured-data.schema.json")
	workflowSchema = mustCompileSchema(schemas.WorkflowSchemaJSON, "workflow.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ParseError wraps a document that could not be decoded at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// ValidateStructuredData validates a JSON-LD block. A *ParseError is returned
// when the block is not JSON; schema violations come back as messages.
func ValidateStructuredData(data string) ([]string, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return validateAgainstSchema(structuredDataSchema, doc), nil
}

// ValidateWorkflowBytes validates a deployment workflow YAML document.
func ValidateWorkflowBytes(data []byte) ([]string, error) {
	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("YAML parse error: %w", err)}
	}
	return validateAgainstSchema(workflowSchema, convertToJSONCompatible(yamlDoc)), nil
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []string {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// convertToJSONCompatible turns YAML-decoded values into the types the
// schema validator understands. Non-string map keys are stringified.
func convertToJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[k] = convertToJSONCompatible(v2)
		}
		return result
	case map[any]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[fmt.Sprint(k)] = convertToJSONCompatible(v2)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			result[i] = convertToJSONCompatible(v2)
		}
		return result
	default:
		return val
	}
}
