package gateway

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const verifyResponseSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "error": {"type": "string"},
    "data": {
      "type": "object",
      "required": ["line_content"],
      "properties": {
        "file_path": {"type": "string"},
        "line_content": {"type": "string"},
        "line_number": {"type": "integer"},
        "total_lines": {"type": "integer"}
      }
    }
  }
}`

const mutateResponseSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "message": {"type": "string"},
    "error": {"type": "string"}
  }
}`

// faultTargetSchema lists every field the chat summary and the auto-fill read.
// Only the first modification is consumed, so one is enough.
const faultTargetSchema = `{
  "type": "object",
  "required": ["target_file", "target_function", "mutation_suggestion", "mutation_info"],
  "properties": {
    "target_file": {"type": "string", "minLength": 1},
    "target_function": {"type": "string"},
    "llm_analysis": {"type": "string"},
    "mutation_suggestion": {
      "type": "object",
      "required": ["modifications"],
      "properties": {
        "modifications": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "properties": {
              "line_number": {"type": "integer"},
              "new_content": {"type": "string"},
              "reason": {"type": "string"}
            }
          }
        }
      }
    },
    "mutation_info": {
      "type": "object",
      "required": ["file_path", "line_number", "old_content", "new_content", "backup_path"],
      "properties": {
        "file_path": {"type": "string", "minLength": 1},
        "line_number": {"type": "integer", "minimum": 1},
        "old_content": {"type": "string"},
        "new_content": {"type": "string"},
        "backup_path": {"type": "string"},
        "timestamp": {"type": "string"}
      }
    }
  }
}`

// errorBodySchema matches the {error} detail a gateway may attach to a non-2xx reply.
const errorBodySchema = `{
  "type": "object",
  "required": ["error"],
  "properties": {"error": {"type": "string", "minLength": 1}}
}`

// Compiled once at init; the schemas are constants.
var (
	verifySchema      = mustCompile("verify-response", verifyResponseSchema)
	mutateSchema      = mustCompile("mutate-response", mutateResponseSchema)
	faultTargetShape  = mustCompile("fault-target-response", faultTargetSchema)
	errorDetailSchema = mustCompile("error-response", errorBodySchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://cimut.schemas.local/gateway/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("gateway: load schema %s: %v", name, err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("gateway: compile schema %s: %v", name, err))
	}
	return compiled
}
