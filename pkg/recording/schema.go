package recording

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["entries"],
  "properties": {
    "version": {"type": "string"},
    "variables": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "string"}
    },
    "entries": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["request", "response"],
        "properties": {
          "request": {
            "type": "object",
            "required": ["method", "uri"],
            "properties": {
              "method": {"type": "string", "minLength": 1},
              "uri": {"type": "string", "minLength": 1},
              "headers": {"$ref": "#/$defs/headers"},
              "body": {"type": ["string", "null"]},
              "bodyEncoding": {"$ref": "#/$defs/encoding"}
            }
          },
          "response": {
            "type": "object",
            "required": ["statusCode"],
            "properties": {
              "statusCode": {"type": "integer", "minimum": 100, "maximum": 999},
              "headers": {"$ref": "#/$defs/headers"},
              "body": {"type": ["string", "null"]},
              "bodyEncoding": {"$ref": "#/$defs/encoding"}
            }
          }
        }
      }
    }
  },
  "$defs": {
    "headers": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    },
    "encoding": {"enum": ["utf8", "base64", ""]}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("recording.schema.json", strings.NewReader(documentSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	return compiler.Compile("recording.schema.json")
})

// ValidateDocument checks raw recording JSON against the document schema.
// Violations are reported as ErrCorrupted.
func ValidateDocument(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("recording schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return nil
}
