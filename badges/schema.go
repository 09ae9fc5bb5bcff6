package badges

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// catalogSchema constrains the badge catalog file before it is decoded.
const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["badges"],
  "properties": {
    "badges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "condition"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string", "minLength": 1, "maxLength": 100},
          "description": {"type": "string"},
          "icon_url": {"type": "string"},
          "condition": {
            "type": "object",
            "required": ["kind", "threshold"],
            "properties": {
              "kind": {"type": "string", "minLength": 1},
              "threshold": {"type": "integer", "minimum": 0}
            },
            "additionalProperties": false
          }
        },
        "additionalProperties": false
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(catalogSchema)

// validateDocument checks a decoded YAML document against catalogSchema.
func validateDocument(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate badge catalog: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid badge catalog: %s", strings.Join(msgs, "; "))
}
