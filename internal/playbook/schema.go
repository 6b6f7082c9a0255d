package playbook

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// documentSchema describes the structural shape of a playbook document.
// Semantic checks stay out of it: undefined role references fail later in
// decoding and unknown strategy names at runtime; this catches malformed
// documents before any object is built.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["hosts"],
    "properties": {
      "name": {"type": "string"},
      "hosts": {"type": "string", "minLength": 1},
      "gather_facts": {"type": "boolean"},
      "strategy": {"type": "string"},
      "serial": {
        "oneOf": [
          {"type": "integer", "minimum": 0},
          {"type": "string", "pattern": "^[0-9]+%$"}
        ]
      },
      "roles": {"type": "array"},
      "tasks": {"type": "array", "items": {"$ref": "#/$defs/taskOrBlock"}},
      "handlers": {"type": "array", "items": {"$ref": "#/$defs/task"}}
    }
  },
  "$defs": {
    "task": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "action": {"type": "string"},
        "args": {"type": "object"},
        "notify": {"type": "array", "items": {"type": "string"}},
        "when": {"type": "string"},
        "tags": {"type": "array", "items": {"type": "string"}}
      }
    },
    "taskOrBlock": {
      "anyOf": [
        {"$ref": "#/$defs/task"},
        {
          "type": "object",
          "required": ["block"],
          "properties": {
            "block": {"type": "array", "items": {"$ref": "#/$defs/taskOrBlock"}},
            "rescue": {"type": "array", "items": {"$ref": "#/$defs/task"}},
            "always": {"type": "array", "items": {"$ref": "#/$defs/task"}}
          }
        }
      ]
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileDocumentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		// Use jsonschema.UnmarshalJSON for correct number handling.
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse playbook schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("playbook.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add playbook schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("playbook.schema.json")
	})
	return compiledSchema, schemaErr
}

// validateDocument checks playbook YAML against the document schema. The
// YAML is round-tripped through JSON so the validator sees the same value
// types a JSON document would produce.
func validateDocument(data []byte) error {
	schema, err := compileDocumentSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse playbook: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("playbook document is empty")
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize playbook document: %w", err)
	}
	normalized, err := jsonschema.UnmarshalJSON(strings.NewReader(string(jsonBytes)))
	if err != nil {
		return fmt.Errorf("normalize playbook document: %w", err)
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("invalid playbook document: %w", err)
	}
	return nil
}
