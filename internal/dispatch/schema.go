package dispatch

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/waypoint/pkg/schema"
)

const messageSchemaURL = "https://waypoint.dev/schemas/resume-workflows.json"

// messageSchemaJSON is the JSON Schema of an encoded resume message. Payload
// values of the built-in types are checked against their own definitions.
const messageSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://waypoint.dev/schemas/resume-workflows.json",
  "type": "object",
  "required": ["activity_type_name", "bookmark_payload"],
  "properties": {
    "activity_type_name": { "type": "string", "minLength": 1 },
    "bookmark_payload": { "$ref": "#/$defs/payload" },
    "correlation_id": { "type": "string" },
    "workflow_instance_id": { "type": "string" },
    "input": { "type": ["object", "null"] }
  },
  "additionalProperties": false,
  "$defs": {
    "payload": {
      "type": "object",
      "required": ["type", "value"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "value": {}
      },
      "additionalProperties": false,
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "timer" } } },
          "then": { "properties": { "value": { "$ref": "#/$defs/timer" } } }
        },
        {
          "if": { "properties": { "type": { "const": "cron" } } },
          "then": { "properties": { "value": { "$ref": "#/$defs/cron" } } }
        },
        {
          "if": { "properties": { "type": { "const": "delay" } } },
          "then": { "properties": { "value": { "$ref": "#/$defs/delay" } } }
        },
        {
          "if": { "properties": { "type": { "const": "event" } } },
          "then": { "properties": { "value": { "$ref": "#/$defs/event" } } }
        }
      ]
    },
    "timer": {
      "type": "object",
      "required": ["start_at", "interval"],
      "properties": {
        "start_at": { "type": "string", "format": "date-time" },
        "interval": { "type": "integer", "minimum": 1 }
      }
    },
    "cron": {
      "type": "object",
      "required": ["start_at", "cron_expression"],
      "properties": {
        "start_at": { "type": "string", "format": "date-time" },
        "cron_expression": { "type": "string", "minLength": 1 }
      }
    },
    "delay": {
      "type": "object",
      "required": ["resume_at"],
      "properties": {
        "resume_at": { "type": "string", "format": "date-time" }
      }
    },
    "event": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 }
      }
    }
  }
}`

func compileMessageSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(messageSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal message schema: %w", err)
	}
	if err := c.AddResource(messageSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add message schema resource: %w", err)
	}
	compiled, err := c.Compile(messageSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile message schema: %w", err)
	}
	return compiled, nil
}

// toValidationError converts a jsonschema.ValidationError into a
// WaypointError listing every violation with its location.
func toValidationError(err error) *schema.WaypointError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "resume message has %d violations", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
