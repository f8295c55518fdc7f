package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSON Schemas for the four structured response contracts. These are sent
// to the reasoner as response_format and used locally for validation.

const outlineSchemaJSON = `{
  "name": "episode_outline",
  "strict": true,
  "schema": {
    "type": "object",
    "required": ["episode_title", "segments"],
    "additionalProperties": false,
    "properties": {
      "episode_title": {"type": "string", "minLength": 1},
      "segments": {
        "type": "array",
        "minItems": 3,
        "maxItems": 12,
        "items": {
          "type": "object",
          "required": ["type", "title", "duration_target_s", "key_points"],
          "additionalProperties": false,
          "properties": {
            "type": {"type": "string", "enum": ["intro", "core", "deep_dive", "takeaways", "methods", "results", "ad_break", "outro", "transition"]},
            "title": {"type": "string", "minLength": 1},
            "description": {"type": "string"},
            "duration_target_s": {"type": "number", "exclusiveMinimum": 0},
            "key_points": {"type": "array", "items": {"type": "string"}},
            "conversation_starters": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    }
  }
}`

const segmentSchemaJSON = `{
  "name": "segment_script",
  "strict": true,
  "schema": {
    "type": "object",
    "required": ["lines"],
    "additionalProperties": false,
    "properties": {
      "lines": {
        "type": "array",
        "minItems": 1,
        "items": {
          "type": "object",
          "required": ["speaker", "text"],
          "additionalProperties": false,
          "properties": {
            "speaker": {"type": "string", "enum": ["host1", "host2", "narrator"]},
            "text": {"type": "string", "minLength": 1},
            "emotion": {"type": "string", "enum": ["neutral", "excited", "curious", "skeptical", "thoughtful", "amused"]},
            "citations": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    }
  }
}`

const factcheckSchemaJSON = `{
  "name": "factcheck_verdict",
  "strict": true,
  "schema": {
    "type": "object",
    "required": ["accuracy_score", "line_verdicts"],
    "additionalProperties": false,
    "properties": {
      "accuracy_score": {"type": "number", "minimum": 0, "maximum": 1},
      "line_verdicts": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["line_index", "verified"],
          "additionalProperties": false,
          "properties": {
            "line_index": {"type": "integer", "minimum": 0},
            "verified": {"type": "boolean"},
            "issue": {"type": "string"}
          }
        }
      },
      "feedback": {"type": "string"}
    }
  }
}`

const rewriteSchemaJSON = `{
  "name": "line_rewrites",
  "strict": true,
  "schema": {
    "type": "object",
    "required": ["lines"],
    "additionalProperties": false,
    "properties": {
      "lines": {
        "type": "array",
        "minItems": 1,
        "items": {
          "type": "object",
          "required": ["line_index", "text"],
          "additionalProperties": false,
          "properties": {
            "line_index": {"type": "integer", "minimum": 0},
            "text": {"type": "string", "minLength": 1},
            "emotion": {"type": "string", "enum": ["neutral", "excited", "curious", "skeptical", "thoughtful", "amused"]},
            "citations": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    }
  }
}`

// SchemaFor returns the wrapped JSON schema for a contract kind.
func SchemaFor(kind Kind) json.RawMessage {
	switch kind {
	case KindOutline:
		return json.RawMessage(outlineSchemaJSON)
	case KindSegment:
		return json.RawMessage(segmentSchemaJSON)
	case KindFactcheck:
		return json.RawMessage(factcheckSchemaJSON)
	case KindRewrite:
		return json.RawMessage(rewriteSchemaJSON)
	default:
		return nil
	}
}

// validateJSON validates parsed JSON against the canonical schema.
func validateJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	coreSchema, err := extractValidationSchema(schemaRaw)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(coreSchema)); err != nil {
		return fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile structured schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

// extractValidationSchema unwraps the {"name","strict","schema":{...}}
// wrapper used for response_format payloads.
func extractValidationSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var root any
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		return nil, fmt.Errorf("invalid structured schema JSON: %w", err)
	}

	if rootMap, ok := root.(map[string]any); ok {
		if inner, ok := rootMap["schema"]; ok {
			b, err := json.Marshal(inner)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize inner schema: %w", err)
			}
			return b, nil
		}
	}

	// Assume raw schema document.
	return schemaRaw, nil
}
