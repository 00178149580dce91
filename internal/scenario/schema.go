// Package scenario validates scenario definition documents before they are
// persisted. Definitions arrive as JSON (or YAML converted to JSON at the
// CLI) and are checked against an embedded JSON schema, so malformed
// scripts are rejected at authoring time instead of failing mid-run.
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "suite_id": {"type": "string"},
    "active": {"type": "boolean"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["utterance"],
        "properties": {
          "utterance": {"type": "string", "minLength": 1},
          "expected_command_type": {"type": "string"},
          "expected_response": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var scenarioSchema = jsonschema.MustCompileString("scenario.json", schemaJSON)

// Definition is the wire form of a scenario document.
type Definition struct {
	Name    string `json:"name"`
	SuiteID string `json:"suite_id,omitempty"`
	Active  *bool  `json:"active,omitempty"`
	Steps   []struct {
		Utterance           string `json:"utterance"`
		ExpectedCommandType string `json:"expected_command_type,omitempty"`
		ExpectedResponse    string `json:"expected_response,omitempty"`
	} `json:"steps"`
}

// Parse validates a raw definition document against the schema and returns
// the ordered script steps. Step order is assigned from document order,
// starting at 1.
func Parse(raw []byte) (*Definition, []store.ScriptStep, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("scenario definition is not valid JSON: %w", err)
	}

	if err := scenarioSchema.Validate(doc); err != nil {
		return nil, nil, fmt.Errorf("scenario definition rejected: %w", err)
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, nil, err
	}

	steps := make([]store.ScriptStep, 0, len(def.Steps))
	for i, s := range def.Steps {
		if strings.TrimSpace(s.Utterance) == "" {
			return nil, nil, fmt.Errorf("step %d has a blank utterance", i+1)
		}
		steps = append(steps, store.ScriptStep{
			Order:               i + 1,
			Utterance:           s.Utterance,
			ExpectedCommandType: s.ExpectedCommandType,
			ExpectedResponse:    s.ExpectedResponse,
		})
	}

	return &def, steps, nil
}
