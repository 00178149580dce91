// Package validation holds the language-level verdict logic for
// conversation turns and the hydration step that bundles an execution with
// its resolved validation metadata.
package validation

import (
	"encoding/json"
	"strings"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/nlu"
	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
)

// StepVerdict details one turn's validation outcome. Serialized into the
// step's validation_details column.
type StepVerdict struct {
	Passed          bool   `json:"passed"`
	CommandMatched  bool   `json:"command_matched"`
	ResponseMatched bool   `json:"response_matched"`
	ExpectedCommand string `json:"expected_command,omitempty"`
	ActualCommand   string `json:"actual_command,omitempty"`
	ExpectedPhrase  string `json:"expected_phrase,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// EvaluateStep compares a provider response against the authored
// expectations for the turn. An expectation left empty always matches.
func EvaluateStep(step store.ScriptStep, resp *nlu.QueryResponse) StepVerdict {
	v := StepVerdict{
		CommandMatched:  true,
		ResponseMatched: true,
		ExpectedCommand: step.ExpectedCommandType,
		ActualCommand:   resp.CommandType,
		ExpectedPhrase:  step.ExpectedResponse,
	}

	if step.ExpectedCommandType != "" && !strings.EqualFold(step.ExpectedCommandType, resp.CommandType) {
		v.CommandMatched = false
		v.Reason = "command type mismatch"
	}

	if step.ExpectedResponse != "" &&
		!strings.Contains(strings.ToLower(resp.SpokenResponse), strings.ToLower(step.ExpectedResponse)) {
		v.ResponseMatched = false
		if v.Reason != "" {
			v.Reason += "; "
		}
		v.Reason += "expected phrase not in spoken response"
	}

	v.Passed = v.CommandMatched && v.ResponseMatched
	return v
}

// Details serializes the verdict for storage.
func (v StepVerdict) Details() json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
