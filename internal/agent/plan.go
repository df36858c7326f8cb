package agent

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// planDoc is the JSON plan produced by the plan-mode first pass.
type planDoc struct {
	Goal  string     `json:"goal"`
	Steps []planStep `json:"steps"`
}

type planStep struct {
	Step        int            `json:"step"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params"`
	Description string         `json:"description"`
	Phase       string         `json:"phase"`
}

// parsePlan decodes a model-produced plan, repairing almost-JSON before
// giving up. A nil error guarantees at least one step.
func parsePlan(raw string) (*planDoc, error) {
	text := extractJSON(raw)
	if text == "" {
		return nil, fmt.Errorf("plan response contains no JSON")
	}

	var doc planDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
			return nil, fmt.Errorf("parse repaired plan: %w", err)
		}
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	return &doc, nil
}
