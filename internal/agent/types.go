// Package agent implements the reasoning core: a bounded Reason-Act-
// Observe-Evaluate loop over the tool registry, plus the mode dispatcher
// that turns user requests into ordered chunk streams.
package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ThoughtType classifies a reasoning artifact.
type ThoughtType string

const (
	ThoughtAnalysis   ThoughtType = "ANALYSIS"
	ThoughtPlanning   ThoughtType = "PLANNING"
	ThoughtInference  ThoughtType = "INFERENCE"
	ThoughtReflection ThoughtType = "REFLECTION"
	ThoughtDecision   ThoughtType = "DECISION"
)

// Phase labels the stage of a loop iteration for trace rendering.
type Phase string

const (
	PhaseUnderstanding Phase = "UNDERSTANDING"
	PhasePlanning      Phase = "PLANNING"
	PhaseExecution     Phase = "EXECUTION"
	PhaseGeneration    Phase = "GENERATION"
)

// Intent is the coarse task classification produced by analysis.
type Intent string

const (
	IntentCityRecommendation Intent = "city_recommendation"
	IntentAttractionQuery    Intent = "attraction_query"
	IntentRoutePlanning      Intent = "route_planning"
	IntentBudgetQuery        Intent = "budget_query"
	IntentPreferenceUpdate   Intent = "preference_update"
	IntentGeneralChat        Intent = "general_chat"
)

// PlannedStep is one proposed tool invocation.
type PlannedStep struct {
	Tool        string         `json:"tool"`
	Params      map[string]any `json:"params,omitempty"`
	Description string         `json:"description,omitempty"`
}

// Decision is the structured payload a thought may carry: the intent it
// serves and the ordered steps proposed to satisfy it.
type Decision struct {
	Intent Intent        `json:"intent,omitempty"`
	Steps  []PlannedStep `json:"steps,omitempty"`
	Ready  bool          `json:"ready,omitempty"`
}

// Empty reports whether the decision proposes nothing actionable.
func (d *Decision) Empty() bool {
	return d == nil || (len(d.Steps) == 0 && !d.Ready)
}

// Thought is one reasoning artifact. Immutable after emission.
type Thought struct {
	ID         string      `json:"id"`
	Type       ThoughtType `json:"type"`
	Phase      Phase       `json:"phase"`
	Content    string      `json:"content"`
	Confidence float64     `json:"confidence"`
	Decision   *Decision   `json:"decision,omitempty"`
}

func newThought(t ThoughtType, phase Phase, content string, confidence float64) Thought {
	return Thought{
		ID:         uuid.NewString(),
		Type:       t,
		Phase:      phase,
		Content:    content,
		Confidence: confidence,
	}
}

// ActionStatus is the lifecycle state of a tool invocation.
type ActionStatus string

const (
	ActionPending ActionStatus = "PENDING"
	ActionRunning ActionStatus = "RUNNING"
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
	ActionTimeout ActionStatus = "TIMEOUT"
	ActionSkipped ActionStatus = "SKIPPED"
)

// Action records one tool invocation. Transitions:
// PENDING → RUNNING → {SUCCESS, FAILED, TIMEOUT}; PENDING → SKIPPED.
type Action struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	Params    map[string]any `json:"params,omitempty"`
	Status    ActionStatus   `json:"status"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	EndedAt   time.Time      `json:"ended_at,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// NewAction builds a PENDING action for the given tool call.
func NewAction(tool string, params map[string]any) *Action {
	return &Action{
		ID:       uuid.NewString(),
		ToolName: tool,
		Params:   params,
		Status:   ActionPending,
	}
}

// Start transitions PENDING → RUNNING.
func (a *Action) Start(now time.Time) error {
	if a.Status != ActionPending {
		return fmt.Errorf("action %s: cannot start from %s", a.ID, a.Status)
	}
	a.Status = ActionRunning
	a.StartedAt = now
	return nil
}

// Finish transitions RUNNING to a terminal state.
func (a *Action) Finish(status ActionStatus, now time.Time) error {
	if a.Status != ActionRunning {
		return fmt.Errorf("action %s: cannot finish from %s", a.ID, a.Status)
	}
	switch status {
	case ActionSuccess, ActionFailed, ActionTimeout:
	default:
		return fmt.Errorf("action %s: %s is not a terminal running state", a.ID, status)
	}
	a.Status = status
	a.EndedAt = now
	a.Duration = now.Sub(a.StartedAt)
	return nil
}

// Skip transitions PENDING → SKIPPED.
func (a *Action) Skip(reason string) error {
	if a.Status != ActionPending {
		return fmt.Errorf("action %s: cannot skip from %s", a.ID, a.Status)
	}
	a.Status = ActionSkipped
	a.Error = reason
	return nil
}

// Terminal reports whether the action reached a final state.
func (a *Action) Terminal() bool {
	switch a.Status {
	case ActionSuccess, ActionFailed, ActionTimeout, ActionSkipped:
		return true
	}
	return false
}

// Evaluation is the assessment of one action. Derived, never mutating.
type Evaluation struct {
	Success         bool          `json:"success"`
	Duration        time.Duration `json:"duration"`
	HasResult       bool          `json:"has_result"`
	ConfidenceDelta float64       `json:"confidence_delta"`
}

// HistoryStep is the append-only record of one loop iteration.
type HistoryStep struct {
	Step       int         `json:"step"`
	Phase      Phase       `json:"phase"`
	Thought    Thought     `json:"thought"`
	Action     *Action     `json:"action,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Observation is the snapshot fed into each think step.
type Observation struct {
	Step       int
	History    []HistoryStep
	LastAction *Action
	Elapsed    time.Duration
}
