package agent

// ShortTermMemory is the bounded per-task record of loop iterations. It is
// owned by a single loop run and never shared across tasks.
type ShortTermMemory struct {
	steps    []HistoryStep
	maxSteps int
}

// NewShortTermMemory builds a memory bounded to maxSteps records.
func NewShortTermMemory(maxSteps int) *ShortTermMemory {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &ShortTermMemory{maxSteps: maxSteps}
}

// Record appends a step. The bound allows the prologue and closing decision
// records plus one record per action iteration; the loop's own step limit
// keeps appends beyond it unreachable in practice.
func (m *ShortTermMemory) Record(step HistoryStep) {
	if len(m.steps) >= m.maxSteps+3 {
		return
	}
	m.steps = append(m.steps, step)
}

// View returns a read-only copy of the recorded steps.
func (m *ShortTermMemory) View() []HistoryStep {
	return append([]HistoryStep(nil), m.steps...)
}

// LastAction returns the most recent non-nil action, or nil.
func (m *ShortTermMemory) LastAction() *Action {
	for i := len(m.steps) - 1; i >= 0; i-- {
		if m.steps[i].Action != nil {
			return m.steps[i].Action
		}
	}
	return nil
}

// StepsCompleted returns the number of recorded iterations.
func (m *ShortTermMemory) StepsCompleted() int {
	return len(m.steps)
}

// SuccessfulSteps counts steps whose action succeeded.
func (m *ShortTermMemory) SuccessfulSteps() int {
	n := 0
	for _, s := range m.steps {
		if s.Action != nil && s.Action.Status == ActionSuccess {
			n++
		}
	}
	return n
}

// ToolsUsed returns the distinct tools actually invoked, in first-use order.
// Skipped actions do not count as use.
func (m *ShortTermMemory) ToolsUsed() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range m.steps {
		a := s.Action
		if a == nil || a.Status == ActionSkipped || a.ToolName == "" {
			continue
		}
		if !seen[a.ToolName] {
			seen[a.ToolName] = true
			out = append(out, a.ToolName)
		}
	}
	return out
}
