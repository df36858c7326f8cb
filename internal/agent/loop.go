package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools"
)

const (
	defaultMaxSteps = 10

	// highConfidence is the confidence above which the loop stops and
	// answers from the results gathered so far, even with steps pending.
	highConfidence = 0.9
)

// StopReason explains why a loop run ended.
type StopReason string

const (
	StopTerminalTool   StopReason = "terminal_tool"
	StopHighConfidence StopReason = "high_confidence"
	StopPlanComplete   StopReason = "plan_complete"
	StopMaxSteps       StopReason = "max_steps"
	StopDelegated      StopReason = "delegated"
	StopCancelled      StopReason = "cancelled"
	StopDeadline       StopReason = "deadline"
)

// LoopConfig bounds a loop run.
type LoopConfig struct {
	MaxSteps     int
	TaskDeadline time.Duration
}

// LoopResult is the outcome of one loop run. Answer is set only when a
// terminal tool produced one; otherwise the caller synthesizes the answer
// from the recorded tool results.
type LoopResult struct {
	Answer          string
	StopReason      StopReason
	Intent          Intent
	History         []HistoryStep
	StepsCompleted  int
	SuccessfulSteps int
	ToolsUsed       []string
	Confidence      float64
	Elapsed         time.Duration
}

// TraceFunc receives each HistoryStep as it is recorded.
type TraceFunc func(HistoryStep)

// Loop is the bounded Reason-Act-Observe-Evaluate state machine.
type Loop struct {
	engine *ThoughtEngine
	tools  tools.Executor
	cfg    LoopConfig
	logger logging.Logger
}

// NewLoop builds a loop over the given engine and tool executor.
func NewLoop(engine *ThoughtEngine, executor tools.Executor, cfg LoopConfig) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	return &Loop{
		engine: engine,
		tools:  executor,
		cfg:    cfg,
		logger: logging.NewComponentLogger("agent.loop"),
	}
}

// recordFunc appends a HistoryStep to memory and mirrors it to the trace.
type recordFunc func(step int, phase Phase, thought Thought, action *Action, eval *Evaluation)

func recorder(memory *ShortTermMemory, trace TraceFunc) recordFunc {
	return func(step int, phase Phase, thought Thought, action *Action, eval *Evaluation) {
		hs := HistoryStep{
			Step:       step,
			Phase:      phase,
			Thought:    thought,
			Action:     action,
			Evaluation: eval,
			Timestamp:  time.Now(),
		}
		memory.Record(hs)
		if trace != nil {
			trace(hs)
		}
	}
}

// Run drives the loop for one task. trace may be nil. Tool failures and
// reasoning fallbacks never abort the run; only cancellation, deadline
// expiry, step exhaustion or completion end it.
func (l *Loop) Run(ctx context.Context, userInput string, trace TraceFunc) *LoopResult {
	start := time.Now()
	memory := NewShortTermMemory(l.cfg.MaxSteps)
	record := recorder(memory, trace)

	// Step 0: understand, then plan.
	analysis, intent, ents := l.engine.AnalyzeTask(ctx, userInput)
	record(0, PhaseUnderstanding, analysis, nil, nil)

	planning := l.engine.PlanActions(intent, ents)
	record(0, PhasePlanning, planning, nil, nil)

	return l.drive(ctx, start, intent, planning, memory, record)
}

// RunPlanned drives the loop over a caller-supplied plan, bypassing task
// analysis. Plan mode uses it to execute model-generated plans under the
// same action lifecycle, dedup and bounds as Run.
func (l *Loop) RunPlanned(ctx context.Context, goal string, steps []PlannedStep, trace TraceFunc) *LoopResult {
	start := time.Now()
	memory := NewShortTermMemory(l.cfg.MaxSteps)
	record := recorder(memory, trace)

	content := fmt.Sprintf("计划目标：%s，共%d步", goal, len(steps))
	planning := newThought(ThoughtPlanning, PhasePlanning, content, 0.7)
	planning.Decision = &Decision{Steps: steps}
	record(0, PhasePlanning, planning, nil, nil)

	return l.drive(ctx, start, "", planning, memory, record)
}

func (l *Loop) drive(ctx context.Context, start time.Time, intent Intent, planning Thought, memory *ShortTermMemory, record recordFunc) *LoopResult {
	var deadline time.Time
	if l.cfg.TaskDeadline > 0 {
		deadline = start.Add(l.cfg.TaskDeadline)
	}
	confidence := planning.Confidence

	result := &LoopResult{Intent: intent}
	finish := func(reason StopReason) *LoopResult {
		result.StopReason = reason
		result.History = memory.View()
		result.SuccessfulSteps = memory.SuccessfulSteps()
		result.ToolsUsed = memory.ToolsUsed()
		result.Confidence = confidence
		result.Elapsed = time.Since(start)
		l.logger.Info("loop done: reason=%s steps=%d tools=%v", reason, result.StepsCompleted, result.ToolsUsed)
		return result
	}

	pending := append([]PlannedStep(nil), planning.Decision.Steps...)
	if len(pending) == 0 {
		decision := l.engine.Decide("无工具步骤，交由模型直接回答", confidence)
		record(1, PhaseGeneration, decision, nil, nil)
		return finish(StopDelegated)
	}

	attempted := make(map[string]bool)

	for step := 1; ; step++ {
		if ctx.Err() != nil {
			l.logger.Warn("loop cancelled at step %d", step)
			return finish(StopCancelled)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.logger.Warn("task deadline expired at step %d", step)
			return finish(StopDeadline)
		}
		if result.StepsCompleted >= l.cfg.MaxSteps {
			return finish(StopMaxSteps)
		}

		obs := Observation{
			Step:       step,
			History:    memory.View(),
			LastAction: memory.LastAction(),
			Elapsed:    time.Since(start),
		}

		// Stop checks against the prior step's outcome. Terminal success
		// wins over high confidence when both hold on the same step.
		if last := obs.LastAction; last != nil && last.Status == ActionSuccess && l.isTerminal(last.ToolName) {
			decision := l.engine.Decide("终结工具已成功", confidence)
			record(step, PhaseGeneration, decision, nil, nil)
			return finish(StopTerminalTool)
		}
		if confidence > highConfidence {
			decision := l.engine.Decide("置信度已足够", confidence)
			record(step, PhaseGeneration, decision, nil, nil)
			return finish(StopHighConfidence)
		}

		// Think.
		var next *PlannedStep
		if len(pending) > 0 {
			next = &pending[0]
		}
		thought := l.engine.Infer(obs, next, confidence)

		// Act.
		var action *Action
		if next != nil {
			pending = pending[1:]
			action = NewAction(next.Tool, next.Params)
			key := callKey(next.Tool, next.Params)
			if attempted[key] {
				_ = action.Skip("重复调用已合并")
			} else {
				attempted[key] = true
				l.execute(ctx, action)
				if action.Status == ActionSuccess && l.isTerminal(action.ToolName) {
					result.Answer = terminalAnswer(action.Result)
				}
			}
		} else {
			action = NewAction("", nil)
			_ = action.Skip("本步无需调用工具")
		}

		// Evaluate and record.
		eval := Evaluate(action)
		confidence = clampConfidence(confidence + eval.ConfidenceDelta)
		record(step, PhaseExecution, thought, action, eval)
		result.StepsCompleted++

		// Out of planned work with nothing terminal: decide and finish.
		if len(pending) == 0 && !(action.Status == ActionSuccess && l.isTerminal(action.ToolName)) {
			if result.StepsCompleted >= l.cfg.MaxSteps {
				return finish(StopMaxSteps)
			}
			reason, stop := "计划步骤已执行完毕", StopPlanComplete
			if confidence > highConfidence {
				reason, stop = "置信度已足够", StopHighConfidence
			}
			if action.Status == ActionFailed || action.Status == ActionTimeout {
				reason = "计划执行受阻，基于已有结果回答"
			}
			decision := l.engine.Decide(reason, confidence)
			record(step+1, PhaseGeneration, decision, nil, nil)
			return finish(stop)
		}
	}
}

func (l *Loop) isTerminal(name string) bool {
	d, ok := l.tools.Get(name)
	return ok && d.Terminal
}

// execute runs one action through the registry, mapping the result shape
// onto the action state machine.
func (l *Loop) execute(ctx context.Context, a *Action) {
	_ = a.Start(time.Now())
	res := l.tools.Execute(ctx, a.ToolName, a.Params)

	status := ActionSuccess
	if !res.OK {
		status = ActionFailed
		if res.ErrorKind == tools.ErrKindTimeout {
			status = ActionTimeout
		}
	}
	a.Result = res.Data
	a.Error = res.Error
	a.ErrorKind = res.ErrorKind
	_ = a.Finish(status, time.Now())
}

// terminalAnswer extracts the answer text carried by a terminal tool result.
func terminalAnswer(result any) string {
	if m, ok := result.(map[string]any); ok {
		if s, ok := m["answer"].(string); ok {
			return s
		}
	}
	if s, ok := result.(string); ok {
		return s
	}
	return ""
}

// callKey identifies a (tool, params) pair. json.Marshal sorts map keys at
// every level, so the key is deterministic.
func callKey(tool string, params map[string]any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%d", tool, len(params))
	}
	return fmt.Sprintf("%s:%s", tool, data)
}
