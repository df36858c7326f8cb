package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools"
)

// Execution modes.
const (
	ModeDirect = "direct"
	ModeReact  = "react"
	ModePlan   = "plan"
)

const directSystemPrompt = `你是一位专业的旅行助手，熟悉国内各大城市的景点、美食和行程安排。
用友好、简洁的中文回答用户的问题。`

const synthesisSystemPrompt = `你是一位专业的旅行助手。下面提供了为回答用户问题而调用工具得到的结果。
请基于这些结果，用友好、结构清晰的中文给出最终回答。不要提及工具调用过程本身。`

const planSystemPrompt = `你是旅行助手的规划模块。根据用户需求制定工具调用计划，只输出JSON，格式:
{"goal": "目标描述", "steps": [{"step": 1, "action": "工具名", "params": {}, "description": "说明", "phase": "阶段名"}]}
可用工具:
%s
最后一步应使用 final_answer 提交结论。用户需求: %s`

// Turn is one user request handed to the dispatcher.
type Turn struct {
	UserInput string
	ModelID   string
	Mode      string
	MaxSteps  int
	History   []llm.Message
}

// TurnResult is the buffered outcome of a dispatched turn.
type TurnResult struct {
	Answer    string
	Reasoning string
	Success   bool
	Error     string
	History   []HistoryStep
	Stats     TurnStats
}

// DispatcherConfig carries the per-process defaults.
type DispatcherConfig struct {
	MaxSteps    int
	TaskTimeout time.Duration
	DefaultMode string
}

// ClientProvider resolves a model id to a provider client. *llm.Manager
// satisfies it.
type ClientProvider interface {
	ClientFor(modelID string) (llm.Client, error)
}

// Dispatcher selects and runs one of the three execution strategies,
// owning the emit contract: exactly one done per turn, error before done
// on failure.
type Dispatcher struct {
	models    ClientProvider
	tools     tools.Executor
	cityNames []string
	cfg       DispatcherConfig
	logger    logging.Logger
}

// NewDispatcher wires the dispatcher. cityNames feeds the thought engine's
// entity extraction.
func NewDispatcher(models ClientProvider, executor tools.Executor, cityNames []string, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeReact
	}
	return &Dispatcher{
		models:    models,
		tools:     executor,
		cityNames: append([]string(nil), cityNames...),
		cfg:       cfg,
		logger:    logging.NewComponentLogger("agent.dispatcher"),
	}
}

// Run executes one turn, emitting ordered chunks through emit and returning
// the buffered result. emit must be non-nil.
func (d *Dispatcher) Run(ctx context.Context, turn Turn, emit EmitFunc) *TurnResult {
	start := time.Now()
	mode := strings.ToLower(strings.TrimSpace(turn.Mode))
	if mode == "" {
		mode = d.cfg.DefaultMode
	}

	fail := func(msg string) *TurnResult {
		emit(Chunk{Type: ChunkError, Text: msg})
		stats := &TurnStats{Success: false, Mode: mode, DurationMillis: time.Since(start).Milliseconds()}
		emit(Chunk{Type: ChunkDone, Stats: stats})
		return &TurnResult{Success: false, Error: msg, Stats: *stats}
	}

	if strings.TrimSpace(turn.UserInput) == "" {
		return fail("用户输入不能为空")
	}

	client, err := d.models.ClientFor(turn.ModelID)
	if err != nil {
		return fail(fmt.Sprintf("模型不可用: %v", err))
	}

	d.logger.Info("dispatch mode=%s model=%s", mode, client.Model())
	switch mode {
	case ModeDirect:
		return d.runDirect(ctx, client, turn, emit, start)
	case ModePlan:
		return d.runPlan(ctx, client, turn, emit, start)
	default:
		return d.runReact(ctx, client, turn, emit, start, ModeReact)
	}
}

// runDirect is a single streaming completion with no tools and no trace.
func (d *Dispatcher) runDirect(ctx context.Context, client llm.Client, turn Turn, emit EmitFunc, start time.Time) *TurnResult {
	messages := make([]llm.Message, 0, len(turn.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: directSystemPrompt})
	messages = append(messages, turn.History...)
	messages = append(messages, llm.Message{Role: "user", Content: turn.UserInput})

	emit(Chunk{Type: ChunkAnswerStart})
	resp, err := client.CompleteStream(ctx, llm.CompletionRequest{Messages: messages}, func(token string) {
		emit(Chunk{Type: ChunkAnswer, Text: token})
	})
	if err != nil {
		msg := fmt.Sprintf("模型调用失败: %v", err)
		emit(Chunk{Type: ChunkError, Text: msg})
		stats := &TurnStats{Success: false, Mode: ModeDirect, DurationMillis: time.Since(start).Milliseconds()}
		emit(Chunk{Type: ChunkDone, Stats: stats})
		return &TurnResult{Success: false, Error: msg, Stats: *stats}
	}

	stats := &TurnStats{Success: true, Mode: ModeDirect, ToolsUsed: []string{}, DurationMillis: time.Since(start).Milliseconds()}
	emit(Chunk{Type: ChunkDone, Stats: stats})
	return &TurnResult{Answer: resp.Content, Success: true, Stats: *stats}
}

// runReact drives the loop, streams its trace, then synthesizes the answer
// from collected tool results.
func (d *Dispatcher) runReact(ctx context.Context, client llm.Client, turn Turn, emit EmitFunc, start time.Time, mode string) *TurnResult {
	maxSteps := turn.MaxSteps
	if maxSteps <= 0 {
		maxSteps = d.cfg.MaxSteps
	}
	engine := NewThoughtEngine(client, d.cityNames)
	loop := NewLoop(engine, d.tools, LoopConfig{MaxSteps: maxSteps, TaskDeadline: d.cfg.TaskTimeout})

	var reasoning strings.Builder
	emit(Chunk{Type: ChunkReasoningStart})
	loopRes := loop.Run(ctx, turn.UserInput, func(hs HistoryStep) {
		text := FormatStep(hs)
		reasoning.WriteString(text)
		emit(Chunk{Type: ChunkReasoning, Text: text})
	})
	emit(Chunk{Type: ChunkReasoningEnd})

	answer, err := d.streamAnswer(ctx, client, turn, loopRes, emit)
	stats := &TurnStats{
		Success:         true,
		StepsCompleted:  loopRes.StepsCompleted,
		SuccessfulSteps: loopRes.SuccessfulSteps,
		ToolsUsed:       toolsUsedOrEmpty(loopRes.ToolsUsed),
		DurationMillis:  time.Since(start).Milliseconds(),
		Mode:            mode,
	}
	result := &TurnResult{
		Answer:    answer,
		Reasoning: reasoning.String(),
		History:   loopRes.History,
		Success:   true,
	}
	if err != nil && answer == "" {
		msg := fmt.Sprintf("生成回答失败: %v", err)
		emit(Chunk{Type: ChunkError, Text: msg})
		stats.Success = false
		result.Success = false
		result.Error = msg
	}
	emit(Chunk{Type: ChunkDone, Stats: stats})
	result.Stats = *stats
	return result
}

// streamAnswer produces the user-facing answer as a token stream. When the
// synthesis call fails but a terminal tool already produced an answer, that
// answer is emitted instead.
func (d *Dispatcher) streamAnswer(ctx context.Context, client llm.Client, turn Turn, loopRes *LoopResult, emit EmitFunc) (string, error) {
	messages := make([]llm.Message, 0, len(turn.History)+3)
	messages = append(messages, llm.Message{Role: "system", Content: synthesisSystemPrompt})
	messages = append(messages, turn.History...)
	messages = append(messages, llm.Message{Role: "user", Content: turn.UserInput})
	messages = append(messages, llm.Message{Role: "user", Content: "工具结果:\n" + renderToolResults(loopRes.History)})

	emit(Chunk{Type: ChunkAnswerStart})
	resp, err := client.CompleteStream(ctx, llm.CompletionRequest{Messages: messages}, func(token string) {
		emit(Chunk{Type: ChunkAnswer, Text: token})
	})
	if err == nil && resp.Content != "" {
		return resp.Content, nil
	}

	if loopRes.Answer != "" {
		emit(Chunk{Type: ChunkAnswer, Text: loopRes.Answer})
		return loopRes.Answer, nil
	}
	if err == nil {
		err = fmt.Errorf("empty completion")
	}
	d.logger.Warn("answer synthesis failed: %v", err)
	return "", err
}

// renderToolResults serializes successful action results for the synthesis
// prompt.
func renderToolResults(history []HistoryStep) string {
	var sb strings.Builder
	for _, hs := range history {
		a := hs.Action
		if a == nil || a.Status == ActionSkipped || a.ToolName == "" {
			continue
		}
		if a.Status != ActionSuccess {
			fmt.Fprintf(&sb, "- %s: 失败（%s）\n", a.ToolName, a.Error)
			continue
		}
		data, err := json.Marshal(a.Result)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", a.ToolName, data)
	}
	if sb.Len() == 0 {
		return "（本轮未调用工具）"
	}
	return sb.String()
}

// runPlan asks the model for a JSON plan, executes it step by step without
// intermediate reasoning, then synthesizes the answer. Unparseable plans
// fall back to react mode.
func (d *Dispatcher) runPlan(ctx context.Context, client llm.Client, turn Turn, emit EmitFunc, start time.Time) *TurnResult {
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf(planSystemPrompt, d.describeTools(), turn.UserInput),
		}},
		Temperature: 0.2,
	})
	if err != nil {
		d.logger.Warn("plan call failed, falling back to react: %v", err)
		return d.runReact(ctx, client, turn, emit, start, ModePlan)
	}
	doc, err := parsePlan(resp.Content)
	if err != nil {
		d.logger.Warn("plan parse failed, falling back to react: %v", err)
		return d.runReact(ctx, client, turn, emit, start, ModePlan)
	}

	maxSteps := turn.MaxSteps
	if maxSteps <= 0 {
		maxSteps = d.cfg.MaxSteps
	}
	steps := make([]PlannedStep, 0, len(doc.Steps))
	for _, s := range doc.Steps {
		steps = append(steps, PlannedStep{Tool: s.Action, Params: s.Params, Description: s.Description})
	}

	engine := NewThoughtEngine(client, d.cityNames)
	loop := NewLoop(engine, d.tools, LoopConfig{MaxSteps: maxSteps, TaskDeadline: d.cfg.TaskTimeout})

	var reasoning strings.Builder
	emit(Chunk{Type: ChunkReasoningStart})
	marker := fmt.Sprintf("%s\n【规划阶段】目标：%s，共%d步\n", traceRule, doc.Goal, len(doc.Steps))
	reasoning.WriteString(marker)
	emit(Chunk{Type: ChunkReasoning, Text: marker})

	loopRes := loop.RunPlanned(ctx, doc.Goal, steps, func(hs HistoryStep) {
		text := FormatStep(hs)
		reasoning.WriteString(text)
		emit(Chunk{Type: ChunkReasoning, Text: text})
	})
	emit(Chunk{Type: ChunkReasoningEnd})

	answer, synthErr := d.streamAnswer(ctx, client, turn, loopRes, emit)

	stats := &TurnStats{
		Success:         true,
		StepsCompleted:  loopRes.StepsCompleted,
		SuccessfulSteps: loopRes.SuccessfulSteps,
		ToolsUsed:       toolsUsedOrEmpty(loopRes.ToolsUsed),
		DurationMillis:  time.Since(start).Milliseconds(),
		Mode:            ModePlan,
	}
	result := &TurnResult{
		Answer:    answer,
		Reasoning: reasoning.String(),
		History:   loopRes.History,
		Success:   true,
	}
	if synthErr != nil && answer == "" {
		msg := fmt.Sprintf("生成回答失败: %v", synthErr)
		emit(Chunk{Type: ChunkError, Text: msg})
		stats.Success = false
		result.Success = false
		result.Error = msg
	}
	emit(Chunk{Type: ChunkDone, Stats: stats})
	result.Stats = *stats
	return result
}

func (d *Dispatcher) describeTools() string {
	var sb strings.Builder
	for _, desc := range d.tools.List() {
		fmt.Fprintf(&sb, "- %s: %s\n", desc.Name, desc.Description)
	}
	return sb.String()
}

func toolsUsedOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
