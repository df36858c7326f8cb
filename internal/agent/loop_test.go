package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools/travel"
)

// travelExecutor builds a registry with the real travel toolset.
func travelExecutor(t *testing.T) *tools.Registry {
	t.Helper()
	idx, err := travel.LoadIndex("")
	require.NoError(t, err)
	reg := tools.NewRegistry()
	require.NoError(t, travel.NewToolset(idx).Register(reg))
	return reg
}

func newLoop(t *testing.T, reg tools.Executor, cfg LoopConfig) *Loop {
	t.Helper()
	return NewLoop(NewThoughtEngine(nil, []string{"北京", "西安", "成都"}), reg, cfg)
}

func TestLoopCityRecommendation(t *testing.T) {
	loop := newLoop(t, travelExecutor(t), LoopConfig{})

	var traced []HistoryStep
	res := loop.Run(context.Background(), "推荐适合美食游的城市", func(hs HistoryStep) {
		traced = append(traced, hs)
	})

	assert.Equal(t, IntentCityRecommendation, res.Intent)
	assert.Equal(t, StopPlanComplete, res.StopReason)
	assert.Equal(t, []string{"search_cities"}, res.ToolsUsed)
	assert.Equal(t, 1, res.StepsCompleted)
	assert.Equal(t, 1, res.SuccessfulSteps)

	// Trace mirrors history: UNDERSTANDING, PLANNING, EXECUTION, GENERATION.
	require.Len(t, traced, 4)
	assert.Equal(t, PhaseUnderstanding, traced[0].Phase)
	assert.Equal(t, PhasePlanning, traced[1].Phase)
	assert.Equal(t, PhaseExecution, traced[2].Phase)
	assert.Equal(t, PhaseGeneration, traced[3].Phase)

	// The search action sits on an INFERENCE step with the extracted interest.
	exec := traced[2]
	assert.Equal(t, ThoughtInference, exec.Thought.Type)
	require.NotNil(t, exec.Action)
	assert.Equal(t, "search_cities", exec.Action.ToolName)
	assert.Equal(t, []any{"美食"}, exec.Action.Params["interests"])
	assert.Equal(t, ActionSuccess, exec.Action.Status)
}

func TestLoopDelegatesWhenNoSteps(t *testing.T) {
	loop := newLoop(t, travelExecutor(t), LoopConfig{})
	res := loop.Run(context.Background(), "你好", nil)

	assert.Equal(t, StopDelegated, res.StopReason)
	assert.Zero(t, res.StepsCompleted)
	assert.Empty(t, res.ToolsUsed)
	require.Len(t, res.History, 3)
	assert.Equal(t, PhaseGeneration, res.History[2].Phase)
	assert.Equal(t, ThoughtDecision, res.History[2].Thought.Type)
}

func TestLoopStopsOnTerminalTool(t *testing.T) {
	reg := travelExecutor(t)
	engine := NewThoughtEngine(nil, nil)
	loop := NewLoop(engine, reg, LoopConfig{})

	// Drive the loop with a hand-built plan ending in the terminal tool.
	res := loop.RunPlanned(context.Background(), "推荐美食城市", []PlannedStep{
		{Tool: "search_cities", Params: map[string]any{"interests": []any{"美食"}}},
		{Tool: "final_answer", Params: map[string]any{"answer": "去成都"}},
	}, nil)

	assert.Equal(t, StopTerminalTool, res.StopReason)
	assert.Equal(t, "去成都", res.Answer)
	assert.Equal(t, 2, res.StepsCompleted)
	assert.Equal(t, []string{"search_cities", "final_answer"}, res.ToolsUsed)
}

func TestLoopDedupCoalescesToSkipped(t *testing.T) {
	reg := travelExecutor(t)
	loop := NewLoop(NewThoughtEngine(nil, nil), reg, LoopConfig{})

	res := loop.RunPlanned(context.Background(), "搜索城市", []PlannedStep{
		{Tool: "search_cities", Params: map[string]any{"interests": []any{"美食"}}},
		{Tool: "search_cities", Params: map[string]any{"interests": []any{"美食"}}},
	}, nil)

	var statuses []ActionStatus
	for _, hs := range res.History {
		if hs.Action != nil {
			statuses = append(statuses, hs.Action.Status)
		}
	}
	assert.Equal(t, []ActionStatus{ActionSuccess, ActionSkipped}, statuses)
	assert.Equal(t, []string{"search_cities"}, res.ToolsUsed, "the skipped duplicate is not a use")
}

func TestLoopReflectsAfterTimeoutWithoutRetry(t *testing.T) {
	reg := tools.NewRegistry()
	calls := map[string]int{}
	require.NoError(t, reg.Register(tools.Descriptor{
		Name:    "slow_tool",
		Timeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			calls["slow_tool"]++
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))
	require.NoError(t, reg.Register(tools.Descriptor{
		Name: "fallback_tool",
		Handler: func(context.Context, map[string]any) (any, error) {
			calls["fallback_tool"]++
			return "ok", nil
		},
	}))

	loop := NewLoop(NewThoughtEngine(nil, nil), reg, LoopConfig{})
	res := loop.RunPlanned(context.Background(), "慢工具兜底", []PlannedStep{
		{Tool: "slow_tool"},
		{Tool: "fallback_tool"},
	}, nil)

	require.Len(t, res.History, 4)
	assert.Equal(t, ActionTimeout, res.History[1].Action.Status)
	assert.Equal(t, ThoughtReflection, res.History[2].Thought.Type, "thought after a failure is a reflection")
	assert.Equal(t, ActionSuccess, res.History[2].Action.Status)

	assert.Equal(t, 1, calls["slow_tool"], "no retry of the timed-out call")
	assert.Equal(t, StopPlanComplete, res.StopReason)
}

func TestLoopMaxStepsIsHardStop(t *testing.T) {
	loop := newLoop(t, travelExecutor(t), LoopConfig{MaxSteps: 2})

	// Route planning proposes three tool steps; only two may run.
	res := loop.Run(context.Background(), "帮我规划北京3日游", nil)

	assert.Equal(t, StopMaxSteps, res.StopReason)
	assert.Equal(t, 2, res.StepsCompleted)
	assert.Equal(t, 2, res.SuccessfulSteps)
	assert.Equal(t, []string{"get_city_info", "query_attractions"}, res.ToolsUsed)
}

func TestLoopObservesCancellation(t *testing.T) {
	reg := tools.NewRegistry()
	started := make(chan struct{})
	require.NoError(t, reg.Register(tools.Descriptor{
		Name:    "blocking",
		Timeout: time.Minute,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	loop := NewLoop(NewThoughtEngine(nil, nil), reg, LoopConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res := loop.RunPlanned(ctx, "阻塞调用", []PlannedStep{
		{Tool: "blocking"},
		{Tool: "blocking", Params: map[string]any{"n": 2}},
	}, nil)

	assert.Equal(t, StopCancelled, res.StopReason)
	assert.NotEmpty(t, res.History, "partial history preserved")
}

func TestLoopUnknownToolRecordedAsFailed(t *testing.T) {
	loop := NewLoop(NewThoughtEngine(nil, nil), travelExecutor(t), LoopConfig{})

	res := loop.RunPlanned(context.Background(), "未知工具", []PlannedStep{
		{Tool: "no_such_tool"},
	}, nil)

	require.Len(t, res.History, 3)
	a := res.History[1].Action
	assert.Equal(t, ActionFailed, a.Status)
	assert.Equal(t, tools.ErrKindNotFound, a.ErrorKind)
	assert.Zero(t, res.SuccessfulSteps)
}

func TestLoopDeadlineExpiry(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Descriptor{
		Name:    "slowish",
		Timeout: time.Second,
		Handler: func(context.Context, map[string]any) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return "ok", nil
		},
	}))

	loop := NewLoop(NewThoughtEngine(nil, nil), reg, LoopConfig{TaskDeadline: 20 * time.Millisecond})
	res := loop.RunPlanned(context.Background(), "限时任务", []PlannedStep{
		{Tool: "slowish", Params: map[string]any{"n": 1}},
		{Tool: "slowish", Params: map[string]any{"n": 2}},
	}, nil)

	assert.Equal(t, StopDeadline, res.StopReason)
	assert.Equal(t, 1, res.StepsCompleted, "deadline checked at iteration top")
}

func TestLoopHighConfidenceStop(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Descriptor{
		Name: "lookup",
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["n"], nil
		},
	}))

	// Five successes lift confidence from 0.7 past the 0.9 threshold.
	var steps []PlannedStep
	for i := 1; i <= 5; i++ {
		steps = append(steps, PlannedStep{Tool: "lookup", Params: map[string]any{"n": i}})
	}

	loop := NewLoop(NewThoughtEngine(nil, nil), reg, LoopConfig{})
	res := loop.RunPlanned(context.Background(), "连续查询", steps, nil)

	assert.Equal(t, StopHighConfidence, res.StopReason)
	assert.Equal(t, 5, res.SuccessfulSteps)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestLoopHighConfidenceStopsMidPlan(t *testing.T) {
	reg := tools.NewRegistry()
	calls := 0
	require.NoError(t, reg.Register(tools.Descriptor{
		Name: "lookup",
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			calls++
			return args["n"], nil
		},
	}))

	// Confidence crosses 0.9 after the fifth success, so the sixth planned
	// step must never run.
	var steps []PlannedStep
	for i := 1; i <= 6; i++ {
		steps = append(steps, PlannedStep{Tool: "lookup", Params: map[string]any{"n": i}})
	}

	loop := NewLoop(NewThoughtEngine(nil, nil), reg, LoopConfig{})
	res := loop.RunPlanned(context.Background(), "连续查询", steps, nil)

	assert.Equal(t, StopHighConfidence, res.StopReason)
	assert.Equal(t, 5, res.StepsCompleted)
	assert.Equal(t, 5, calls, "the pending step is abandoned, not executed")
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}
