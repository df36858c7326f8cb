package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools"
)

type stubProvider struct {
	client llm.Client
	err    error
}

func (p stubProvider) ClientFor(string) (llm.Client, error) { return p.client, p.err }

func newTestDispatcher(t *testing.T, client llm.Client) *Dispatcher {
	t.Helper()
	return NewDispatcher(stubProvider{client: client}, travelExecutor(t), testCities, DispatcherConfig{})
}

func collectChunks() (*[]Chunk, EmitFunc) {
	chunks := &[]Chunk{}
	return chunks, func(c Chunk) { *chunks = append(*chunks, c) }
}

// requireEmitContract asserts the per-turn stream invariant: exactly one
// done, and it closes the stream.
func requireEmitContract(t *testing.T, chunks []Chunk) {
	t.Helper()
	require.NotEmpty(t, chunks)
	done := 0
	for _, c := range chunks {
		if c.Type == ChunkDone {
			done++
		}
	}
	require.Equal(t, 1, done, "exactly one done per turn")
	assert.Equal(t, ChunkDone, chunks[len(chunks)-1].Type, "done closes the stream")
}

func firstIndex(chunks []Chunk, typ ChunkType) int {
	for i, c := range chunks {
		if c.Type == typ {
			return i
		}
	}
	return -1
}

func joinText(chunks []Chunk, typ ChunkType) string {
	var sb strings.Builder
	for _, c := range chunks {
		if c.Type == typ {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

func TestDispatchDirectStreamsAnswer(t *testing.T) {
	client := &llm.MockClient{Responses: []string{"你好！很高兴为你规划行程。"}}
	d := newTestDispatcher(t, client)

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "你好", Mode: "direct"}, emit)

	requireEmitContract(t, *chunks)
	assert.True(t, res.Success)
	assert.Equal(t, "你好！很高兴为你规划行程。", res.Answer)
	assert.Equal(t, ModeDirect, res.Stats.Mode)
	assert.Equal(t, []string{}, res.Stats.ToolsUsed)

	assert.Equal(t, ChunkAnswerStart, (*chunks)[0].Type)
	assert.Equal(t, res.Answer, joinText(*chunks, ChunkAnswer))
	assert.Equal(t, -1, firstIndex(*chunks, ChunkReasoningStart), "direct mode has no reasoning phase")
}

func TestDispatchDirectFailureEmitsErrorBeforeDone(t *testing.T) {
	client := &llm.MockClient{
		CompleteStreamFunc: func(context.Context, llm.CompletionRequest, llm.TokenFunc) (*llm.CompletionResponse, error) {
			return nil, fmt.Errorf("provider down")
		},
	}
	d := newTestDispatcher(t, client)

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "你好", Mode: "direct"}, emit)

	requireEmitContract(t, *chunks)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "模型调用失败")

	errIdx := firstIndex(*chunks, ChunkError)
	require.GreaterOrEqual(t, errIdx, 0)
	assert.Less(t, errIdx, firstIndex(*chunks, ChunkDone), "error precedes done")
}

func TestDispatchReactOrdering(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		`{"intent": "city_recommendation", "entities": {"interests": ["美食"]}, "confidence": 0.8}`,
		"推荐成都，美食之都。",
	}}
	d := newTestDispatcher(t, client)

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "推荐适合美食游的城市"}, emit)

	requireEmitContract(t, *chunks)
	assert.True(t, res.Success)
	assert.Equal(t, ModeReact, res.Stats.Mode, "react is the default mode")
	assert.Equal(t, []string{"search_cities"}, res.Stats.ToolsUsed)
	assert.Equal(t, 1, res.Stats.StepsCompleted)
	assert.Equal(t, "推荐成都，美食之都。", res.Answer)
	assert.NotEmpty(t, res.Reasoning)

	rs := firstIndex(*chunks, ChunkReasoningStart)
	re := firstIndex(*chunks, ChunkReasoningEnd)
	as := firstIndex(*chunks, ChunkAnswerStart)
	require.GreaterOrEqual(t, rs, 0)
	require.Greater(t, re, rs)
	require.Greater(t, as, re, "answer events come only after reasoning_end")
	for i, c := range *chunks {
		if c.Type == ChunkAnswer {
			assert.Greater(t, i, re)
		}
	}
}

func TestDispatchPlanExecutesModelPlan(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		`{"goal": "推荐美食城市", "steps": [
		   {"step": 1, "action": "search_cities", "params": {"interests": ["美食"]}, "description": "搜索候选城市"},
		   {"step": 2, "action": "final_answer", "params": {"answer": "推荐成都"}, "description": "提交结论"}]}`,
		"综合来看，成都最适合美食之旅。",
	}}
	d := newTestDispatcher(t, client)

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "推荐适合美食游的城市", Mode: "plan"}, emit)

	requireEmitContract(t, *chunks)
	assert.True(t, res.Success)
	assert.Equal(t, ModePlan, res.Stats.Mode)
	assert.Equal(t, []string{"search_cities", "final_answer"}, res.Stats.ToolsUsed)
	assert.Equal(t, 2, res.Stats.SuccessfulSteps)
	assert.Equal(t, "综合来看，成都最适合美食之旅。", res.Answer)

	rs := firstIndex(*chunks, ChunkReasoningStart)
	require.GreaterOrEqual(t, rs, 0)
	first := (*chunks)[rs+1]
	assert.Equal(t, ChunkReasoning, first.Type)
	assert.Contains(t, first.Text, "【规划阶段】", "plan marker opens the trace")
}

func TestDispatchPlanParseFailureFallsBackToReact(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		"我还没想好具体计划。",
		`{"intent": "general_chat", "entities": {}, "confidence": 0.8}`,
		"你好！想去哪里玩？",
	}}
	d := newTestDispatcher(t, client)

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "你好", Mode: "plan"}, emit)

	requireEmitContract(t, *chunks)
	assert.True(t, res.Success)
	assert.Equal(t, ModePlan, res.Stats.Mode, "fallback keeps the requested mode in stats")
	assert.Equal(t, []string{}, res.Stats.ToolsUsed)
	assert.GreaterOrEqual(t, firstIndex(*chunks, ChunkReasoningStart), 0, "fallback runs the reasoning loop")
	assert.Equal(t, "你好！想去哪里玩？", res.Answer)
}

func TestDispatchPlanUnknownToolRecordedAsFailed(t *testing.T) {
	client := &llm.MockClient{Responses: []string{
		`{"goal": "预订酒店", "steps": [
		   {"step": 1, "action": "book_hotel", "params": {"city": "成都"}, "description": "预订酒店"}]}`,
		"抱歉，暂时无法预订酒店。",
	}}
	d := newTestDispatcher(t, client)

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "帮我订成都的酒店", Mode: "plan"}, emit)

	requireEmitContract(t, *chunks)
	assert.True(t, res.Success, "an unexecutable step does not fail the turn")

	var failed *Action
	for _, hs := range res.History {
		if hs.Action != nil && hs.Action.ToolName == "book_hotel" {
			failed = hs.Action
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, ActionFailed, failed.Status)
	assert.Equal(t, tools.ErrKindNotFound, failed.ErrorKind)
	assert.Zero(t, res.Stats.SuccessfulSteps)
}

func TestDispatchRejectsEmptyInput(t *testing.T) {
	d := newTestDispatcher(t, &llm.MockClient{})

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "   "}, emit)

	requireEmitContract(t, *chunks)
	assert.False(t, res.Success)
	assert.Equal(t, "用户输入不能为空", res.Error)
	require.Len(t, *chunks, 2, "error then done, nothing else")
	assert.Equal(t, ChunkError, (*chunks)[0].Type)
}

func TestDispatchUnavailableModel(t *testing.T) {
	d := NewDispatcher(stubProvider{err: fmt.Errorf("unknown model %q", "gpt-9")}, travelExecutor(t), testCities, DispatcherConfig{})

	chunks, emit := collectChunks()
	res := d.Run(context.Background(), Turn{UserInput: "你好"}, emit)

	requireEmitContract(t, *chunks)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "模型不可用")
}
