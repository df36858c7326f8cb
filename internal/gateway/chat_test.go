package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/config"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc/agentpb"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/session"
)

const testCatalog = `default_model: mock-main
models:
  - model_id: mock-main
    name: 测试模型
    provider: openai
    model: gpt-4o-mini
    api_key: test-key
  - model_id: mock-alt
    name: 备用模型
    provider: openai
    model: gpt-4o
    api_key: test-key
`

type fakeAgent struct {
	chunks    []*agentpb.StreamChunk
	streamErr error
	healthErr error
	lastReq   *agentpb.MessageRequest
}

func (f *fakeAgent) Stream(_ context.Context, req *agentpb.MessageRequest) (<-chan *agentpb.StreamChunk, error) {
	f.lastReq = req
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan *agentpb.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeAgent) Health(context.Context) (*agentpb.HealthCheckResponse, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &agentpb.HealthCheckResponse{Status: agentpb.StatusServing, Version: "0.1.0", ActiveModel: "mock-main"}, nil
}

func testModels(t *testing.T) *llm.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	m, err := llm.NewManager(path)
	require.NoError(t, err)
	return m
}

func newTestServer(t *testing.T, agent AgentClient) (*Server, *session.Store) {
	t.Helper()
	store := session.NewStore()
	cfg := &config.GatewayConfig{
		ListenAddr:        ":0",
		AgentAddr:         "localhost:50051",
		HeartbeatInterval: 30 * time.Second,
		RequestTimeout:    time.Minute,
	}
	return NewServer(cfg, store, testModels(t), agent), store
}

// collectSSE parses a text/event-stream body into decoded frames.
func collectSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q lacks data prefix", frame)
		var ev sseEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func postChat(t *testing.T, s *Server, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func eventTypes(events []sseEvent) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestChatStreamProxiesAgentEvents(t *testing.T) {
	stats := `{"success":true,"mode":"react","steps_completed":2}`
	agent := &fakeAgent{chunks: []*agentpb.StreamChunk{
		{ChunkType: agentpb.ChunkThinkingStart},
		{ChunkType: agentpb.ChunkThinking, Content: "分析用户意图"},
		{ChunkType: agentpb.ChunkThinkingEnd},
		{ChunkType: agentpb.ChunkAnswerStart},
		{ChunkType: agentpb.ChunkAnswer, Content: "推荐成都"},
		{ChunkType: agentpb.ChunkAnswer, Content: "，美食之都。"},
		{ChunkType: agentpb.ChunkDone, Content: stats, IsLast: true},
	}}
	s, store := newTestServer(t, agent)

	rec := postChat(t, s, map[string]any{"message": "推荐一个美食城市"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := collectSSE(t, rec.Body.String())
	require.NotEmpty(t, events)

	assert.Equal(t, "session_id", events[0].Type)
	require.NotEmpty(t, events[0].SessionID)
	assert.Equal(t, []string{
		"session_id", "reasoning_start", "reasoning_chunk", "reasoning_end",
		"answer_start", "chunk", "chunk", "done",
	}, eventTypes(events))

	last := events[len(events)-1]
	assert.JSONEq(t, stats, string(last.Stats))

	// Both turn halves are recorded, the assistant one with its reasoning.
	sess, err := store.Get(events[0].SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "user", sess.Messages[0].Role)
	assert.Equal(t, "推荐一个美食城市", sess.Messages[0].Content)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
	assert.Equal(t, "推荐成都，美食之都。", sess.Messages[1].Content)
	assert.Equal(t, "分析用户意图", sess.Messages[1].Reasoning)
}

func TestChatStreamForwardsPriorHistory(t *testing.T) {
	agent := &fakeAgent{chunks: []*agentpb.StreamChunk{
		{ChunkType: agentpb.ChunkAnswerStart},
		{ChunkType: agentpb.ChunkAnswer, Content: "好的"},
		{ChunkType: agentpb.ChunkDone, Content: `{"success":true,"mode":"direct"}`, IsLast: true},
	}}
	s, store := newTestServer(t, agent)

	sess := store.Create(session.CreateOptions{Name: "行程规划"})
	require.NoError(t, store.AppendMessage(sess.SessionID, session.Message{Role: "user", Content: "我想去西安"}))
	require.NoError(t, store.AppendMessage(sess.SessionID, session.Message{Role: "assistant", Content: "西安很适合历史游。"}))

	rec := postChat(t, s, map[string]any{"message": "几月份去最好？", "session_id": sess.SessionID})
	require.Equal(t, http.StatusOK, rec.Code)

	events := collectSSE(t, rec.Body.String())
	assert.Equal(t, sess.SessionID, events[0].SessionID)

	require.NotNil(t, agent.lastReq)
	assert.Equal(t, sess.SessionID, agent.lastReq.SessionID)
	assert.Equal(t, "几月份去最好？", agent.lastReq.UserInput)
	// The in-flight user message is not part of the forwarded history.
	require.Len(t, agent.lastReq.History, 2)
	assert.Equal(t, "我想去西安", agent.lastReq.History[0].Content)
	assert.Equal(t, "assistant", agent.lastReq.History[1].Role)

	got, err := store.Get(sess.SessionID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 4)
}

func TestChatStreamAgentUnavailable(t *testing.T) {
	agent := &fakeAgent{streamErr: fmt.Errorf("connection refused")}
	s, store := newTestServer(t, agent)

	rec := postChat(t, s, map[string]any{"message": "你好"})
	require.Equal(t, http.StatusOK, rec.Code)

	events := collectSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "session_id", events[0].Type)
	assert.Equal(t, "error", events[1].Type)
	assert.Contains(t, events[1].Message, "智能体服务不可用")
	assert.Equal(t, "done", events[2].Type)

	// The user message survives the upstream failure.
	sess, err := store.Get(events[0].SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "user", sess.Messages[0].Role)
}

func TestChatStreamUpstreamTruncation(t *testing.T) {
	// Channel closes without a done frame.
	agent := &fakeAgent{chunks: []*agentpb.StreamChunk{
		{ChunkType: agentpb.ChunkAnswerStart},
		{ChunkType: agentpb.ChunkAnswer, Content: "正在"},
	}}
	s, _ := newTestServer(t, agent)

	rec := postChat(t, s, map[string]any{"message": "你好"})
	events := collectSSE(t, rec.Body.String())
	types := eventTypes(events)
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, "error", types[len(types)-2])
	assert.Equal(t, "done", types[len(types)-1])
}

func TestChatStreamErrorThenDoneNotDuplicated(t *testing.T) {
	// An explicit upstream error followed by channel close must not produce
	// a second error frame.
	agent := &fakeAgent{chunks: []*agentpb.StreamChunk{
		{ChunkType: agentpb.ChunkError, Content: "模型调用失败", IsLast: true},
	}}
	s, _ := newTestServer(t, agent)

	rec := postChat(t, s, map[string]any{"message": "你好"})
	events := collectSSE(t, rec.Body.String())
	assert.Equal(t, []string{"session_id", "error", "done"}, eventTypes(events))
	assert.Equal(t, "模型调用失败", events[1].Message)
}

// stallingAgent streams the start of an answer, cancels the request and then
// blocks, imitating a client that disconnects mid-stream.
type stallingAgent struct {
	cancel context.CancelFunc
}

func (a *stallingAgent) Stream(ctx context.Context, _ *agentpb.MessageRequest) (<-chan *agentpb.StreamChunk, error) {
	ch := make(chan *agentpb.StreamChunk)
	go func() {
		ch <- &agentpb.StreamChunk{ChunkType: agentpb.ChunkAnswerStart}
		ch <- &agentpb.StreamChunk{ChunkType: agentpb.ChunkAnswer, Content: "部分回答"}
		a.cancel()
		<-ctx.Done()
	}()
	return ch, nil
}

func (a *stallingAgent) Health(context.Context) (*agentpb.HealthCheckResponse, error) {
	return &agentpb.HealthCheckResponse{Status: agentpb.StatusServing}, nil
}

func TestChatStreamCancellationKeepsPartialAnswer(t *testing.T) {
	agent := &stallingAgent{}
	s, store := newTestServer(t, agent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	agent.cancel = cancel

	body, err := json.Marshal(map[string]any{"message": "推荐一个美食城市"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(string(body))).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	// The stream still ends with a terminal done after the cancellation.
	events := collectSSE(t, rec.Body.String())
	assert.Equal(t, []string{"session_id", "answer_start", "chunk", "done"}, eventTypes(events))

	// The partial answer survives in the session history.
	sess, err := store.Get(events[0].SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
	assert.Equal(t, "部分回答", sess.Messages[1].Content)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	s, _ := newTestServer(t, &fakeAgent{})

	rec := postChat(t, s, map[string]any{"message": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "message")
}
