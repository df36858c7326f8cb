package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc/agentpb"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/session"
	tokenutil "github.com/tiammomo/Shuai-Travel-Agent/internal/token"
)

const defaultHeartbeat = 30 * time.Second

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	ModelID   string `json:"model_id"`
	Mode      string `json:"mode"`
	MaxSteps  int    `json:"max_steps"`
}

// sseEvent is one outbound SSE frame. Every frame is a single
// "data: {json}" line carrying a type field.
type sseEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Text      string          `json:"text,omitempty"`
	Message   string          `json:"message,omitempty"`
	Ts        int64           `json:"ts,omitempty"`
	Stats     json.RawMessage `json:"stats,omitempty"`
}

// SSE event types, in protocol order.
const (
	evSessionID      = "session_id"
	evReasoningStart = "reasoning_start"
	evReasoning      = "reasoning_chunk"
	evReasoningEnd   = "reasoning_end"
	evAnswerStart    = "answer_start"
	evAnswer         = "chunk"
	evHeartbeat      = "heartbeat"
	evError          = "error"
	evDone           = "done"
)

// handleChatStream runs one conversational turn: resolve the session, record
// the user message, proxy the agent stream as SSE, then record the assistant
// message. Exactly one done event terminates the stream; session_id always
// comes first.
func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, "message 不能为空")
		return
	}

	// Create-or-get: a supplied id resolves to the existing session.
	sess := s.sessions.Create(session.CreateOptions{SessionID: req.SessionID, ModelID: req.ModelID})

	history := make([]agentpb.ChatMessage, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		history = append(history, agentpb.ChatMessage{Role: m.Role, Content: m.Content})
	}

	// The user turn is recorded before dispatch so it survives upstream
	// failure.
	if err := s.sessions.AppendMessage(sess.SessionID, session.Message{Role: "user", Content: req.Message}); err != nil {
		respondError(c, http.StatusInternalServerError, "记录用户消息失败: "+err.Error())
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	write := func(ev sseEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal sse event: %v", err)
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
	}

	write(sseEvent{Type: evSessionID, SessionID: sess.SessionID})

	modelID := req.ModelID
	if modelID == "" {
		modelID = sess.ModelID
	}

	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	ch, err := s.agent.Stream(ctx, &agentpb.MessageRequest{
		SessionID: sess.SessionID,
		UserInput: req.Message,
		ModelID:   modelID,
		Stream:    true,
		Mode:      req.Mode,
		MaxSteps:  req.MaxSteps,
		History:   history,
	})
	if err != nil {
		s.logger.Error("agent stream failed session=%s: %v", sess.SessionID, err)
		write(sseEvent{Type: evError, Message: "智能体服务不可用: " + err.Error()})
		write(sseEvent{Type: evDone})
		return
	}

	heartbeat := s.cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	var answer, reasoning strings.Builder
	var stats json.RawMessage
	errorSent := false
	doneSent := false

	for !doneSent {
		select {
		case <-ctx.Done():
			// Client gone or deadline hit; the cancelled context stops the
			// upstream turn at its next suspension point. The stream still
			// ends with a terminal done, and any partial answer is kept.
			s.logger.Info("chat stream closed early session=%s: %v", sess.SessionID, ctx.Err())
			write(sseEvent{Type: evDone})
			doneSent = true

		case <-ticker.C:
			write(sseEvent{Type: evHeartbeat, Ts: time.Now().Unix()})

		case chunk, ok := <-ch:
			if !ok {
				if !errorSent {
					write(sseEvent{Type: evError, Message: "上游流提前结束"})
				}
				write(sseEvent{Type: evDone})
				doneSent = true
				break
			}
			ticker.Reset(heartbeat)

			switch chunk.ChunkType {
			case agentpb.ChunkThinkingStart:
				write(sseEvent{Type: evReasoningStart})
			case agentpb.ChunkThinking:
				reasoning.WriteString(chunk.Content)
				write(sseEvent{Type: evReasoning, Text: chunk.Content})
			case agentpb.ChunkThinkingEnd:
				write(sseEvent{Type: evReasoningEnd})
			case agentpb.ChunkAnswerStart:
				write(sseEvent{Type: evAnswerStart})
			case agentpb.ChunkAnswer:
				answer.WriteString(chunk.Content)
				write(sseEvent{Type: evAnswer, Text: chunk.Content})
			case agentpb.ChunkError:
				errorSent = true
				write(sseEvent{Type: evError, Message: chunk.Content})
			case agentpb.ChunkDone:
				stats = json.RawMessage(chunk.Content)
				write(sseEvent{Type: evDone, Stats: stats})
				doneSent = true
			default:
				s.logger.Warn("unknown chunk type %q from agent", chunk.ChunkType)
			}
		}
	}

	if answer.Len() > 0 {
		msg := session.Message{Role: "assistant", Content: answer.String(), Reasoning: reasoning.String()}
		if err := s.sessions.AppendMessage(sess.SessionID, msg); err != nil {
			s.logger.Error("record assistant message session=%s: %v", sess.SessionID, err)
		}
		answerTokens.Add(float64(tokenutil.CountTokens(answer.String())))
	}
	observeTurn(stats)
}

// observeTurn feeds the per-turn metrics from the done event's stats.
func observeTurn(stats json.RawMessage) {
	if len(stats) == 0 {
		chatTurns.WithLabelValues("unknown", "false").Inc()
		return
	}
	var s struct {
		Success bool   `json:"success"`
		Mode    string `json:"mode"`
	}
	if err := json.Unmarshal(stats, &s); err != nil {
		chatTurns.WithLabelValues("unknown", "false").Inc()
		return
	}
	mode := s.Mode
	if mode == "" {
		mode = "unknown"
	}
	chatTurns.WithLabelValues(mode, fmt.Sprintf("%t", s.Success)).Inc()
}
