// Package rpc exposes the dispatcher over the travelagent.v1.AgentService
// gRPC surface and provides the dialing client the gateway and CLI use.
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/agent"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc/agentpb"
)

func llmMessage(m agentpb.ChatMessage) llm.Message {
	return llm.Message{Role: m.Role, Content: m.Content}
}

// TurnRunner executes one user turn. *agent.Dispatcher satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, turn agent.Turn, emit agent.EmitFunc) *agent.TurnResult
}

// Server implements agentpb.AgentServiceServer on top of a TurnRunner.
type Server struct {
	agentpb.UnimplementedAgentServiceServer

	runner      TurnRunner
	activeModel func() string
	logger      logging.Logger
}

// NewServer wires the service. activeModel may be nil; it only feeds the
// health response.
func NewServer(runner TurnRunner, activeModel func() string) *Server {
	return &Server{
		runner:      runner,
		activeModel: activeModel,
		logger:      logging.NewComponentLogger("rpc.server"),
	}
}

func turnFromRequest(req *agentpb.MessageRequest) agent.Turn {
	turn := agent.Turn{
		UserInput: req.UserInput,
		ModelID:   req.ModelID,
		Mode:      req.Mode,
		MaxSteps:  req.MaxSteps,
	}
	for _, m := range req.History {
		turn.History = append(turn.History, llmMessage(m))
	}
	return turn
}

// ProcessMessage runs the turn to completion and returns the buffered result.
// The intermediate stream is discarded.
func (s *Server) ProcessMessage(ctx context.Context, req *agentpb.MessageRequest) (*agentpb.MessageResponse, error) {
	res := s.runner.Run(ctx, turnFromRequest(req), func(agent.Chunk) {})
	return &agentpb.MessageResponse{
		Success:   res.Success,
		Answer:    res.Answer,
		Error:     res.Error,
		Reasoning: reasoningSummary(res),
		History:   historyInfo(res.History),
	}, nil
}

func historyInfo(history []agent.HistoryStep) []agentpb.HistoryStepInfo {
	out := make([]agentpb.HistoryStepInfo, 0, len(history))
	for _, hs := range history {
		info := agentpb.HistoryStepInfo{
			Step:  hs.Step,
			Phase: string(hs.Phase),
			Thought: agentpb.ThoughtInfo{
				ID:         hs.Thought.ID,
				Type:       string(hs.Thought.Type),
				Phase:      string(hs.Thought.Phase),
				Content:    hs.Thought.Content,
				Confidence: hs.Thought.Confidence,
			},
			Timestamp: hs.Timestamp.Format(time.RFC3339Nano),
		}
		if a := hs.Action; a != nil {
			info.Action = &agentpb.ActionInfo{
				ID:             a.ID,
				ToolName:       a.ToolName,
				Status:         string(a.Status),
				DurationMillis: a.Duration.Milliseconds(),
				Result:         a.Result,
				Error:          a.Error,
			}
		}
		if e := hs.Evaluation; e != nil {
			info.Evaluation = &agentpb.EvaluationInfo{
				Success:        e.Success,
				DurationMillis: e.Duration.Milliseconds(),
				HasResult:      e.HasResult,
			}
		}
		out = append(out, info)
	}
	return out
}

// StreamMessage forwards the dispatcher's chunk stream frame by frame. Send
// blocks on a slow consumer, which is the intended backpressure; a send
// failure cancels the turn.
func (s *Server) StreamMessage(req *agentpb.MessageRequest, stream agentpb.AgentService_StreamMessageServer) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	var sendErr error
	emit := func(c agent.Chunk) {
		if sendErr != nil {
			return
		}
		out, ok := translateChunk(c)
		if !ok {
			return
		}
		if err := stream.Send(out); err != nil {
			sendErr = err
			cancel()
		}
	}

	res := s.runner.Run(ctx, turnFromRequest(req), emit)
	if sendErr != nil {
		s.logger.Warn("stream aborted session=%s: %v", req.SessionID, sendErr)
		return sendErr
	}
	s.logger.Info("stream done session=%s success=%v tools=%v", req.SessionID, res.Success, res.Stats.ToolsUsed)
	return nil
}

// Version identifies the agent service build in health responses.
const Version = "0.1.0"

// HealthCheck reports liveness.
func (s *Server) HealthCheck(context.Context, *agentpb.HealthCheckRequest) (*agentpb.HealthCheckResponse, error) {
	resp := &agentpb.HealthCheckResponse{Status: agentpb.StatusServing, Version: Version}
	if s.activeModel != nil {
		resp.ActiveModel = s.activeModel()
	}
	return resp, nil
}

// translateChunk maps a dispatcher chunk to its wire frame. Chunk types the
// wire protocol does not carry (session_id, heartbeat belong to the gateway)
// are dropped.
func translateChunk(c agent.Chunk) (*agentpb.StreamChunk, bool) {
	switch c.Type {
	case agent.ChunkReasoningStart:
		return &agentpb.StreamChunk{ChunkType: agentpb.ChunkThinkingStart}, true
	case agent.ChunkReasoning:
		return &agentpb.StreamChunk{ChunkType: agentpb.ChunkThinking, Content: c.Text}, true
	case agent.ChunkReasoningEnd:
		return &agentpb.StreamChunk{ChunkType: agentpb.ChunkThinkingEnd}, true
	case agent.ChunkAnswerStart:
		return &agentpb.StreamChunk{ChunkType: agentpb.ChunkAnswerStart}, true
	case agent.ChunkAnswer:
		return &agentpb.StreamChunk{ChunkType: agentpb.ChunkAnswer, Content: c.Text}, true
	case agent.ChunkError:
		return &agentpb.StreamChunk{ChunkType: agentpb.ChunkError, Content: c.Text}, true
	case agent.ChunkDone:
		content := ""
		if c.Stats != nil {
			if data, err := json.Marshal(c.Stats); err == nil {
				content = string(data)
			}
		}
		return &agentpb.StreamChunk{ChunkType: agentpb.ChunkDone, Content: content, IsLast: true}, true
	default:
		return nil, false
	}
}

func reasoningSummary(res *agent.TurnResult) *agentpb.ReasoningSummary {
	if !res.Success {
		return nil
	}
	return &agentpb.ReasoningSummary{
		Text:            res.Reasoning,
		TotalSteps:      res.Stats.StepsCompleted,
		SuccessfulSteps: res.Stats.SuccessfulSteps,
		ToolsUsed:       res.Stats.ToolsUsed,
		Mode:            res.Stats.Mode,
		DurationMillis:  res.Stats.DurationMillis,
	}
}
