// Package agentpb holds the wire types and hand-rolled gRPC bindings of the
// travelagent.v1.AgentService. Messages travel as JSON frames; see codec.go.
package agentpb

// ChatMessage is one prior conversation entry forwarded with a request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest asks the agent to process one user turn.
type MessageRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	UserInput string        `json:"user_input"`
	ModelID   string        `json:"model_id,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
	Mode      string        `json:"mode,omitempty"`
	MaxSteps  int           `json:"max_steps,omitempty"`
	History   []ChatMessage `json:"history,omitempty"`
}

// StreamChunk is one ordered frame of a StreamMessage response.
type StreamChunk struct {
	ChunkType string `json:"chunk_type"`
	Content   string `json:"content,omitempty"`
	IsLast    bool   `json:"is_last,omitempty"`
}

// Chunk types emitted by StreamMessage, in stream order.
const (
	ChunkThinkingStart = "thinking_start"
	ChunkThinking      = "thinking_chunk"
	ChunkThinkingEnd   = "thinking_end"
	ChunkAnswerStart   = "answer_start"
	ChunkAnswer        = "answer"
	ChunkError         = "error"
	ChunkDone          = "done"
)

// ReasoningSummary describes how the answer was produced.
type ReasoningSummary struct {
	Text            string   `json:"text,omitempty"`
	TotalSteps      int      `json:"total_steps"`
	SuccessfulSteps int      `json:"successful_steps"`
	ToolsUsed       []string `json:"tools_used"`
	Mode            string   `json:"mode,omitempty"`
	DurationMillis  int64    `json:"duration_ms,omitempty"`
}

// ThoughtInfo is the serialized form of one reasoning thought.
type ThoughtInfo struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Phase      string  `json:"phase"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// ActionInfo is the serialized form of one tool action.
type ActionInfo struct {
	ID             string `json:"id"`
	ToolName       string `json:"tool_name"`
	Status         string `json:"status"`
	DurationMillis int64  `json:"duration_ms"`
	Result         any    `json:"result,omitempty"`
	Error          string `json:"error,omitempty"`
}

// EvaluationInfo is the serialized form of one action evaluation.
type EvaluationInfo struct {
	Success        bool  `json:"success"`
	DurationMillis int64 `json:"duration_ms"`
	HasResult      bool  `json:"has_result"`
}

// HistoryStepInfo is one serialized loop iteration.
type HistoryStepInfo struct {
	Step       int             `json:"step"`
	Phase      string          `json:"phase"`
	Thought    ThoughtInfo     `json:"thought"`
	Action     *ActionInfo     `json:"action,omitempty"`
	Evaluation *EvaluationInfo `json:"evaluation,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

// MessageResponse is the buffered result of ProcessMessage.
type MessageResponse struct {
	Success   bool              `json:"success"`
	Answer    string            `json:"answer,omitempty"`
	Reasoning *ReasoningSummary `json:"reasoning,omitempty"`
	Error     string            `json:"error,omitempty"`
	History   []HistoryStepInfo `json:"history,omitempty"`
}

// HealthCheckRequest probes service liveness.
type HealthCheckRequest struct{}

// HealthCheckResponse reports service status.
type HealthCheckResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	ActiveModel string `json:"active_model,omitempty"`
}

// HealthCheck status values.
const (
	StatusServing = "SERVING"
)
