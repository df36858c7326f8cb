package agent

// ChunkType tags one element of the outbound event stream.
type ChunkType string

const (
	ChunkSessionID      ChunkType = "session_id"
	ChunkReasoningStart ChunkType = "reasoning_start"
	ChunkReasoning      ChunkType = "reasoning_chunk"
	ChunkReasoningEnd   ChunkType = "reasoning_end"
	ChunkAnswerStart    ChunkType = "answer_start"
	ChunkAnswer         ChunkType = "answer_chunk"
	ChunkHeartbeat      ChunkType = "heartbeat"
	ChunkError          ChunkType = "error"
	ChunkDone           ChunkType = "done"
)

// TurnStats summarizes one completed turn.
type TurnStats struct {
	Success         bool     `json:"success"`
	StepsCompleted  int      `json:"steps_completed"`
	SuccessfulSteps int      `json:"successful_steps"`
	ToolsUsed       []string `json:"tools_used"`
	DurationMillis  int64    `json:"duration_ms"`
	Mode            string   `json:"mode"`
}

// Chunk is one ordered stream element.
type Chunk struct {
	Type  ChunkType  `json:"type"`
	Text  string     `json:"text,omitempty"`
	Stats *TurnStats `json:"stats,omitempty"`
}

// EmitFunc delivers one chunk downstream. Implementations may block to
// apply backpressure; they must never drop chunks.
type EmitFunc func(Chunk)
