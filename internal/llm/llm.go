// Package llm abstracts the chat-completion capability used by the agent.
// Providers are constructed by the Manager from the model catalog.
package llm

import "context"

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest contains all parameters for a completion call.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// TokenUsage tracks token consumption as reported by the provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the provider's response.
type CompletionResponse struct {
	Content string     `json:"content"`
	Usage   TokenUsage `json:"usage"`
}

// TokenFunc receives each content token as it is produced.
type TokenFunc func(token string)

// Client represents any LLM provider.
type Client interface {
	// Complete sends messages and returns a response (non-streaming).
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStream sends messages and invokes onToken for each content
	// token. The assembled response is returned once the stream finishes.
	CompleteStream(ctx context.Context, req CompletionRequest, onToken TokenFunc) (*CompletionResponse, error)

	// Model returns the model identifier.
	Model() string
}
