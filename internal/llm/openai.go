package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
)

// openaiClient speaks the OpenAI chat completions protocol. It also serves
// any openai-compatible endpoint (a custom api_base pointing at a proxy or
// an alternative vendor).
type openaiClient struct {
	client     *openailib.Client
	model      string
	maxRetries int
	opts       ModelOptions
	logger     logging.Logger
}

// NewOpenAIClient constructs a client for an OpenAI or openai-compatible model.
func NewOpenAIClient(entry ModelEntry) (Client, error) {
	if entry.APIKey == "" {
		return nil, fmt.Errorf("model %s: api_key is required", entry.ModelID)
	}

	cfg := openailib.DefaultConfig(entry.APIKey)
	if entry.APIBase != "" {
		cfg.BaseURL = strings.TrimRight(entry.APIBase, "/")
	}
	timeout := 120 * time.Second
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &openaiClient{
		client:     openailib.NewClientWithConfig(cfg),
		model:      entry.Model,
		maxRetries: entry.MaxRetries,
		opts:       entry.Options(),
		logger:     logging.NewComponentLogger("llm.openai"),
	}, nil
}

func (c *openaiClient) Model() string { return c.model }

func (c *openaiClient) buildRequest(req CompletionRequest, stream bool) openailib.ChatCompletionRequest {
	msgs := make([]openailib.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openailib.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	out := openailib.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   stream,
	}
	out.Temperature = float32(c.opts.Temperature)
	if req.Temperature > 0 {
		out.Temperature = float32(req.Temperature)
	}
	out.MaxTokens = c.opts.MaxTokens
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	return out
}

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	oaiReq := c.buildRequest(req, false)

	var resp openailib.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, lastErr = c.client.CreateChatCompletion(ctx, oaiReq)
		if lastErr == nil {
			break
		}
		if attempt < c.maxRetries {
			wait := time.Duration(attempt+1) * time.Second
			c.logger.Warn("retry %d/%d after %v: %v", attempt+1, c.maxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("completion failed after %d retries: %w", c.maxRetries, lastErr)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return &CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *openaiClient) CompleteStream(ctx context.Context, req CompletionRequest, onToken TokenFunc) (*CompletionResponse, error) {
	if onToken == nil {
		return c.Complete(ctx, req)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		c.logger.Warn("stream creation failed, falling back to sync: %v", err)
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		onToken(resp.Content)
		return resp, nil
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if sb.Len() > 0 {
				c.logger.Warn("stream interrupted after %d chars: %v", sb.Len(), err)
				break
			}
			return nil, fmt.Errorf("stream recv: %w", err)
		}
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				sb.WriteString(delta)
				onToken(delta)
			}
		}
	}

	return &CompletionResponse{Content: sb.String()}, nil
}
