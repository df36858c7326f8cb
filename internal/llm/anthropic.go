package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com/v1"
	defaultAnthropicVersion   = "2023-06-01"
	anthropicVersionHeaderKey = "anthropic-version"
	anthropicAPIKeyHeaderKey  = "x-api-key"
	anthropicMessagesPath     = "/messages"
)

// anthropicClient speaks the Anthropic messages protocol over plain HTTP.
type anthropicClient struct {
	model      string
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	opts       ModelOptions
	logger     logging.Logger
}

// NewAnthropicClient constructs a client for an Anthropic model.
func NewAnthropicClient(entry ModelEntry) (Client, error) {
	if entry.APIKey == "" {
		return nil, fmt.Errorf("model %s: api_key is required", entry.ModelID)
	}

	baseURL := entry.APIBase
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := 120 * time.Second
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Second
	}
	version := entry.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}

	return &anthropicClient{
		model:      entry.Model,
		apiKey:     entry.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: version,
		httpClient: &http.Client{Timeout: timeout},
		opts:       entry.Options(),
		logger:     logging.NewComponentLogger("llm.anthropic"),
	}, nil
}

func (c *anthropicClient) Model() string { return c.model }

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// convertMessages splits out system messages, which Anthropic carries as a
// top-level field rather than a message role.
func (c *anthropicClient) convertMessages(msgs []Message) ([]map[string]string, string) {
	var system strings.Builder
	converted := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
			continue
		}
		converted = append(converted, map[string]string{"role": m.Role, "content": m.Content})
	}
	return converted, system.String()
}

func (c *anthropicClient) buildPayload(req CompletionRequest, stream bool) map[string]any {
	messages, system := c.convertMessages(req.Messages)

	maxTokens := c.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := c.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"messages":    messages,
	}
	if system != "" {
		payload["system"] = system
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

func (c *anthropicClient) newRequest(ctx context.Context, payload map[string]any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + anthropicMessagesPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(anthropicAPIKeyHeaderKey, c.apiKey)
	httpReq.Header.Set(anthropicVersionHeaderKey, c.apiVersion)
	return httpReq, nil
}

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	httpReq, err := c.newRequest(ctx, c.buildPayload(req, false))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("POST %s model=%s", httpReq.URL, c.model)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic api error %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content: sb.String(),
		Usage: TokenUsage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
	}, nil
}

// anthropicStreamEvent covers the SSE event payloads we care about.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (c *anthropicClient) CompleteStream(ctx context.Context, req CompletionRequest, onToken TokenFunc) (*CompletionResponse, error) {
	if onToken == nil {
		return c.Complete(ctx, req)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	httpReq, err := c.newRequest(ctx, c.buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" {
				sb.WriteString(ev.Delta.Text)
				onToken(ev.Delta.Text)
			}
		case "message_stop":
			return &CompletionResponse{Content: sb.String()}, nil
		}
	}
	if err := scanner.Err(); err != nil {
		if sb.Len() > 0 {
			c.logger.Warn("stream interrupted after %d chars: %v", sb.Len(), err)
			return &CompletionResponse{Content: sb.String()}, nil
		}
		return nil, fmt.Errorf("stream read: %w", err)
	}
	return &CompletionResponse{Content: sb.String()}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
