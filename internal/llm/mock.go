package llm

import "context"

// MockClient is a configurable fake for tests. Unset function fields fall
// back to canned responses.
type MockClient struct {
	CompleteFunc       func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	CompleteStreamFunc func(ctx context.Context, req CompletionRequest, onToken TokenFunc) (*CompletionResponse, error)
	ModelName          string

	// Responses are returned in order by the default Complete implementation,
	// repeating the last one once exhausted.
	Responses []string
	calls     int
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Model() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return "mock-model"
}

func (m *MockClient) nextResponse() string {
	if len(m.Responses) == 0 {
		return "mock response"
	}
	i := m.calls
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	m.calls++
	return m.Responses[i]
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	content := m.nextResponse()
	return &CompletionResponse{
		Content: content,
		Usage:   TokenUsage{PromptTokens: 10, CompletionTokens: len(content) / 4, TotalTokens: 10 + len(content)/4},
	}, nil
}

func (m *MockClient) CompleteStream(ctx context.Context, req CompletionRequest, onToken TokenFunc) (*CompletionResponse, error) {
	if m.CompleteStreamFunc != nil {
		return m.CompleteStreamFunc(ctx, req, onToken)
	}
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if onToken != nil {
		for _, r := range resp.Content {
			onToken(string(r))
		}
	}
	return resp, nil
}
