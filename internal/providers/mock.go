package providers

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for tests: it echoes the final user message
// back with every rune mapped through CharMap, simulating a deterministic
// "translation" without a network call. Matches the stub LLM client the
// pipeline's scenario tests are written against.
type MockClient struct {
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // fail after N requests total (0 = never)
	FailTimes  int // fail this many times then succeed, reset per call site
	CharMap    map[rune]rune

	requestCount atomic.Int64
	failedSoFar  atomic.Int64
}

// NewMockClient creates a new mock client that echoes input unchanged
// unless CharMap is populated.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency: time.Millisecond,
		CharMap: map[rune]rune{},
	}
}

func (c *MockClient) Name() string { return MockClientName }

func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doRequest(ctx, req, nil)
}

func (c *MockClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doRequest(ctx, req, tools)
}

func (c *MockClient) doRequest(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	count := c.requestCount.Add(1)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock client configured to fail"
		return result, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		result.Success = false
		result.ErrorType = "mock_failure"
		result.ErrorMessage = fmt.Sprintf("mock client failed after %d requests", c.FailAfter)
		return result, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}
	if c.FailTimes > 0 {
		if failed := c.failedSoFar.Add(1); failed <= int64(c.FailTimes) {
			result.Success = false
			result.ErrorType = "transient"
			result.ErrorMessage = "mock transient failure"
			return result, fmt.Errorf("mock transient failure (%d/%d)", failed, c.FailTimes)
		}
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		result.Success = false
		result.ErrorType = "context_cancelled"
		result.ErrorMessage = ctx.Err().Error()
		return result, ctx.Err()
	}

	var source string
	if len(req.Messages) > 0 {
		source = req.Messages[len(req.Messages)-1].Content
	}

	result.Success = true
	result.Content = c.mapChars(source)
	result.PromptTokens = len(source) / 4
	result.CompletionTokens = len(result.Content) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens

	if req.ResponseFormat != nil {
		if parsed, err := ParseStructuredJSON(result.Content); err == nil {
			result.ParsedJSON = parsed
		}
	}
	if len(tools) > 0 {
		result.ToolCalls = []ToolCall{{
			ID:   "mock-tool-call-1",
			Type: "function",
			Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: tools[0].Function.Name, Arguments: "{}"},
		}}
	}

	return result, nil
}

// mapChars maps each rune of text through CharMap, passing through any rune
// with no mapping. Used to simulate deterministic translation output whose
// shape (length, chunk boundaries) is checkable by a test.
func (c *MockClient) mapChars(text string) string {
	if len(c.CharMap) == 0 {
		return text
	}
	var b strings.Builder
	for _, r := range text {
		if mapped, ok := c.CharMap[r]; ok {
			b.WriteRune(mapped)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 { return c.requestCount.Load() }

// Reset resets the request counter.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.failedSoFar.Store(0)
}

var _ LLMClient = (*MockClient)(nil)
