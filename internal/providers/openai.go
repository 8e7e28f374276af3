package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIClientName   = "openai"
	openAIDefaultModel = "gpt-4o"
)

// OpenAIConfig holds configuration for one task's OpenAI-compatible
// endpoint. BaseURL lets the same client type serve any OpenAI-compatible
// provider (OpenAI itself, or an OpenAI-compatible gateway) per task.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // empty uses the SDK's default (api.openai.com)
	Model       string
	MaxTokens   int
	Temperature float64
	RateLimit   float64 // requests per minute
	MaxRetries  int
	Timeout     time.Duration
	HTTPClient  *http.Client // optional (tests)
}

// OpenAIClient implements LLMClient against the OpenAI chat completions API
// (or any OpenAI-compatible gateway reachable via BaseURL).
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	limiter     *RateLimiter
	client      openai.Client
}

// NewOpenAIClient builds a client from cfg, defaulting unset fields.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 150
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		limiter:     NewRateLimiter(int(cfg.RateLimit)),
		client:      openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIClientName
}

// Chat sends a chat completion request with no tool definitions.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.do(ctx, req, nil)
}

// ChatWithTools sends a chat completion request offering tools, used by the
// glossary extractor's structured-output call.
func (c *OpenAIClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.do(ctx, req, tools)
}

func (c *OpenAIClient) do(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openai: rate limiter: %w", err)
	}

	start := time.Now()
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if temp := valueOr(req.Temperature, c.temperature); temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	if maxTokens := valueOrInt(req.MaxTokens, c.maxTokens); maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  rawSchemaToParameters(t.Function.Parameters),
			},
		})
	}

	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_output",
					Schema: rawSchemaToParameters(req.ResponseFormat.JSONSchema),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		mapped := mapOpenAIError(err)
		if rle, ok := IsRateLimitError(mapped); ok {
			c.limiter.Record429(rle.RetryAfter)
		}
		return &ChatResult{
			Provider:      OpenAIClientName,
			ModelUsed:     model,
			RequestID:     req.RequestID,
			Success:       false,
			ErrorMessage:  mapped.Error(),
			ExecutionTime: elapsed,
		}, mapped
	}

	result := &ChatResult{
		Provider:      OpenAIClientName,
		ModelUsed:     string(completion.Model),
		RequestID:     req.RequestID,
		Success:       true,
		ExecutionTime: elapsed,
		Attempts:      1,
	}
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		result.Content = choice.Message.Content
		for _, tc := range choice.Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				}{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
	}
	result.PromptTokens = int(completion.Usage.PromptTokens)
	result.CompletionTokens = int(completion.Usage.CompletionTokens)
	result.TotalTokens = int(completion.Usage.TotalTokens)

	if req.ResponseFormat != nil {
		if parsed, perr := ParseStructuredJSON(result.Content); perr == nil {
			result.ParsedJSON = parsed
		}
	}

	return result, nil
}

func valueOr(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func valueOrInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func rawSchemaToParameters(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("openai rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("openai error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("openai error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ LLMClient = (*OpenAIClient)(nil)
