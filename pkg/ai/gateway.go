package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultGatewayBaseURL = "https://ai.gateway.lovable.dev/v1"
	DefaultGatewayModel   = "google/gemini-2.5-flash"
)

var (
	ErrMissingAPIKey   = errors.New("ai gateway api key required")
	ErrNoToolCall      = errors.New("ai response contained no tool call")
	ErrMalformedOutput = errors.New("ai tool arguments malformed")
	ErrEmptyResponse   = errors.New("empty response from ai gateway")
)

// GatewayError is a non-2xx answer from the gateway. Status is propagated to callers.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ai gateway error: status %d", e.Status)
	}
	return fmt.Sprintf("ai gateway error: status %d: %s", e.Status, e.Body)
}

// CallObserver is notified after every gateway round trip.
type CallObserver func(op string, err error, elapsed time.Duration)

type GatewayConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   CallObserver
}

// GatewayClient talks to an OpenAI-compatible chat-completions gateway.
type GatewayClient struct {
	client   *openai.Client
	model    string
	observer CallObserver
}

func NewGatewayClient(cfg GatewayConfig) (*GatewayClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGatewayBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGatewayModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = baseURL
	oc.HTTPClient = httpClient
	return &GatewayClient{
		client:   openai.NewClientWithConfig(oc),
		model:    model,
		observer: cfg.Observer,
	}, nil
}

// CompleteMessages sends a prior conversation after the system prompt.
func (c *GatewayClient) CompleteMessages(ctx context.Context, systemPrompt string, history []openai.ChatCompletionMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, history...)
	resp, err := c.create(ctx, "complete", openai.ChatCompletionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", err
	}
	return firstText(resp)
}

// CompleteWithDocument sends the prompt alongside the file as a data URL part.
func (c *GatewayClient) CompleteWithDocument(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}},
	}
	resp, err := c.create(ctx, "document", req)
	if err != nil {
		return "", err
	}
	return firstText(resp)
}

// CallTool forces the model to call tool and decodes its arguments into out.
func (c *GatewayClient) CallTool(ctx context.Context, systemPrompt, userPrompt string, tool openai.Tool, out any) error {
	if tool.Function == nil {
		return fmt.Errorf("tool function definition required")
	}
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Tools: []openai.Tool{tool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: tool.Function.Name},
		},
	}
	resp, err := c.create(ctx, "tool:"+tool.Function.Name, req)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return ErrNoToolCall
	}
	args := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(args), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func (c *GatewayClient) create(ctx context.Context, op string, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	err = mapError(err)
	if c.observer != nil {
		c.observer(op, err, time.Since(start))
	}
	return resp, err
}

func firstText(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &GatewayError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &GatewayError{Status: reqErr.HTTPStatusCode, Body: strings.TrimSpace(string(reqErr.Body))}
	}
	return fmt.Errorf("ai gateway request: %w", err)
}
