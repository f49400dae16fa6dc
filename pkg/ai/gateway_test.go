package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCallResponse(name, args string) string {
	body := map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"role": "assistant",
				"tool_calls": []any{map[string]any{
					"id":       "call_1",
					"type":     "function",
					"function": map[string]any{"name": name, "arguments": args},
				}},
			},
		}},
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func textResponse(text string) string {
	raw, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-2",
		"object": "chat.completion",
		"choices": []any{map[string]any{
			"index":   0,
			"message": map[string]any{"role": "assistant", "content": text},
		}},
	})
	return string(raw)
}

func userTurn(text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: text}}
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewGatewayClient(GatewayConfig{BaseURL: srv.URL + "/v1", APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)
	return c
}

func TestNewGatewayClientRequiresKey(t *testing.T) {
	_, err := NewGatewayClient(GatewayConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewGatewayClientDefaults(t *testing.T) {
	c, err := NewGatewayClient(GatewayConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayModel, c.model)
}

func TestCallToolForcesToolAndDecodesArguments(t *testing.T) {
	var captured map[string]any
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallResponse(FlashcardsToolName, `{"flashcards":[{"front":"Q1","back":"A1"},{"front":"Q2","back":"A2"}]}`))
	})

	var out FlashcardsArgs
	err := c.CallTool(context.Background(), "sys", "user", FlashcardsTool(), &out)
	require.NoError(t, err)
	require.Len(t, out.Flashcards, 2)
	assert.Equal(t, "Q2", out.Flashcards[1].Front)

	assert.Equal(t, "test-model", captured["model"])
	choice, ok := captured["tool_choice"].(map[string]any)
	require.True(t, ok, "tool_choice should be an object")
	assert.Equal(t, "function", choice["type"])
	fn, _ := choice["function"].(map[string]any)
	assert.Equal(t, FlashcardsToolName, fn["name"])
	tools, _ := captured["tools"].([]any)
	assert.Len(t, tools, 1)
}

func TestCallToolWithoutToolCall(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, textResponse("I cannot do that"))
	})
	var out QuizArgs
	err := c.CallTool(context.Background(), "sys", "user", QuizTool(), &out)
	assert.ErrorIs(t, err, ErrNoToolCall)
}

func TestCallToolMalformedArguments(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallResponse(QuizToolName, `{"title": "x", "questions": [`))
	})
	var out QuizArgs
	err := c.CallTool(context.Background(), "sys", "user", QuizTool(), &out)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestGatewayStatusIsPropagated(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusPaymentRequired} {
		c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"limited","type":"rate_limit"}}`)
		})
		_, err := c.CompleteMessages(context.Background(), "sys", userTurn("hello"))
		var gwErr *GatewayError
		require.True(t, errors.As(err, &gwErr), "expected GatewayError, got %v", err)
		assert.Equal(t, status, gwErr.Status)
	}
}

func TestCompleteWithDocumentSendsDataURL(t *testing.T) {
	var body string
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, textResponse("  summary text  "))
	})
	text, err := c.CompleteWithDocument(context.Background(), "Extract", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "summary text", text)
	assert.True(t, strings.Contains(body, "data:application/pdf;base64,JVBERi0xLjQ="), body)
	assert.True(t, strings.Contains(body, `"image_url"`), body)
}

func TestCompleteEmptyResponse(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, textResponse("   "))
	})
	_, err := c.CompleteMessages(context.Background(), "sys", userTurn("hi"))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestObserverSeesEveryCall(t *testing.T) {
	var ops []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, textResponse("ok"))
	}))
	defer srv.Close()
	c, err := NewGatewayClient(GatewayConfig{
		BaseURL: srv.URL,
		APIKey:  "k",
		Observer: func(op string, err error, _ time.Duration) {
			ops = append(ops, op)
		},
	})
	require.NoError(t, err)
	_, err = c.CompleteMessages(context.Background(), "", userTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"complete"}, ops)
}
