package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"resumetailor/internal/config"
	apperrors "resumetailor/internal/errors"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOperationConfig(provider, baseURL string) *config.OperationAIConfig {
	timeout := 5 * time.Second
	retries := 1
	temperature := float32(0.7)
	return &config.OperationAIConfig{
		Provider:    provider,
		Model:       "gpt-4o",
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Timeout:     &timeout,
		MaxRetries:  &retries,
		Temperature: &temperature,
	}
}

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider(testOperationConfig(config.ProviderOpenAI, server.URL+"/v1"), config.OperationTailor, apperrors.Discard())
	require.NoError(t, err)
	p.retry.backoff = func(int) time.Duration { return 0 }
	return p
}

func writeCompletion(w http.ResponseWriter, message map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "gpt-4o",
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": "stop"}},
		"usage":   map[string]int{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
	})
}

func TestOpenAIProviderGenerateText(t *testing.T) {
	var got openai.ChatCompletionRequest
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, map[string]any{"role": "assistant", "content": "Tailored resume"})
	})

	resp, err := p.Generate(context.Background(), Request{
		Operation: config.OperationTailor,
		Messages:  buildTailorMessages(DefaultPersona, DefaultTailorInstruction, "resume", "posting"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Tailored resume", resp.Text)
	assert.Equal(t, &TokenUsage{InputTokens: 12, OutputTokens: 8, TotalTokens: 20}, resp.Usage)

	require.Len(t, got.Messages, 4)
	for _, m := range got.Messages {
		assert.Equal(t, openai.ChatMessageRoleSystem, m.Role)
	}
	assert.Equal(t, "Resume:\nresume", got.Messages[2].Content)
	assert.Empty(t, got.Tools)
}

func TestOpenAIProviderGenerateStructured(t *testing.T) {
	var got openai.ChatCompletionRequest
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, map[string]any{
			"role": "assistant",
			"tool_calls": []map[string]any{{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      MetadataFunctionName,
					"arguments": `{"company":"Acme","job_title":"Engineer"}`,
				},
			}},
		})
	})

	zero := float32(0)
	resp, err := p.Generate(context.Background(), Request{
		Operation:   config.OperationExtract,
		Messages:    buildExtractMessages(DefaultExtractSystem, DefaultExtractUser, "Acme is hiring"),
		Temperature: &zero,
		Schema: &Schema{
			Name:        MetadataFunctionName,
			Description: MetadataFunctionDescription,
			Parameters:  json.RawMessage(`{"type":"object","properties":{"company":{"type":"string"}}}`),
		},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"company":"Acme","job_title":"Engineer"}`, resp.Text)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, MetadataFunctionName, got.Tools[0].Function.Name)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, "Please extract metadata from the following job posting.\n\nAcme is hiring", got.Messages[1].Content)
}

func TestOpenAIProviderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		writeCompletion(w, map[string]any{"role": "assistant", "content": "ok"})
	})

	resp, err := p.Generate(context.Background(), Request{
		Operation: config.OperationEdit,
		Messages:  buildEditMessages(DefaultPersona, DefaultEditInstruction, "resume", "shorter"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIProviderFailureIsAIError(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := p.Generate(context.Background(), Request{
		Operation: config.OperationTailor,
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAI))
	assert.Equal(t, apperrors.ErrCodeAIServiceFailed, apperrors.CodeOf(err))
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	cfg := testOperationConfig(config.ProviderOpenAI, "")
	cfg.APIKey = ""

	_, err := NewOpenAIProvider(cfg, config.OperationTailor, apperrors.Discard())
	assert.Equal(t, apperrors.ErrCodeMissingAPIKey, apperrors.CodeOf(err))
}

func TestOpenAITemperatureKeepsZero(t *testing.T) {
	assert.Greater(t, openaiTemperature(0), float32(0))
	assert.Equal(t, float32(0.7), openaiTemperature(0.7))
}
