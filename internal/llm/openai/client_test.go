package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/llm"
)

func TestNewConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	_, err := NewConfig()
	require.Error(t, err)

	t.Setenv("LLM_API_KEY", "sk-test")
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestCompleteRoundTrip(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "hello there"}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(&Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []llm.ChatMessage{{Role: "user", Content: "hi"}},
		Temperature: 0.2,
		MaxTokens:   50,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)
}

func TestCompleteMapsStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, llm.ErrCodeAPIKey},
		{http.StatusTooManyRequests, llm.ErrCodeRateLimit},
		{http.StatusInternalServerError, llm.ErrCodeServiceDown},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "nope"}})
		}))

		c, err := NewClient(&Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "m"})
		require.NoError(t, err)
		_, err = c.Complete(context.Background(), llm.CompletionRequest{})
		require.Error(t, err, "status %d", tt.status)
		var pe *llm.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, tt.code, pe.Code, "status %d", tt.status)
		srv.Close()
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c, err := NewClient(&Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	var pe *llm.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, llm.ErrCodeBadResponse, pe.Code)
}
