package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gatekeeper/internal/llm"
)

// Client speaks the chat-completions wire format: request
// {model,messages,temperature,max_tokens}, response
// {choices:[{message:{content}}]}. Any OpenAI-compatible endpoint works.
type Client struct {
	config *Config
	client *http.Client
}

type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []llm.ChatMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func NewClient(config *Config) (*Client, error) {
	return &Client{
		config: config,
		client: &http.Client{Timeout: 25 * time.Second},
	}, nil
}

func (c *Client) Name() string { return "openai" }

// Complete performs one chat-completion round trip.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", c.wrap(llm.ErrCodeInvalidInput, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", c.wrap(llm.ErrCodeInvalidInput, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		code := llm.ErrCodeServiceDown
		if errors.Is(err, context.DeadlineExceeded) {
			code = llm.ErrCodeTimeout
		}
		return "", c.wrap(code, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", c.wrap(llm.ErrCodeServiceDown, "failed to read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", c.wrap(llm.ErrCodeAPIKey, "unauthorized", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", c.wrap(llm.ErrCodeRateLimit, "remote rate limit", nil)
	case resp.StatusCode >= 400:
		return "", c.wrap(llm.ErrCodeServiceDown, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", c.wrap(llm.ErrCodeBadResponse, "invalid JSON from endpoint", err)
	}
	if parsed.Error != nil {
		return "", c.wrap(llm.ErrCodeServiceDown, parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", c.wrap(llm.ErrCodeBadResponse, "no choices in response", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) wrap(code, msg string, err error) error {
	return &llm.ProviderError{
		Provider: "openai",
		Code:     code,
		Message:  msg,
		Err:      err,
	}
}
