package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HostClient talks to the bot host's outbound HTTP API. Every call carries
// its own timeout so a stuck host cannot wedge a state transition.
type HostClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHostClient builds an adapter for the host API at baseURL.
func NewHostClient(baseURL string, logger *zap.Logger) *HostClient {
	return &HostClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type sendRequest struct {
	Chat string `json:"chat"`
	Text string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

func (h *HostClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("host returned status %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (h *HostClient) Send(ctx context.Context, chatID, text string) (string, error) {
	var resp sendResponse
	if err := h.post(ctx, "/v1/send", sendRequest{Chat: chatID, Text: text}, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

func (h *HostClient) SendTyping(ctx context.Context, chatID string, on bool) error {
	return h.post(ctx, "/v1/typing", map[string]any{"chat": chatID, "on": on}, nil)
}

func (h *HostClient) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	return h.post(ctx, "/v1/remove", map[string]string{"chat": chatID, "user": userID}, nil)
}

func (h *HostClient) IsChatAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	var resp struct {
		Admin bool `json:"admin"`
	}
	if err := h.post(ctx, "/v1/is_admin", map[string]string{"chat": chatID, "user": userID}, &resp); err != nil {
		return false, err
	}
	return resp.Admin, nil
}
