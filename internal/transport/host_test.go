package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHostClientSend(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"message_id": "abc-1"})
	}))
	defer srv.Close()

	h := NewHostClient(srv.URL, zap.NewNop())
	id, err := h.Send(context.Background(), "chat", "hello")
	require.NoError(t, err)
	assert.Equal(t, "abc-1", id)
	assert.Equal(t, "chat", got.Chat)
	assert.Equal(t, "hello", got.Text)
}

func TestHostClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHostClient(srv.URL, zap.NewNop())
	_, err := h.Send(context.Background(), "chat", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHostClientIsChatAdmin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/is_admin", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"admin": true})
	}))
	defer srv.Close()

	h := NewHostClient(srv.URL, zap.NewNop())
	admin, err := h.IsChatAdmin(context.Background(), "chat", "user")
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestHostClientRemoveParticipant(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHostClient(srv.URL, zap.NewNop())
	require.NoError(t, h.RemoveParticipant(context.Background(), "chat", "user"))
	assert.Equal(t, "/v1/remove", path)
}
