package controller

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gatekeeper/internal/transport"
)

// messagePayload is the webhook body posted by the chat host for an
// inbound group message.
type messagePayload struct {
	EventID string `json:"event_id"`
	ChatID  string `json:"chat_id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Text    string `json:"text"`
	Image   *struct {
		Mimetype string `json:"mimetype"`
	} `json:"image,omitempty"`
	Quoted *struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"quoted,omitempty"`
	Timestamp int64 `json:"timestamp"`
}

type membershipPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Change string `json:"change"`
}

// Routes mounts the webhook endpoints on the given router.
func (c *Controller) Routes(r chi.Router) {
	r.Get("/health", c.handleHealth)
	r.Route("/v1/events", func(r chi.Router) {
		r.Post("/message", c.handleMessageEvent)
		r.Post("/membership", c.handleMembershipEvent)
	})
}

func (c *Controller) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "gatekeeper"})
}

func (c *Controller) handleMessageEvent(w http.ResponseWriter, r *http.Request) {
	var p messagePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if p.ChatID == "" || p.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id and user_id are required"})
		return
	}

	ev := transport.MessageEvent{
		EventID: p.EventID,
		ChatID:  p.ChatID,
		UserID:  p.UserID,
		Name:    p.Name,
		Text:    p.Text,
		At:      time.Unix(p.Timestamp, 0),
	}
	if p.Timestamp == 0 {
		ev.At = time.Now()
	}
	if p.Image != nil {
		ev.Image = &transport.Image{Mimetype: p.Image.Mimetype}
	}
	if p.Quoted != nil {
		ev.Quoted = &transport.Quoted{ID: p.Quoted.ID, Text: p.Quoted.Text}
	}

	c.HandleMessage(r.Context(), ev)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (c *Controller) handleMembershipEvent(w http.ResponseWriter, r *http.Request) {
	var p membershipPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if p.ChatID == "" || p.UserID == "" || p.Change == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id, user_id and change are required"})
		return
	}
	if p.Change != "joined" && p.Change != "left" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "change must be joined or left"})
		return
	}

	c.HandleMembership(r.Context(), transport.MembershipEvent{
		ChatID: p.ChatID,
		UserID: p.UserID,
		Name:   p.Name,
		Change: p.Change,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}
