// Package transport abstracts the chat host the core replies through. The
// host authenticates candidates upstream; identifiers are opaque here.
package transport

import (
	"context"
	"time"
)

// Image describes an inbound picture; bytes stay with the host.
type Image struct {
	Mimetype string `json:"mimetype"`
}

// Quoted references a previously sent message the inbound one replies to.
type Quoted struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

// MessageEvent is one inbound chat message.
type MessageEvent struct {
	EventID string    `json:"event_id,omitempty"`
	ChatID  string    `json:"chat"`
	UserID  string    `json:"user"`
	Name    string    `json:"name,omitempty"`
	Text    string    `json:"text,omitempty"`
	Image   *Image    `json:"image,omitempty"`
	Quoted  *Quoted   `json:"quoted,omitempty"`
	At      time.Time `json:"at,omitempty"`
}

// MembershipEvent signals a join or leave in a chat.
type MembershipEvent struct {
	ChatID string `json:"chat"`
	UserID string `json:"user"`
	Name   string `json:"name,omitempty"`
	Change string `json:"change"` // "joined" or "left"
}

// Transport is the outbound capability set supplied by the host.
type Transport interface {
	// Send delivers text to a chat and returns the outbound message id.
	Send(ctx context.Context, chatID, text string) (string, error)
	SendTyping(ctx context.Context, chatID string, on bool) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	IsChatAdmin(ctx context.Context, chatID, userID string) (bool, error)
}
