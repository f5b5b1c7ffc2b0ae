package transport

import (
	"context"
	"fmt"
	"sync"
)

// Recorder is an in-memory Transport that records outbound traffic. It
// backs the test suites the same way the in-memory store does.
type Recorder struct {
	mu      sync.Mutex
	nextID  int
	Sent    []SentMessage
	Removed []string
	Admins  map[string]bool // "chat/user" -> admin

	// SendErr, when set, makes Send fail; used to exercise delivery
	// failure paths.
	SendErr error
}

// SentMessage is one recorded Send call.
type SentMessage struct {
	MessageID string
	ChatID    string
	Text      string
}

func NewRecorder() *Recorder {
	return &Recorder{Admins: make(map[string]bool)}
}

func (r *Recorder) Send(_ context.Context, chatID, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil {
		return "", r.SendErr
	}
	r.nextID++
	id := fmt.Sprintf("msg-%d", r.nextID)
	r.Sent = append(r.Sent, SentMessage{MessageID: id, ChatID: chatID, Text: text})
	return id, nil
}

func (r *Recorder) SendTyping(context.Context, string, bool) error { return nil }

func (r *Recorder) RemoveParticipant(_ context.Context, chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Removed = append(r.Removed, chatID+"/"+userID)
	return nil
}

func (r *Recorder) IsChatAdmin(_ context.Context, chatID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Admins[chatID+"/"+userID], nil
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentMessage(nil), r.Sent...)
}

// LastMessage returns the most recent outbound message, if any.
func (r *Recorder) LastMessage() (SentMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return SentMessage{}, false
	}
	return r.Sent[len(r.Sent)-1], true
}
