package models

import (
	"time"
)

// State is the lifecycle position of an interview session.
type State string

const (
	StateActive           State = "active"
	StateAwaitingPhoto    State = "awaiting_photo"
	StateAwaitingDOB      State = "awaiting_dob"
	StateAwaitingFollowup State = "awaiting_followup"
	StateAwaitingRulesAck State = "awaiting_rules_ack"
	StateEvaluating       State = "evaluating"
	StateApproved         State = "approved"
	StateRejected         State = "rejected"
	StatePendingReview    State = "pending_review"
	StateFailedTimeout    State = "failed_timeout"
	StateTerminated       State = "terminated"
	StateExpired          State = "expired"
)

// Terminal reports whether no further transitions are permitted from s.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateRejected, StatePendingReview,
		StateFailedTimeout, StateTerminated, StateExpired:
		return true
	}
	return false
}

// TerminalFailureStates are the outcomes that count against the retry budget.
var TerminalFailureStates = []State{StateRejected, StateFailedTimeout}

// NonTerminalStates lists every state a live session can be in.
var NonTerminalStates = []State{
	StateActive, StateAwaitingPhoto, StateAwaitingDOB,
	StateAwaitingFollowup, StateAwaitingRulesAck, StateEvaluating,
}

// CandidateKey identifies a candidate within a vetting chat.
type CandidateKey struct {
	ChatID string `bson:"chat_id" json:"chat_id"`
	UserID string `bson:"user_id" json:"user_id"`
}

func (k CandidateKey) String() string { return k.ChatID + "/" + k.UserID }

// Answer is one scored reply to a bank question. Cursor records the
// position the answer was taken at; redelivery detection keys on it.
type Answer struct {
	QuestionID   string    `bson:"question_id" json:"question_id"`
	QuestionText string    `bson:"question_text" json:"question_text"`
	Cursor       int       `bson:"cursor" json:"cursor"`
	RawAnswer    string    `bson:"raw_answer" json:"raw_answer"`
	Score        float64   `bson:"score" json:"score"`
	MaxScore     float64   `bson:"max_score" json:"max_score"`
	Feedback     string    `bson:"feedback,omitempty" json:"feedback,omitempty"`
	At           time.Time `bson:"at" json:"at"`
}

// Followup is a conversational probe tied to a parent question. It is not
// scored directly.
type Followup struct {
	ParentQuestionID string    `bson:"parent_question_id" json:"parent_question_id"`
	Cursor           int       `bson:"cursor" json:"cursor"`
	Prompt           string    `bson:"prompt" json:"prompt"`
	RawAnswer        string    `bson:"raw_answer" json:"raw_answer"`
	At               time.Time `bson:"at" json:"at"`
}

// Photo records that the candidate supplied an image; the bytes stay with
// the transport.
type Photo struct {
	Mimetype   string `bson:"mimetype" json:"mimetype"`
	Provenance string `bson:"provenance,omitempty" json:"provenance,omitempty"`
}

// DateOfBirth as parsed from a free-text answer. Year is optional.
type DateOfBirth struct {
	Day   int  `bson:"day" json:"day"`
	Month int  `bson:"month" json:"month"`
	Year  *int `bson:"year,omitempty" json:"year,omitempty"`
}

// Valid reports whether day and month are in range.
func (d DateOfBirth) Valid() bool {
	return d.Day >= 1 && d.Day <= 31 && d.Month >= 1 && d.Month <= 12
}

// Session is the long-lived record of one interview attempt.
type Session struct {
	ID          string `bson:"_id" json:"id"`
	ChatID      string `bson:"chat_id" json:"chat_id"`
	UserID      string `bson:"user_id" json:"user_id"`
	DisplayName string `bson:"display_name" json:"display_name"`
	Attempt     int    `bson:"attempt" json:"attempt"`

	State  State `bson:"state" json:"state"`
	Cursor int   `bson:"cursor" json:"cursor"`

	// FollowupParent is set only while State == StateAwaitingFollowup.
	FollowupParent string `bson:"followup_parent,omitempty" json:"followup_parent,omitempty"`

	Answers   []Answer   `bson:"answers" json:"answers"`
	Followups []Followup `bson:"followups" json:"followups"`

	Photo *Photo       `bson:"photo,omitempty" json:"photo,omitempty"`
	DOB   *DateOfBirth `bson:"dob,omitempty" json:"dob,omitempty"`

	RulesAcknowledged bool `bson:"rules_acknowledged" json:"rules_acknowledged"`
	RulesAckAttempts  int  `bson:"rules_ack_attempts" json:"rules_ack_attempts"`

	RemindersSent  int       `bson:"reminders_sent" json:"reminders_sent"`
	LastReminderAt time.Time `bson:"last_reminder_at,omitempty" json:"last_reminder_at,omitempty"`
	LastActivityAt time.Time `bson:"last_activity_at" json:"last_activity_at"`
	StartedAt      time.Time `bson:"started_at" json:"started_at"`
	ExpiresAt      time.Time `bson:"expires_at" json:"expires_at"`
	CompletedAt    time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	// LastEventID deduplicates redelivered transport events.
	LastEventID string `bson:"last_event_id,omitempty" json:"last_event_id,omitempty"`

	Score           float64 `bson:"score" json:"score"`
	Percentage      float64 `bson:"percentage" json:"percentage"`
	VerdictFeedback string  `bson:"verdict_feedback,omitempty" json:"verdict_feedback,omitempty"`
}

// Key returns the candidate identity of the session.
func (s *Session) Key() CandidateKey {
	return CandidateKey{ChatID: s.ChatID, UserID: s.UserID}
}

// Duration is the wall-clock length of the attempt so far.
func (s *Session) Duration(now time.Time) time.Duration {
	end := s.CompletedAt
	if end.IsZero() {
		end = now
	}
	return end.Sub(s.StartedAt)
}
