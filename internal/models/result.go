package models

import "time"

// Result is the immutable terminal record of one interview attempt. It is
// written exactly once, before the session itself is marked terminal, so a
// crash between the two writes reconverges on the next reconciliation sweep.
type Result struct {
	SessionID   string `bson:"_id" json:"session_id"`
	ChatID      string `bson:"chat_id" json:"chat_id"`
	UserID      string `bson:"user_id" json:"user_id"`
	DisplayName string `bson:"display_name" json:"display_name"`
	Attempt     int    `bson:"attempt" json:"attempt"`

	State      State   `bson:"state" json:"state"`
	Score      float64 `bson:"score" json:"score"`
	Percentage float64 `bson:"percentage" json:"percentage"`
	Feedback   string  `bson:"feedback,omitempty" json:"feedback,omitempty"`

	Answers      []Answer     `bson:"answers" json:"answers"`
	Followups    []Followup   `bson:"followups,omitempty" json:"followups,omitempty"`
	PhotoPresent bool         `bson:"photo_present" json:"photo_present"`
	DOB          *DateOfBirth `bson:"dob,omitempty" json:"dob,omitempty"`

	StartedAt   time.Time     `bson:"started_at" json:"started_at"`
	CompletedAt time.Time     `bson:"completed_at" json:"completed_at"`
	Duration    time.Duration `bson:"duration" json:"duration"`
}

// ResultFromSession snapshots a session into its terminal record.
func ResultFromSession(s *Session, terminal State, completedAt time.Time) *Result {
	return &Result{
		SessionID:    s.ID,
		ChatID:       s.ChatID,
		UserID:       s.UserID,
		DisplayName:  s.DisplayName,
		Attempt:      s.Attempt,
		State:        terminal,
		Score:        s.Score,
		Percentage:   s.Percentage,
		Feedback:     s.VerdictFeedback,
		Answers:      s.Answers,
		Followups:    s.Followups,
		PhotoPresent: s.Photo != nil,
		DOB:          s.DOB,
		StartedAt:    s.StartedAt,
		CompletedAt:  completedAt,
		Duration:     completedAt.Sub(s.StartedAt),
	}
}
