package models

import "time"

// Stats holds per-chat interview counters. Sums and completion counts are
// kept instead of averages so increments stay atomic.
type Stats struct {
	ChatID        string `bson:"_id" json:"chat_id"`
	Total         int64  `bson:"total" json:"total"`
	Approved      int64  `bson:"approved" json:"approved"`
	Rejected      int64  `bson:"rejected" json:"rejected"`
	AutoRemoved   int64  `bson:"auto_removed" json:"auto_removed"`
	PendingReview int64  `bson:"pending_review" json:"pending_review"`
	FailedTimeout int64  `bson:"failed_timeout" json:"failed_timeout"`

	Completed   int64   `bson:"completed" json:"completed"`
	ScoreSum    float64 `bson:"score_sum" json:"score_sum"`
	DurationSum float64 `bson:"duration_sum_seconds" json:"duration_sum_seconds"`
}

// AvgScore is the rolling mean percentage across completed attempts.
func (s *Stats) AvgScore() float64 {
	if s.Completed == 0 {
		return 0
	}
	return s.ScoreSum / float64(s.Completed)
}

// AvgDuration is the rolling mean attempt length.
func (s *Stats) AvgDuration() time.Duration {
	if s.Completed == 0 {
		return 0
	}
	return time.Duration(s.DurationSum/float64(s.Completed)) * time.Second
}

// EvalPrompt is a per-chat override of the scoring prompt template. The
// template must carry a ${responses} placeholder.
type EvalPrompt struct {
	ChatID    string    `bson:"_id" json:"chat_id"`
	Template  string    `bson:"template" json:"template"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
