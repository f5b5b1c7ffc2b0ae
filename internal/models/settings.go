package models

import "time"

// Settings is the per-chat vetting policy.
type Settings struct {
	ChatID          string `bson:"_id" json:"chat_id"`
	Enabled         bool   `bson:"enabled" json:"enabled"`
	MainChatLink    string `bson:"main_chat_link,omitempty" json:"main_chat_link,omitempty"`
	WelcomeTemplate string `bson:"welcome_template,omitempty" json:"welcome_template,omitempty"`
	PassTemplate    string `bson:"pass_template,omitempty" json:"pass_template,omitempty"`
	FailTemplate    string `bson:"fail_template,omitempty" json:"fail_template,omitempty"`

	// QuestionsRef names the logical bank the chat interviews against.
	QuestionsRef string `bson:"questions_ref,omitempty" json:"questions_ref,omitempty"`

	PassThreshold       int           `bson:"pass_threshold" json:"pass_threshold"`
	MaxRetries          int           `bson:"max_retries" json:"max_retries"`
	MaxReminders        int           `bson:"max_reminders" json:"max_reminders"`
	ResponseTimeout     time.Duration `bson:"response_timeout" json:"response_timeout"`
	ReminderTimeout     time.Duration `bson:"reminder_timeout" json:"reminder_timeout"`
	SessionExpiry       time.Duration `bson:"session_expiry" json:"session_expiry"`
	RulesAckAttemptsMax int           `bson:"rules_ack_attempts_max" json:"rules_ack_attempts_max"`

	ExemptOperators  []string `bson:"exempt_operators,omitempty" json:"exempt_operators,omitempty"`
	AutoRemoveOnFail bool     `bson:"auto_remove_on_fail" json:"auto_remove_on_fail"`
	UseLLM           bool     `bson:"use_llm" json:"use_llm"`

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultSettings returns the policy applied to a chat before any admin
// override.
func DefaultSettings(chatID string) *Settings {
	return &Settings{
		ChatID:              chatID,
		Enabled:             false,
		PassThreshold:       70,
		MaxRetries:          3,
		MaxReminders:        3,
		ResponseTimeout:     10 * time.Minute,
		ReminderTimeout:     6 * time.Hour,
		SessionExpiry:       48 * time.Hour,
		RulesAckAttemptsMax: 3,
		AutoRemoveOnFail:    false,
		UseLLM:              true,
	}
}

// IsExempt reports whether the user is excluded from auto-removal.
func (s *Settings) IsExempt(userID string) bool {
	for _, op := range s.ExemptOperators {
		if op == userID {
			return true
		}
	}
	return false
}
