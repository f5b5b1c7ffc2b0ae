package models

import "time"

// QuestionType tags how an answer to a question is collected and scored.
type QuestionType string

const (
	QuestionOpen    QuestionType = "open"
	QuestionBoolean QuestionType = "boolean"
	QuestionChoice  QuestionType = "choice"
	QuestionPhoto   QuestionType = "photo"
	QuestionDOB     QuestionType = "dob"
)

// Question is one entry of a chat's question bank.
type Question struct {
	ID           string       `bson:"id" json:"id" yaml:"id"`
	Text         string       `bson:"text" json:"text" yaml:"text"`
	Required     bool         `bson:"required" json:"required" yaml:"required"`
	Type         QuestionType `bson:"type" json:"type" yaml:"type"`
	Weight       float64      `bson:"weight" json:"weight" yaml:"weight"`
	Choices      []string     `bson:"choices,omitempty" json:"choices,omitempty" yaml:"choices,omitempty"`
	CorrectValue string       `bson:"correct_value,omitempty" json:"correct_value,omitempty" yaml:"correct_value,omitempty"`
	AICriteria   string       `bson:"ai_criteria,omitempty" json:"ai_criteria,omitempty" yaml:"ai_criteria,omitempty"`
}

// QuestionBank is the ordered question list for one chat. Reordering the
// list produces a new logical bank.
type QuestionBank struct {
	ChatID    string     `bson:"_id" json:"chat_id"`
	Questions []Question `bson:"questions" json:"questions"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// ByID returns the question with the given id, if present.
func (b *QuestionBank) ByID(id string) (Question, bool) {
	for _, q := range b.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
