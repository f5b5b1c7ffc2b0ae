package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names, one per persisted entity.
const (
	colSessions = "interview_sessions"
	colSettings = "interview_settings"
	colQuestion = "interview_questions"
	colResults  = "interview_results"
	colStats    = "interview_stats"
	colPrompts  = "interview_eval_prompts"
)

// Mongo wraps a database handle and hands out typed repositories.
type Mongo struct {
	db *mongo.Database
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &Mongo{db: client.Database(dbName)}, nil
}

// NewStore builds the repository bundle and ensures indexes.
func (m *Mongo) NewStore(ctx context.Context) (*Store, error) {
	sessions := m.db.Collection(colSessions)
	_, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "attempt", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "state", Value: 1}}},
		{Keys: bson.D{{Key: "last_activity_at", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}

	return &Store{
		Sessions:  &mongoSessions{col: sessions},
		Settings:  &mongoSettings{col: m.db.Collection(colSettings)},
		Questions: &mongoQuestions{col: m.db.Collection(colQuestion)},
		Results:   &mongoResults{col: m.db.Collection(colResults)},
		Stats:     &mongoStats{col: m.db.Collection(colStats)},
		Prompts:   &mongoPrompts{col: m.db.Collection(colPrompts)},
	}, nil
}

// Disconnect closes the underlying client.
func (m *Mongo) Disconnect(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

// Ping reports whether the database is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, nil)
}
