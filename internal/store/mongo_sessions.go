package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gatekeeper/internal/models"
)

type mongoSessions struct {
	col *mongo.Collection
}

func (r *mongoSessions) Put(ctx context.Context, s *models.Session) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.ID}, s, opts)
	return err
}

func (r *mongoSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoSessions) FindActive(ctx context.Context, key models.CandidateKey) (*models.Session, error) {
	filter := bson.M{
		"chat_id": key.ChatID,
		"user_id": key.UserID,
		"state":   bson.M{"$in": models.NonTerminalStates},
	}
	var s models.Session
	err := r.col.FindOne(ctx, filter).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoSessions) CountTerminal(ctx context.Context, key models.CandidateKey, states []models.State) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{
		"chat_id": key.ChatID,
		"user_id": key.UserID,
		"state":   bson.M{"$in": states},
	})
}

func (r *mongoSessions) FindNonTerminal(ctx context.Context) ([]*models.Session, error) {
	return r.find(ctx, bson.M{"state": bson.M{"$in": models.NonTerminalStates}})
}

func (r *mongoSessions) FindReminderDue(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	// $expr compares reminders_sent against the chat policy snapshot the
	// sweep re-checks anyway; the filter only needs to be a superset.
	return r.find(ctx, bson.M{
		"state":            bson.M{"$in": models.NonTerminalStates},
		"last_activity_at": bson.M{"$lt": cutoff},
		"$or": bson.A{
			bson.M{"last_reminder_at": bson.M{"$lt": cutoff}},
			bson.M{"last_reminder_at": bson.M{"$exists": false}},
		},
	})
}

func (r *mongoSessions) FindExpired(ctx context.Context, now time.Time) ([]*models.Session, error) {
	return r.find(ctx, bson.M{
		"state":      bson.M{"$in": models.NonTerminalStates},
		"expires_at": bson.M{"$lt": now},
	})
}

func (r *mongoSessions) FindEvaluating(ctx context.Context) ([]*models.Session, error) {
	return r.find(ctx, bson.M{"state": models.StateEvaluating})
}

func (r *mongoSessions) find(ctx context.Context, filter bson.M) ([]*models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity_at", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
