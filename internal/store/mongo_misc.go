package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gatekeeper/internal/models"
)

type mongoSettings struct {
	col *mongo.Collection
}

func (r *mongoSettings) Get(ctx context.Context, chatID string) (*models.Settings, error) {
	var s models.Settings
	err := r.col.FindOne(ctx, bson.M{"_id": chatID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoSettings) Put(ctx context.Context, s *models.Settings) error {
	s.UpdatedAt = time.Now().UTC()
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.ChatID}, s, opts)
	return err
}

type mongoQuestions struct {
	col *mongo.Collection
}

func (r *mongoQuestions) Get(ctx context.Context, chatID string) (*models.QuestionBank, error) {
	var b models.QuestionBank
	err := r.col.FindOne(ctx, bson.M{"_id": chatID}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *mongoQuestions) Put(ctx context.Context, b *models.QuestionBank) error {
	b.UpdatedAt = time.Now().UTC()
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": b.ChatID}, b, opts)
	return err
}

func (r *mongoQuestions) Delete(ctx context.Context, chatID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": chatID})
	return err
}

type mongoResults struct {
	col *mongo.Collection
}

func (r *mongoResults) Put(ctx context.Context, res *models.Result) error {
	_, err := r.col.InsertOne(ctx, res)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("store: result for session %s already written", res.SessionID)
	}
	return err
}

func (r *mongoResults) Get(ctx context.Context, sessionID string) (*models.Result, error) {
	var res models.Result
	err := r.col.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&res)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *mongoResults) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type mongoStats struct {
	col *mongo.Collection
}

func (r *mongoStats) Get(ctx context.Context, chatID string) (*models.Stats, error) {
	var s models.Stats
	err := r.col.FindOne(ctx, bson.M{"_id": chatID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.Stats{ChatID: chatID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoStats) Increment(ctx context.Context, chatID, field string, delta int64) error {
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": chatID},
		bson.M{"$inc": bson.M{field: delta}}, opts)
	return err
}

func (r *mongoStats) RecordCompletion(ctx context.Context, chatID string, percentage float64, duration time.Duration) error {
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{
		"$inc": bson.M{
			"completed":            int64(1),
			"score_sum":            percentage,
			"duration_sum_seconds": duration.Seconds(),
		},
	}, opts)
	return err
}

type mongoPrompts struct {
	col *mongo.Collection
}

func (r *mongoPrompts) Get(ctx context.Context, chatID string) (*models.EvalPrompt, error) {
	var p models.EvalPrompt
	err := r.col.FindOne(ctx, bson.M{"_id": chatID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *mongoPrompts) Put(ctx context.Context, p *models.EvalPrompt) error {
	p.UpdatedAt = time.Now().UTC()
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.ChatID}, p, opts)
	return err
}

func (r *mongoPrompts) Delete(ctx context.Context, chatID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": chatID})
	return err
}
