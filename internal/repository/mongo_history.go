package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mansoorceksport/liftlog/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultHistoryLimit = 50

type MongoHistoryRepository struct {
	collection *mongo.Collection
}

func NewMongoHistoryRepository(db *mongo.Database) *MongoHistoryRepository {
	coll := db.Collection("workout_history")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: -1}},
	})

	return &MongoHistoryRepository{
		collection: coll,
	}
}

// Append inserts a finished workout. Records are keyed by their ULID, so a
// replayed insert of the same record is accepted as already written.
func (r *MongoHistoryRepository) Append(ctx context.Context, record *domain.HistoryRecord) error {
	if record.ID == "" {
		return domain.ErrInvalidID
	}
	_, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ListByUser returns the user's history, newest first.
func (r *MongoHistoryRepository) ListByUser(ctx context.Context, userID string, limit int64) ([]*domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []*domain.HistoryRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

type MongoActiveProgramRepository struct {
	collection *mongo.Collection
}

func NewMongoActiveProgramRepository(db *mongo.Database) *MongoActiveProgramRepository {
	return &MongoActiveProgramRepository{
		collection: db.Collection("active_programs"),
	}
}

func (r *MongoActiveProgramRepository) GetByUser(ctx context.Context, userID string) (*domain.ActiveProgram, error) {
	var active domain.ActiveProgram
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&active)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrActiveProgramNotFound
		}
		return nil, err
	}
	return &active, nil
}

// Upsert replaces the user's active program.
func (r *MongoActiveProgramRepository) Upsert(ctx context.Context, active *domain.ActiveProgram) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": active.UserID}, active, opts)
	if err != nil {
		return fmt.Errorf("failed to save active program: %w", err)
	}
	return nil
}
