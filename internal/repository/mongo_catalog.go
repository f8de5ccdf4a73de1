package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mansoorceksport/liftlog/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoCatalogRepository struct {
	exercises *mongo.Collection
	programs  *mongo.Collection
}

func NewMongoCatalogRepository(db *mongo.Database) *MongoCatalogRepository {
	exercises := db.Collection("exercises")

	// Create Index
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mod := mongo.IndexModel{
		Keys:    bson.M{"name": 1},
		Options: options.Index().SetUnique(true),
	}
	exercises.Indexes().CreateOne(ctx, mod)

	return &MongoCatalogRepository{
		exercises: exercises,
		programs:  db.Collection("programs"),
	}
}

func (r *MongoCatalogRepository) GetProgram(ctx context.Context, id string) (*domain.Program, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var program domain.Program
	err = r.programs.FindOne(ctx, bson.M{"_id": oid}).Decode(&program)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProgramNotFound
		}
		return nil, err
	}
	return &program, nil
}

func (r *MongoCatalogRepository) ListPrograms(ctx context.Context) ([]*domain.Program, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.programs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	programs := []*domain.Program{}
	if err := cursor.All(ctx, &programs); err != nil {
		return nil, err
	}
	return programs, nil
}

func (r *MongoCatalogRepository) GetExercise(ctx context.Context, id string) (*domain.Exercise, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var ex domain.Exercise
	err = r.exercises.FindOne(ctx, bson.M{"_id": oid}).Decode(&ex)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrExerciseNotFound
		}
		return nil, err
	}
	return &ex, nil
}

// GetExercisesByIDs returns the exercises found, keyed by id. Unknown or
// malformed ids are left out.
func (r *MongoCatalogRepository) GetExercisesByIDs(ctx context.Context, ids []string) (map[string]*domain.Exercise, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}

	result := make(map[string]*domain.Exercise, len(oids))
	if len(oids) == 0 {
		return result, nil
	}

	cursor, err := r.exercises.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var exercises []*domain.Exercise
	if err := cursor.All(ctx, &exercises); err != nil {
		return nil, err
	}
	for _, ex := range exercises {
		result[ex.ID] = ex
	}
	return result, nil
}

// UpsertExercise inserts the exercise or updates the one with the same name,
// filling ex.ID either way.
func (r *MongoCatalogRepository) UpsertExercise(ctx context.Context, ex *domain.Exercise) error {
	now := time.Now()
	ex.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"muscle_group":      ex.MuscleGroup,
			"equipment":         ex.Equipment,
			"default_rest_time": ex.DefaultRestTime,
			"updated_at":        ex.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored domain.Exercise
	err := r.exercises.FindOneAndUpdate(ctx, bson.M{"name": ex.Name}, update, opts).Decode(&stored)
	if err != nil {
		return fmt.Errorf("failed to upsert exercise: %w", err)
	}
	ex.ID = stored.ID
	ex.CreatedAt = stored.CreatedAt
	return nil
}

func (r *MongoCatalogRepository) CreateProgram(ctx context.Context, program *domain.Program) error {
	program.CreatedAt = time.Now()
	program.UpdatedAt = time.Now()

	result, err := r.programs.InsertOne(ctx, program)
	if err != nil {
		return fmt.Errorf("failed to create program: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		program.ID = oid.Hex()
	}
	return nil
}

// DeleteProgramByName removes programs with the given name so reseeding stays idempotent.
func (r *MongoCatalogRepository) DeleteProgramByName(ctx context.Context, name string) error {
	_, err := r.programs.DeleteMany(ctx, bson.M{"name": name})
	return err
}
