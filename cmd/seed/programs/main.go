package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/liftlog/internal/config"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type seedExercise struct {
	Exercise domain.Exercise
	Sets     int
	Reps     int
	Weight   float64
	Duration int
}

type seedWorkout struct {
	ID        string
	Name      string
	Exercises []seedExercise
}

var starterStrength = struct {
	Name            string
	Description     string
	WorkoutsPerWeek int
	Workouts        []seedWorkout
}{
	Name:            "Starter Strength",
	Description:     "Three full body days a week built on the big lifts",
	WorkoutsPerWeek: 3,
	Workouts: []seedWorkout{
		{ID: "day-a", Name: "Day A", Exercises: []seedExercise{
			{Exercise: domain.Exercise{Name: "Barbell Squat", MuscleGroup: "Legs", Equipment: "Barbell", DefaultRestTime: 150}, Sets: 3, Reps: 5, Weight: 60},
			{Exercise: domain.Exercise{Name: "Barbell Bench Press", MuscleGroup: "Chest", Equipment: "Barbell", DefaultRestTime: 120}, Sets: 3, Reps: 5, Weight: 40},
			{Exercise: domain.Exercise{Name: "Plank", MuscleGroup: "Core", Equipment: "Bodyweight", DefaultRestTime: 45}, Sets: 2, Duration: 45},
		}},
		{ID: "day-b", Name: "Day B", Exercises: []seedExercise{
			{Exercise: domain.Exercise{Name: "Barbell Squat", MuscleGroup: "Legs", Equipment: "Barbell", DefaultRestTime: 150}, Sets: 3, Reps: 5, Weight: 60},
			{Exercise: domain.Exercise{Name: "Overhead Press", MuscleGroup: "Shoulders", Equipment: "Barbell", DefaultRestTime: 120}, Sets: 3, Reps: 5, Weight: 25},
			{Exercise: domain.Exercise{Name: "Deadlift", MuscleGroup: "Back/Legs", Equipment: "Barbell", DefaultRestTime: 180}, Sets: 1, Reps: 5, Weight: 70},
		}},
		{ID: "day-c", Name: "Day C", Exercises: []seedExercise{
			{Exercise: domain.Exercise{Name: "Goblet Squat", MuscleGroup: "Legs", Equipment: "Dumbbell", DefaultRestTime: 90}, Sets: 3, Reps: 10, Weight: 16},
			{Exercise: domain.Exercise{Name: "Barbell Row", MuscleGroup: "Back", Equipment: "Barbell", DefaultRestTime: 90}, Sets: 3, Reps: 8, Weight: 40},
			{Exercise: domain.Exercise{Name: "Mountain Climber", MuscleGroup: "Core", Equipment: "Bodyweight", DefaultRestTime: 30}, Sets: 3, Duration: 30},
		}},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		logrus.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer client.Disconnect(context.Background())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	repo := repository.NewMongoCatalogRepository(client.Database(cfg.MongoDB.Database))

	program := &domain.Program{
		Name:            starterStrength.Name,
		Description:     starterStrength.Description,
		WorkoutsPerWeek: starterStrength.WorkoutsPerWeek,
	}
	for _, sw := range starterStrength.Workouts {
		workout := &domain.Workout{ID: sw.ID, Name: sw.Name}
		for _, se := range sw.Exercises {
			ex := se.Exercise
			if err := repo.UpsertExercise(ctx, &ex); err != nil {
				logrus.Fatalf("Error upserting %s: %v", ex.Name, err)
			}
			workout.Exercises = append(workout.Exercises, &domain.WorkoutExercise{
				ExerciseID: ex.ID,
				Sets:       se.Sets,
				Reps:       se.Reps,
				Weight:     se.Weight,
				Duration:   se.Duration,
			})
		}
		program.Workouts = append(program.Workouts, workout)
	}

	// Replace the previous version of the program
	if err := repo.DeleteProgramByName(ctx, program.Name); err != nil {
		logrus.Fatalf("Error removing old %s: %v", program.Name, err)
	}
	if err := repo.CreateProgram(ctx, program); err != nil {
		logrus.Fatalf("Error creating %s: %v", program.Name, err)
	}
	fmt.Printf("Created program: %s (%s)\n", program.Name, program.ID)

	// Cached definitions would otherwise outlive the reseed
	cached := repository.NewCachedCatalogRepository(repo, repository.NewRedisCacheRepository(redisClient))
	if err := cached.Invalidate(ctx); err != nil {
		logrus.Warnf("Failed to invalidate catalog cache: %v", err)
	}
	fmt.Println("Seeding Programs Complete.")
}
