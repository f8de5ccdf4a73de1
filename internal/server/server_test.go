package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mansoorceksport/liftlog/internal/clock"
	"github.com/mansoorceksport/liftlog/internal/config"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/metrics"
	"github.com/mansoorceksport/liftlog/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const testSecret = "test-secret-key-123"

// setupTestDB spins up a fresh MongoDB container for the test.
func setupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client.Database("liftlog_e2e")
}

type testServer struct {
	app     *App
	clock   *clock.Fake
	redis   *miniredis.Miniredis
	program *domain.Program
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	// Seed the catalog
	catalog := repository.NewMongoCatalogRepository(db)
	squat := &domain.Exercise{Name: "Squat", MuscleGroup: "legs", DefaultRestTime: 120}
	plank := &domain.Exercise{Name: "Plank", MuscleGroup: "core"}
	require.NoError(t, catalog.UpsertExercise(ctx, squat))
	require.NoError(t, catalog.UpsertExercise(ctx, plank))
	program := &domain.Program{
		Name:            "Two Day Split",
		WorkoutsPerWeek: 2,
		Workouts: []*domain.Workout{{
			ID:   "day-1",
			Name: "Day 1",
			Exercises: []*domain.WorkoutExercise{
				{ExerciseID: squat.ID, Sets: 2, Reps: 5, Weight: 80},
				{ExerciseID: plank.ID, Sets: 1, Duration: 30},
			},
		}},
	}
	require.NoError(t, catalog.CreateProgram(ctx, program))

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.Server.AllowedOrigins = "*"
	cfg.Server.IdempotencyTTL = time.Minute
	cfg.Session.RestGrace = time.Second
	cfg.Session.TimeUpGrace = 1500 * time.Millisecond
	cfg.Session.AutoAdvanceTimed = true

	l := logrus.New()
	l.SetOutput(io.Discard)

	clk := clock.NewFake(time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC))
	m, reg := metrics.NewTestManagerAndRegistry()
	app := NewApp(AppDependencies{
		Config:      cfg,
		MongoDB:     db,
		RedisClient: redisClient,
		Metrics:     m,
		Gatherer:    reg,
		Clock:       clk,
		Logger:      logrus.NewEntry(l),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})

	return &testServer{app: app, clock: clk, redis: mr, program: program}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, domain.AccessClaims{
		UserID: userID,
		Email:  userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) request(t *testing.T, method, path, bearer string, body interface{}, headers ...string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func phaseOf(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	session, ok := body["session"].(map[string]interface{})
	require.True(t, ok, "response has no session: %v", body)
	return session["phase"].(string)
}

func TestGoldenPath(t *testing.T) {
	s := newTestServer(t)
	user := token(t, "user-1")

	// 1. Health and auth
	resp, _ := s.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.request(t, http.MethodGet, "/v1/programs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// 2. Browse the catalog
	resp, body := s.request(t, http.MethodGet, "/v1/programs/"+s.program.ID, user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Two Day Split", body["name"])

	// 3. Start the workout
	resp, body = s.request(t, http.MethodPost, "/v1/me/session", user,
		map[string]string{"program_id": s.program.ID, "workout_id": "day-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "exercise", phaseOf(t, body))

	// 4. Squat: two sets, resting between them
	resp, body = s.request(t, http.MethodPost, "/v1/me/session/sets", user, map[string]interface{}{"reps": 5, "weight": 82.5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "resting", phaseOf(t, body))
	timer := body["session"].(map[string]interface{})["timer"].(map[string]interface{})
	assert.EqualValues(t, 120, timer["target"])

	s.clock.Advance(121 * time.Second)
	resp, body = s.request(t, http.MethodGet, "/v1/me/session", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "exercise", phaseOf(t, body), "expired rest is dismissed after the grace period")

	resp, body = s.request(t, http.MethodPost, "/v1/me/session/sets", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "resting", phaseOf(t, body))

	// 5. Plank: skip rest, let the countdown run out
	resp, _ = s.request(t, http.MethodPost, "/v1/me/session/rest/skip", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.request(t, http.MethodPost, "/v1/me/session/timer/start", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "timing", phaseOf(t, body))

	s.clock.Advance(30 * time.Second)
	s.clock.Advance(2 * time.Second)

	resp, body = s.request(t, http.MethodGet, "/v1/me/session", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "finished", phaseOf(t, body))
	assert.Equal(t, string(domain.DestinationActiveProgram), body["redirect"])

	// 6. History and program position
	resp, body = s.request(t, http.MethodGet, "/v1/me/history", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := body["data"].([]interface{})
	require.Len(t, records, 1)

	resp, body = s.request(t, http.MethodGet, "/v1/me/active-program", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, s.program.ID, body["programId"])

	// progress is gone once the workout is in history
	assert.False(t, s.redis.Exists("workout:progress:user-1"))

	// 7. Metrics are exposed
	resp, _ = s.request(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionResumesAfterRestart(t *testing.T) {
	s := newTestServer(t)
	user := token(t, "user-2")
	start := map[string]string{"program_id": s.program.ID, "workout_id": "day-1"}

	resp, _ := s.request(t, http.MethodPost, "/v1/me/session", user, start)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = s.request(t, http.MethodPost, "/v1/me/session/sets", user, map[string]int{"reps": 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the in-memory session is lost, the stored progress is not
	s.app.Sessions.Close()

	resp, body := s.request(t, http.MethodPost, "/v1/me/session", user, start)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := body["session"].(map[string]interface{})
	assert.Equal(t, true, session["resumed"])
	current := session["currentExercise"].(map[string]interface{})
	assert.EqualValues(t, 1, current["completedSets"])
}

func TestCompleteSetIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	user := token(t, "user-3")

	resp, _ := s.request(t, http.MethodPost, "/v1/me/session", user,
		map[string]string{"program_id": s.program.ID, "workout_id": "day-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, _ = s.request(t, http.MethodPost, "/v1/me/session/sets", user, nil, "X-Correlation-ID", "set-1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, "true", resp.Header.Get("X-Idempotent-Replay"))

	resp, body := s.request(t, http.MethodGet, "/v1/me/session", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := body["session"].(map[string]interface{})["currentExercise"].(map[string]interface{})
	assert.EqualValues(t, 1, current["completedSets"], "replayed request records one set")
}

func TestUnknownWorkoutRedirectsToSelection(t *testing.T) {
	s := newTestServer(t)
	user := token(t, "user-4")

	resp, body := s.request(t, http.MethodPost, "/v1/me/session", user,
		map[string]string{"program_id": s.program.ID, "workout_id": "day-9"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(domain.DestinationProgramSelection), body["redirect"])
}
