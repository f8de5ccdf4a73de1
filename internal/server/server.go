package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mansoorceksport/liftlog/internal/clock"
	"github.com/mansoorceksport/liftlog/internal/config"
	"github.com/mansoorceksport/liftlog/internal/cue"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/handler"
	"github.com/mansoorceksport/liftlog/internal/metrics"
	"github.com/mansoorceksport/liftlog/internal/middleware"
	"github.com/mansoorceksport/liftlog/internal/notify"
	"github.com/mansoorceksport/liftlog/internal/repository"
	"github.com/mansoorceksport/liftlog/internal/session"
	"github.com/mansoorceksport/liftlog/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
	Archive     domain.HistoryArchive // optional
	Metrics     *metrics.Manager
	Gatherer    prometheus.Gatherer // served at /metrics when set
	Clock       clock.Clock         // optional, defaults to the wall clock
	Logger      *logrus.Entry
}

// App is the HTTP API together with the session runtime it owns.
type App struct {
	*fiber.App
	Sessions *session.Manager
	Catalog  *repository.CachedCatalogRepository

	cues *cue.Dispatcher
	log  *logrus.Entry
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *App {
	log := deps.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	// Initialize repositories
	cacheRepo := repository.NewRedisCacheRepository(deps.RedisClient)
	progressRepo := repository.NewRedisProgressRepository(cacheRepo)
	catalogRepo := repository.NewCachedCatalogRepository(repository.NewMongoCatalogRepository(deps.MongoDB), cacheRepo)
	historyRepo := repository.NewMongoHistoryRepository(deps.MongoDB)
	activeRepo := repository.NewMongoActiveProgramRepository(deps.MongoDB)

	// Session runtime
	inbox := notify.NewInbox()
	cues := cue.NewDispatcher(deps.Config.Session.CueBuffer, log.WithField("component", "cues"))
	sessions := session.NewManager(session.Deps{
		Catalog:        catalogRepo,
		Progress:       progressRepo,
		History:        historyRepo,
		ActivePrograms: activeRepo,
		Archive:        deps.Archive,
		Navigator:      inbox,
		Players: func(userID string) domain.CuePlayer {
			return cues.Wrap(cue.Multi{
				inbox.PlayerFor(userID),
				cue.NewLogPlayer(log.WithField("user_id", userID)),
			})
		},
		Clock:   deps.Clock,
		Metrics: deps.Metrics,
		Logger:  log.WithField("component", "session"),
	}, session.Config{
		RestGrace:        deps.Config.Session.RestGrace,
		TimeUpGrace:      deps.Config.Session.TimeUpGrace,
		AutoAdvanceTimed: deps.Config.Session.AutoAdvanceTimed,
	})

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(sessions, inbox)
	historyHandler := handler.NewHistoryHandler(historyRepo, activeRepo)
	catalogHandler := handler.NewCatalogHandler(catalogRepo)

	app := fiber.New(fiber.Config{
		AppName:      "LiftLog API",
		ErrorHandler: customErrorHandler(log),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: deps.Config.Server.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "liftlog",
		})
	})
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1")

	// Catalog (read-only)
	programs := v1.Group("/programs")
	programs.Use(middleware.VerifyToken(deps.Config.JWT.Secret))
	programs.Get("/", catalogHandler.ListPrograms)
	programs.Get("/:id", catalogHandler.GetProgram)

	// ===========================================
	// MEMBER API - /v1/me/*
	// ===========================================
	me := v1.Group("/me")
	me.Use(middleware.VerifyToken(deps.Config.JWT.Secret))
	me.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Config.Server.IdempotencyTTL, log.WithField("component", "idempotency")))

	me.Get("/history", historyHandler.ListHistory)
	me.Get("/active-program", historyHandler.GetActiveProgram)

	meSession := me.Group("/session")
	meSession.Post("/", sessionHandler.StartSession)
	meSession.Get("/", sessionHandler.GetSession)
	meSession.Delete("/", sessionHandler.AbandonSession)
	meSession.Post("/sets", sessionHandler.CompleteSet)
	meSession.Post("/rest/skip", sessionHandler.SkipRest)
	meSession.Post("/timer/start", sessionHandler.StartTimer)
	meSession.Post("/timer/stop", sessionHandler.StopTimer)
	meSession.Post("/timer/ack", sessionHandler.AcknowledgeTimer)

	return &App{
		App:      app,
		Sessions: sessions,
		Catalog:  catalogRepo,
		cues:     cues,
		log:      log,
	}
}

// Shutdown stops accepting requests, then stops every session timer and the
// cue dispatcher. Stored progress is kept so sessions resume after a restart.
func (a *App) Shutdown(ctx context.Context) error {
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	err := a.App.ShutdownWithTimeout(timeout)

	a.Sessions.Close()
	a.cues.Close()
	a.log.Info("session runtime stopped")
	return err
}

func customErrorHandler(log *logrus.Entry) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Path()).Error("request failed")
		}
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
