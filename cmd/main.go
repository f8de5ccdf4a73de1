package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mansoorceksport/liftlog/internal/config"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/logging"
	"github.com/mansoorceksport/liftlog/internal/metrics"
	"github.com/mansoorceksport/liftlog/internal/repository"
	"github.com/mansoorceksport/liftlog/internal/server"
	"github.com/mansoorceksport/liftlog/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:   cfg.Log.FileName,
		LogToStdout:   cfg.Log.ToStdout,
		LogLevel:      cfg.Log.Level,
		LogFormatJSON: cfg.Log.JSON,
	})
	log := logrus.WithField("service", "liftlog")
	log.Info("Starting LiftLog workout service...")

	ctx := context.Background()

	otelProvider, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    "liftlog",
		ServiceVersion: cfg.OTEL.ServiceVersion,
		Environment:    cfg.OTEL.Environment,
		Endpoint:       cfg.OTEL.Endpoint,
		PathPrefix:     cfg.OTEL.PathPrefix,
		Headers:        cfg.OTEL.Headers,
		Insecure:       cfg.OTEL.Insecure,
		SampleRatio:    cfg.OTEL.SampleRatio,
		Enabled:        cfg.OTEL.Enabled,
	}, log.WithField("component", "telemetry"))
	if err != nil {
		log.WithError(err).Warn("Failed to initialize OpenTelemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("telemetry shutdown failed")
		}
	}()

	// Connect to MongoDB with OpenTelemetry instrumentation
	mongoOpts := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.OTEL.Enabled {
		mongoOpts.SetMonitor(otelmongo.NewMonitor())
	}
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.WithError(err).Error("Error disconnecting from MongoDB")
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Verify both stores before serving
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	g, gctx := errgroup.WithContext(pingCtx)
	g.Go(func() error { return mongoClient.Ping(gctx, nil) })
	g.Go(func() error { return redisClient.Ping(gctx).Err() })
	err = g.Wait()
	cancel()
	if err != nil {
		log.Fatalf("Failed to reach backing stores: %v", err)
	}
	log.Info("✓ MongoDB and Redis connected")

	var archive domain.HistoryArchive
	if cfg.S3.Enabled {
		s3Archive, err := repository.NewS3HistoryArchive(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to initialize history archive: %v", err)
		}
		archive = s3Archive
		log.WithField("bucket", cfg.S3.Bucket).Info("✓ History archive enabled")
	}

	app := server.NewApp(server.AppDependencies{
		Config:      cfg,
		MongoDB:     mongoClient.Database(cfg.MongoDB.Database),
		RedisClient: redisClient,
		Archive:     archive,
		Metrics:     metrics.NewManager("liftlog", "session", prometheus.DefaultRegisterer),
		Gatherer:    prometheus.DefaultGatherer,
		Logger:      log,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	log.Infof("🚀 Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	<-done
}
