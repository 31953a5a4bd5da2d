package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/sage/config"
	"github.com/Ramsey-B/sage/internal/repositories/actualanswer"
	"github.com/Ramsey-B/sage/internal/repositories/actualquestion"
	"github.com/Ramsey-B/sage/internal/repositories/run"
	"github.com/Ramsey-B/sage/internal/repositories/staginganswer"
	"github.com/Ramsey-B/sage/internal/repositories/stagingquestion"
	"github.com/Ramsey-B/sage/internal/repositories/tag"
	"github.com/Ramsey-B/sage/pkg/approval"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/generation"
	"github.com/Ramsey-B/sage/pkg/graph"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/llm"
	"github.com/Ramsey-B/sage/pkg/middleware"
	sageredis "github.com/Ramsey-B/sage/pkg/redis"
	actualroutes "github.com/Ramsey-B/sage/pkg/routes/actual"
	answerroutes "github.com/Ramsey-B/sage/pkg/routes/answer"
	"github.com/Ramsey-B/sage/pkg/routes/health"
	questionroutes "github.com/Ramsey-B/sage/pkg/routes/question"
	runroutes "github.com/Ramsey-B/sage/pkg/routes/run"
	tagroutes "github.com/Ramsey-B/sage/pkg/routes/tag"
	"github.com/Ramsey-B/sage/pkg/startup"
	"github.com/Ramsey-B/sage/pkg/syncing"
	"github.com/Ramsey-B/sage/pkg/tags"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	ctx := context.Background()

	var db database.DB
	var redisClient *sageredis.Client
	var graphClient *graph.Client
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			var err error
			db, err = database.Connect(database.ConnectionConfig{
				Driver:          cfg.DatabaseDriver,
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				UserName:        cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, logger)
			return err
		},
		StopFunc: func(ctx context.Context) error {
			return db.Close()
		},
	})
	boot.AddDependency(&startup.Func{
		Name:  "migrations",
		Needs: []string{"database"},
		StartFunc: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			ms := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return ms.Migrate(cfg.DatabaseName, driver)
		},
	})
	if cfg.RedisEnabled {
		boot.AddDependency(&startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				var err error
				redisClient, err = sageredis.NewClient(sageredis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				return err
			},
			StopFunc: func(ctx context.Context) error {
				return redisClient.Close()
			},
		})
	}
	if cfg.GraphSyncEnabled {
		boot.AddDependency(&startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				var err error
				graphClient, err = graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, logger)
				if err != nil {
					return err
				}
				return graphClient.VerifyConnectivity(ctx)
			},
			StopFunc: func(ctx context.Context) error {
				return graphClient.Close(ctx)
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Shutdown cleanup failed")
		}
		_ = producer.Close()
	}()

	// Wiring
	runRepo := run.NewRepository(db, logger)
	questionRepo := stagingquestion.NewRepository(db, logger)
	answerRepo := staginganswer.NewRepository(db, logger)
	actualQuestionRepo := actualquestion.NewRepository(db, logger)
	actualAnswerRepo := actualanswer.NewRepository(db, logger)
	tagRepo := tag.NewRepository(db, logger)

	emitter := events.NewEmitter(producer, logger)
	generator := llm.NewClient(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMRequestTimeout,
	}, logger)

	var locker *sageredis.Locker
	if redisClient != nil {
		locker = sageredis.NewLocker(redisClient, "sage:run:")
	}
	var projector syncing.Projector
	if graphClient != nil {
		projector = graph.NewProjector(graphClient, logger)
	}

	approvalEngine := approval.NewEngine(logger, db, questionRepo, answerRepo, runRepo, emitter)
	generationEngine := generation.NewEngine(logger, db, generator, runRepo, questionRepo, answerRepo, emitter, locker)
	syncEngine := syncing.NewEngine(logger, db, runRepo, questionRepo, answerRepo, actualQuestionRepo, actualAnswerRepo, tagRepo, emitter, projector, locker)
	tagManager := tags.NewManager(logger, db, questionRepo, runRepo, tagRepo)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	register(logger, func() error { return ectoinject.RegisterInstance[ectologger.Logger](container, logger) })
	register(logger, func() error { return ectoinject.RegisterInstance[*run.Repository](container, runRepo) })
	register(logger, func() error { return ectoinject.RegisterInstance[*stagingquestion.Repository](container, questionRepo) })
	register(logger, func() error { return ectoinject.RegisterInstance[*staginganswer.Repository](container, answerRepo) })
	register(logger, func() error { return ectoinject.RegisterInstance[*actualquestion.Repository](container, actualQuestionRepo) })
	register(logger, func() error { return ectoinject.RegisterInstance[*actualanswer.Repository](container, actualAnswerRepo) })
	register(logger, func() error { return ectoinject.RegisterInstance[*tag.Repository](container, tagRepo) })
	register(logger, func() error { return ectoinject.RegisterInstance[*approval.Engine](container, approvalEngine) })
	register(logger, func() error { return ectoinject.RegisterInstance[*generation.Engine](container, generationEngine) })
	register(logger, func() error { return ectoinject.RegisterInstance[*syncing.Engine](container, syncEngine) })
	register(logger, func() error { return ectoinject.RegisterInstance[*tags.Manager](container, tagManager) })

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	var healthRedis health.Pinger
	if redisClient != nil {
		healthRedis = redisClient
	}
	checker := health.NewChecker(db, healthRedis, version)
	checker.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	runroutes.Register(api.Group("/runs"))
	questionroutes.Register(api.Group("/questions"))
	answerroutes.Register(api.Group("/answers"))
	tagroutes.Register(api.Group("/tags"))
	actualroutes.Register(api.Group("/actual"))

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("%s listening on :%d", cfg.AppName, cfg.Port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server stopped")
		}
	}()
	checker.SetReady(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func register(logger ectologger.Logger, fn func() error) {
	if err := fn(); err != nil {
		logger.WithError(err).Error("Failed to register dependency")
		os.Exit(1)
	}
}
