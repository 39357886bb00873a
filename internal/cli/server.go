package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	mongoloader "live-quiz-service/internal/infra/mongo"
	pgloader "live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := strings.ToUpper(cfg.Log.Level)
	if level == "" {
		level = "INFO"
	}
	return logs.GetLoggerFromString(level)
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	checks := map[string]transport.ReadinessCheck{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		checks["postgres"] = pool.Ping
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes()...)
	switch {
	case cfg.Mongo.URI != "":
		client, err := mongoloader.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		database := cfg.Mongo.Database
		if database == "" {
			database = "quiz"
		}
		loader = mongoloader.NewQuizLoader(client.Database(database), log)
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		log.Info("quiz content from mongo", "database", database)
	case pool != nil:
		loader = pgloader.NewQuizLoader(pool)
		log.Info("quiz content from postgres")
	default:
		log.Warn("no content store configured, serving the built-in sample quiz", "inviteCode", sampleQuizzes()[0].InviteCode)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var store app.SessionRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL, log)
		store = infraredis.NewSessionStore(redisClient, redisTTL, log)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	var verifierOpts []auth.Option
	if pool != nil {
		verifierOpts = append(verifierOpts, auth.WithUserDirectory(pgloader.NewUserDirectory(pool)))
	}
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, verifierOpts...)

	service := app.NewQuizService(store, quizRepo, app.Options{
		Session: app.SessionOptions{
			BasePoints:       cfg.Quiz.BasePoints,
			TickInterval:     config.TTLDuration(cfg.Quiz.TickInterval, time.Second),
			GracePeriod:      config.TTLDuration(cfg.Quiz.GracePeriod, 2*time.Second),
			DefaultTimeLimit: cfg.Quiz.DefaultTimeLimit,
		},
		EndOnEmptyLobby: cfg.Quiz.EndOnEmptyLobby,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(transport.NewWSHandler(service, verifier, log), checks)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes is served when no content store is configured.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:         "sample-1",
			InviteCode: "DEMO01",
			Title:      "Warm-up",
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1, TimeLimit: 15},
				{ID: "q2", Text: "Which planet is known as the red planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectIndex: 1},
			},
		},
	}
}
