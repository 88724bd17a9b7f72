package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/infra/memory"
	"trivia-quiz-service/internal/infra/postgres"
	infraredis "trivia-quiz-service/internal/infra/redis"
	"trivia-quiz-service/internal/logger"
	transport "trivia-quiz-service/internal/transport/http"
	"trivia-quiz-service/internal/trivia"
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

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	service := buildService(cfg, redisClient, pool, log)
	mux := http.NewServeMux()
	transport.Register(mux, transport.NewAPIHandler(service, log), transport.NewWSHandler(service, log))

	// websocket connections are long-lived, so there is no write timeout
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Infow("starting trivia quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func buildService(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool, log *zap.SugaredLogger) *app.QuizService {
	retry := trivia.DefaultRetryPolicy()
	retry.InitialBackoff = config.Duration(cfg.Trivia.InitialBackoff, retry.InitialBackoff)
	if cfg.Trivia.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Trivia.MaxAttempts
	}
	opts := []trivia.Option{
		trivia.WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.Trivia.Timeout, 10*time.Second)}),
		trivia.WithRequestDelay(config.Duration(cfg.Trivia.RequestDelay, trivia.DefaultRequestDelay)),
		trivia.WithRetryPolicy(retry),
	}
	if cfg.Trivia.BaseURL != "" {
		opts = append(opts, trivia.WithBaseURL(cfg.Trivia.BaseURL))
	}
	source := trivia.NewClient(log.Named("trivia"), opts...)

	cacheTTL := config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var cache app.BatchCache = memory.NewBatchCache(cacheTTL)
	var sessions app.SessionRepository = memory.NewSessionStore()
	if redisClient != nil {
		cache = infraredis.NewBatchCache(redisClient, cacheTTL)
		sessions = infraredis.NewSessionStore(redisClient, config.Duration(cfg.Redis.TTL, 10*time.Minute))
	}

	var remote app.HistoryStore
	if pool != nil {
		remote = postgres.NewHistoryStore(pool)
	}
	history := app.NewHistoryRecorder(memory.NewHistoryStore(), remote, log.Named("history"))

	provider := app.NewBatchProvider(source, cache, log.Named("batches"))
	return app.NewQuizService(sessions, provider, history, provider, log.Named("quiz"),
		app.WithQuestionTime(config.Duration(cfg.Quiz.QuestionTime, 60*time.Second)),
	)
}
