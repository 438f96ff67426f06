package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/trackwave/trackwave/internal/api"
	"github.com/trackwave/trackwave/internal/auth"
	"github.com/trackwave/trackwave/internal/config"
	"github.com/trackwave/trackwave/internal/database"
	"github.com/trackwave/trackwave/internal/logger"
	"github.com/trackwave/trackwave/internal/queue"
	"github.com/trackwave/trackwave/internal/repository"
	"github.com/trackwave/trackwave/internal/storage"
	"github.com/trackwave/trackwave/internal/tracks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, OutputPath: cfg.LogPath})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", logger.ErrorField(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", logger.ErrorField(err))
	}

	store, err := storage.New(cfg)
	if err != nil {
		logger.Fatal("connect object storage", logger.ErrorField(err))
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Fatal("ensure bucket", logger.ErrorField(err))
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	jobs := queue.NewClient(asynqClient)
	defer jobs.Close()

	svc := tracks.NewService(
		repository.NewTrackRepository(pool),
		repository.NewUserRepository(pool),
		repository.NewQuotaLedger(pool),
		store,
		jobs,
		tracks.Limits{
			MaxFileSizeBytes: cfg.MaxFileSizeBytes,
			FreeLimitSeconds: cfg.FreeLimitSeconds(),
			ProLimitSeconds:  cfg.ProLimitSeconds(),
		},
	)
	signer := auth.NewSigner([]byte(cfg.AuthSecret))

	server := api.New(cfg, svc, signer)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("run api server", logger.ErrorField(err))
	}
	logger.Info("api stopped")
}
