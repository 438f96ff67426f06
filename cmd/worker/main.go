package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/trackwave/trackwave/internal/config"
	"github.com/trackwave/trackwave/internal/database"
	"github.com/trackwave/trackwave/internal/logger"
	"github.com/trackwave/trackwave/internal/queue"
	"github.com/trackwave/trackwave/internal/repository"
	"github.com/trackwave/trackwave/internal/storage"
	"github.com/trackwave/trackwave/internal/transcode"
	"github.com/trackwave/trackwave/internal/worker"
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

	redis := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	processor := worker.NewProcessor(
		repository.NewTrackRepository(pool),
		store,
		transcode.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath),
		cfg.TranscodeTimeout,
	)

	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      asynqLogger{},
	})

	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{Logger: asynqLogger{}})
	spec := fmt.Sprintf("@every %s", cfg.ScheduledInterval)
	if _, err := scheduler.Register(spec, asynq.NewTask(queue.PublishScheduledTask, nil)); err != nil {
		logger.Fatal("register scheduled publish task", logger.ErrorField(err))
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(processor.Handler()) }()
	go func() { errCh <- scheduler.Run() }()

	logger.Info("worker started", logger.Int("concurrency", cfg.WorkerConcurrency))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("worker runtime", logger.ErrorField(err))
		}
	}

	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info("worker stopped")
}

// asynqLogger routes asynq's internal logging through the shared logger.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Debug(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Info(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Warn(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Error(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Fatal(fmt.Sprint(args...)) }
