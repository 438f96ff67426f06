// Package worker consumes transcode jobs and the periodic scheduled-publish
// task.
package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
	"github.com/trackwave/trackwave/internal/logger"
	"github.com/trackwave/trackwave/internal/queue"
	"github.com/trackwave/trackwave/internal/transcode"
)

// transcodedContentType is the content type of every transcoded artifact.
const transcodedContentType = "audio/mpeg"

// Repository is the slice of the track repository the worker uses.
type Repository interface {
	FindByID(ctx context.Context, id string) (*domain.Track, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkReady(ctx context.Context, id, transcodedKey string) error
	MarkFailed(ctx context.Context, id string) error
	PublishScheduledDue(ctx context.Context, now time.Time) (int64, error)
}

// ObjectStore is the slice of the storage gateway the worker uses.
type ObjectStore interface {
	GetObjectStream(ctx context.Context, objectKey string) (io.ReadCloser, error)
	UploadStream(ctx context.Context, objectKey string, reader io.Reader, contentType string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	repo       Repository
	store      ObjectStore
	transcoder transcode.Transcoder
	jobTimeout time.Duration
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo Repository, store ObjectStore, transcoder transcode.Transcoder, jobTimeout time.Duration) *Processor {
	return &Processor{
		repo:       repo,
		store:      store,
		transcoder: transcoder,
		jobTimeout: jobTimeout,
	}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TranscodeTask, p.HandleTranscode)
	mux.HandleFunc(queue.PublishScheduledTask, p.HandlePublishScheduled)
	return mux
}

// HandleTranscode re-encodes one uploaded track. Failures mark the track
// failed and are returned so asynq's retry policy can act on them.
func (p *Processor) HandleTranscode(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeTranscodePayload(task.Payload())
	if err != nil {
		// A malformed payload can never succeed; retrying would burn attempts.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if _, err := p.repo.FindByID(ctx, payload.TrackID); err != nil {
		if _, ok := err.(*apperr.NotFoundError); ok {
			// The row was deleted between enqueue and delivery. Drop the job.
			logger.Warn("track not found for transcode, dropping job",
				logger.String("trackId", payload.TrackID))
			return nil
		}
		return err
	}

	moved, err := p.repo.MarkProcessing(ctx, payload.TrackID)
	if err != nil {
		return err
	}
	if !moved {
		// Redelivered job for a track already in a terminal state.
		logger.Info("track already transcoded, skipping",
			logger.String("trackId", payload.TrackID))
		return nil
	}

	started := time.Now()
	if err := p.transcodeToStorage(ctx, payload); err != nil {
		logger.Error("transcode failed",
			logger.String("trackId", payload.TrackID),
			logger.String("sourceKey", payload.SourceKey),
			logger.ErrorField(err))
		if markErr := p.repo.MarkFailed(ctx, payload.TrackID); markErr != nil {
			logger.Error("mark track failed",
				logger.String("trackId", payload.TrackID),
				logger.ErrorField(markErr))
		}
		return err
	}

	if err := p.repo.MarkReady(ctx, payload.TrackID, payload.TargetKey); err != nil {
		return err
	}
	logger.Info("track transcoded",
		logger.String("trackId", payload.TrackID),
		logger.String("targetKey", payload.TargetKey),
		logger.Duration("took", time.Since(started)))
	return nil
}

// transcodeToStorage streams the source object through ffmpeg and uploads
// the encoder output as it is produced. Encode and upload run concurrently;
// the first error cancels the other side.
func (p *Processor) transcodeToStorage(ctx context.Context, payload queue.TranscodePayload) error {
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	source, err := p.store.GetObjectStream(ctx, payload.SourceKey)
	if err != nil {
		return fmt.Errorf("open source %s: %w", payload.SourceKey, err)
	}
	defer source.Close()

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.transcoder.Transcode(gctx, source, pw)
		// Closing with the encode error propagates it to the uploader's
		// reads; a nil error delivers a clean EOF.
		pw.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := p.store.UploadStream(gctx, payload.TargetKey, pr, transcodedContentType); err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("upload %s: %w", payload.TargetKey, err)
		}
		return nil
	})

	return g.Wait()
}

// HandlePublishScheduled flips due scheduled tracks to public.
func (p *Processor) HandlePublishScheduled(ctx context.Context, _ *asynq.Task) error {
	published, err := p.repo.PublishScheduledDue(ctx, time.Now())
	if err != nil {
		return err
	}
	if published > 0 {
		logger.Info("published scheduled tracks", logger.Int64("count", published))
	}
	return nil
}
