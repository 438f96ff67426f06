// Package queue defines the asynq task types shared by the API (producer)
// and the worker (consumer).
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TranscodeTask is scheduled each time a track is uploaded.
	TranscodeTask = "media:transcode"
	// PublishScheduledTask periodically flips due scheduled tracks to public.
	PublishScheduledTask = "tracks:publish_scheduled"
)

// TranscodePayload is serialized into the task so the worker knows which
// object to transcode and where the result goes.
type TranscodePayload struct {
	TrackID   string `json:"track_id"`
	SourceKey string `json:"source_key"`
	TargetKey string `json:"target_key"`
}

// Validate rejects payloads missing any of the three required fields.
// At-least-once delivery means the worker must never act on a partial job.
func (p TranscodePayload) Validate() error {
	if p.TrackID == "" {
		return fmt.Errorf("transcode payload: missing track_id")
	}
	if p.SourceKey == "" {
		return fmt.Errorf("transcode payload: missing source_key")
	}
	if p.TargetKey == "" {
		return fmt.Errorf("transcode payload: missing target_key")
	}
	return nil
}

// DecodeTranscodePayload parses and validates a task payload.
func DecodeTranscodePayload(data []byte) (TranscodePayload, error) {
	var p TranscodePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return TranscodePayload{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return TranscodePayload{}, err
	}
	return p, nil
}

// Client enqueues background jobs. It wraps an asynq client so callers do
// not deal with task construction.
type Client struct {
	inner *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(inner *asynq.Client) *Client {
	return &Client{inner: inner}
}

// EnqueueTranscode enqueues a transcode job for a stored upload.
func (c *Client) EnqueueTranscode(ctx context.Context, payload TranscodePayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TranscodeTask, data)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue transcode task: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.inner.Close()
}
