// Package transcode shells out to ffmpeg to re-encode uploaded audio into
// the canonical delivery format (MP3 via libmp3lame).
package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// Transcoder converts an audio stream into the delivery format. Input is read
// from source and encoded output is written to sink as it is produced, so
// neither side needs to fit in memory.
type Transcoder interface {
	Transcode(ctx context.Context, source io.Reader, sink io.Writer) error
}

// FFmpeg runs the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg constructs a runner for the given binary paths.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Transcode pipes source through ffmpeg into sink. The process reads stdin
// and writes stdout, so the whole pipeline stays streaming. Cancelling the
// context kills the process.
func (f *FFmpeg) Transcode(ctx context.Context, source io.Reader, sink io.Writer) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-codec:a", "libmp3lame",
		"-f", "mp3",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	cmd.Stdin = source
	cmd.Stdout = sink
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}
	return nil
}

// ffprobeOutput mirrors the JSON ffprobe emits for -show_entries format=duration.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration returns the duration of a local audio file in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, stderr.String())
	}
	var probe ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe %s: no duration in output", path)
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return duration, nil
}
