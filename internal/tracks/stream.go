package tracks

import (
	"context"
	"io"
	"regexp"
	"strconv"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/logger"
)

// StreamPayload is everything the HTTP layer needs for a 200 or 206 audio
// response: a bounded stream plus the byte window it covers.
type StreamPayload struct {
	Stream      io.ReadCloser
	Start       int64
	End         int64
	Size        int64
	ContentType string
}

// rangePattern accepts "bytes=start-" and "bytes=start-end". Suffix ranges
// ("bytes=-n") are not supported and fail validation.
var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// BuildStream resolves which object to serve for a track and opens a stream
// over the requested byte window. A track whose transcode has not finished
// serves the original upload instead of erroring.
func (s *Service) BuildStream(ctx context.Context, id string, rangeHeader string) (*StreamPayload, error) {
	track, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	objectKey := track.StreamObjectKey()
	info, err := s.store.StatObject(ctx, objectKey)
	if err != nil {
		return nil, &apperr.StorageError{Op: "stat", Err: err}
	}

	// The stat metadata is authoritative for content type; the recorded
	// column is the fallback.
	contentType := info.ContentType
	if contentType == "" {
		contentType = track.ContentType
	}

	if rangeHeader == "" {
		stream, err := s.store.GetObjectStream(ctx, objectKey)
		if err != nil {
			return nil, &apperr.StorageError{Op: "get", Err: err}
		}
		s.countPlay(ctx, id)
		return &StreamPayload{
			Stream:      stream,
			Start:       0,
			End:         info.Size - 1,
			Size:        info.Size,
			ContentType: contentType,
		}, nil
	}

	start, end, err := parseRange(rangeHeader, info.Size)
	if err != nil {
		return nil, err
	}
	stream, err := s.store.GetObjectRange(ctx, objectKey, start, end)
	if err != nil {
		return nil, &apperr.StorageError{Op: "get range", Err: err}
	}
	s.countPlay(ctx, id)
	return &StreamPayload{
		Stream:      stream,
		Start:       start,
		End:         end,
		Size:        info.Size,
		ContentType: contentType,
	}, nil
}

// countPlay bumps the play counter best effort. A counter hiccup must never
// break playback.
func (s *Service) countPlay(ctx context.Context, id string) {
	if err := s.repo.IncrementPlayCount(ctx, id); err != nil {
		logger.Warn("increment play count", logger.String("trackId", id), logger.ErrorField(err))
	}
}

// parseRange parses a Range header against the object size. The requested
// end is clamped to the last byte; a start beyond the object is not
// satisfiable.
func parseRange(header string, size int64) (start, end int64, err error) {
	matches := rangePattern.FindStringSubmatch(header)
	if matches == nil {
		return 0, 0, apperr.Validation("invalid range header %q", header)
	}
	start, err = strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, 0, apperr.Validation("invalid range start %q", matches[1])
	}
	end = size - 1
	if matches[2] != "" {
		requested, err := strconv.ParseInt(matches[2], 10, 64)
		if err != nil {
			return 0, 0, apperr.Validation("invalid range end %q", matches[2])
		}
		if requested < end {
			end = requested
		}
	}
	if start >= size || end < start {
		return 0, 0, &apperr.RangeNotSatisfiableError{Start: start, Size: size}
	}
	return start, end, nil
}
