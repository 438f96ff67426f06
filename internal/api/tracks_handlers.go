package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
	"github.com/trackwave/trackwave/internal/logger"
	"github.com/trackwave/trackwave/internal/repository"
	"github.com/trackwave/trackwave/internal/tracks"
)

// maxFieldBytes bounds a single non-file form field.
const maxFieldBytes = 16 << 10

type listResponse struct {
	Tracks []domain.Track `json:"tracks"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	items, total, err := s.svc.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	respondJSON(w, http.StatusOK, listResponse{Tracks: items, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	track, err := s.svc.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, track)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	callerID, err := s.callerID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, apperr.Validation("expected multipart/form-data: %v", err))
		return
	}

	fields := map[string]string{}
	var (
		tmp      *os.File
		size     int64
		fileName string
		partType string
	)
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			respondError(w, apperr.Validation("read multipart body: %v", err))
			return
		}
		if part.FormName() == "file" {
			if tmp != nil {
				part.Close()
				respondError(w, apperr.Validation("only one file part is allowed"))
				return
			}
			tmp, size, err = s.persistTemp(part)
			fileName = part.FileName()
			partType = part.Header.Get("Content-Type")
			part.Close()
			if err != nil {
				respondError(w, err)
				return
			}
			continue
		}
		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
		part.Close()
		if err != nil {
			respondError(w, apperr.Validation("read form field %q: %v", part.FormName(), err))
			return
		}
		fields[part.FormName()] = string(value)
	}

	if tmp == nil {
		respondError(w, apperr.Validation("file is required"))
		return
	}

	contentType, err := sniffContentType(tmp, partType)
	if err != nil {
		respondError(w, &apperr.StorageError{Op: "sniff upload", Err: err})
		return
	}

	input, err := parseCreateInput(fields)
	if err != nil {
		respondError(w, err)
		return
	}

	track, err := s.svc.CreateFromUpload(r.Context(), tracks.Upload{
		Reader:      tmp,
		Size:        size,
		FileName:    fileName,
		ContentType: contentType,
	}, input, callerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, track)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	callerID, err := s.callerID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var patch struct {
		Title                  *string `json:"title"`
		Description            *string `json:"description"`
		Genre                  *string `json:"genre"`
		Tags                   *string `json:"tags"`
		ArtworkURL             *string `json:"artworkUrl"`
		Privacy                *string `json:"privacy"`
		ScheduledAt            *string `json:"scheduledAt"`
		EnableDirectDownloads  *bool   `json:"enableDirectDownloads"`
		EnableOfflineListening *bool   `json:"enableOfflineListening"`
		AllowComments          *bool   `json:"allowComments"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
		respondError(w, apperr.Validation("decode request body: %v", err))
		return
	}
	update := repository.TrackUpdate{
		Title:                  patch.Title,
		Description:            patch.Description,
		Genre:                  patch.Genre,
		Tags:                   patch.Tags,
		ArtworkURL:             patch.ArtworkURL,
		EnableDirectDownloads:  patch.EnableDirectDownloads,
		EnableOfflineListening: patch.EnableOfflineListening,
		AllowComments:          patch.AllowComments,
	}
	if patch.Privacy != nil {
		privacy, err := parsePrivacy(*patch.Privacy)
		if err != nil {
			respondError(w, err)
			return
		}
		update.Privacy = &privacy
	}
	if patch.ScheduledAt != nil {
		at, err := time.Parse(time.RFC3339, *patch.ScheduledAt)
		if err != nil {
			respondError(w, apperr.Validation("scheduledAt must be RFC 3339: %v", err))
			return
		}
		update.ScheduledAt = &at
	}
	track, err := s.svc.Update(r.Context(), id, update, callerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, track)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	callerID, err := s.callerID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.svc.Delete(r.Context(), id, callerID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id string) {
	rangeHeader := r.Header.Get("Range")
	payload, err := s.svc.BuildStream(r.Context(), id, rangeHeader)
	if err != nil {
		respondError(w, err)
		return
	}
	defer payload.Stream.Close()

	w.Header().Set("Content-Type", payload.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(payload.End-payload.Start+1, 10))
	if rangeHeader != "" {
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", payload.Start, payload.End, payload.Size))
		w.WriteHeader(http.StatusPartialContent)
	}
	if _, err := io.Copy(w, payload.Stream); err != nil {
		// The client usually just seeked or closed the tab.
		logger.Debug("stream interrupted",
			logger.String("trackId", id),
			logger.ErrorField(err))
	}
}

// persistTemp spools the uploaded part to a temp file so the storage upload
// can send a known length without buffering the file in memory.
func (s *Server) persistTemp(part *multipart.Part) (*os.File, int64, error) {
	tmp, err := os.CreateTemp("", "trackwave-upload-*")
	if err != nil {
		return nil, 0, &apperr.StorageError{Op: "create temp file", Err: err}
	}
	size, err := io.Copy(tmp, io.LimitReader(part, s.cfg.MaxFileSizeBytes+1))
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, &apperr.StorageError{Op: "spool upload", Err: err}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, &apperr.StorageError{Op: "rewind temp file", Err: err}
	}
	return tmp, size, nil
}

// sniffContentType detects the type from the first bytes, falling back to the
// client-declared part header when detection is inconclusive.
func sniffContentType(f *os.File, declared string) (string, error) {
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	detected := http.DetectContentType(head[:n])
	if detected == "application/octet-stream" && declared != "" {
		return declared, nil
	}
	return detected, nil
}

func parseCreateInput(fields map[string]string) (tracks.CreateTrackInput, error) {
	in := tracks.CreateTrackInput{Title: strings.TrimSpace(fields["title"])}
	if v, ok := fields["description"]; ok {
		in.Description = &v
	}
	if v, ok := fields["genre"]; ok {
		in.Genre = &v
	}
	if v, ok := fields["tags"]; ok {
		in.Tags = &v
	}
	if v, ok := fields["artworkUrl"]; ok {
		in.ArtworkURL = &v
	}
	if v, ok := fields["privacy"]; ok {
		privacy, err := parsePrivacy(v)
		if err != nil {
			return in, err
		}
		in.Privacy = &privacy
	}
	if v, ok := fields["scheduledAt"]; ok {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return in, apperr.Validation("scheduledAt must be RFC 3339: %v", err)
		}
		in.ScheduledAt = &at
	}
	if v, ok := fields["estimatedDurationSeconds"]; ok {
		seconds, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return in, apperr.Validation("estimatedDurationSeconds must be an integer")
		}
		in.EstimatedDurationSeconds = &seconds
	}
	var err error
	if in.EnableDirectDownloads, err = parseOptionalBool(fields, "enableDirectDownloads"); err != nil {
		return in, err
	}
	if in.EnableOfflineListening, err = parseOptionalBool(fields, "enableOfflineListening"); err != nil {
		return in, err
	}
	if in.AllowComments, err = parseOptionalBool(fields, "allowComments"); err != nil {
		return in, err
	}
	return in, nil
}

func parseOptionalBool(fields map[string]string, name string) (*bool, error) {
	v, ok := fields[name]
	if !ok {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Validation("%s must be a boolean", name)
	}
	return &b, nil
}

func parsePrivacy(v string) (domain.TrackPrivacy, error) {
	switch domain.TrackPrivacy(v) {
	case domain.PrivacyPublic, domain.PrivacyPrivate, domain.PrivacyScheduled:
		return domain.TrackPrivacy(v), nil
	default:
		return "", apperr.Validation("invalid privacy %q", v)
	}
}
