// Package api exposes the HTTP endpoints for uploads, track metadata, and
// range streaming.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/auth"
	"github.com/trackwave/trackwave/internal/config"
	"github.com/trackwave/trackwave/internal/logger"
	"github.com/trackwave/trackwave/internal/tracks"
)

// Server hosts the HTTP handlers.
type Server struct {
	cfg    *config.Config
	svc    *tracks.Service
	signer *auth.Signer
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, svc *tracks.Service, signer *auth.Signer) *Server {
	return &Server{cfg: cfg, svc: svc, signer: signer}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: corsMiddleware(loggingMiddleware(s.routes())),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	logger.Info("api listening", logger.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/tracks", s.handleTracks)
	mux.HandleFunc("/tracks/", s.handleTrackRoute)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTrackRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tracks/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGet(w, r, id)
		case http.MethodPatch:
			s.handleUpdate(w, r, id)
		case http.MethodDelete:
			s.handleDelete(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}
	switch parts[1] {
	case "download", "stream":
		s.handleStream(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// callerID extracts and verifies the bearer token.
func (s *Server) callerID(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", auth.ErrInvalidToken
	}
	return s.signer.Verify(token)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode response", logger.ErrorField(err))
	}
}

// respondError maps the error taxonomy onto HTTP statuses in one place.
func respondError(w http.ResponseWriter, err error) {
	var (
		validation *apperr.ValidationError
		quota      *apperr.QuotaExceededError
		notFound   *apperr.NotFoundError
		badRange   *apperr.RangeNotSatisfiableError
		forbidden  *apperr.ForbiddenError
	)
	switch {
	case errors.As(err, &validation):
		writeErrorJSON(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &quota):
		writeErrorJSON(w, http.StatusBadRequest, quota.Error())
	case errors.As(err, &notFound):
		writeErrorJSON(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &badRange):
		writeErrorJSON(w, http.StatusRequestedRangeNotSatisfiable, badRange.Error())
	case errors.As(err, &forbidden):
		writeErrorJSON(w, http.StatusForbidden, forbidden.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		writeErrorJSON(w, http.StatusUnauthorized, "unauthorized")
	default:
		logger.Error("internal error", logger.ErrorField(err))
		writeErrorJSON(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeErrorJSON(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,Range")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Duration("took", time.Since(start)))
	})
}
