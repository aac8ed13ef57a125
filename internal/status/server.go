package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/orderstats/internal/version"
)

const requestTimeout = 10 * time.Second

// NewRouter mounts the status endpoints.
func NewRouter(tracker *Tracker, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{tracker: tracker, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", h.health)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/current", h.current)
		r.Get("/last", h.last)
	})

	return r
}

type handlers struct {
	tracker *Tracker
	logger  *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Get(),
	})
}

func (h *handlers) current(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.tracker.Current())
}

func (h *handlers) last(w http.ResponseWriter, r *http.Request) {
	s, ok := h.tracker.Last()
	if !ok {
		h.writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "no run has finished yet"})
		return
	}
	h.writeJSON(w, r, http.StatusOK, s)
}

func (h *handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("status response not written",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
}

// Server serves the status router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, tracker *Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(tracker, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.srv.Addr)
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
