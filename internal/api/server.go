// Package api serves the tick log over a read-only HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talgya/hamlet/internal/engine"
	"github.com/talgya/hamlet/internal/report"
)

const (
	defaultTickLimit = 48
	maxTickLimit     = 1000
)

// Store is the read surface the API needs.
type Store interface {
	report.Reader
	engine.WindowReader
	Ticks(ctx context.Context, from, to int64, limit int) ([]engine.TickRecord, error)
	YearEvent(ctx context.Context, year int64) (*engine.YearEvents, error)
}

// Server serves world state over HTTP.
type Server struct {
	Store        Store
	Port         int
	RecentWindow int // Length of the recent series in /status

	router chi.Router
	now    func() time.Time
}

// NewServer builds the router. limiter may be nil.
func NewServer(store Store, port, recentWindow int, limiter *RateLimiter) *Server {
	if recentWindow <= 0 {
		recentWindow = defaultTickLimit
	}
	s := &Server{
		Store:        store,
		Port:         port,
		RecentWindow: recentWindow,
		router:       chi.NewRouter(),
		now:          time.Now,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))
	if limiter != nil {
		s.router.Use(limiter.Middleware)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/ticks", s.handleTicks)
		r.Get("/years/{year}", s.handleYear)
	})
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP API starting", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("HTTP API stopped")
		return nil
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := report.BuildStatus(r.Context(), s.Store, s.RecentWindow, s.now())
	if err != nil {
		slog.Error("status query failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleTicks returns the newest records, or a tick-index range when from
// or to is given.
func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultTickLimit
	if l := q.Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > maxTickLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 1..%d", maxTickLimit))
			return
		}
		limit = v
	}

	from, fromSet, err := int64Param(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, toSet, err := int64Param(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}

	var ticks []engine.TickRecord
	if fromSet || toSet {
		if !toSet {
			to = 1<<63 - 1
		}
		if to < from {
			writeError(w, http.StatusBadRequest, "to precedes from")
			return
		}
		ticks, err = s.Store.Ticks(r.Context(), from, to, limit)
	} else {
		ticks, err = s.Store.RecentTicks(r.Context(), limit)
	}
	if err != nil {
		slog.Error("tick query failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if ticks == nil {
		ticks = []engine.TickRecord{}
	}
	writeJSON(w, http.StatusOK, ticks)
}

type yearResponse struct {
	Year     int64              `json:"year"`
	Events   *engine.YearEvents `json:"events"`
	Ticks    int                `json:"ticks"`
	Complete bool               `json:"complete"`
	Class    engine.YearClass   `json:"class,omitempty"`
}

func (s *Server) handleYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.ParseInt(chi.URLParam(r, "year"), 10, 64)
	if err != nil || year < 0 {
		writeError(w, http.StatusBadRequest, "year must be a non-negative integer")
		return
	}

	ctx := r.Context()
	ev, err := s.Store.YearEvent(ctx, year)
	if err != nil {
		slog.Error("year event query failed", "year", year, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	window, err := s.Store.YearWindow(ctx, year)
	if err != nil {
		slog.Error("year window query failed", "year", year, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if ev == nil && len(window) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("year %d has not started", year))
		return
	}

	resp := yearResponse{Year: year, Events: ev, Ticks: len(window)}
	latest, err := s.Store.LatestTick(ctx)
	if err != nil && !errors.Is(err, engine.ErrMalformedTick) {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if latest != nil && engine.YearOf(latest.TickIndex) > year {
		resp.Complete = true
		if resp.Class, err = engine.Classify(ctx, s.Store, year); err != nil {
			slog.Error("classify failed", "year", year, "error", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func int64Param(v string) (int64, bool, error) {
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false, errors.New("must be a non-negative integer")
	}
	return n, true, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
