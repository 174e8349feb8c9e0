// Package watch serves the long-running side of the CLI: health, metrics,
// account status and a live stream of record changes.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"biztrack/internal/log"
	"biztrack/internal/session"
)

// Status is what /status reports about the signed-in account.
type Status struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username,omitempty"`
	AccountType string    `json:"accountType"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Subscribers int       `json:"subscribers"`
}

// StatusFunc reports the current session.
type StatusFunc func(ctx context.Context) (session.Session, error)

type Options struct {
	Gatherer          prometheus.Gatherer
	Hub               *Hub
	Status            StatusFunc
	Logger            *log.Logger
	RequestsPerMinute int
}

type Server struct {
	opts    Options
	limiter *Limiter
	logger  *log.Logger
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Logger)
	}
	logger := opts.Logger.WithComponent(log.ComponentWatch)
	return &Server{opts: opts, limiter: NewLimiter(opts.RequestsPerMinute), logger: logger}
}

// Hub returns the event hub behind /events.
func (s *Server) Hub() *Hub { return s.opts.Hub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(SecurityHeaders(DefaultHeadersConfig()))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.opts.Hub.ServeHTTP)
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.opts.Status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "status unavailable"})
		return
	}
	sess, err := s.opts.Status(r.Context())
	if errors.Is(err, session.ErrNoSession) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Status lookup failed", log.FieldError, err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, Status{
		UserID:      sess.UserID,
		Username:    sess.Username,
		AccountType: sess.AccountType.String(),
		UpdatedAt:   sess.UpdatedAt,
		Subscribers: s.opts.Hub.Subscribers(),
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	go s.limiter.Run(ctx, 5*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "Starting watch server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.opts.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server shutdown error", log.FieldError, err.Error())
		return err
	}
	s.logger.Info("Watch server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
