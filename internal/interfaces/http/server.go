// Package http serves the read-only monitor API: health, Prometheus
// metrics, the latest candidate and a websocket event stream.
package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/earnrun/internal/analytics"
	"github.com/sawpanic/earnrun/internal/live"
	"github.com/sawpanic/earnrun/internal/persistence"
	"github.com/sawpanic/earnrun/internal/risk"
)

// CycleSource reports the most recent live decision cycle
type CycleSource interface {
	LastCycle() *live.CycleResult
	RiskSummary(balance float64) risk.Summary
}

// Server represents the read-only HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	config ServerConfig
	deps   Deps
	health *HealthHandler
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	Version        string
}

// Deps are the read-only sources behind the endpoints. Only Metrics is
// required.
type Deps struct {
	Metrics   http.Handler
	Cycles    CycleSource
	DB        persistence.RepositoryHealth
	Analytics *analytics.Service
	Hub       *Hub
}

type ctxKey int

const requestIDKey ctxKey = iota

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "127.0.0.1:8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
		Version:        "dev",
	}
}

// NewServer creates a new HTTP server instance
func NewServer(config ServerConfig, deps Deps) *Server {
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	s := &Server{
		router: mux.NewRouter(),
		config: config,
		deps:   deps,
		health: NewHealthHandler(deps.DB, deps.Cycles, deps.Hub, config.Version),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)

	// Streams and the exposition format carry their own content types
	s.router.Handle("/metrics", s.deps.Metrics).Methods("GET")
	s.router.Handle("/ws/events", s.deps.Hub).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.Handle("/health", s.health).Methods("GET")
	api.HandleFunc("/candidate", s.candidate).Methods("GET")
	api.HandleFunc("/risk", s.riskSummary).Methods("GET")
	api.HandleFunc("/performance", s.performance).Methods("GET")

	s.router.NotFoundHandler = s.jsonContentTypeMiddleware(http.HandlerFunc(s.notFound))
}

// Handler exposes the routed handler
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the event hub served on /ws/events
func (s *Server) Hub() *Hub { return s.deps.Hub }

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("Starting monitor server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down monitor server")
	return s.server.Shutdown(ctx)
}

func (s *Server) candidate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cycles == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "engine_unavailable", "No live engine attached")
		return
	}
	last := s.deps.Cycles.LastCycle()
	if last == nil {
		s.writeError(w, r, http.StatusNotFound, "no_cycle", "No decision cycle has run yet")
		return
	}
	s.writeJSON(w, http.StatusOK, CandidateResponse{
		Timestamp: time.Now().UTC(),
		Outcome:   last.Outcome,
		Reason:    last.Reason,
		Candidate: last.Candidate,
		Report:    last.Report,
		Cycle:     last,
	})
}

func (s *Server) riskSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cycles == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "engine_unavailable", "No live engine attached")
		return
	}
	var equity float64
	if last := s.deps.Cycles.LastCycle(); last != nil {
		equity = last.Equity
	}
	if v := r.URL.Query().Get("balance"); v != "" {
		b, err := strconv.ParseFloat(v, 64)
		if err != nil || b <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "invalid_balance", "balance must be a positive number")
			return
		}
		equity = b
	}
	s.writeJSON(w, http.StatusOK, RiskResponse{
		Timestamp: time.Now().UTC(),
		Equity:    equity,
		Summary:   s.deps.Cycles.RiskSummary(equity),
	})
}

func (s *Server) performance(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analytics == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "analytics_unavailable", "No trade store attached")
		return
	}
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 || d > 3650 {
			s.writeError(w, r, http.StatusBadRequest, "invalid_days", "days must be between 1 and 3650")
			return
		}
		days = d
	}
	summary, err := s.deps.Analytics.Summary(r.Context(), days)
	if err != nil {
		log.Error().Err(err).Msg("Performance summary failed")
		s.writeError(w, r, http.StatusInternalServerError, "analytics_failed", "Could not compute performance summary")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// timeoutMiddleware enforces request timeouts
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware adds CORS headers for local development
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); localOrigin(r) && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// localOrigin accepts requests without an Origin and those from localhost
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the logging middleware
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
