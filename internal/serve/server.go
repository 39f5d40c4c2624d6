// Package serve exposes agentsight over HTTP: hook ingestion from provider
// hook scripts, a read-only JSON API over the merged session view, and a
// websocket stream of merged snapshot deliveries.
package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/history"
	"github.com/agentsight/agentsight/internal/hooks"
	"github.com/agentsight/agentsight/internal/monitor"
	"github.com/agentsight/agentsight/internal/registry"
)

const defaultPort = 7433

const requestIDHeader = "X-Request-Id"

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	Aggregator *aggregate.Aggregator
	Registry   *registry.Registry
	// History is optional; without it /api/usage serves the live report
	// only and rejects ?since queries.
	History *history.Recorder
}

// Server is the agentsight HTTP server.
type Server struct {
	host       string
	port       int
	agg        *aggregate.Aggregator
	reg        *registry.Registry
	dispatcher *hooks.Dispatcher
	hist       *history.Recorder
	hub        *wsHub
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a Server. The registry's hook dispatcher is created here: the
// server owns the registry's write path.
func New(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	s := &Server{
		host:       cfg.Host,
		port:       cfg.Port,
		agg:        cfg.Aggregator,
		reg:        cfg.Registry,
		dispatcher: hooks.NewDispatcher(cfg.Registry),
		hist:       cfg.History,
		hub:        newWSHub(),
		logger:     slog.Default(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Consumer returns an aggregator consumer that pushes each merged delivery
// to websocket subscribers.
func (s *Server) Consumer() aggregate.Consumer {
	return func(snaps []monitor.Snapshot) error {
		s.hub.broadcast("sessions", snaps)
		return nil
	}
}

// Start listens and serves until ctx is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(s.requestIDMiddleware)
	r.Use(s.recovererMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/hooks", s.handleHook)
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{provider}/{id}", s.handleSession)
		r.Get("/status", s.handleStatus)
		r.Get("/usage", s.handleUsage)
		r.Get("/resume", s.handleResume)
		r.Get("/registry", s.handleRegistry)
	})

	return r
}

// ==== Middleware ====

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) recovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", requestID(r))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// ==== Handlers ====

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHook accepts one hook event per request. Decode or validation
// failures are the caller's problem; applying a valid event never fails.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	var ev hooks.Event
	if err := json.NewDecoder(body).Decode(&ev); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("decoding hook event: %v", err))
		return
	}
	if ev.HookEventName == "" {
		s.writeError(w, r, http.StatusBadRequest, "hook event missing hook_event_name")
		return
	}
	if ev.SessionID == "" {
		s.writeError(w, r, http.StatusBadRequest, "hook event missing session_id")
		return
	}
	s.dispatcher.Handle(ev)
	s.writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	merged := s.agg.Merged()
	if merged == nil {
		merged = []monitor.Snapshot{}
	}
	s.writeJSON(w, r, http.StatusOK, merged)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	id := chi.URLParam(r, "id")
	for _, snap := range s.agg.Merged() {
		if snap.Provider == provider && snap.SessionID == id {
			s.writeJSON(w, r, http.StatusOK, snap)
			return
		}
	}
	s.writeError(w, r, http.StatusNotFound, fmt.Sprintf("no session %s:%s", provider, id))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.agg.Status())
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	sinceParam := r.URL.Query().Get("since")
	if sinceParam == "" {
		s.writeJSON(w, r, http.StatusOK, s.agg.UsageReport())
		return
	}

	if s.hist == nil {
		s.writeError(w, r, http.StatusBadRequest, "usage history is not enabled")
		return
	}
	dur, err := time.ParseDuration(sinceParam)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid since %q: %v", sinceParam, err))
		return
	}
	totals, err := s.hist.Totals(time.Now().Add(-dur))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if totals == nil {
		totals = []history.ProviderTotals{}
	}
	s.writeJSON(w, r, http.StatusOK, totals)
}

// handleResume resolves a resume target. The result is typed, not an error:
// a miss is a 200 with ok=false so hook scripts can branch without parsing
// status codes.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result := s.reg.ResolveResumeTarget(registry.ResumeQuery{
		ExplicitSessionID: q.Get("session_id"),
		ThreadChannelID:   q.Get("thread_channel_id"),
		OwnerUserID:       q.Get("owner_user_id"),
		MappingKey:        q.Get("mapping_key"),
	})
	s.writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records := s.reg.List(registry.Filter{
		OwnerUserID:     q.Get("owner_user_id"),
		MappingKey:      q.Get("mapping_key"),
		IncludeArchived: q.Get("include_archived") == "true",
	})
	if records == nil {
		records = []*registry.Record{}
	}
	s.writeJSON(w, r, http.StatusOK, records)
}

// ==== JSON envelope ====

type apiError struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encoding response failed", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, apiError{Error: msg, RequestID: requestID(r)})
}
