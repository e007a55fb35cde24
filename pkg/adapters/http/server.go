// Package http exposes the orchestrator over HTTP: JSON chat and task
// endpoints plus server-sent event streams.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/internal/orchestrator"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// DefaultMaxBodySize bounds request bodies.
const DefaultMaxBodySize = 64 * 1024

// Orchestrator is the turn pipeline behind the API.
type Orchestrator interface {
	Handle(ctx context.Context, req orchestrator.Request) (domain.Response, error)
	Stream(ctx context.Context, req orchestrator.Request, emit orchestrator.Emitter) error
	Continue(ctx context.Context, req orchestrator.ContinueRequest) (domain.Response, error)
	Inspect(ctx context.Context, taskID string) (*orchestrator.TaskView, error)
	Progress(ctx context.Context, taskID string) (*orchestrator.ProgressView, error)
}

// Server holds the handlers.
type Server struct {
	Orchestrator Orchestrator
	Streams      *StreamManager

	logger      *slog.Logger
	metrics     http.Handler
	origins     []string
	maxBodySize int64
	version     string
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithAllowedOrigins sets the CORS origins. Defaults to "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithStreams serves GET /task/{taskID}/events from sm. The same manager
// should be registered as an orchestrator publisher.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.Streams = sm }
}

// WithMaxBodySize bounds request bodies in bytes.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// WithVersion is reported by GET /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewHandler creates the HTTP handler for o.
func NewHandler(o Orchestrator, opts ...Option) http.Handler {
	s := &Server{
		Orchestrator: o,
		logger:       logging.NewNop(),
		origins:      []string{"*"},
		maxBodySize:  DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Post("/chat", s.Chat)
	r.Post("/chat/stream", s.ChatStream)
	r.Route("/task/{taskID}", func(r chi.Router) {
		r.Get("/", s.GetTask)
		r.Get("/progress", s.GetProgress)
		r.Post("/continue", s.ContinueTask)
		if s.Streams != nil {
			r.Get("/events", s.SubscribeEvents)
		}
	})

	return cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.version != "" {
		resp["version"] = s.version
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Chat handles POST /chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	resp, err := s.Orchestrator.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ChatStream handles POST /chat/stream. Frames are written as they happen;
// an error before the first frame is reported as a plain JSON error.
func (s *Server) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	started := false
	emit := func(evt domain.StreamEvent) error {
		if !started {
			sseHeaders(w)
			started = true
		}
		if err := writeFrame(w, evt); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := s.Orchestrator.Stream(r.Context(), req, emit)
	switch {
	case err == nil:
	case !started:
		s.writeError(w, r, err)
	default:
		s.logger.Warn("stream ended early", "err", err)
	}
}

// ContinueTask handles POST /task/{taskID}/continue.
func (s *Server) ContinueTask(w http.ResponseWriter, r *http.Request) {
	var body orchestrator.ContinueRequest
	if !s.decode(w, r, &body) {
		return
	}
	body.TaskID = chi.URLParam(r, "taskID")
	resp, err := s.Orchestrator.Continue(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetTask handles GET /task/{taskID}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	view, err := s.Orchestrator.Inspect(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// GetProgress handles GET /task/{taskID}/progress.
func (s *Server) GetProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.Orchestrator.Progress(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// SubscribeEvents handles GET /task/{taskID}/events (SSE). It relays every
// frame published for the task until the client goes away.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	taskID := chi.URLParam(r, "taskID")
	if _, err := s.Orchestrator.Progress(r.Context(), taskID); err != nil {
		s.writeError(w, r, err)
		return
	}

	ch, cancel := s.Streams.Subscribe(taskID)
	defer cancel()

	sseHeaders(w)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "task_id", taskID)
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(w, evt); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (orchestrator.Request, bool) {
	var req orchestrator.Request
	if !s.decode(w, r, &req) {
		return req, false
	}
	req.ClientIP = clientIP(r)
	return req, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps orchestrator errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", "path", r.URL.Path)
		return
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func writeFrame(w http.ResponseWriter, evt domain.StreamEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// clientIP prefers the address RealIP resolved from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
