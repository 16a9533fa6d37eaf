// Package server exposes the chat platform over JSON/HTTP and a websocket.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/pkg/bot"
	"github.com/xhad/multibot/pkg/loader"
	"github.com/xhad/multibot/pkg/scraper"
)

// Config holds the listen address and ingestion settings.
type Config struct {
	Addr           string
	Scraper        scraper.ScraperConfig
	Chunking       loader.ChunkConfig
	MaxUploadBytes int64
}

// Server serves the chat API and websocket.
type Server struct {
	config Config
	bot    *bot.Orchestrator
	loader *loader.Loader
	mux    *http.ServeMux
}

// New creates a server with all routes registered.
func New(orch *bot.Orchestrator, ld *loader.Loader, config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 32 << 20
	}

	s := &Server{config: config, bot: orch, loader: ld, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.mux.HandleFunc("GET /api/personas", s.handleListPersonas)
	s.mux.HandleFunc("GET /api/active-persona", s.handleActivePersona)
	s.mux.HandleFunc("PUT /api/active-persona", s.handleSelectPersona)
	s.mux.HandleFunc("POST /api/query", s.handleQueryActive)

	s.mux.HandleFunc("POST /api/personas/{key}/query", s.handleQuery)
	s.mux.HandleFunc("POST /api/personas/{key}/documents", s.handleUpload)
	s.mux.HandleFunc("GET /api/personas/{key}/debug", s.handleDebug)

	s.mux.HandleFunc("GET /api/personas/{key}/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/personas/{key}/sessions", s.handleCreateSession)
	s.mux.HandleFunc("POST /api/personas/{key}/sessions/{id}/activate", s.handleSwitchSession)
	s.mux.HandleFunc("PATCH /api/personas/{key}/sessions/{id}", s.handleRenameSession)
	s.mux.HandleFunc("DELETE /api/personas/{key}/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/personas/{key}/sessions/{id}/messages", s.handleTranscript)
	s.mux.HandleFunc("DELETE /api/personas/{key}/sessions/{id}/messages", s.handleClearSession)
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.config.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	level := zerolog.DebugLevel
	if status >= http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	log.WithLevel(level).Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func statusFor(err error) int {
	var (
		invariant *bot.SessionInvariantError
		embedding *bot.EmbeddingError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, bot.ErrPersonaNotFound), errors.Is(err, bot.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, bot.ErrEmptyQuery), errors.Is(err, bot.ErrBlankName), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &invariant):
		return http.StatusConflict
	case errors.As(err, &embedding):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
