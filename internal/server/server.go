// Package server exposes a round engine over WebSocket and HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/bingohall/internal/engine"
	"github.com/lox/bingohall/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rounds is the engine surface the server drives.
type Rounds interface {
	Join(ctx context.Context, req engine.JoinRequest) (engine.JoinResult, error)
	Leave(ctx context.Context, playerID string) error
	Mark(playerID string, number int) (engine.MarkResult, error)
	Claim(playerID string) error
	Status() engine.Status
	Bus() engine.EventBus
}

// History serves completed rounds.
type History interface {
	GetRound(ctx context.Context, id string) (engine.RoundSnapshot, error)
	ListRecent(ctx context.Context, limit int) ([]engine.RoundSnapshot, error)
}

// IntentRecorder observes intent outcomes.
type IntentRecorder interface {
	RecordIntent(intent, result string, elapsed time.Duration)
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the /rounds endpoints.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics records intents to rec and serves gatherer on /metrics.
func WithMetrics(rec IntentRecorder, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.recorder = rec
		s.gatherer = gatherer
	}
}

// WithClock sets the clock used for message timestamps and intent timing.
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// Server represents the WebSocket server
type Server struct {
	rounds      Rounds
	history     History
	recorder    IntentRecorder
	gatherer    prometheus.Gatherer
	clock       quartz.Clock
	upgrader    websocket.Upgrader
	connections map[*Connection]struct{}
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// NewServer creates a server and subscribes it to the engine's events.
func NewServer(rounds Rounds, logger *log.Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		rounds: rounds,
		clock:  quartz.NewReal(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]struct{}),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = rounds.Bus().Subscribe(s)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /rounds", s.handleRounds)
	mux.HandleFunc("GET /rounds/{id}", s.handleRound)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close unsubscribes from the engine and closes every connection.
func (s *Server) Close() {
	s.cancel()
	s.unsubscribe()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()
}

// ConnectionCount returns the number of open WebSocket connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// OnEvent broadcasts an engine event to every connection. It runs under the
// engine lock, so sends never block.
func (s *Server) OnEvent(event engine.Event) {
	msg, err := EventMessage(event)
	if err != nil {
		s.logger.Error("Failed to encode event", "type", event.EventType(), "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if err := conn.SendMessage(msg); err == nil {
			count++
		}
	}
	s.logger.Debug("Broadcast event", "type", event.EventType(), "round", event.RoundID(), "recipients", count)
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Debug("Client connected", "total", total)
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Debug("Client disconnected", "player", conn.PlayerID(), "total", total)
}

func (s *Server) recordIntent(intent string, err error, started time.Time) {
	if s.recorder == nil {
		return
	}
	result := ""
	if err != nil {
		result = errorData(err).Code
	}
	s.recorder.RecordIntent(intent, result, s.clock.Since(started))
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := newConnection(conn, s)
	s.register(client)
	client.Start()

	go func() {
		<-client.Done()
		s.unregister(client)
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.rounds.Status().Halted {
		http.Error(w, "engine halted", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rounds.Status())
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "round history not configured", http.StatusNotFound)
		return
	}

	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rounds, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list rounds", "error", err)
		http.Error(w, "failed to list rounds", http.StatusInternalServerError)
		return
	}
	if rounds == nil {
		rounds = []engine.RoundSnapshot{}
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "round history not configured", http.StatusNotFound)
		return
	}

	round, err := s.history.GetRound(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrRoundNotFound):
		http.Error(w, "round not found", http.StatusNotFound)
	case err != nil:
		s.logger.Error("Failed to load round", "round", r.PathValue("id"), "error", err)
		http.Error(w, "failed to load round", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, round)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
