// Package mockservice is an in-process stand-in for the sheep-counting
// service, used by the examples and the end-to-end tests.
//
// It serves GET /api/count and GET /jetson/command?action=start|stop. While
// the device is started, every count request may add a few sheep.
package mockservice

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Service is a mock counting device.
type Service struct {
	mu      sync.Mutex
	count   int64
	running bool
	latency time.Duration
	step    func() int64
	logger  *slog.Logger
}

// New creates a stopped Service with a zero count.
//
// latency is added to every count request to make overlapping polls
// observable. A nil logger uses slog.Default.
func New(latency time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		latency: latency,
		step:    func() int64 { return rand.Int64N(3) },
		logger:  logger,
	}
}

// Count returns the current count.
func (s *Service) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Running reports whether the device was started.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Handler returns the HTTP handler for the service routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/count", s.handleCount)
	mux.HandleFunc("GET /jetson/command", s.handleCommand)
	return mux
}

func (s *Service) handleCount(w http.ResponseWriter, r *http.Request) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	if s.running {
		s.count += s.step()
	}
	count := s.count
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]int64{"sheep_count": count}, s.logger)
}

func (s *Service) handleCommand(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch action {
	case "start":
		s.running = true
		s.logger.Info("device started")
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"}, s.logger)
	case "stop":
		s.running = false
		s.logger.Info("device stopped")
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"}, s.logger)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unknown action " + action}, s.logger)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
