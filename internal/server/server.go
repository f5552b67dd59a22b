package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/flockwatch/internal/command"
	"github.com/jpalmerr/flockwatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Flockwatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	dashboardPage    = "assets/index.html"
	connectivityPage = "assets/check.html"
)

// Commander dispatches device commands. It is satisfied by
// *command.Dispatcher.
type Commander interface {
	Send(ctx context.Context, action string) (command.Outcome, error)
}

// Prober performs one live request against the counting service without
// touching the store. It backs the connectivity test page.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// ProbeResult is the JSON answer of GET /api/check.
type ProbeResult struct {
	URL       string `json:"url"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Server is the display layer: it renders the shared store and forwards
// user commands to the dispatcher.
//
// Server provides these endpoints:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /check: Serves the connectivity test page
//   - GET /api/state: Returns the current snapshot as JSON
//   - GET /api/sse: Server-Sent Events stream of snapshots
//   - POST /api/command?action=start|stop: Dispatches a device command
//   - GET /api/check: Runs one live request against the counting service
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store     store.Store
	commander Commander
	prober    Prober
	port      int
	assets    fs.FS
	title     string
	logger    *slog.Logger
	listen    func(network, address string) (net.Listener, error)

	mu   sync.Mutex
	ln   net.Listener
	addr net.Addr
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store read by the dashboard and API
//   - cmd: Command dispatcher (nil disables POST /api/command)
//   - prober: Connectivity prober (nil disables GET /api/check)
//   - port: TCP port to listen on (0 picks a free port)
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "Flockwatch" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, cmd Commander, prober Prober, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:     st,
		commander: cmd,
		prober:    prober,
		port:      port,
		assets:    assets,
		title:     title,
		logger:    logger,
		listen:    net.Listen,
	}
}

// Handler returns the request router. Start uses it; tests may mount it on
// an httptest.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/sse", s.handleSSE)
	if s.commander != nil {
		mux.HandleFunc("/api/command", s.handleCommand)
	}
	if s.prober != nil {
		mux.HandleFunc("/api/check", s.handleCheck)
	}

	// serve dashboard assets
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
		mux.HandleFunc("/check", s.handleConnectivityPage)
	}

	return mux
}

// Start binds the listener and serves HTTP requests in a background
// goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout. A later serve failure is only logged; callers that need it use
// [Server.Listen] and [Server.Serve] instead.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	go func() {
		if err := s.Serve(ctx); err != nil {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Listen binds the configured port. It is separate from [Server.Serve] so a
// port conflict is reported synchronously.
func (s *Server) Listen() error {
	ln, err := s.listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.addr = ln.Addr()
	s.mu.Unlock()
	return nil
}

// Serve handles requests on the listener bound by [Server.Listen] and
// blocks until ctx is cancelled or the server fails.
//
// Cancellation triggers a graceful shutdown bounded by a 5-second timeout
// and returns nil. Any other failure of the underlying listener is returned.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		<-errCh
		return nil
	}
}

// Addr returns the address the server is listening on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderPage(w, dashboardPage)
}

// handleConnectivityPage serves the connectivity test page.
func (s *Server) handleConnectivityPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, connectivityPage)
}

// renderPage writes an embedded HTML page with the title substituted.
func (s *Server) renderPage(w http.ResponseWriter, name string) {
	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, name)
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleState returns the current snapshot as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.store.Get())
}

// handleCommand dispatches the action named in the query string.
//
// Dispatch failures are not HTTP errors: the outcome (accepted or not) is
// returned with 200 and is also visible in the store. Only an unrecognized
// action yields 400.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	action := r.URL.Query().Get("action")
	outcome, err := s.commander.Send(r.Context(), action)
	if err != nil {
		if errors.Is(err, command.ErrInvalidAction) {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("command dispatch failed", "action", action, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "command dispatch failed"})
		return
	}

	s.writeJSON(w, http.StatusOK, outcome)
}

// handleCheck runs one live request against the counting service.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.prober.Probe(r.Context()))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams snapshots via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(snap store.Snapshot) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before reading the initial state so no write is missed
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	if err := writeAndFlush(s.store.Get()); err != nil {
		return
	}

	// stream updates
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(snap); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
