package flockwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/flockwatch/dashboard"
	"github.com/jpalmerr/flockwatch/internal/command"
	"github.com/jpalmerr/flockwatch/internal/poller"
	"github.com/jpalmerr/flockwatch/internal/server"
	"github.com/jpalmerr/flockwatch/internal/store"
	"github.com/jpalmerr/flockwatch/internal/transport"
)

const (
	defaultPollingInterval = 2 * time.Second
	defaultPort            = 8080

	// CountPath is the counting service path polled for the sheep count,
	// relative to the API URL.
	CountPath = "/api/count"
)

// Session connects one counting service to a shared state store, a poller,
// a command dispatcher and (optionally) the web dashboard.
//
// Session is created using [New] with functional options and started with
// [Session.Start]. [Session.Snapshot] and [Session.Send] may be called at
// any time, before or during Start.
//
// The typical lifecycle is:
//
//	s, err := flockwatch.New(os.Getenv("API_URL"))
//	if err != nil {
//	    slog.Error("failed to create session", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	s.Start(ctx) // blocks until context cancelled
type Session struct {
	apiURL          string
	title           string
	pollingInterval time.Duration
	timeout         time.Duration
	port            int
	countField      string
	dashboard       bool
	logger          *slog.Logger
	pollCallbacks   []func(PollResult)

	store      *store.MemoryStore
	client     *transport.Client
	dispatcher *command.Dispatcher

	newDashboard func() dashboardServer
}

// dashboardServer is the part of *server.Server that Start drives.
type dashboardServer interface {
	Listen() error
	Serve(ctx context.Context) error
}

// New creates a [Session] for the counting service at apiURL.
//
// apiURL is the base URL of the service (e.g. "http://192.168.0.10:8000");
// the count is polled from apiURL + [CountPath] and commands are sent to
// apiURL + "/jetson/command". A trailing slash is ignored.
//
// Defaults:
//   - Polling interval: 2 seconds
//   - Request timeout: 5 seconds
//   - Port: 8080
//   - Count field: "sheep_count"
//
// Returns an error if apiURL is not an absolute http(s) URL or if any
// option is invalid.
func New(apiURL string, opts ...Option) (*Session, error) {
	base, err := normalizeAPIURL(apiURL)
	if err != nil {
		return nil, err
	}

	cfg := &sessionConfig{
		pollingInterval: defaultPollingInterval,
		timeout:         transport.DefaultTimeout,
		port:            defaultPort,
		countField:      poller.DefaultCountField,
		dashboard:       true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	st := store.NewMemoryStore()
	client := transport.NewClient(cfg.timeout)

	s := &Session{
		apiURL:          base,
		title:           cfg.title,
		pollingInterval: cfg.pollingInterval,
		timeout:         cfg.timeout,
		port:            cfg.port,
		countField:      cfg.countField,
		dashboard:       cfg.dashboard,
		logger:          logger,
		pollCallbacks:   cfg.pollCallbacks,
		store:           st,
		client:          client,
		dispatcher:      command.NewDispatcher(client, st, base, logger),
	}
	s.newDashboard = func() dashboardServer {
		return server.NewServer(s.store, s.dispatcher, sessionProber{s}, s.port, dashboard.Assets, s.title, s.logger)
	}
	return s, nil
}

// normalizeAPIURL validates the base URL and strips trailing slashes.
func normalizeAPIURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("api url is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("api url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("api url %q has no host", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// Start begins polling the counting service and, unless [WithoutDashboard]
// was given, serving the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - The count is polled immediately, then at the configured interval
//   - The HTTP server starts on the configured port
//   - Commands posted from the dashboard are dispatched to the service
//
// On cancellation the poller stops scheduling; a poll already in flight is
// allowed to finish before Start returns.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start or stops serving; in the latter case polling is stopped too.
func (s *Session) Start(ctx context.Context) error {
	s.logger.Info("flockwatch starting", "api_url", s.apiURL)
	s.logger.Info("polling configured", "url", s.CountURL(), "interval", s.pollingInterval.String())

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.dashboard {
		srv := s.newDashboard()
		if err := srv.Listen(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		s.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", s.port))

		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	handle := s.newPoller().Start(gctx)

	// a failed server cancels gctx, which stops the poller as well
	g.Go(func() error {
		<-gctx.Done()
		handle.Stop()
		handle.Wait()
		return nil
	})

	err := g.Wait()
	s.client.Close()
	s.logger.Info("flockwatch stopped")
	return err
}

func (s *Session) newPoller() *poller.Poller {
	opts := []poller.Option{
		poller.WithExtractor(poller.FieldExtractor(s.countField)),
	}
	for _, cb := range s.pollCallbacks {
		opts = append(opts, poller.WithResultHook(func(r poller.Result) {
			cb(pollResultFromPoller(r))
		}))
	}
	return poller.New(s.client, s.store, s.CountURL(), s.pollingInterval, s.logger, opts...)
}

// Snapshot returns a consistent copy of the current count and device status.
func (s *Session) Snapshot() State {
	return stateFromSnapshot(s.store.Get())
}

// Send dispatches a device command ("start" or "stop") and waits for the
// outcome, which is also written to the session state.
//
// Send returns an error wrapping [ErrInvalidAction] for any other action;
// nothing is sent in that case. Transport failures are not returned as
// errors: they are reported in [CommandResult] and the device status.
func (s *Session) Send(ctx context.Context, action string) (CommandResult, error) {
	outcome, err := s.dispatcher.Send(ctx, action)
	if err != nil {
		return CommandResult{}, err
	}
	return commandResultFromOutcome(outcome), nil
}

// Check runs one request against the count endpoint without updating the
// session state. It is the basis of the connectivity test page.
func (s *Session) Check(ctx context.Context) CheckResult {
	result := CheckResult{URL: s.CountURL()}

	start := time.Now()
	payload, err := s.client.FetchJSON(ctx, result.URL)
	result.Latency = time.Since(start)
	if err != nil {
		result.Err = err
		return result
	}

	result.Payload = payload
	result.Count, result.Err = poller.FieldExtractor(s.countField)(payload)
	return result
}

// APIURL returns the normalized base URL of the counting service.
func (s *Session) APIURL() string {
	return s.apiURL
}

// CountURL returns the URL polled for the sheep count.
func (s *Session) CountURL() string {
	return s.apiURL + CountPath
}

// Port returns the configured HTTP port for the dashboard server.
func (s *Session) Port() int {
	return s.port
}

// PollingInterval returns the configured interval between polls.
func (s *Session) PollingInterval() time.Duration {
	return s.pollingInterval
}

// Timeout returns the per-request timeout.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

// sessionProber exposes [Session.Check] to the dashboard server.
type sessionProber struct {
	s *Session
}

func (p sessionProber) Probe(ctx context.Context) server.ProbeResult {
	res := p.s.Check(ctx)
	probe := server.ProbeResult{
		URL:       res.URL,
		OK:        res.Err == nil,
		LatencyMs: res.Latency.Milliseconds(),
		Payload:   res.Payload,
	}
	if res.Err != nil {
		probe.Error = res.Err.Error()
	}
	return probe
}
