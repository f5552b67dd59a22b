package flockwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeService imitates the counting service: /api/count answers with the
// current count and /jetson/command acknowledges every action.
type fakeService struct {
	count     atomic.Int64
	countHits atomic.Int32
	commands  atomic.Int32
	*httptest.Server
}

func newFakeService(t *testing.T, count int64) *fakeService {
	t.Helper()
	svc := &fakeService{}
	svc.count.Store(count)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/count", func(w http.ResponseWriter, r *http.Request) {
		svc.countHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"sheep_count": %d}`, svc.count.Load())
	})
	mux.HandleFunc("/jetson/command", func(w http.ResponseWriter, r *http.Request) {
		svc.commands.Add(1)
		action := r.URL.Query().Get("action")
		if action != "start" && action != "stop" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "unknown action"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"status": "%s ok"}`, action)
	})

	svc.Server = httptest.NewServer(mux)
	t.Cleanup(svc.Close)
	return svc
}

// freePort asks the OS for a port that is free right now.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestStart_BlocksUntilContextCancelled verifies that Start blocks until the
// provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	svc := newFakeService(t, 1)

	s, err := New(svc.URL,
		WithPort(freePort(t)),
		WithPollingInterval(100*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// verify Start is still blocking (channel should be empty)
	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// does no work when the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	svc := newFakeService(t, 1)

	s, err := New(svc.URL, WithPort(freePort(t)), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}

	if hits := svc.countHits.Load(); hits != 0 {
		t.Errorf("count endpoint polled %d times, want 0", hits)
	}
}

func TestStart_PollsIntoSnapshot(t *testing.T) {
	svc := newFakeService(t, 12)

	s, err := New(svc.URL,
		WithoutDashboard(),
		WithPollingInterval(20*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	waitFor(t, func() bool { return s.Snapshot().Count == 12 })

	svc.count.Store(30)
	waitFor(t, func() bool { return s.Snapshot().Count == 30 })

	if s.Snapshot().LastUpdated.IsZero() {
		t.Error("LastUpdated should be set after a successful poll")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() returned error: %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	svc := newFakeService(t, 1)
	s, err := New(svc.URL, WithPort(ln.Addr().(*net.TCPAddr).Port), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = s.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("unexpected error: %v", err)
	}
	if hits := svc.countHits.Load(); hits != 0 {
		t.Errorf("poller should not start when the server fails, got %d polls", hits)
	}
}

// failingDashboard binds fine and then fails once release is closed.
type failingDashboard struct {
	release chan struct{}
	err     error
}

func (d *failingDashboard) Listen() error { return nil }

func (d *failingDashboard) Serve(ctx context.Context) error {
	select {
	case <-d.release:
		return d.err
	case <-ctx.Done():
		return nil
	}
}

func TestStart_ServerFailureStopsSession(t *testing.T) {
	svc := newFakeService(t, 4)
	s, err := New(svc.URL, WithPollingInterval(20*time.Millisecond), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	serveErr := errors.New("listener closed unexpectedly")
	dash := &failingDashboard{release: make(chan struct{}), err: serveErr}
	s.newDashboard = func() dashboardServer { return dash }

	// the parent context is never cancelled; only the server failure ends Start
	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	waitFor(t, func() bool { return s.Snapshot().Count == 4 })
	close(dash.release)

	select {
	case err := <-done:
		if !errors.Is(err, serveErr) {
			t.Fatalf("Start() = %v, want %v", err, serveErr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after the server failed")
	}

	// polling stopped with the session
	hits := svc.countHits.Load()
	time.Sleep(100 * time.Millisecond)
	if got := svc.countHits.Load(); got != hits {
		t.Errorf("poller kept running after Start returned: %d -> %d polls", hits, got)
	}
}

func TestStart_ServesDashboardAPI(t *testing.T) {
	svc := newFakeService(t, 8)
	port := freePort(t)

	s, err := New(svc.URL,
		WithPort(port),
		WithPollingInterval(20*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	waitFor(t, func() bool { return s.Snapshot().Count == 8 })

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/api/command?action=stop", port), "", nil)
	if err != nil {
		t.Fatalf("POST /api/command: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	device := s.Snapshot().Device
	if device.State != DeviceAcknowledged || device.Message != "stop ok" {
		t.Errorf("Device = %+v, want acknowledged(stop ok)", device)
	}
}

func TestWithPollCallback_InvokedOnPoll(t *testing.T) {
	svc := newFakeService(t, 5)

	var mu sync.Mutex
	var results []PollResult
	s, err := New(svc.URL,
		WithoutDashboard(),
		WithPollingInterval(20*time.Millisecond),
		WithLogger(testLogger()),
		WithPollCallback(func(r PollResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Start(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(results) == 0 {
		t.Fatal("callback should have been invoked at least once")
	}
	first := results[0]
	if first.Err != nil {
		t.Errorf("Err = %v, want nil", first.Err)
	}
	if first.Count != 5 {
		t.Errorf("Count = %d, want 5", first.Count)
	}
	if first.URL != svc.URL+CountPath {
		t.Errorf("URL = %q, want %q", first.URL, svc.URL+CountPath)
	}
	if first.CheckedAt.IsZero() {
		t.Error("CheckedAt should be set")
	}
}

func TestWithPollCallback_ReceivesFailures(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer svc.Close()

	errCh := make(chan error, 1)
	s, err := New(svc.URL,
		WithoutDashboard(),
		WithLogger(testLogger()),
		WithPollCallback(func(r PollResult) {
			select {
			case errCh <- r.Err:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrHTTP) {
			t.Errorf("Err = %v, want ErrHTTP", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	if s.Snapshot().Count != 0 {
		t.Error("failed poll must not change the count")
	}
}

func TestWithPollCallback_PanicRecovered(t *testing.T) {
	svc := newFakeService(t, 3)

	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	var after atomic.Int32
	s, err := New(svc.URL,
		WithoutDashboard(),
		WithPollingInterval(20*time.Millisecond),
		WithLogger(logger),
		WithPollCallback(func(PollResult) { panic("boom") }),
		WithPollCallback(func(PollResult) { after.Add(1) }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Start(ctx)

	if after.Load() < 2 {
		t.Errorf("polling should continue after a callback panic, later callback ran %d times", after.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "result hook panicked") {
		t.Errorf("expected panic to be logged, got: %s", buf.String())
	}
}

func TestSend(t *testing.T) {
	svc := newFakeService(t, 0)

	s, err := New(svc.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := s.Send(context.Background(), "start")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Accepted || res.Message != "start ok" || res.Action != "start" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.ID == "" {
		t.Error("ID should be set")
	}

	device := s.Snapshot().Device
	if device.State != DeviceAcknowledged || device.Message != "start ok" {
		t.Errorf("Device = %+v, want acknowledged(start ok)", device)
	}
}

func TestSend_InvalidAction(t *testing.T) {
	svc := newFakeService(t, 0)

	s, err := New(svc.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = s.Send(context.Background(), "set_params")
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("Send() error = %v, want ErrInvalidAction", err)
	}
	if svc.commands.Load() != 0 {
		t.Error("invalid action must not reach the service")
	}
	if s.Snapshot().Device.State != DeviceUnknown {
		t.Error("invalid action must not touch the device status")
	}
}

func TestSend_ServiceDown(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := svc.URL
	svc.Close()

	s, err := New(url, WithLogger(testLogger()), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := s.Send(context.Background(), "stop")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Accepted || !errors.Is(res.Err, ErrNetwork) {
		t.Errorf("unexpected result: %+v", res)
	}

	device := s.Snapshot().Device
	if device.State != DeviceError || device.Message != "communication failure" {
		t.Errorf("Device = %+v, want error(communication failure)", device)
	}
}

func TestCheck(t *testing.T) {
	svc := newFakeService(t, 21)

	s, err := New(svc.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := s.Check(context.Background())
	if res.Err != nil {
		t.Fatalf("Check() error = %v", res.Err)
	}
	if res.Count != 21 {
		t.Errorf("Count = %d, want 21", res.Count)
	}
	if res.Payload == nil {
		t.Error("Payload should be set")
	}

	// check never writes to the state
	if s.Snapshot().Count != 0 {
		t.Errorf("Check() changed the count to %d", s.Snapshot().Count)
	}
}

func TestCheck_MalformedPayload(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sheep_count": "many"}`))
	}))
	defer svc.Close()

	s, err := New(svc.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := s.Check(context.Background())
	if !errors.Is(res.Err, ErrMalformedPayload) {
		t.Errorf("Err = %v, want ErrMalformedPayload", res.Err)
	}
	if res.Payload == nil {
		t.Error("Payload should be kept for display even when the count is unusable")
	}
}

func TestSessionProber(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer svc.Close()

	s, err := New(svc.URL, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	probe := sessionProber{s}.Probe(context.Background())
	if probe.OK {
		t.Error("probe against a failing service should not be OK")
	}
	if probe.Error == "" {
		t.Error("probe error should be set")
	}
	if probe.URL != s.CountURL() {
		t.Errorf("URL = %q, want %q", probe.URL, s.CountURL())
	}
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// lockedWriter serializes writes from concurrent log calls.
type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
