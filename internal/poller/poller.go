package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/flockwatch/internal/store"
	"github.com/jpalmerr/flockwatch/internal/transport"
)

// Result holds the outcome of a single poll cycle.
//
// Result is transient: it is handed to the result hooks and then discarded.
// Count is only meaningful when Err is nil.
type Result struct {
	// URL is the count endpoint that was polled.
	URL string

	// Count is the value written to the store.
	Count int64

	// Err is the reason the cycle was skipped, or nil on success.
	// Transport failures are *transport.NetworkError, *transport.HTTPError or
	// *transport.ParseError; a payload without a usable count wraps
	// [ErrMalformedPayload].
	Err error

	// Latency is the time taken by the request and extraction.
	Latency time.Duration

	// CheckedAt is the timestamp when the cycle completed.
	CheckedAt time.Time
}

// Option configures a [Poller].
type Option func(*Poller)

// WithExtractor replaces the default sheep_count field extractor.
// A nil extractor is ignored.
func WithExtractor(e CountExtractor) Option {
	return func(p *Poller) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithResultHook registers a function called after every completed cycle,
// successful or not. Hooks run on the polling goroutine and must not block.
func WithResultHook(fn func(Result)) Option {
	return func(p *Poller) {
		if fn != nil {
			p.onResult = append(p.onResult, fn)
		}
	}
}

// WithDropHook registers a function called whenever a tick is dropped
// because the previous poll is still in flight.
func WithDropHook(fn func()) Option {
	return func(p *Poller) {
		if fn != nil {
			p.onDrop = append(p.onDrop, fn)
		}
	}
}

// Poller fetches the count endpoint on a fixed interval and writes valid
// counts into a [store.Store].
//
// The poller polls immediately on start, then on every tick of a
// [time.Ticker]. Each cycle runs on its own goroutine; an atomic in-flight
// flag guarantees at most one cycle runs at a time, and a tick that finds
// the flag set is dropped rather than queued.
//
// Start is safe for concurrent use and idempotent.
type Poller struct {
	fetcher   transport.Fetcher
	store     store.Store
	url       string
	interval  time.Duration
	extractor CountExtractor
	logger    *slog.Logger
	onResult  []func(Result)
	onDrop    []func()

	inFlight atomic.Bool
	polls    sync.WaitGroup

	mu     sync.Mutex
	handle *Handle
}

// New creates a [Poller] for url.
//
// Parameters:
//   - fetcher: Transport used for every cycle
//   - st: Store receiving valid counts
//   - url: Fully-formed count endpoint URL
//   - interval: Time between ticks; must be positive
//   - logger: Logger for cycle failures and hook panics (nil uses slog.Default)
//
// The poller does nothing until [Poller.Start] is called.
func New(fetcher transport.Fetcher, st store.Store, url string, interval time.Duration, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		fetcher:   fetcher,
		store:     st,
		url:       url,
		interval:  interval,
		extractor: FieldExtractor(DefaultCountField),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// URL returns the polled endpoint.
func (p *Poller) URL() string {
	return p.url
}

// Start begins the polling loop in a background goroutine and returns its
// [Handle].
//
// Start is non-blocking. The poller will:
//  1. Poll once immediately
//  2. Poll on every interval tick, dropping ticks while a poll is in flight
//  3. Continue until [Handle.Stop] is called or ctx is cancelled
//
// Cancelling ctx stops future ticks like [Handle.Stop] but never aborts a
// poll that already started; each request is bounded by the transport's own
// timeout instead. If ctx is nil, context.Background() is used.
// Start is idempotent; subsequent calls return the same handle.
func (p *Poller) Start(ctx context.Context) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		return p.handle
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
		poller: p,
	}
	p.handle = h

	// in-flight polls keep ctx values but not its cancellation
	pollCtx := context.WithoutCancel(ctx)

	go p.run(loopCtx, pollCtx, h.done)
	return h
}

func (p *Poller) run(loopCtx, pollCtx context.Context, done chan<- struct{}) {
	defer close(done)

	p.tick(pollCtx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			// select picks randomly when both are ready; stop wins
			if loopCtx.Err() != nil {
				return
			}
			p.tick(pollCtx)
		}
	}
}

// tick starts a cycle unless one is already in flight.
func (p *Poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("poll tick dropped, previous poll still in flight", "url", p.url)
		for _, fn := range p.onDrop {
			p.invokeSafe("drop hook", fn)
		}
		return
	}

	p.polls.Add(1)
	go func() {
		defer p.polls.Done()
		defer p.inFlight.Store(false)
		p.PollOnce(ctx)
	}()
}

// PollOnce runs a single cycle synchronously and returns its [Result].
//
// On success the count is written to the store. On any failure the store is
// left unchanged and the failure is logged and reported to the result hooks;
// the error is also returned in [Result.Err] for callers that want it.
//
// PollOnce is not subject to the in-flight rule; scheduled polling should go
// through [Poller.Start].
func (p *Poller) PollOnce(ctx context.Context) Result {
	start := time.Now()
	result := Result{URL: p.url}

	count, err := p.fetchCount(ctx)
	if err == nil {
		// the store enforces non-negative counts as well
		err = p.store.SetCount(count)
	}

	result.Latency = time.Since(start)
	result.CheckedAt = time.Now()
	if err != nil {
		result.Err = err
		p.logger.Warn("poll failed",
			"url", p.url,
			"latency_ms", result.Latency.Milliseconds(),
			"error", err.Error(),
		)
	} else {
		result.Count = count
		p.logger.Debug("poll completed",
			"url", p.url,
			"count", count,
			"latency_ms", result.Latency.Milliseconds(),
		)
	}

	for _, fn := range p.onResult {
		p.invokeSafe("result hook", func() { fn(result) })
	}
	return result
}

func (p *Poller) fetchCount(ctx context.Context) (int64, error) {
	payload, err := p.fetcher.FetchJSON(ctx, p.url)
	if err != nil {
		return 0, err
	}
	return p.extractor(payload)
}

// invokeSafe calls fn with panic recovery.
// A panic is logged with its stack trace under a correlation ID and does not
// propagate into the polling loop.
func (p *Poller) invokeSafe(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(what+" panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// Handle controls a running [Poller].
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	poller   *Poller
	stopOnce sync.Once
}

// Stop cancels all future ticks and blocks until the polling loop has
// exited. Once Stop returns no further poll begins.
//
// A poll already in flight is not cancelled: it completes and may still
// write its result to the store. Use [Handle.Wait] to wait for it.
//
// Stop is idempotent and safe to call on a nil handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(h.cancel)
	<-h.done
}

// Done returns a channel that is closed once the polling loop has exited,
// either through [Handle.Stop] or because the start context was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the polling loop has exited and the poll in flight, if
// any, has finished. It does not stop the loop itself; call [Handle.Stop] or
// cancel the start context first.
func (h *Handle) Wait() {
	if h == nil {
		return
	}
	<-h.done
	h.poller.polls.Wait()
}
