package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/flockwatch"
	"github.com/jpalmerr/flockwatch/internal/mockservice"
)

const mockAddr = ":9999"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start the mock counting service; 300ms latency so slow polls are visible
	mock := &http.Server{
		Addr:              mockAddr,
		Handler:           mockservice.New(300*time.Millisecond, nil).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := mock.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock service error", "error", err)
		}
	}()
	defer func() { _ = mock.Close() }()
	time.Sleep(100 * time.Millisecond)

	session, err := flockwatch.New("http://localhost"+mockAddr,
		flockwatch.WithTitle("Flockwatch Demo"),
		flockwatch.WithPollingInterval(time.Second),
		flockwatch.WithPort(8080),
		flockwatch.WithPollCallback(func(r flockwatch.PollResult) {
			if r.Err != nil {
				slog.Warn("poll failed", "error", r.Err)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Flockwatch Demo")
	fmt.Println()
	fmt.Println("  Dashboard:     http://localhost:8080")
	fmt.Println("  Connectivity:  http://localhost:8080/check")
	fmt.Println("  Mock service:  http://localhost" + mockAddr)
	fmt.Println()
	fmt.Println("  Press Start to begin counting. Ctrl+C to stop.")
	fmt.Println()

	if err := session.Start(ctx); err != nil {
		slog.Error("flockwatch error", "error", err)
		os.Exit(1)
	}
}
