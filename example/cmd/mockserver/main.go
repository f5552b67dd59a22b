// Standalone mock counting service for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	API_URL=http://localhost:9999 go run ./cmd/flockwatch serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/flockwatch/internal/mockservice"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	latency := flag.Duration("latency", 200*time.Millisecond, "delay added to every count request")
	flag.Parse()

	fmt.Printf("Mock counting service starting on %s\n", *addr)
	fmt.Println("  GET /api/count")
	fmt.Println("  GET /jetson/command?action=start|stop")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mockservice.New(*latency, nil).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
