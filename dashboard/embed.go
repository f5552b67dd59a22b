// Package dashboard provides the embedded web UI assets for flockwatch.
//
// This package uses Go's embed directive to include the dashboard HTML, CSS,
// and JavaScript at compile time. This enables single-binary deployment
// without external asset files.
//
// The embedded assets are served by the server package at "/" and "/check".
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Count and device status display with start/stop controls
//	  check.html    - Connectivity test page backed by /api/check
//
// Both pages use "{{.Title}}" as a placeholder for the configured title.
//
//go:embed assets/*
var Assets embed.FS
