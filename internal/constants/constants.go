// Package constants provides shared constants used across the codebase.
package constants

import "time"

// HTTP server timeouts
const (
	// RequestTimeout bounds a single API request, including its database work
	RequestTimeout = 30 * time.Second

	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 60 * time.Second
	ServerIdleTimeout  = 60 * time.Second

	// ShutdownTimeout is how long in-flight requests may finish after SIGINT/SIGTERM
	ShutdownTimeout = 30 * time.Second
)
