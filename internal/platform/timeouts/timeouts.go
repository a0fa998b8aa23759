// Package timeouts holds the HTTP server durations shared by the binaries.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// SessionIdle is how long a probe session may go untouched before the
// server disposes of it.
const SessionIdle = 30 * time.Minute
