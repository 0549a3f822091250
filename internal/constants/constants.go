// Package constants provides shared constants used across the codebase.
package constants

import "time"

// HTTP constants
const (
	// MaxUploadSize is the maximum upload size in bytes, for multipart files and
	// JSON bodies carrying a base64 data URL alike (20MB)
	MaxUploadSize = 20 << 20

	// RequestTimeout bounds a whole API request, vision calls included
	RequestTimeout = 2 * time.Minute

	// ShutdownTimeout is how long the server waits for in-flight requests on shutdown
	ShutdownTimeout = 30 * time.Second
)

// Lookalike constants
const (
	// DefaultLookalikes is the number of lookalikes returned when none is requested
	DefaultLookalikes = 5
)
