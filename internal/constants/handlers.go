package constants

import "time"

// Async grouping jobs
const (
	// EventChannelBuffer is the per-listener buffer for job events
	EventChannelBuffer = 100

	// MaxRetainedJobs is how many finished grouping jobs stay queryable
	MaxRetainedJobs = 50

	// SSEKeepaliveInterval is how often an idle event stream receives a comment line
	SSEKeepaliveInterval = 15 * time.Second
)
