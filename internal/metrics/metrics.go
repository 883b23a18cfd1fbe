// Package metrics provides instrumentation hooks for the API and the event pipeline.
package metrics

import "time"

// Event ingest statuses.
const (
	IngestAccepted     = "accepted"
	IngestInvalid      = "invalid"
	IngestUnauthorized = "unauthorized"
	IngestFailed       = "failed"
)

// Event processing statuses.
const (
	ProcessedSuccess      = "success"
	ProcessedFailed       = "failed"
	ProcessedDeadLettered = "dead_lettered"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Usage event pipeline
	IncEventIngested(status string)
	IncEventProcessed(status string)
	ObserveEventBatchSize(size int)
	ObserveEventBatchDuration(duration time.Duration)
	SetEventQueueDepth(depth int64)
	ObserveEventIngestLag(lag time.Duration)

	// API key management
	IncAPIKeyCreated()
	IncAPIKeyRevoked()
}
