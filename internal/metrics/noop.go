package metrics

import "time"

// NoopRecorder discards everything.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) IncEventIngested(string)                 {}
func (NoopRecorder) IncEventProcessed(string)                {}
func (NoopRecorder) ObserveEventBatchSize(int)               {}
func (NoopRecorder) ObserveEventBatchDuration(time.Duration) {}
func (NoopRecorder) SetEventQueueDepth(int64)                {}
func (NoopRecorder) ObserveEventIngestLag(time.Duration)     {}
func (NoopRecorder) IncAPIKeyCreated()                       {}
func (NoopRecorder) IncAPIKeyRevoked()                       {}
