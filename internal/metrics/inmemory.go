package metrics

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of an InMemoryRecorder.
type Snapshot struct {
	EventsIngested       map[string]uint64
	EventsProcessed      map[string]uint64
	BatchCount           uint64
	BatchEvents          uint64
	BatchDurationTotalNs int64
	QueueDepth           int64
	IngestLagCount       uint64
	APIKeysCreated       uint64
	APIKeysRevoked       uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns an empty InMemoryRecorder.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		EventsIngested:  make(map[string]uint64),
		EventsProcessed: make(map[string]uint64),
	}}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snap
	out.EventsIngested = copyCounts(m.snap.EventsIngested)
	out.EventsProcessed = copyCounts(m.snap.EventsProcessed)
	return out
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *InMemoryRecorder) IncEventIngested(status string) {
	m.mu.Lock()
	m.snap.EventsIngested[status]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncEventProcessed(status string) {
	m.mu.Lock()
	m.snap.EventsProcessed[status]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveEventBatchSize(size int) {
	m.mu.Lock()
	m.snap.BatchCount++
	m.snap.BatchEvents += uint64(size)
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveEventBatchDuration(d time.Duration) {
	m.mu.Lock()
	m.snap.BatchDurationTotalNs += d.Nanoseconds()
	m.mu.Unlock()
}

func (m *InMemoryRecorder) SetEventQueueDepth(depth int64) {
	m.mu.Lock()
	m.snap.QueueDepth = depth
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveEventIngestLag(time.Duration) {
	m.mu.Lock()
	m.snap.IngestLagCount++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncAPIKeyCreated() {
	m.mu.Lock()
	m.snap.APIKeysCreated++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncAPIKeyRevoked() {
	m.mu.Lock()
	m.snap.APIKeysRevoked++
	m.mu.Unlock()
}
