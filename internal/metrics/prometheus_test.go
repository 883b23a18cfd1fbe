package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, p *PrometheusRecorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	p := NewPrometheus()

	p.IncEventIngested(IngestAccepted)
	p.IncEventIngested(IngestAccepted)
	p.IncEventIngested(IngestInvalid)
	p.IncEventProcessed(ProcessedSuccess)
	p.IncAPIKeyCreated()
	p.IncAPIKeyRevoked()
	p.SetEventQueueDepth(42)

	body := scrape(t, p)
	for _, line := range []string{
		`lensai_events_ingested_total{status="accepted"} 2`,
		`lensai_events_ingested_total{status="invalid"} 1`,
		`lensai_events_processed_total{status="success"} 1`,
		"lensai_api_keys_created_total 1",
		"lensai_api_keys_revoked_total 1",
		"lensai_event_queue_depth 42",
	} {
		assert.Contains(t, body, line)
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	p := NewPrometheus()
	p.IncEventIngested(IngestAccepted)
	p.ObserveEventBatchSize(10)
	p.ObserveEventBatchDuration(20 * time.Millisecond)
	p.ObserveEventIngestLag(time.Second)

	body := scrape(t, p)
	for _, name := range []string{
		`lensai_events_ingested_total{status="accepted"} 1`,
		"lensai_event_batch_size_count 1",
		"lensai_event_batch_duration_seconds_count 1",
		"lensai_event_ingest_lag_seconds_count 1",
		"go_goroutines",
	} {
		assert.Contains(t, body, name)
	}
}

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	m := NewInMemory()
	m.IncEventIngested(IngestAccepted)
	m.IncEventProcessed(ProcessedDeadLettered)
	m.ObserveEventBatchSize(3)
	m.ObserveEventBatchSize(2)
	m.IncAPIKeyCreated()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.EventsIngested[IngestAccepted])
	assert.Equal(t, uint64(1), snap.EventsProcessed[ProcessedDeadLettered])
	assert.Equal(t, uint64(2), snap.BatchCount)
	assert.Equal(t, uint64(5), snap.BatchEvents)
	assert.Equal(t, uint64(1), snap.APIKeysCreated)

	// Snapshots are copies.
	snap.EventsIngested[IngestAccepted] = 99
	assert.Equal(t, uint64(1), m.Snapshot().EventsIngested[IngestAccepted])
}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*InMemoryRecorder)(nil)
	_ Recorder = (*PrometheusRecorder)(nil)
)
