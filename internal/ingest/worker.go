package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lensai/lensai/internal/metrics"
	"github.com/lensai/lensai/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group of the sink writers.
	ConsumerGroup = "usage_writers"

	DefaultBatchSize       = 500
	DefaultBlockTimeout    = 5 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryBackoff    = time.Second
	DefaultClaimInterval   = 10 * time.Second
	DefaultClaimIdle       = 30 * time.Second
	DefaultMetricsInterval = 5 * time.Second

	deadLetterMaxLen = 10000
	// retryJitter is the ± fraction applied to each backoff.
	retryJitter = 0.2
)

// Worker moves events from the stream into a Sink. Entries are acknowledged
// only after the sink accepted the whole batch, so delivery is at least once.
type Worker struct {
	redis           *redis.Client
	sink            Sink
	validator       *Validator
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	retryBackoff    time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a Worker reading as consumerID.
func NewWorker(client *redis.Client, sink Sink, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		sink:            sink,
		validator:       NewValidator(),
		logger:          logger.With("component", "ingest.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		retryBackoff:    DefaultRetryBackoff,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the XREADGROUP block duration.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetRetryPolicy overrides the attempt count and the base backoff.
func (w *Worker) SetRetryPolicy(maxRetries int, backoff time.Duration) {
	if maxRetries > 0 {
		w.maxRetries = maxRetries
	}
	if backoff > 0 {
		w.retryBackoff = backoff
	}
}

// SetClaimPolicy overrides how often and after what idle time pending entries are reclaimed.
func (w *Worker) SetClaimPolicy(interval, idle time.Duration) {
	if interval > 0 {
		w.claimInterval = interval
	}
	if idle > 0 {
		w.claimIdle = idle
	}
}

// SetMetricsInterval overrides how often the queue depth gauge is refreshed.
func (w *Worker) SetMetricsInterval(interval time.Duration) {
	if interval > 0 {
		w.metricsInterval = interval
	}
}

// Run consumes the stream until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("ingest worker started", "stream", StreamKey, "group", ConsumerGroup)

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("ingest worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("ingest worker stopping")
			return nil
		default:
		}

		if err := w.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("process error", "error", err)
			sleepCtx(ctx, time.Second)
		}
	}
}

// Shutdown stops the loop and waits for the in-flight batch. It matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("ingest worker shutdown initiated")
	cancel()

	select {
	case <-done:
		w.logger.Info("ingest worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("ingest worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce handles reclaimed entries first, then one fresh batch.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}

	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	events, publishedAt, messageIDs := w.parseMessages(ctx, messages)
	if len(events) == 0 {
		// Only poison entries; those not dead-lettered stay pending.
		return w.ackMessages(ctx, messageIDs)
	}

	if err := w.processBatchWithRetry(ctx, events, publishedAt); err != nil {
		w.logger.Error("batch processing failed after retries",
			"batch_size", len(events),
			"error", err,
		)
		// Left pending; XAUTOCLAIM picks them up again.
		return err
	}

	return w.ackMessages(ctx, messageIDs)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			w.metrics.SetEventQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// parseMessages decodes entries. Entries that fail decoding go to the dead-letter stream
// and are returned in messageIDs so they get acknowledged. An entry whose dead-letter
// write fails is left out of messageIDs and stays pending for XAUTOCLAIM.
func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) ([]*model.UsageEvent, []time.Time, []string) {
	events := make([]*model.UsageEvent, 0, len(messages))
	publishedAt := make([]time.Time, 0, len(messages))
	messageIDs := make([]string, 0, len(messages))

	for _, msg := range messages {
		payload, ok := msg.Values[payloadField].(string)
		if !ok {
			if w.deadLetterMessage(ctx, msg, "invalid_format", "payload field missing or not a string") == nil {
				messageIDs = append(messageIDs, msg.ID)
			}
			continue
		}

		event, err := w.validator.Decode([]byte(payload))
		if err != nil {
			if w.deadLetterMessage(ctx, msg, "validation_error", err.Error()) == nil {
				messageIDs = append(messageIDs, msg.ID)
			}
			continue
		}

		messageIDs = append(messageIDs, msg.ID)
		events = append(events, event)
		publishedAt = append(publishedAt, entryTime(msg))
	}

	return events, publishedAt, messageIDs
}

// entryTime reads published_at, falling back to the millisecond part of the entry ID.
func entryTime(msg redis.XMessage) time.Time {
	if raw, ok := msg.Values[publishedAtField].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	msPart, _, _ := strings.Cut(msg.ID, "-")
	if ms, err := strconv.ParseInt(msPart, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}

func (w *Worker) deadLetterMessage(ctx context.Context, msg redis.XMessage, reason, detail string) error {
	w.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"original_id":      msg.ID,
			"original_stream":  StreamKey,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values[payloadField],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter queue",
			"message_id", msg.ID,
			"error", err,
		)
		return fmt.Errorf("dead-letter %s: %w", msg.ID, err)
	}

	w.metrics.IncEventProcessed(metrics.ProcessedDeadLettered)
	return nil
}

// processBatchWithRetry writes the batch, backing off exponentially between attempts.
func (w *Worker) processBatchWithRetry(ctx context.Context, events []*model.UsageEvent, publishedAt []time.Time) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		lastErr = w.processBatch(ctx, events, publishedAt)
		if lastErr == nil {
			return nil
		}
		if attempt == w.maxRetries {
			break
		}

		backoff := retryDelay(w.retryBackoff, attempt)
		w.logger.Warn("batch processing failed, retrying",
			"attempt", attempt,
			"backoff_seconds", backoff.Seconds(),
			"error", lastErr,
		)
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
	}

	for range events {
		w.metrics.IncEventProcessed(metrics.ProcessedFailed)
	}
	return lastErr
}

func (w *Worker) processBatch(ctx context.Context, events []*model.UsageEvent, publishedAt []time.Time) error {
	start := time.Now()

	if err := w.sink.Write(ctx, events); err != nil {
		return fmt.Errorf("sink write: %w", err)
	}

	elapsed := time.Since(start)
	w.logger.Info("batch processed",
		"events_count", len(events),
		"duration_ms", float64(elapsed.Microseconds())/1000,
	)

	w.metrics.ObserveEventBatchSize(len(events))
	w.metrics.ObserveEventBatchDuration(elapsed)
	for _, t := range publishedAt {
		w.metrics.IncEventProcessed(metrics.ProcessedSuccess)
		if !t.IsZero() {
			w.metrics.ObserveEventIngestLag(time.Since(t))
		}
	}
	return nil
}

func (w *Worker) ackMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageIDs...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// retryDelay doubles base per attempt with ±20% jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * float64(uint(1)<<uint(attempt-1))
	jitter := (rand.Float64()*2 - 1) * d * retryJitter
	return time.Duration(d + jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
