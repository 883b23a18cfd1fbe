package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lensai/lensai/internal/model"
)

const (
	// StreamKey is the Redis stream holding accepted usage events.
	StreamKey = "stream:usage_events"

	// DeadLetterStreamKey receives events the worker cannot parse.
	DeadLetterStreamKey = "stream:usage_events:dlq"

	// MaxStreamLen is the approximate cap applied on every XADD.
	MaxStreamLen = 100000

	payloadField     = "payload"
	publishedAtField = "published_at"
)

// Publisher appends usage events to the stream.
type Publisher struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		redis:  client,
		logger: logger.With("component", "ingest.publisher"),
	}
}

// Publish adds event to the stream and returns its entry ID.
func (p *Publisher) Publish(ctx context.Context, event *model.UsageEvent) (string, error) {
	values, err := streamValues(event, time.Now())
	if err != nil {
		return "", err
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	p.logger.Debug("usage event published",
		"project_id", event.ProjectID,
		"request_id", event.RequestID,
		"stream_id", id,
	)
	return id, nil
}

func streamValues(event *model.UsageEvent, now time.Time) (map[string]any, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]any{
		payloadField:     string(data),
		publishedAtField: now.UnixMilli(),
	}, nil
}
