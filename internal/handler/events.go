package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/lensai/lensai/internal/ingest"
	"github.com/lensai/lensai/internal/metrics"
	"github.com/lensai/lensai/internal/model"
)

// EventPublisher queues accepted usage events.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.UsageEvent) (string, error)
}

// EventHandler accepts usage events from SDKs and proxies.
type EventHandler struct {
	publisher EventPublisher
	verifier  *ingest.Verifier
	validator *ingest.Validator
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewEventHandler creates a new EventHandler. A nil or disabled verifier accepts unsigned requests.
func NewEventHandler(publisher EventPublisher, verifier *ingest.Verifier, recorder metrics.Recorder, logger *slog.Logger) *EventHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &EventHandler{
		publisher: publisher,
		verifier:  verifier,
		validator: ingest.NewValidator(),
		metrics:   recorder,
		logger:    logger.With("component", "handler.events"),
	}
}

type eventAccepted struct {
	Status   string `json:"status"`
	StreamID string `json:"stream_id"`
}

type eventRejected struct {
	Error   string              `json:"error"`
	Details []ingest.FieldError `json:"details"`
}

// Ingest handles POST /v1/events.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.IncEventIngested(metrics.IngestInvalid)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorJSON(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return
		}
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	if err := h.verifier.Verify(r.Header.Get(ingest.TimestampHeader), r.Header.Get(ingest.SignatureHeader), body); err != nil {
		h.metrics.IncEventIngested(metrics.IngestUnauthorized)
		h.logger.Warn("rejected unsigned or mis-signed event",
			slog.String("reason", err.Error()),
			slog.String("ip", r.RemoteAddr),
		)
		writeErrorJSON(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature")
		return
	}

	event, err := h.validator.Decode(body)
	if err != nil {
		h.metrics.IncEventIngested(metrics.IngestInvalid)
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, eventRejected{Error: "Invalid event format", Details: ve.Details})
			return
		}
		h.logger.Error("failed to validate event", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process event")
		return
	}

	streamID, err := h.publisher.Publish(r.Context(), event)
	if err != nil {
		h.metrics.IncEventIngested(metrics.IngestFailed)
		h.logger.Error("failed to queue event",
			slog.String("project_id", event.ProjectID),
			slog.String("request_id", event.RequestID),
			slog.String("error", err.Error()),
		)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to queue event")
		return
	}

	h.metrics.IncEventIngested(metrics.IngestAccepted)
	writeJSON(w, http.StatusOK, eventAccepted{Status: "ok", StreamID: streamID})
}
