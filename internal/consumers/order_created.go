// Package consumers turns broker messages into customer service calls.
package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/events"
	"storefront/internal/telemetry"
)

// OrderRecorder stores the orders announced by order.created events.
type OrderRecorder interface {
	RecordOrderCreated(ctx context.Context, event events.OrderCreatedEvent) error
}

// OrderCreatedHandler handles order.created messages. Messages with other
// patterns, and messages that can never be processed (including events for
// unknown customers), are acknowledged and dropped.
type OrderCreatedHandler struct {
	recorder OrderRecorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewOrderCreatedHandler(recorder OrderRecorder, logger *zap.Logger) *OrderCreatedHandler {
	return &OrderCreatedHandler{
		recorder: recorder,
		logger:   logger,
		tracer:   otel.Tracer("storefront/consumers"),
	}
}

// Handle processes one message body. A returned error means the message
// should be redelivered.
func (h *OrderCreatedHandler) Handle(ctx context.Context, body []byte, headers map[string]string) (err error) {
	ctx = telemetry.ExtractHeaders(ctx, headers)
	ctx, span := h.tracer.Start(ctx, "order.created process", trace.WithSpanKind(trace.SpanKindConsumer))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	env, err := events.Decode(body)
	if err != nil {
		h.logger.Error("dropping undecodable message", zap.ByteString("body", body), zap.Error(err))
		return nil
	}
	if env.Pattern != events.PatternOrderCreated {
		h.logger.Debug("ignoring message", zap.String("pattern", env.Pattern))
		return nil
	}

	var event events.OrderCreatedEvent
	if err := json.Unmarshal(env.Data, &event); err != nil {
		h.logger.Error("dropping malformed order.created payload", zap.ByteString("data", env.Data), zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.Int64("order.id", int64(event.ID)))

	if err := h.recorder.RecordOrderCreated(ctx, event); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			h.logger.Error("dropping invalid order.created event", zap.Uint("order_id", event.ID), zap.Error(err))
			return nil
		case errors.Is(err, apperrors.ErrNotFound):
			h.logger.Warn("dropping order.created event for unknown customer",
				zap.Uint("order_id", event.ID),
				zap.Uint("customer_id", event.CustomerID),
			)
			return nil
		}
		return fmt.Errorf("failed to record order %d: %w", event.ID, err)
	}
	return nil
}
