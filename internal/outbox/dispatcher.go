// Package outbox relays committed outbox rows to the configured broker.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/telemetry"
)

const maxRetryDelay = 24 * time.Hour

// Dispatcher publishes pending outbox rows with at-least-once semantics: a row
// is marked sent only after the broker accepted it.
type Dispatcher struct {
	repo       repositories.OutboxRepository
	publisher  events.Publisher
	logger     *zap.Logger
	cfg        config.OutboxConfig
	tracer     trace.Tracer
	wake       chan struct{}
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithBackOff replaces the backoff policy used between publish attempts of one row.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(d *Dispatcher) { d.newBackOff = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(repo repositories.OutboxRepository, publisher events.Publisher, logger *zap.Logger, cfg config.OutboxConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		tracer:    otel.Tracer("storefront/outbox"),
		wake:      make(chan struct{}, 1),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify asks a running dispatcher to poll now. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started", zap.Duration("poll_interval", d.cfg.PollInterval))
	for {
		if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// DispatchPending publishes one batch of due rows and returns how many were sent.
// A row whose publish keeps failing is rescheduled; only store errors are returned.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	due, err := d.repo.FetchDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		ok, err := d.dispatch(ctx, event)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event models.OutboxEvent) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "outbox.publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", event.EventID),
			attribute.String("event.type", event.EventType),
			attribute.Int64("order.id", int64(event.AggregateID)),
		))
	defer span.End()

	msg := events.MessageFromOutbox(event, telemetry.InjectHeaders(ctx))
	policy := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.cfg.PublishRetries), ctx)
	pubErr := backoff.Retry(func() error { return d.publisher.Publish(ctx, msg) }, policy)

	if pubErr != nil {
		span.RecordError(pubErr)
		span.SetStatus(codes.Error, "publish failed")
		next := d.now().Add(d.retryDelay(event.Attempts + 1))
		d.logger.Warn("outbox publish failed",
			zap.String("event_id", event.EventID),
			zap.Uint("order_id", event.AggregateID),
			zap.Int("attempts", event.Attempts+1),
			zap.Time("next_attempt_at", next),
			zap.Error(pubErr),
		)
		if err := d.repo.MarkFailed(ctx, event.ID, pubErr.Error(), next); err != nil {
			return false, fmt.Errorf("failed to reschedule outbox event %s: %w", event.EventID, err)
		}
		return false, nil
	}

	if err := d.repo.MarkSent(ctx, event.ID, d.now()); err != nil {
		return false, fmt.Errorf("failed to mark outbox event %s sent: %w", event.EventID, err)
	}
	d.logger.Debug("outbox event published", zap.String("event_id", event.EventID), zap.Uint("order_id", event.AggregateID))
	return true, nil
}

// retryDelay doubles the poll interval per failed attempt, capped by MaxBackoff.
// Without a cap the delay stops growing at maxRetryDelay instead of overflowing.
func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	limit := d.cfg.MaxBackoff
	if limit <= 0 {
		limit = maxRetryDelay
	}
	delay := d.cfg.PollInterval
	for i := 1; i < attempts && delay < limit; i++ {
		if delay > limit/2 {
			delay = limit
			break
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}
