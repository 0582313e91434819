package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// OutboxRepository stores events awaiting delivery to the broker.
type OutboxRepository interface {
	Create(ctx context.Context, event *models.OutboxEvent) error
	// FetchDue returns up to limit pending events whose next attempt is not after now, oldest first.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error)
	MarkSent(ctx context.Context, id uint, at time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string, nextAttempt time.Time) error
	CountPending(ctx context.Context) (int64, error)
}

// GORMOutboxRepository is a GORM implementation of OutboxRepository.
type GORMOutboxRepository struct {
	db *gorm.DB
}

// NewGORMOutboxRepository creates a new instance of GORMOutboxRepository.
func NewGORMOutboxRepository(db *gorm.DB) *GORMOutboxRepository {
	return &GORMOutboxRepository{db: db}
}

func (r *GORMOutboxRepository) Create(ctx context.Context, event *models.OutboxEvent) error {
	if event.Status == "" {
		event.Status = models.OutboxStatusPending
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *GORMOutboxRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.OutboxStatusPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due outbox events: %w", err)
	}
	return events, nil
}

func (r *GORMOutboxRepository) MarkSent(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.OutboxStatusSent,
			"sent_at":    at,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %d sent: %w", id, err)
	}
	return nil
}

func (r *GORMOutboxRepository) MarkFailed(ctx context.Context, id uint, reason string, nextAttempt time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      reason,
			"next_attempt_at": nextAttempt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %d failed: %w", id, err)
	}
	return nil
}

func (r *GORMOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("status = ?", models.OutboxStatusPending).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return n, nil
}
