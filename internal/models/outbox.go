package models

import "time"

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
)

// OutboxEvent is a message written in the same transaction as the state change
// it describes and relayed to the broker afterwards.
type OutboxEvent struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	EventID       string       `json:"eventId" gorm:"type:varchar(36);uniqueIndex;not null"`
	AggregateID   uint         `json:"aggregateId" gorm:"not null;index"`
	EventType     string       `json:"eventType" gorm:"type:varchar(100);not null"`
	Payload       []byte       `json:"payload" gorm:"not null"`
	Status        OutboxStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_outbox_due,priority:1"`
	Attempts      int          `json:"attempts" gorm:"not null;default:0"`
	LastError     string       `json:"lastError,omitempty"`
	NextAttemptAt time.Time    `json:"nextAttemptAt" gorm:"not null;index:idx_outbox_due,priority:2"`
	SentAt        *time.Time   `json:"sentAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}
