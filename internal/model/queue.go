package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the lifecycle state of a queue entry
type QueueStatus string

const (
	StatusScheduled  QueueStatus = "scheduled"
	StatusProcessing QueueStatus = "processing"
	StatusDelivered  QueueStatus = "delivered"
	StatusFailed     QueueStatus = "failed"
	StatusSkipped    QueueStatus = "skipped"
)

// Terminal reports whether the status is a final state
func (s QueueStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusSkipped
}

// Failure / skip reasons recorded on terminal entries and delivery logs
const (
	ReasonMaxRetries    = "MAX_RETRIES"
	ReasonNoDevice      = "NO_ACTIVE_DEVICE"
	ReasonGateBlocked   = "GATE_BLOCKED"
	ReasonFlushed       = "FLUSHED"
	ReasonNotConfigured  = "PUSH_NOT_CONFIGURED"
	ReasonProviderError  = "PROVIDER_ERROR"
	ReasonInvalidPayload = "INVALID_PAYLOAD"
)

// QueueEntry is one scheduled notification occurrence.
// Unique on (user, type, local_date_key) so overlapping populator ticks are no-ops.
// Entries are never deleted; terminal states are kept for audit.
type QueueEntry struct {
	ID              uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID          uuid.UUID        `json:"user_id" gorm:"not null;uniqueIndex:idx_user_type_date;index"`
	Type            NotificationType `json:"type" gorm:"size:50;not null;uniqueIndex:idx_user_type_date"`
	LocalDateKey    string           `json:"local_date_key" gorm:"size:10;not null;uniqueIndex:idx_user_type_date"` // local calendar date of the fire instant
	Title           string           `json:"title" gorm:"not null"`
	Body            string           `json:"body" gorm:"not null"`
	ScheduledForUTC time.Time        `json:"scheduled_for_utc" gorm:"not null;index"`
	Status          QueueStatus      `json:"status" gorm:"size:20;not null;default:'scheduled';index"`
	Attempts        int              `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts     int              `json:"max_attempts" gorm:"not null;default:3"`
	NextRetryAt     *time.Time       `json:"next_retry_at" gorm:"index"`
	Payload         json.RawMessage  `json:"payload" gorm:"type:jsonb"`
	Reason          string           `json:"reason" gorm:"size:64"`
	DeliveredAt     *time.Time       `json:"delivered_at"`
	DevicesReached  int              `json:"devices_reached" gorm:"not null;default:0"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
