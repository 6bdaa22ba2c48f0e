package model

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryOutcome classifies one delivery attempt or terminal outcome
type DeliveryOutcome string

const (
	OutcomeSuccess DeliveryOutcome = "success"
	OutcomeRetry   DeliveryOutcome = "retry"
	OutcomeFailed  DeliveryOutcome = "failed"
	OutcomeSkipped DeliveryOutcome = "skipped"
)

// DeliveryLogEntry is an append-only record of a dispatch attempt.
// Every terminal queue state has exactly one row explaining why.
type DeliveryLogEntry struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	QueueEntryID   uuid.UUID       `json:"queue_entry_id" gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID       `json:"user_id" gorm:"not null;index"`
	Outcome        DeliveryOutcome `json:"outcome" gorm:"size:20;not null;index"`
	DevicesReached int             `json:"devices_reached" gorm:"not null;default:0"`
	ErrorCode      string          `json:"error_code" gorm:"size:64"`
	ErrorMessage   string          `json:"error_message"`
	LatencyMs      int64           `json:"latency_ms" gorm:"not null;default:0"`
	CreatedAt      time.Time       `json:"created_at" gorm:"index"`
}
