package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies a kind of scheduled notification
type NotificationType string

const (
	TypeMorningSummary NotificationType = "morning_summary"
	TypeAnomalyAlert   NotificationType = "anomaly_alert"
	TypeGoalProgress   NotificationType = "goal_progress"
	TypeSyncReminder   NotificationType = "sync_reminder"
	TypeSystemAlert    NotificationType = "system_alert"
)

// Valid reports whether t is a known notification type
func (t NotificationType) Valid() bool {
	switch t {
	case TypeMorningSummary, TypeAnomalyAlert, TypeGoalProgress, TypeSyncReminder, TypeSystemAlert:
		return true
	}
	return false
}

// Template holds the title/body and structured metadata for a notification type.
// Looked up by type at populate time; a schedule without a template is skipped.
type Template struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Type      NotificationType `json:"type" gorm:"size:50;not null;uniqueIndex"`
	Title     string           `json:"title" gorm:"not null"`
	Body      string           `json:"body" gorm:"not null"`
	Metadata  json.RawMessage  `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
