package model

import (
	"time"

	"github.com/google/uuid"
)

// ========== Auth DTOs ==========

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// ========== Schedule DTOs ==========

type UpsertScheduleRequest struct {
	UserID       uuid.UUID        `json:"user_id" binding:"required"`
	Type         NotificationType `json:"type" binding:"required"`
	LocalTime    string           `json:"local_time" binding:"required,len=5"` // HH:MM
	Timezone     string           `json:"timezone" binding:"required"`
	DaysOfWeek   DayMask          `json:"days_of_week"`
	Enabled      *bool            `json:"enabled"`
	GraceMinutes int              `json:"grace_minutes"`
}

// ========== Device DTOs ==========

type RegisterDeviceRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	Token    string    `json:"token" binding:"required"`
	Platform string    `json:"platform"`
}

type DeactivateDeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

// ========== Template DTOs ==========

type UpsertTemplateRequest struct {
	Type     NotificationType `json:"type" binding:"required"`
	Title    string           `json:"title" binding:"required"`
	Body     string           `json:"body" binding:"required"`
	Metadata map[string]any   `json:"metadata"`
}

// ========== Admin / ops DTOs ==========

type QueueStatsResponse struct {
	Counts      map[QueueStatus]int64 `json:"counts"`
	SuccessRate float64               `json:"success_rate"`
	Window      string                `json:"window"`
}

type TriggerUserRequest struct {
	UserID uuid.UUID        `json:"user_id" binding:"required"`
	Type   NotificationType `json:"type" binding:"required"`
}

type BulkRetryRequest struct {
	SinceSeconds int64 `json:"since_seconds"` // retry window, defaults to 24h when zero
}

type BulkRetryResponse struct {
	Requeued int64 `json:"requeued"`
}

type FlushPendingResponse struct {
	Flushed int64 `json:"flushed"`
}

type BackfillCompleteRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type SyncEnqueueRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required"`
}

type SyncEnqueueResponse struct {
	Accepted int `json:"accepted"`
	Deduped  int `json:"deduped"`
}

type ReinitializePushRequest struct {
	CredentialsFile string `json:"credentials_file"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DeliveryEvent is pushed on the admin websocket feed for every terminal outcome
type DeliveryEvent struct {
	QueueEntryID   uuid.UUID        `json:"queue_entry_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Type           NotificationType `json:"type"`
	Outcome        DeliveryOutcome  `json:"outcome"`
	Reason         string           `json:"reason,omitempty"`
	DevicesReached int              `json:"devices_reached"`
	At             time.Time        `json:"at"`
}
