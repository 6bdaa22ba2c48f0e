package model

import (
	"time"

	"github.com/google/uuid"
)

// OnboardingStatus tracks the initial historical-data backfill per user.
// Notifications are suppressed until the backfill completes and a cooldown elapses.
type OnboardingStatus struct {
	UserID              uuid.UUID  `json:"user_id" gorm:"type:uuid;primaryKey"`
	BackfillComplete    bool       `json:"backfill_complete" gorm:"not null;default:false"`
	BackfillCompletedAt *time.Time `json:"backfill_completed_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName overrides GORM's pluralization
func (OnboardingStatus) TableName() string { return "onboarding_status" }

// HealthSample is one synced biometric data point. The engine only counts these
// for baseline sufficiency; ingestion belongs to the sync layer.
type HealthSample struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID     uuid.UUID `json:"user_id" gorm:"not null;index:idx_samples_user_time"`
	Metric     string    `json:"metric" gorm:"size:40;not null"` // heart_rate, steps, glucose, ...
	Value      float64   `json:"value" gorm:"not null"`
	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index:idx_samples_user_time"`
	CreatedAt  time.Time `json:"created_at"`
}
