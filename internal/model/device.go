package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceRegistration is a user's push target. Registrations are deactivated on
// permanent provider errors, never deleted.
type DeviceRegistration struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       uuid.UUID `json:"user_id" gorm:"not null;uniqueIndex:idx_user_token;index"`
	Token        string    `json:"token" gorm:"not null;uniqueIndex:idx_user_token"`
	Platform     string    `json:"platform" gorm:"size:20;default:'unknown'"` // android, ios, web
	Active       bool      `json:"active" gorm:"not null;default:true;index"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}
