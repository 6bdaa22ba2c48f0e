package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository handles database operations for push device registrations
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register adds or reactivates a device token
func (r *DeviceRepository) Register(userID uuid.UUID, token, platform string) error {
	device := model.DeviceRegistration{
		UserID:       userID,
		Token:        token,
		Platform:     platform,
		Active:       true,
		LastActiveAt: time.Now(),
	}
	// Upsert: a token re-registered after deactivation becomes active again
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"active":         true,
			"platform":       platform,
			"last_active_at": time.Now(),
		}),
	}).Create(&device).Error
}

// ActiveForUser returns all active registrations for a user
func (r *DeviceRepository) ActiveForUser(userID uuid.UUID) ([]model.DeviceRegistration, error) {
	var devices []model.DeviceRegistration
	err := r.db.Where("user_id = ? AND active = ?", userID, true).Find(&devices).Error
	return devices, err
}

// HasActive reports whether the user has at least one active registration
func (r *DeviceRepository) HasActive(userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.DeviceRegistration{}).
		Where("user_id = ? AND active = ?", userID, true).
		Count(&count).Error
	return count > 0, err
}

// Deactivate flags a token inactive. Called on permanent provider errors;
// registrations are never deleted.
func (r *DeviceRepository) Deactivate(token string) error {
	return r.db.Model(&model.DeviceRegistration{}).
		Where("token = ?", token).
		Update("active", false).Error
}
