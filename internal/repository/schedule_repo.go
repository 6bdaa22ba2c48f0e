package repository

import (
	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduleRepository handles database operations for notification schedules
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Upsert creates or replaces the schedule for (user, type).
// The unique index on (user_id, type) keeps one active schedule per pair.
func (r *ScheduleRepository) Upsert(s *model.Schedule) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"local_time", "timezone", "days_of_week", "enabled", "grace_minutes", "updated_at",
		}),
	}).Create(s).Error
}

// List returns all schedules for a user
func (r *ScheduleRepository) List(userID uuid.UUID) ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := r.db.Where("user_id = ?", userID).Order("type").Find(&schedules).Error
	return schedules, err
}

// ListEnabled returns every enabled schedule, for the populator tick
func (r *ScheduleRepository) ListEnabled() ([]model.Schedule, error) {
	var schedules []model.Schedule
	err := r.db.Where("enabled = ?", true).Find(&schedules).Error
	return schedules, err
}

// FindByUserAndType returns a single schedule, enabled or not
func (r *ScheduleRepository) FindByUserAndType(userID uuid.UUID, typ model.NotificationType) (*model.Schedule, error) {
	var s model.Schedule
	err := r.db.Where("user_id = ? AND type = ?", userID, typ).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TimezoneFor returns the timezone of the user's most recently updated
// schedule, or "" when the user has none.
func (r *ScheduleRepository) TimezoneFor(userID uuid.UUID) (string, error) {
	var tzs []string
	err := r.db.Model(&model.Schedule{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(1).
		Pluck("timezone", &tzs).Error
	if err != nil {
		return "", err
	}
	if len(tzs) == 0 {
		return "", nil
	}
	return tzs[0], nil
}

// Disable turns a schedule off without deleting it
func (r *ScheduleRepository) Disable(userID uuid.UUID, typ model.NotificationType) error {
	return r.db.Model(&model.Schedule{}).
		Where("user_id = ? AND type = ?", userID, typ).
		Update("enabled", false).Error
}
