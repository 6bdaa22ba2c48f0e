package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"gorm.io/gorm"
)

// DeliveryLogRepository appends to the immutable delivery log
type DeliveryLogRepository struct {
	db *gorm.DB
}

func NewDeliveryLogRepository(db *gorm.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Append writes one log row. Rows are never updated or deleted.
func (r *DeliveryLogRepository) Append(entry *model.DeliveryLogEntry) error {
	return r.db.Create(entry).Error
}

// ForQueueEntry returns the attempt history of one queue entry, oldest first
func (r *DeliveryLogRepository) ForQueueEntry(queueEntryID uuid.UUID) ([]model.DeliveryLogEntry, error) {
	var logs []model.DeliveryLogEntry
	err := r.db.Where("queue_entry_id = ?", queueEntryID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// SuccessRate reports delivered / terminal outcomes over a trailing window.
// Returns 1.0 when nothing terminal happened in the window.
func (r *DeliveryLogRepository) SuccessRate(since time.Time) (float64, error) {
	var total, success int64
	err := r.db.Model(&model.DeliveryLogEntry{}).
		Where("created_at >= ? AND outcome IN ?", since,
			[]model.DeliveryOutcome{model.OutcomeSuccess, model.OutcomeFailed, model.OutcomeSkipped}).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 1.0, nil
	}
	err = r.db.Model(&model.DeliveryLogEntry{}).
		Where("created_at >= ? AND outcome = ?", since, model.OutcomeSuccess).
		Count(&success).Error
	if err != nil {
		return 0, err
	}
	return float64(success) / float64(total), nil
}
