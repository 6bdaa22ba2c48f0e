package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueRepository handles database operations for the notification queue.
// The queue table is the single shared mutable resource of the engine; every
// state transition is a single-row conditional update, so concurrent workers
// need no locks beyond the row's status column.
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Insert adds a new scheduled entry. The unique index on
// (user_id, type, local_date_key) makes overlapping populator ticks safe:
// a duplicate insert is a no-op and returns created=false.
func (r *QueueRepository) Insert(entry *model.QueueEntry) (created bool, err error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}, {Name: "local_date_key"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByID returns a single entry
func (r *QueueRepository) FindByID(id uuid.UUID) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	if err := r.db.Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ClaimableIDs lists entries that look claimable right now, oldest first.
// The list is advisory; Claim re-checks the predicate atomically.
func (r *QueueRepository) ClaimableIDs(now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&model.QueueEntry{}).
		Where("attempts < max_attempts AND ((status = ? AND scheduled_for_utc <= ?) OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?))",
			model.StatusScheduled, now, model.StatusProcessing, now).
		Order("scheduled_for_utc ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// claimVisibility is how long a successful claim keeps the entry invisible
// to other workers. A dispatch that crashes before recording an outcome
// surfaces again once the window elapses instead of sitting in processing
// forever.
const claimVisibility = 5 * time.Minute

// Claim atomically transitions one entry into processing, incrementing its
// attempt counter and pushing next_retry_at past now in the same UPDATE. The
// predicate and the mutation are one storage operation and every claim
// falsifies the predicate it matched on, so of N workers racing on the same
// row exactly one sees RowsAffected == 1; the rest get (nil, nil).
func (r *QueueRepository) Claim(id uuid.UUID, now time.Time) (*model.QueueEntry, error) {
	res := r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND attempts < max_attempts AND ((status = ? AND scheduled_for_utc <= ?) OR (status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?))",
			id, model.StatusScheduled, now, model.StatusProcessing, now).
		Updates(map[string]interface{}{
			"status":        model.StatusProcessing,
			"attempts":      gorm.Expr("attempts + 1"),
			"next_retry_at": now.Add(claimVisibility),
			"updated_at":    now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil // lost the race, or entry no longer claimable
	}
	return r.FindByID(id)
}

// SweepExhausted finalizes entries that ran out of attempts but were left
// non-terminal (e.g. by a crash between claim and outcome). Returns the
// entries it actually transitioned so the worker can log each one.
func (r *QueueRepository) SweepExhausted(now time.Time) ([]model.QueueEntry, error) {
	var stuck []model.QueueEntry
	err := r.db.
		Where("attempts >= max_attempts AND status IN ?", []model.QueueStatus{model.StatusScheduled, model.StatusProcessing}).
		Find(&stuck).Error
	if err != nil {
		return nil, err
	}

	var finalized []model.QueueEntry
	for _, entry := range stuck {
		res := r.db.Model(&model.QueueEntry{}).
			Where("id = ? AND status IN ?", entry.ID, []model.QueueStatus{model.StatusScheduled, model.StatusProcessing}).
			Updates(map[string]interface{}{
				"status":     model.StatusFailed,
				"reason":     model.ReasonMaxRetries,
				"updated_at": now,
			})
		if res.Error != nil {
			return finalized, res.Error
		}
		if res.RowsAffected > 0 {
			entry.Status = model.StatusFailed
			entry.Reason = model.ReasonMaxRetries
			finalized = append(finalized, entry)
		}
	}
	return finalized, nil
}

// MarkDelivered finalizes a successful dispatch
func (r *QueueRepository) MarkDelivered(id uuid.UUID, at time.Time, devicesReached int) error {
	return r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":          model.StatusDelivered,
			"delivered_at":    at,
			"devices_reached": devicesReached,
			"updated_at":      at,
		}).Error
}

// MarkSkipped finalizes an entry without consuming its retry budget: the
// attempt the claim charged is handed back in the same UPDATE. A skip is
// terminal, so the counter never moves again afterwards.
func (r *QueueRepository) MarkSkipped(id uuid.UUID, reason string, now time.Time) error {
	return r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     model.StatusSkipped,
			"reason":     reason,
			"attempts":   gorm.Expr("attempts - 1"),
			"updated_at": now,
		}).Error
}

// ScheduleRetry keeps a claimed entry in processing and pushes its next
// attempt forward.
func (r *QueueRepository) ScheduleRetry(id uuid.UUID, nextRetryAt time.Time) error {
	return r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.StatusProcessing,
			"next_retry_at": nextRetryAt,
			"updated_at":    time.Now(),
		}).Error
}

// MarkFailed dead-letters an entry
func (r *QueueRepository) MarkFailed(id uuid.UUID, reason string, now time.Time) error {
	return r.db.Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     model.StatusFailed,
			"reason":     reason,
			"updated_at": now,
		}).Error
}

// FlushPending marks every non-terminal entry for a user skipped, so a
// logged-out user receives nothing further. Entries stay in the table.
func (r *QueueRepository) FlushPending(userID uuid.UUID) (int64, error) {
	res := r.db.Model(&model.QueueEntry{}).
		Where("user_id = ? AND status IN ?", userID, []model.QueueStatus{model.StatusScheduled, model.StatusProcessing}).
		Updates(map[string]interface{}{
			"status":     model.StatusSkipped,
			"reason":     model.ReasonFlushed,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// CountsByStatus returns queue depth per status for the ops surface
func (r *QueueRepository) CountsByStatus() (map[model.QueueStatus]int64, error) {
	type row struct {
		Status model.QueueStatus
		N      int64
	}
	var rows []row
	err := r.db.Model(&model.QueueEntry{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.QueueStatus]int64, len(rows))
	for _, rw := range rows {
		counts[rw.Status] = rw.N
	}
	return counts, nil
}

// RequeueRecentFailed resets recently dead-lettered entries for another run
// (bulk retry from the admin surface).
func (r *QueueRepository) RequeueRecentFailed(since time.Time) (int64, error) {
	res := r.db.Model(&model.QueueEntry{}).
		Where("status = ? AND updated_at >= ?", model.StatusFailed, since).
		Updates(map[string]interface{}{
			"status":        model.StatusScheduled,
			"attempts":      0,
			"reason":        "",
			"next_retry_at": nil,
			"updated_at":    time.Now(),
		})
	return res.RowsAffected, res.Error
}

// ErrNotClaimed signals a manual trigger raced with a worker
var ErrNotClaimed = errors.New("queue entry not claimable")
