package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OnboardingRepository reads and writes per-user backfill state
type OnboardingRepository struct {
	db *gorm.DB
}

func NewOnboardingRepository(db *gorm.DB) *OnboardingRepository {
	return &OnboardingRepository{db: db}
}

// Get returns the onboarding row for a user. A missing row reads as
// backfill-not-complete rather than an error.
func (r *OnboardingRepository) Get(userID uuid.UUID) (*model.OnboardingStatus, error) {
	var st model.OnboardingStatus
	err := r.db.Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.OnboardingStatus{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// MarkBackfillComplete records backfill completion, preserving the original
// completion instant if called twice.
func (r *OnboardingRepository) MarkBackfillComplete(userID uuid.UUID, at time.Time) error {
	st := model.OnboardingStatus{
		UserID:              userID,
		BackfillComplete:    true,
		BackfillCompletedAt: &at,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"backfill_complete":     true,
			"backfill_completed_at": gorm.Expr("COALESCE(onboarding_status.backfill_completed_at, ?)", at),
			"updated_at":            at,
		}),
	}).Create(&st).Error
}

// BaselineRepository answers the baseline-sufficiency query over synced samples.
// The analytics behind richer baselines live elsewhere; the gate only needs
// distinct days and sample counts over a trailing window.
type BaselineRepository struct {
	db *gorm.DB
}

func NewBaselineRepository(db *gorm.DB) *BaselineRepository {
	return &BaselineRepository{db: db}
}

// Stats returns (distinct days of data, total samples) for a user since the
// given cutoff.
func (r *BaselineRepository) Stats(userID uuid.UUID, since time.Time) (distinctDays int, totalSamples int64, err error) {
	err = r.db.Model(&model.HealthSample{}).
		Where("user_id = ? AND recorded_at >= ?", userID, since).
		Count(&totalSamples).Error
	if err != nil {
		return 0, 0, err
	}

	err = r.db.Model(&model.HealthSample{}).
		Select("COUNT(DISTINCT DATE(recorded_at))").
		Where("user_id = ? AND recorded_at >= ?", userID, since).
		Scan(&distinctDays).Error
	if err != nil {
		return 0, 0, err
	}
	return distinctDays, totalSamples, nil
}
