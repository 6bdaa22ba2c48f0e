// Package engine contains the periodic populate/dispatch cycle of the
// notification queue.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/metrics"
	"github.com/trannm/healthpulse/internal/model"
	"github.com/trannm/healthpulse/internal/schedule"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type scheduleSource interface {
	ListEnabled() ([]model.Schedule, error)
	TimezoneFor(userID uuid.UUID) (string, error)
}

type templateSource interface {
	FindByType(typ model.NotificationType) (*model.Template, error)
}

type queueInserter interface {
	Insert(entry *model.QueueEntry) (created bool, err error)
}

// PopulatorConfig tunes the populate cycle
type PopulatorConfig struct {
	Lookahead    time.Duration
	DefaultGrace time.Duration
	MaxAttempts  int
}

// Populator walks the enabled schedules each tick and materializes due
// occurrences as queue entries. It is idempotent: the queue's unique
// (user, type, local day) constraint absorbs overlapping ticks.
type Populator struct {
	cfg       PopulatorConfig
	schedules scheduleSource
	templates templateSource
	queue     queueInserter
	clock     Clock
	log       *zap.Logger
}

func NewPopulator(cfg PopulatorConfig, schedules scheduleSource, templates templateSource, queue queueInserter, clock Clock, log *zap.Logger) *Populator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Populator{
		cfg:       cfg,
		schedules: schedules,
		templates: templates,
		queue:     queue,
		clock:     clock,
		log:       log,
	}
}

// RunOnce executes a single populate cycle. Per-schedule problems are logged
// and skipped so one bad row never starves the rest.
func (p *Populator) RunOnce(ctx context.Context) error {
	now := p.clock.Now()

	scheds, err := p.schedules.ListEnabled()
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}

	enqueued := 0
	for i := range scheds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s := &scheds[i]

		res, err := schedule.Resolve(s, now, p.cfg.Lookahead, p.cfg.DefaultGrace)
		if err != nil {
			p.log.Error("❌ Unresolvable schedule, skipping",
				zap.String("schedule", s.ID.String()), zap.Error(err))
			continue
		}
		switch res.State {
		case schedule.NotDue:
			continue
		case schedule.MissedBeyondGrace:
			p.log.Debug("schedule missed beyond grace, not firing retroactively",
				zap.String("user", s.UserID.String()),
				zap.String("type", string(s.Type)),
				zap.Time("fire_at", res.FireAtUTC))
			continue
		}

		created, err := p.enqueue(s.UserID, s.Type, res)
		if err != nil {
			p.log.Error("❌ Failed to enqueue occurrence",
				zap.String("user", s.UserID.String()),
				zap.String("type", string(s.Type)), zap.Error(err))
			continue
		}
		if created {
			enqueued++
		}
	}

	if enqueued > 0 {
		p.log.Info("📬 Populated notification queue", zap.Int("enqueued", enqueued))
	}
	return nil
}

func (p *Populator) enqueue(userID uuid.UUID, typ model.NotificationType, res schedule.Resolution) (bool, error) {
	tpl, err := p.templates.FindByType(typ)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.log.Warn("⚠️ No template for notification type, skipping", zap.String("type", string(typ)))
			return false, nil
		}
		return false, fmt.Errorf("template lookup: %w", err)
	}

	payload, err := buildScheduledPayload(typ, res.LocalDateKey, tpl.Metadata)
	if err != nil {
		p.log.Warn("⚠️ Schedule produced no valid payload, skipping",
			zap.String("type", string(typ)), zap.Error(err))
		return false, nil
	}
	raw, err := model.EncodePayload(payload)
	if err != nil {
		return false, err
	}

	created, err := p.queue.Insert(&model.QueueEntry{
		UserID:          userID,
		Type:            typ,
		LocalDateKey:    res.LocalDateKey,
		Title:           tpl.Title,
		Body:            tpl.Body,
		ScheduledForUTC: res.FireAtUTC,
		Status:          model.StatusScheduled,
		MaxAttempts:     p.cfg.MaxAttempts,
		Payload:         raw,
	})
	if err != nil {
		return false, err
	}
	if created {
		metrics.EntriesEnqueued.Inc()
	}
	return created, nil
}

// EnqueueAdHoc inserts an immediately-claimable occurrence for the user's
// current local day, used by the manual-trigger surface. Returns
// created=false when the day's occurrence already exists.
func (p *Populator) EnqueueAdHoc(userID uuid.UUID, typ model.NotificationType, payload model.Payload) (created bool, err error) {
	now := p.clock.Now()
	dateKey := p.localDateKey(userID, now)

	tpl, err := p.templates.FindByType(typ)
	if err != nil {
		return false, fmt.Errorf("template lookup: %w", err)
	}
	if payload == nil {
		payload, err = buildScheduledPayload(typ, dateKey, tpl.Metadata)
		if err != nil {
			return false, err
		}
	}
	raw, err := model.EncodePayload(payload)
	if err != nil {
		return false, err
	}

	created, err = p.queue.Insert(&model.QueueEntry{
		UserID:          userID,
		Type:            typ,
		LocalDateKey:    dateKey,
		Title:           tpl.Title,
		Body:            tpl.Body,
		ScheduledForUTC: now,
		Status:          model.StatusScheduled,
		MaxAttempts:     p.cfg.MaxAttempts,
		Payload:         raw,
	})
	if err != nil {
		return false, err
	}
	if created {
		metrics.EntriesEnqueued.Inc()
	}
	return created, nil
}

// localDateKey resolves the current calendar date in the user's timezone, so
// an ad-hoc occurrence shares its dedup key with the day's scheduled one even
// near the user's midnight. Users without a schedule fall back to UTC.
func (p *Populator) localDateKey(userID uuid.UUID, now time.Time) string {
	tz, err := p.schedules.TimezoneFor(userID)
	if err != nil {
		p.log.Warn("⚠️ Timezone lookup failed, keying on the UTC day",
			zap.String("user", userID.String()), zap.Error(err))
		return now.UTC().Format("2006-01-02")
	}
	if tz == "" {
		return now.UTC().Format("2006-01-02")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return now.UTC().Format("2006-01-02")
	}
	return now.In(loc).Format("2006-01-02")
}

// templateMeta is the structured part of a template used to fill payload
// fields at populate time.
type templateMeta struct {
	Highlight string `json:"highlight"`
	Goal      string `json:"goal"`
	Provider  string `json:"provider"`
	Code      string `json:"code"`
	Critical  bool   `json:"critical"`
}

// buildScheduledPayload constructs the typed payload for a recurring
// occurrence. Anomaly alerts are event-driven and cannot be produced by a
// schedule; such schedules are rejected here.
func buildScheduledPayload(typ model.NotificationType, localDateKey string, metadata json.RawMessage) (model.Payload, error) {
	var meta templateMeta
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &meta); err != nil {
			return nil, fmt.Errorf("template metadata: %w", err)
		}
	}

	switch typ {
	case model.TypeMorningSummary:
		return model.MorningSummaryPayload{SummaryDate: localDateKey, Highlight: meta.Highlight}, nil
	case model.TypeGoalProgress:
		goal := meta.Goal
		if goal == "" {
			goal = "daily_activity"
		}
		return model.GoalProgressPayload{Goal: goal}, nil
	case model.TypeSyncReminder:
		provider := meta.Provider
		if provider == "" {
			provider = "healthkit"
		}
		return model.SyncReminderPayload{Provider: provider}, nil
	case model.TypeSystemAlert:
		code := meta.Code
		if code == "" {
			code = "maintenance"
		}
		return model.SystemAlertPayload{Code: code, Critical: meta.Critical}, nil
	case model.TypeAnomalyAlert:
		return nil, errors.New("anomaly alerts are event-driven and cannot be scheduled")
	}
	return nil, fmt.Errorf("unknown notification type %q", typ)
}
