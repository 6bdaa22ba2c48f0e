package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

type fakeSchedules struct {
	list []model.Schedule
	err  error
}

func (f *fakeSchedules) ListEnabled() ([]model.Schedule, error) { return f.list, f.err }

func (f *fakeSchedules) TimezoneFor(userID uuid.UUID) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for _, s := range f.list {
		if s.UserID == userID {
			return s.Timezone, nil
		}
	}
	return "", nil
}

type fakeTemplates struct {
	byType map[model.NotificationType]*model.Template
}

func (f *fakeTemplates) FindByType(typ model.NotificationType) (*model.Template, error) {
	tpl, ok := f.byType[typ]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tpl, nil
}

type fakeInserter struct {
	inserted  []model.QueueEntry
	duplicate bool // simulate the unique-index no-op
}

func (f *fakeInserter) Insert(e *model.QueueEntry) (bool, error) {
	if f.duplicate {
		return false, nil
	}
	f.inserted = append(f.inserted, *e)
	return true, nil
}

func newPopulatorFixture(now time.Time) (*Populator, *fakeSchedules, *fakeTemplates, *fakeInserter) {
	schedules := &fakeSchedules{}
	templates := &fakeTemplates{byType: map[model.NotificationType]*model.Template{
		model.TypeMorningSummary: {Type: model.TypeMorningSummary, Title: "Good morning", Body: "Your summary is ready"},
		model.TypeAnomalyAlert:   {Type: model.TypeAnomalyAlert, Title: "Heads up", Body: "Unusual reading"},
	}}
	queue := &fakeInserter{}
	p := NewPopulator(PopulatorConfig{
		Lookahead:    5 * time.Minute,
		DefaultGrace: 30 * time.Minute,
		MaxAttempts:  3,
	}, schedules, templates, queue, &fakeClock{t: now}, zap.NewNop())
	return p, schedules, templates, queue
}

func utcSchedule(typ model.NotificationType, localTime string) model.Schedule {
	return model.Schedule{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Type:       typ,
		LocalTime:  localTime,
		Timezone:   "UTC",
		DaysOfWeek: model.AllDays,
		Enabled:    true,
	}
}

func TestPopulator_EnqueuesDueSchedule(t *testing.T) {
	now := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	p, schedules, _, queue := newPopulatorFixture(now)
	s := utcSchedule(model.TypeMorningSummary, "09:00")
	schedules.list = []model.Schedule{s}

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(queue.inserted) != 1 {
		t.Fatalf("want 1 entry, got %d", len(queue.inserted))
	}

	e := queue.inserted[0]
	if e.UserID != s.UserID || e.Type != model.TypeMorningSummary {
		t.Errorf("wrong identity: %+v", e)
	}
	if e.LocalDateKey != "2025-06-10" {
		t.Errorf("local date key = %q", e.LocalDateKey)
	}
	if !e.ScheduledForUTC.Equal(now) {
		t.Errorf("scheduled for %s, want %s", e.ScheduledForUTC, now)
	}
	if e.Title != "Good morning" || e.MaxAttempts != 3 {
		t.Errorf("template fields not applied: %+v", e)
	}

	payload, err := model.DecodePayload(e.Payload)
	if err != nil {
		t.Fatalf("payload does not round-trip: %v", err)
	}
	ms, ok := payload.(model.MorningSummaryPayload)
	if !ok || ms.SummaryDate != "2025-06-10" {
		t.Errorf("payload = %#v", payload)
	}
}

func TestPopulator_DuplicateInsertIsNoOp(t *testing.T) {
	now := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	p, schedules, _, queue := newPopulatorFixture(now)
	schedules.list = []model.Schedule{utcSchedule(model.TypeMorningSummary, "09:00")}
	queue.duplicate = true

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("duplicate occurrence must not error: %v", err)
	}
}

func TestPopulator_MissingTemplateSkips(t *testing.T) {
	now := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	p, schedules, templates, queue := newPopulatorFixture(now)
	schedules.list = []model.Schedule{utcSchedule(model.TypeSyncReminder, "09:00")}
	delete(templates.byType, model.TypeSyncReminder)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("missing template must not error: %v", err)
	}
	if len(queue.inserted) != 0 {
		t.Fatalf("entry enqueued without a template")
	}
}

func TestPopulator_MissedBeyondGraceNotEnqueued(t *testing.T) {
	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	p, schedules, _, queue := newPopulatorFixture(now)
	schedules.list = []model.Schedule{utcSchedule(model.TypeMorningSummary, "08:00")}

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(queue.inserted) != 0 {
		t.Fatal("missed occurrence must not fire retroactively")
	}
}

func TestPopulator_AnomalyScheduleProducesNothing(t *testing.T) {
	now := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	p, schedules, _, queue := newPopulatorFixture(now)
	schedules.list = []model.Schedule{utcSchedule(model.TypeAnomalyAlert, "09:00")}

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(queue.inserted) != 0 {
		t.Fatal("anomaly alerts are event-driven; a schedule must not enqueue one")
	}
}

func TestPopulator_EnqueueAdHoc(t *testing.T) {
	now := time.Date(2025, time.June, 10, 14, 30, 0, 0, time.UTC)
	p, _, _, queue := newPopulatorFixture(now)
	user := uuid.New()

	created, err := p.EnqueueAdHoc(user, model.TypeAnomalyAlert, model.AnomalyAlertPayload{
		Metric:          "resting_hr",
		Value:           112,
		SourceTimestamp: now.Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("EnqueueAdHoc: %v", err)
	}
	if !created {
		t.Fatal("want created")
	}

	e := queue.inserted[0]
	if !e.ScheduledForUTC.Equal(now) {
		t.Errorf("ad-hoc entry must be claimable immediately, scheduled for %s", e.ScheduledForUTC)
	}
	if e.LocalDateKey != "2025-06-10" {
		t.Errorf("local date key = %q", e.LocalDateKey)
	}
	payload, err := model.DecodePayload(e.Payload)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if _, ok := payload.(model.AnomalyAlertPayload); !ok {
		t.Errorf("payload = %#v", payload)
	}
}

func TestPopulator_EnqueueAdHocKeysOnUsersLocalDay(t *testing.T) {
	// Monday 2025-06-09 09:30 UTC is still Sunday 23:30 in Honolulu. A manual
	// trigger must dedup against the user's Sunday, not the UTC Monday.
	now := time.Date(2025, time.June, 9, 9, 30, 0, 0, time.UTC)
	p, schedules, _, queue := newPopulatorFixture(now)
	s := utcSchedule(model.TypeMorningSummary, "07:00")
	s.Timezone = "Pacific/Honolulu"
	schedules.list = []model.Schedule{s}

	created, err := p.EnqueueAdHoc(s.UserID, model.TypeMorningSummary, nil)
	if err != nil {
		t.Fatalf("EnqueueAdHoc: %v", err)
	}
	if !created {
		t.Fatal("want created")
	}
	if e := queue.inserted[0]; e.LocalDateKey != "2025-06-08" {
		t.Errorf("local date key = %q, want the user's local day 2025-06-08", e.LocalDateKey)
	}
}
