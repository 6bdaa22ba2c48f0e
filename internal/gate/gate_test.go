package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/model"
	"go.uber.org/zap"
)

type fakeOnboarding struct {
	status *model.OnboardingStatus
	err    error
	calls  int
}

func (f *fakeOnboarding) Get(userID uuid.UUID) (*model.OnboardingStatus, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.status == nil {
		return &model.OnboardingStatus{UserID: userID}, nil
	}
	return f.status, nil
}

type fakeBaseline struct {
	days    int
	samples int64
	err     error
	calls   int
}

func (f *fakeBaseline) Stats(uuid.UUID, time.Time) (int, int64, error) {
	f.calls++
	return f.days, f.samples, f.err
}

type fakeDevices struct {
	active bool
	err    error
	calls  int
}

func (f *fakeDevices) HasActive(uuid.UUID) (bool, error) {
	f.calls++
	return f.active, f.err
}

type fakeFlusher struct {
	flushed int64
}

func (f *fakeFlusher) FlushPending(uuid.UUID) (int64, error) { return f.flushed, nil }

type gateFixture struct {
	gate       *Gate
	onboarding *fakeOnboarding
	baseline   *fakeBaseline
	devices    *fakeDevices
	flusher    *fakeFlusher
	now        time.Time
}

func newFixture(t *testing.T) *gateFixture {
	t.Helper()
	fx := &gateFixture{
		onboarding: &fakeOnboarding{},
		baseline:   &fakeBaseline{days: 10, samples: 500},
		devices:    &fakeDevices{active: true},
		flusher:    &fakeFlusher{},
		now:        time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC),
	}
	fx.gate = New(Config{
		BackfillCooldown: 24 * time.Hour,
		SourceRecency:    48 * time.Hour,
		BaselineMinDays:  5,
		BaselineMinCount: 100,
		BaselineWindow:   14 * 24 * time.Hour,
		CacheTTL:         6 * time.Hour,
	}, fx.onboarding, fx.baseline, fx.devices, fx.flusher, nil, zap.NewNop())
	fx.gate.now = func() time.Time { return fx.now }
	return fx
}

func (fx *gateFixture) completeBackfill(ago time.Duration) {
	at := fx.now.Add(-ago)
	fx.onboarding.status = &model.OnboardingStatus{
		BackfillComplete:    true,
		BackfillCompletedAt: &at,
	}
}

func TestEvaluate_HappyPath(t *testing.T) {
	fx := newFixture(t)
	fx.completeBackfill(48 * time.Hour)

	v := fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{})
	if !v.Eligible {
		t.Fatalf("want eligible, got blocked: %s", v.Reason)
	}
}

func TestEvaluate_BackfillIncompleteShortCircuits(t *testing.T) {
	fx := newFixture(t)
	// no backfill row at all

	v := fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{})
	if v.Eligible || v.Reason != ReasonBackfillIncomplete {
		t.Fatalf("want backfill-incomplete, got %+v", v)
	}
	if fx.devices.calls != 0 || fx.baseline.calls != 0 {
		t.Fatal("later checks must not run after a block")
	}
}

func TestEvaluate_CooldownRecomputesFromAnchor(t *testing.T) {
	fx := newFixture(t)
	fx.completeBackfill(23 * time.Hour)
	user := uuid.New()

	v := fx.gate.Evaluate(context.Background(), user, EvalContext{})
	if v.Eligible || v.Reason != ReasonBackfillCooldown {
		t.Fatalf("want backfill-cooldown, got %+v", v)
	}

	// Advance past the cooldown. The verdict must flip on the cached anchor
	// alone: no invalidation, no second onboarding query.
	fx.now = fx.now.Add(2 * time.Hour)
	v = fx.gate.Evaluate(context.Background(), user, EvalContext{})
	if !v.Eligible {
		t.Fatalf("want eligible after cooldown elapsed, got %+v", v)
	}
	if fx.onboarding.calls != 1 {
		t.Fatalf("anchor should be served from cache, got %d onboarding calls", fx.onboarding.calls)
	}
}

func TestEvaluate_StaleSourceBlocked(t *testing.T) {
	fx := newFixture(t)
	fx.completeBackfill(48 * time.Hour)

	stale := fx.now.Add(-72 * time.Hour)
	v := fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{SourceTimestamp: &stale})
	if v.Eligible || v.Reason != ReasonStaleSource {
		t.Fatalf("want stale-source-data, got %+v", v)
	}

	fresh := fx.now.Add(-time.Hour)
	v = fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{SourceTimestamp: &fresh})
	if !v.Eligible {
		t.Fatalf("fresh source must pass, got %+v", v)
	}
}

func TestEvaluate_NoActiveDevice(t *testing.T) {
	fx := newFixture(t)
	fx.completeBackfill(48 * time.Hour)
	fx.devices.active = false

	v := fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{})
	if v.Eligible || v.Reason != ReasonNoActiveDevice {
		t.Fatalf("want no-active-device, got %+v", v)
	}
	if fx.baseline.calls != 0 {
		t.Fatal("baseline must not run after device block")
	}
}

func TestEvaluate_CriticalBypassesBaselineOnly(t *testing.T) {
	fx := newFixture(t)
	fx.completeBackfill(48 * time.Hour)
	fx.baseline.days = 1 // insufficient

	v := fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{})
	if v.Eligible || v.Reason != ReasonInsufficientBaseline {
		t.Fatalf("want insufficient-baseline, got %+v", v)
	}

	v = fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{Critical: true})
	if !v.Eligible {
		t.Fatalf("critical must bypass baseline, got %+v", v)
	}

	// Critical never bypasses the earlier checks.
	fx.devices.active = false
	v = fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{Critical: true})
	if v.Eligible || v.Reason != ReasonNoActiveDevice {
		t.Fatalf("critical must not bypass device check, got %+v", v)
	}
}

func TestEvaluate_FailClosed(t *testing.T) {
	fx := newFixture(t)
	fx.onboarding.err = errors.New("connection refused")

	v := fx.gate.Evaluate(context.Background(), uuid.New(), EvalContext{})
	if v.Eligible || v.Reason != ReasonInternalError {
		t.Fatalf("errors must block, got %+v", v)
	}
}

func TestFlushPendingInvalidatesCache(t *testing.T) {
	fx := newFixture(t)
	fx.completeBackfill(48 * time.Hour)
	fx.flusher.flushed = 3
	user := uuid.New()

	// Warm the cache.
	if v := fx.gate.Evaluate(context.Background(), user, EvalContext{}); !v.Eligible {
		t.Fatalf("warm-up failed: %+v", v)
	}

	n, err := fx.gate.FlushPending(context.Background(), user)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 flushed, got %d", n)
	}

	// Next evaluate must hit the authoritative sources again.
	before := fx.onboarding.calls
	fx.gate.Evaluate(context.Background(), user, EvalContext{})
	if fx.onboarding.calls != before+1 {
		t.Fatal("cache was not invalidated")
	}
}
