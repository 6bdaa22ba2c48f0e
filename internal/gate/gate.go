// Package gate implements the mandatory eligibility checks every notification
// dispatch must pass. Checks run in a fixed order and fail closed: any
// internal error blocks the send.
package gate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/metrics"
	"github.com/trannm/healthpulse/internal/model"
	"go.uber.org/zap"
)

// Reason explains why a send was blocked
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonBackfillIncomplete   Reason = "backfill-incomplete"
	ReasonBackfillCooldown     Reason = "backfill-cooldown"
	ReasonStaleSource          Reason = "stale-source-data"
	ReasonNoActiveDevice       Reason = "no-active-device"
	ReasonInsufficientBaseline Reason = "insufficient-baseline"
	ReasonInternalError        Reason = "internal-error"
)

// Verdict is the gate's answer for one send
type Verdict struct {
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason,omitempty"`
}

var eligible = Verdict{Eligible: true}

func blocked(r Reason) Verdict { return Verdict{Eligible: false, Reason: r} }

// EvalContext carries the per-send inputs the checks need
type EvalContext struct {
	// SourceTimestamp, when set, is the recording instant of the data the
	// notification is about; stale data blocks the send.
	SourceTimestamp *time.Time
	// Critical sends bypass the baseline-sufficiency check (and only that one).
	Critical bool
}

// OnboardingSource reports per-user backfill state
type OnboardingSource interface {
	Get(userID uuid.UUID) (*model.OnboardingStatus, error)
}

// BaselineSource answers the baseline query over a trailing window
type BaselineSource interface {
	Stats(userID uuid.UUID, since time.Time) (distinctDays int, totalSamples int64, err error)
}

// DeviceSource reports whether a user has any active push registration
type DeviceSource interface {
	HasActive(userID uuid.UUID) (bool, error)
}

// PendingFlusher clears a user's not-yet-delivered queue entries
type PendingFlusher interface {
	FlushPending(userID uuid.UUID) (int64, error)
}

// Config tunes the gate's thresholds
type Config struct {
	BackfillCooldown time.Duration
	SourceRecency    time.Duration
	BaselineMinDays  int
	BaselineMinCount int
	BaselineWindow   time.Duration
	CacheTTL         time.Duration
}

// Gate is the per-send eligibility choke-point
type Gate struct {
	cfg        Config
	onboarding OnboardingSource
	baseline   BaselineSource
	devices    DeviceSource
	queue      PendingFlusher
	cache      *verdictCache
	inv        *Invalidator
	log        *zap.Logger
	now        func() time.Time
}

// New creates the gate. inv may be nil for single-process deployments.
func New(cfg Config, onboarding OnboardingSource, baseline BaselineSource, devices DeviceSource, queue PendingFlusher, inv *Invalidator, log *zap.Logger) *Gate {
	g := &Gate{
		cfg:        cfg,
		onboarding: onboarding,
		baseline:   baseline,
		devices:    devices,
		queue:      queue,
		cache:      newVerdictCache(cfg.CacheTTL),
		inv:        inv,
		log:        log,
		now:        time.Now,
	}
	if inv != nil {
		inv.onInvalidate = g.cache.invalidate
	}
	return g
}

// Evaluate runs the checks in order, short-circuiting on the first block.
// It never returns an error: anything unexpected becomes a block.
func (g *Gate) Evaluate(ctx context.Context, userID uuid.UUID, ec EvalContext) Verdict {
	v := g.evaluate(ctx, userID, ec)
	if !v.Eligible {
		metrics.GateBlocks.WithLabelValues(string(v.Reason)).Inc()
	}
	return v
}

func (g *Gate) evaluate(_ context.Context, userID uuid.UUID, ec EvalContext) Verdict {
	// 1. Onboarding/backfill readiness — the primary anti-flood control.
	if v := g.checkBackfill(userID); !v.Eligible {
		return v
	}

	// 2. Source-data recency. Uncached: the verdict depends on this send.
	if ec.SourceTimestamp != nil {
		if g.now().Sub(*ec.SourceTimestamp) > g.cfg.SourceRecency {
			return blocked(ReasonStaleSource)
		}
	}

	// 3. Device presence.
	if v := g.checkDevice(userID); !v.Eligible {
		return v
	}

	// 4. Baseline sufficiency. Critical sends skip this check only.
	if ec.Critical {
		return eligible
	}
	return g.checkBaseline(userID)
}

func (g *Gate) checkBackfill(userID uuid.UUID) Verdict {
	now := g.now()
	key := userID.String()

	if e, ok := g.cache.get(key, CheckBackfill, now); ok {
		if e.anchor != nil {
			return g.cooldownVerdict(*e.anchor, now)
		}
		return e.verdict
	}

	st, err := g.onboarding.Get(userID)
	if err != nil {
		g.log.Error("gate: onboarding lookup failed, blocking", zap.String("user", key), zap.Error(err))
		return blocked(ReasonInternalError)
	}

	if !st.BackfillComplete || st.BackfillCompletedAt == nil {
		v := blocked(ReasonBackfillIncomplete)
		g.cache.set(key, CheckBackfill, v, now)
		return v
	}

	// Cache the anchor, not the verdict: eligibility flips the instant the
	// cooldown elapses, without waiting for the TTL.
	g.cache.setAnchored(key, CheckBackfill, *st.BackfillCompletedAt, now)
	return g.cooldownVerdict(*st.BackfillCompletedAt, now)
}

func (g *Gate) cooldownVerdict(completedAt, now time.Time) Verdict {
	if now.Sub(completedAt) < g.cfg.BackfillCooldown {
		return blocked(ReasonBackfillCooldown)
	}
	return eligible
}

func (g *Gate) checkDevice(userID uuid.UUID) Verdict {
	now := g.now()
	key := userID.String()

	if e, ok := g.cache.get(key, CheckDevice, now); ok {
		return e.verdict
	}

	has, err := g.devices.HasActive(userID)
	if err != nil {
		g.log.Error("gate: device lookup failed, blocking", zap.String("user", key), zap.Error(err))
		return blocked(ReasonInternalError)
	}

	v := eligible
	if !has {
		v = blocked(ReasonNoActiveDevice)
	}
	g.cache.set(key, CheckDevice, v, now)
	return v
}

func (g *Gate) checkBaseline(userID uuid.UUID) Verdict {
	now := g.now()
	key := userID.String()

	if e, ok := g.cache.get(key, CheckBaseline, now); ok {
		return e.verdict
	}

	days, samples, err := g.baseline.Stats(userID, now.Add(-g.cfg.BaselineWindow))
	if err != nil {
		g.log.Error("gate: baseline query failed, blocking", zap.String("user", key), zap.Error(err))
		return blocked(ReasonInternalError)
	}

	v := eligible
	if days < g.cfg.BaselineMinDays || samples < int64(g.cfg.BaselineMinCount) {
		v = blocked(ReasonInsufficientBaseline)
	}
	g.cache.set(key, CheckBaseline, v, now)
	return v
}

// Invalidate drops the user's cached verdicts, locally and (via Redis) in
// sibling processes. Call on logout or a major resync.
func (g *Gate) Invalidate(ctx context.Context, userID uuid.UUID) {
	g.cache.invalidate(userID.String())
	if g.inv != nil {
		g.inv.publish(ctx, userID.String())
	}
}

// FlushPending marks all of the user's not-yet-delivered queue entries skipped
// and invalidates cached verdicts, so a logged-out user receives nothing more.
func (g *Gate) FlushPending(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := g.queue.FlushPending(userID)
	if err != nil {
		return 0, err
	}
	g.Invalidate(ctx, userID)
	g.log.Info("🧹 Flushed pending notifications", zap.String("user", userID.String()), zap.Int64("count", n))
	return n, nil
}
