package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/gate"
	"github.com/trannm/healthpulse/internal/metrics"
	"github.com/trannm/healthpulse/internal/model"
	"github.com/trannm/healthpulse/pkg/push"
	"go.uber.org/zap"
)

type queueStore interface {
	ClaimableIDs(now time.Time, limit int) ([]uuid.UUID, error)
	Claim(id uuid.UUID, now time.Time) (*model.QueueEntry, error)
	SweepExhausted(now time.Time) ([]model.QueueEntry, error)
	MarkDelivered(id uuid.UUID, at time.Time, devicesReached int) error
	MarkSkipped(id uuid.UUID, reason string, now time.Time) error
	ScheduleRetry(id uuid.UUID, nextRetryAt time.Time) error
	MarkFailed(id uuid.UUID, reason string, now time.Time) error
	CountsByStatus() (map[model.QueueStatus]int64, error)
}

type deliveryLogStore interface {
	Append(entry *model.DeliveryLogEntry) error
}

type deviceLister interface {
	ActiveForUser(userID uuid.UUID) ([]model.DeviceRegistration, error)
}

type eligibilityGate interface {
	Evaluate(ctx context.Context, userID uuid.UUID, ec gate.EvalContext) gate.Verdict
}

type sender interface {
	Send(ctx context.Context, tokens []string, n push.Notification) (push.Result, error)
}

// EventSink receives terminal delivery outcomes (the admin live feed).
// May be nil.
type EventSink interface {
	Publish(event model.DeliveryEvent)
}

// WorkerConfig tunes the dispatch cycle
type WorkerConfig struct {
	BatchSize int
}

// Worker drains due queue entries each tick. Safe to run from several
// processes at once: every entry is claimed with a conditional update before
// any provider call, so each occurrence is dispatched by exactly one worker.
type Worker struct {
	cfg     WorkerConfig
	queue   queueStore
	logs    deliveryLogStore
	devices deviceLister
	gate    eligibilityGate
	push    sender
	events  EventSink
	clock   Clock
	log     *zap.Logger
}

func NewWorker(cfg WorkerConfig, queue queueStore, logs deliveryLogStore, devices deviceLister, g eligibilityGate, p sender, events EventSink, clock Clock, log *zap.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		cfg:     cfg,
		queue:   queue,
		logs:    logs,
		devices: devices,
		gate:    g,
		push:    p,
		events:  events,
		clock:   clock,
		log:     log,
	}
}

// RunOnce executes one dispatch cycle: dead-letter sweep, then a bounded batch
// of claims, then a queue-depth gauge refresh.
func (w *Worker) RunOnce(ctx context.Context) error {
	now := w.clock.Now()

	if err := w.sweep(now); err != nil {
		w.log.Error("❌ Dead-letter sweep failed", zap.Error(err))
	}

	ids, err := w.queue.ClaimableIDs(now, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list claimable: %w", err)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entry, err := w.queue.Claim(id, w.clock.Now())
		if err != nil {
			w.log.Error("❌ Claim failed", zap.String("entry", id.String()), zap.Error(err))
			continue
		}
		if entry == nil {
			continue // another worker won the row
		}
		w.dispatch(ctx, entry)
	}

	w.refreshDepthGauge()
	return nil
}

// sweep finalizes entries whose attempts ran out without reaching a terminal
// state, e.g. after a crash between claim and outcome.
func (w *Worker) sweep(now time.Time) error {
	swept, err := w.queue.SweepExhausted(now)
	if err != nil {
		return err
	}
	for i := range swept {
		e := &swept[i]
		w.appendLog(e, model.OutcomeFailed, 0, model.ReasonMaxRetries, "attempts exhausted", 0)
		metrics.Dispatches.WithLabelValues("failed").Inc()
		w.publish(e, model.OutcomeFailed, model.ReasonMaxRetries, 0, now)
		w.log.Warn("⚠️ Dead-lettered exhausted entry",
			zap.String("entry", e.ID.String()),
			zap.String("user", e.UserID.String()),
			zap.String("type", string(e.Type)))
	}
	return nil
}

// dispatch runs one claimed entry to an outcome. The claim already charged
// this attempt; a skip hands it back, a retry keeps it charged.
func (w *Worker) dispatch(ctx context.Context, e *model.QueueEntry) {
	now := w.clock.Now()

	payload, err := model.DecodePayload(e.Payload)
	if err != nil {
		// Payloads are validated at enqueue time, so this entry is corrupt
		// and will never dispatch; dead-letter it immediately.
		w.finalize(e, model.OutcomeFailed, model.ReasonInvalidPayload, err.Error(), 0, 0, now)
		return
	}

	devices, err := w.devices.ActiveForUser(e.UserID)
	if err != nil {
		w.retryOrFail(e, model.ReasonProviderError, fmt.Sprintf("device lookup: %v", err), now)
		return
	}
	if len(devices) == 0 {
		w.skip(e, model.ReasonNoDevice, "", now)
		return
	}

	verdict := w.gate.Evaluate(ctx, e.UserID, gate.EvalContext{
		SourceTimestamp: model.SourceTimestamp(payload),
		Critical:        model.IsCritical(payload),
	})
	if !verdict.Eligible {
		w.skip(e, model.ReasonGateBlocked, string(verdict.Reason), now)
		return
	}

	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = d.Token
	}

	priority := "normal"
	if model.IsCritical(payload) {
		priority = "high"
	}
	start := time.Now()
	res, err := w.push.Send(ctx, tokens, push.Notification{
		Title:    e.Title,
		Body:     e.Body,
		Priority: priority,
		Data: map[string]string{
			"type":           string(e.Type),
			"queue_entry_id": e.ID.String(),
		},
	})
	latency := time.Since(start)

	switch {
	case err == nil:
		w.finalize(e, model.OutcomeSuccess, "", "", res.DevicesReached, latency, now)
		w.log.Info("✅ Notification delivered",
			zap.String("entry", e.ID.String()),
			zap.String("user", e.UserID.String()),
			zap.String("type", string(e.Type)),
			zap.Int("devices", res.DevicesReached))
	case errors.Is(err, push.ErrAllTargetsInvalid):
		// Every registration died between the device check and the send.
		w.skip(e, model.ReasonNoDevice, err.Error(), now)
	case errors.Is(err, push.ErrNotConfigured):
		w.log.Warn("⚠️ Push provider not configured, dispatch deferred",
			zap.String("entry", e.ID.String()))
		w.retryOrFail(e, model.ReasonNotConfigured, err.Error(), now)
	default:
		w.retryOrFail(e, model.ReasonProviderError, err.Error(), now)
	}
}

// skip finalizes without consuming the retry budget
func (w *Worker) skip(e *model.QueueEntry, reason, detail string, now time.Time) {
	if err := w.queue.MarkSkipped(e.ID, reason, now); err != nil {
		w.log.Error("❌ MarkSkipped failed", zap.String("entry", e.ID.String()), zap.Error(err))
		return
	}
	w.appendLog(e, model.OutcomeSkipped, 0, reason, detail, 0)
	metrics.Dispatches.WithLabelValues("skipped").Inc()
	w.publish(e, model.OutcomeSkipped, reason, 0, now)
	w.log.Info("⏭️ Notification skipped",
		zap.String("entry", e.ID.String()),
		zap.String("user", e.UserID.String()),
		zap.String("reason", reason),
		zap.String("detail", detail))
}

// retryOrFail applies the backoff ladder, dead-lettering once the attempt the
// claim charged was the last one.
func (w *Worker) retryOrFail(e *model.QueueEntry, code, detail string, now time.Time) {
	if e.Attempts >= e.MaxAttempts {
		w.finalize(e, model.OutcomeFailed, model.ReasonMaxRetries, detail, 0, 0, now)
		w.log.Warn("❌ Notification dead-lettered",
			zap.String("entry", e.ID.String()),
			zap.String("user", e.UserID.String()),
			zap.Int("attempts", e.Attempts),
			zap.String("error", detail))
		return
	}

	next := now.Add(RetryDelay(e.Attempts))
	if err := w.queue.ScheduleRetry(e.ID, next); err != nil {
		w.log.Error("❌ ScheduleRetry failed", zap.String("entry", e.ID.String()), zap.Error(err))
		return
	}
	w.appendLog(e, model.OutcomeRetry, 0, code, detail, 0)
	metrics.Dispatches.WithLabelValues("retry").Inc()
	w.log.Info("🔁 Dispatch will retry",
		zap.String("entry", e.ID.String()),
		zap.Int("attempt", e.Attempts),
		zap.Time("next_retry_at", next),
		zap.String("error", detail))
}

// finalize records a delivered or failed terminal outcome
func (w *Worker) finalize(e *model.QueueEntry, outcome model.DeliveryOutcome, code, detail string, devicesReached int, latency time.Duration, now time.Time) {
	var err error
	switch outcome {
	case model.OutcomeSuccess:
		err = w.queue.MarkDelivered(e.ID, now, devicesReached)
	default:
		err = w.queue.MarkFailed(e.ID, code, now)
	}
	if err != nil {
		w.log.Error("❌ Finalize failed", zap.String("entry", e.ID.String()), zap.Error(err))
		return
	}
	w.appendLog(e, outcome, devicesReached, code, detail, latency)
	if outcome == model.OutcomeSuccess {
		metrics.ObserveDispatch("delivered", latency)
	} else {
		metrics.Dispatches.WithLabelValues("failed").Inc()
	}
	w.publish(e, outcome, code, devicesReached, now)
}

func (w *Worker) appendLog(e *model.QueueEntry, outcome model.DeliveryOutcome, devicesReached int, code, msg string, latency time.Duration) {
	err := w.logs.Append(&model.DeliveryLogEntry{
		QueueEntryID:   e.ID,
		UserID:         e.UserID,
		Outcome:        outcome,
		DevicesReached: devicesReached,
		ErrorCode:      code,
		ErrorMessage:   msg,
		LatencyMs:      latency.Milliseconds(),
	})
	if err != nil {
		w.log.Error("❌ Delivery log append failed", zap.String("entry", e.ID.String()), zap.Error(err))
	}
}

func (w *Worker) publish(e *model.QueueEntry, outcome model.DeliveryOutcome, reason string, devicesReached int, at time.Time) {
	if w.events == nil {
		return
	}
	w.events.Publish(model.DeliveryEvent{
		QueueEntryID:   e.ID,
		UserID:         e.UserID,
		Type:           e.Type,
		Outcome:        outcome,
		Reason:         reason,
		DevicesReached: devicesReached,
		At:             at,
	})
}

func (w *Worker) refreshDepthGauge() {
	counts, err := w.queue.CountsByStatus()
	if err != nil {
		w.log.Error("❌ Queue depth query failed", zap.Error(err))
		return
	}
	for _, st := range []model.QueueStatus{
		model.StatusScheduled, model.StatusProcessing,
		model.StatusDelivered, model.StatusFailed, model.StatusSkipped,
	} {
		metrics.QueueDepth.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
