package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Payload is the typed per-notification metadata carried by a queue entry.
// One variant exists per notification type; validation happens at enqueue time,
// not at dispatch time.
type Payload interface {
	NotificationType() NotificationType
	Validate() error
}

// payloadEnvelope is the stored JSON shape: the variant's fields plus a type tag.
type payloadEnvelope struct {
	Type NotificationType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// MorningSummaryPayload accompanies the daily summary notification
type MorningSummaryPayload struct {
	SummaryDate string `json:"summary_date"` // local calendar date the summary covers
	Highlight   string `json:"highlight,omitempty"`
}

func (MorningSummaryPayload) NotificationType() NotificationType { return TypeMorningSummary }

func (p MorningSummaryPayload) Validate() error {
	if _, err := time.Parse("2006-01-02", p.SummaryDate); err != nil {
		return fmt.Errorf("summary_date: %w", err)
	}
	return nil
}

// AnomalyAlertPayload carries the metric reading that triggered the alert.
// SourceTimestamp feeds the gate's recency check.
type AnomalyAlertPayload struct {
	Metric          string    `json:"metric"`
	Value           float64   `json:"value"`
	SourceTimestamp time.Time `json:"source_timestamp"`
}

func (AnomalyAlertPayload) NotificationType() NotificationType { return TypeAnomalyAlert }

func (p AnomalyAlertPayload) Validate() error {
	if p.Metric == "" {
		return errors.New("metric required")
	}
	if p.SourceTimestamp.IsZero() {
		return errors.New("source_timestamp required")
	}
	return nil
}

// GoalProgressPayload reports progress toward a user goal
type GoalProgressPayload struct {
	Goal     string  `json:"goal"`
	Progress float64 `json:"progress"` // 0..1
}

func (GoalProgressPayload) NotificationType() NotificationType { return TypeGoalProgress }

func (p GoalProgressPayload) Validate() error {
	if p.Goal == "" {
		return errors.New("goal required")
	}
	if p.Progress < 0 || p.Progress > 1 {
		return errors.New("progress out of range")
	}
	return nil
}

// SyncReminderPayload nudges the user to reconnect a biometric source
type SyncReminderPayload struct {
	Provider   string     `json:"provider"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

func (SyncReminderPayload) NotificationType() NotificationType { return TypeSyncReminder }

func (p SyncReminderPayload) Validate() error {
	if p.Provider == "" {
		return errors.New("provider required")
	}
	return nil
}

// SystemAlertPayload is a critical system message. Critical sends bypass the
// baseline-sufficiency gate check (and only that check).
type SystemAlertPayload struct {
	Code     string `json:"code"`
	Critical bool   `json:"critical"`
}

func (SystemAlertPayload) NotificationType() NotificationType { return TypeSystemAlert }

func (p SystemAlertPayload) Validate() error {
	if p.Code == "" {
		return errors.New("code required")
	}
	return nil
}

// EncodePayload validates p and marshals it into the tagged envelope
func EncodePayload(p Payload) (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", p.NotificationType(), err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Type: p.NotificationType(), Data: data})
}

// DecodePayload unmarshals a stored envelope back into its typed variant
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty payload")
	}
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	var p Payload
	switch env.Type {
	case TypeMorningSummary:
		p = &MorningSummaryPayload{}
	case TypeAnomalyAlert:
		p = &AnomalyAlertPayload{}
	case TypeGoalProgress:
		p = &GoalProgressPayload{}
	case TypeSyncReminder:
		p = &SyncReminderPayload{}
	case TypeSystemAlert:
		p = &SystemAlertPayload{}
	default:
		return nil, fmt.Errorf("unknown payload type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, err
	}
	return deref(p), nil
}

// SourceTimestamp extracts the gate-relevant source instant, if the variant has one
func SourceTimestamp(p Payload) *time.Time {
	if a, ok := p.(AnomalyAlertPayload); ok {
		ts := a.SourceTimestamp
		return &ts
	}
	return nil
}

// IsCritical reports whether the payload marks a critical/system send
func IsCritical(p Payload) bool {
	if a, ok := p.(SystemAlertPayload); ok {
		return a.Critical
	}
	return false
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *MorningSummaryPayload:
		return *v
	case *AnomalyAlertPayload:
		return *v
	case *GoalProgressPayload:
		return *v
	case *SyncReminderPayload:
		return *v
	case *SystemAlertPayload:
		return *v
	}
	return p
}
