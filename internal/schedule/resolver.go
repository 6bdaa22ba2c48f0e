// Package schedule computes when a per-user local-time schedule is due to fire.
package schedule

import (
	"fmt"
	"time"

	"github.com/trannm/healthpulse/internal/model"
)

// State is the resolver's verdict for a schedule at a given instant
type State int

const (
	// NotDue means the next fire instant is still beyond the look-ahead window
	NotDue State = iota
	// Due means the fire instant falls inside [now-grace, now+lookahead]
	Due
	// MissedBeyondGrace means the fire instant passed too long ago to catch up.
	// It must not fire retroactively.
	MissedBeyondGrace
)

func (s State) String() string {
	switch s {
	case Due:
		return "due"
	case MissedBeyondGrace:
		return "missed"
	}
	return "not-due"
}

// Resolution is the outcome of resolving one schedule against "now"
type Resolution struct {
	State State
	// FireAtUTC is the UTC instant the schedule fires on its local calendar day.
	// Zero when the schedule does not fire today (day-of-week filter).
	FireAtUTC time.Time
	// LocalDateKey is the local calendar date (2006-01-02) of the fire instant,
	// used to dedupe queue entries.
	LocalDateKey string
}

// Resolve computes today's fire instant for s in its own timezone and compares
// it against now. The local midnight is built with the timezone database's
// offset for that specific date, so DST transitions resolve correctly; ambiguous
// or nonexistent local times take whatever offset time.Date picks for that
// instant. The day-of-week filter applies to the local calendar day, never the
// UTC day.
func Resolve(s *model.Schedule, now time.Time, lookahead, defaultGrace time.Duration) (Resolution, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return Resolution{}, fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	hour, min, err := s.LocalClock()
	if err != nil {
		return Resolution{}, err
	}

	localNow := now.In(loc)
	fireLocal := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), hour, min, 0, 0, loc)

	if !s.DaysOfWeek.Has(fireLocal.Weekday()) {
		return Resolution{State: NotDue}, nil
	}

	fireUTC := fireLocal.UTC()
	grace := s.Grace(defaultGrace)

	res := Resolution{
		FireAtUTC:    fireUTC,
		LocalDateKey: fireLocal.Format("2006-01-02"),
	}
	switch {
	case fireUTC.Before(now.Add(-grace)):
		res.State = MissedBeyondGrace
	case fireUTC.After(now.Add(lookahead)):
		res.State = NotDue
	default:
		res.State = Due
	}
	return res, nil
}
