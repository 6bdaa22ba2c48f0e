package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DayMask is a bitmask of local weekdays a schedule may fire on.
// Bit N corresponds to time.Weekday N (Sunday = 0).
type DayMask int

// AllDays enables every weekday
const AllDays DayMask = 0x7F

// Has reports whether the given weekday is enabled
func (m DayMask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// With returns a mask with the given weekday enabled
func (m DayMask) With(d time.Weekday) DayMask {
	return m | (1 << uint(d))
}

// Schedule is a per-user recurring notification schedule.
// One active schedule exists per (user, type).
type Schedule struct {
	ID         uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID     uuid.UUID        `json:"user_id" gorm:"not null;uniqueIndex:idx_user_type"`
	Type       NotificationType `json:"type" gorm:"size:50;not null;uniqueIndex:idx_user_type"`
	LocalTime  string           `json:"local_time" gorm:"size:5;not null"` // HH:MM in the user's timezone
	Timezone   string           `json:"timezone" gorm:"size:64;not null"`  // IANA id, e.g. America/New_York
	DaysOfWeek DayMask          `json:"days_of_week" gorm:"not null;default:127"`
	Enabled    bool             `json:"enabled" gorm:"not null;default:true;index"`
	// GraceMinutes overrides the engine-wide catch-up window; 0 means use the default.
	GraceMinutes int       `json:"grace_minutes" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LocalClock parses the schedule's HH:MM local time
func (s *Schedule) LocalClock() (hour, min int, err error) {
	if len(s.LocalTime) != 5 || s.LocalTime[2] != ':' {
		return 0, 0, fmt.Errorf("invalid local time %q", s.LocalTime)
	}
	if _, err := fmt.Sscanf(s.LocalTime, "%02d:%02d", &hour, &min); err != nil {
		return 0, 0, fmt.Errorf("invalid local time %q: %w", s.LocalTime, err)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, errors.New("local time out of range")
	}
	return hour, min, nil
}

// Grace returns the effective catch-up window for this schedule
func (s *Schedule) Grace(fallback time.Duration) time.Duration {
	if s.GraceMinutes > 0 {
		return time.Duration(s.GraceMinutes) * time.Minute
	}
	return fallback
}
