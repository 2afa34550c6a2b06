package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultRetentionKey is the settings row used when no key is given.
const DefaultRetentionKey = "default"

// Day is the unit retention horizons are configured in.
const Day = 24 * time.Hour

// MaxRetentionDays bounds every horizon to a hundred years.
const MaxRetentionDays = 36500

// ErrInvalidPolicy is returned by RetentionPolicy.Validate.
var ErrInvalidPolicy = errors.New("invalid retention policy")

// RetentionPolicy holds the age thresholds after which terminal records
// become eligible for cleanup.
type RetentionPolicy struct {
	CompletedDays int `json:"completed_retention_days" mapstructure:"completed_days"`
	FailedDays    int `json:"failed_retention_days" mapstructure:"failed_days"`
	LogsDays      int `json:"logs_retention_days" mapstructure:"logs_days"`
	ConflictsDays int `json:"conflicts_retention_days" mapstructure:"conflicts_days"`
}

// DefaultRetentionPolicy returns the horizons used before an admin changes them.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		CompletedDays: 7,
		FailedDays:    30,
		LogsDays:      30,
		ConflictsDays: 90,
	}
}

// Validate checks every horizon lies in [1, MaxRetentionDays].
func (p RetentionPolicy) Validate() error {
	fields := []struct {
		name string
		days int
	}{
		{"completed_retention_days", p.CompletedDays},
		{"failed_retention_days", p.FailedDays},
		{"logs_retention_days", p.LogsDays},
		{"conflicts_retention_days", p.ConflictsDays},
	}
	for _, f := range fields {
		if f.days < 1 {
			return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidPolicy, f.name, f.days)
		}
		if f.days > MaxRetentionDays {
			return fmt.Errorf("%w: %s must be at most %d, got %d", ErrInvalidPolicy, f.name, MaxRetentionDays, f.days)
		}
	}
	return nil
}

// Cutoffs converts the policy into absolute timestamps relative to now.
// A horizon too long for time.Duration yields the zero time, so nothing
// in that category is old enough to remove.
func (p RetentionPolicy) Cutoffs(now time.Time) RetentionCutoffs {
	return RetentionCutoffs{
		Completed: cutoff(now, p.CompletedDays),
		Failed:    cutoff(now, p.FailedDays),
		Logs:      cutoff(now, p.LogsDays),
		Conflicts: cutoff(now, p.ConflictsDays),
	}
}

func cutoff(now time.Time, days int) time.Time {
	if int64(days) > math.MaxInt64/int64(Day) {
		return time.Time{}
	}
	return now.Add(-time.Duration(days) * Day)
}

// RetentionCutoffs are the instants before which records are removed.
type RetentionCutoffs struct {
	Completed time.Time
	Failed    time.Time
	Logs      time.Time
	Conflicts time.Time
}

// RetentionSetting is the persisted, keyed cleanup configuration.
type RetentionSetting struct {
	UpdatedAt          time.Time       `json:"updated_at"`
	LastCleanupAt      *time.Time      `json:"last_cleanup_at,omitempty"`
	NextScheduledAt    *time.Time      `json:"next_scheduled_at,omitempty"`
	Key                string          `json:"key"`
	Policy             RetentionPolicy `json:"policy"`
	AutoCleanupEnabled bool            `json:"auto_cleanup_enabled"`
}

// DefaultRetentionSetting returns the setting used when none is stored.
func DefaultRetentionSetting(key string) *RetentionSetting {
	return &RetentionSetting{
		Key:                key,
		Policy:             DefaultRetentionPolicy(),
		AutoCleanupEnabled: true,
	}
}

// DueAt reports whether an automatic cleanup should run at now.
func (s *RetentionSetting) DueAt(now time.Time) bool {
	if !s.AutoCleanupEnabled {
		return false
	}
	return s.NextScheduledAt == nil || !now.Before(*s.NextScheduledAt)
}

// CleanupCounts is the number of rows removed per category.
type CleanupCounts struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Logs      int64 `json:"logs"`
	Conflicts int64 `json:"conflicts"`
}

// Total sums all categories.
func (c CleanupCounts) Total() int64 {
	return c.Completed + c.Failed + c.Logs + c.Conflicts
}

// CleanupAudit is written once per cleanup invocation.
type CleanupAudit struct {
	RanAt  time.Time     `json:"ran_at"`
	Result *Result       `json:"result"`
	ID     string        `json:"id"`
	Actor  string        `json:"actor"`
	Counts CleanupCounts `json:"counts"`
}
