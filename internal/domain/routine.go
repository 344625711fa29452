// Package domain holds the plain data records shared by every layer:
// routines, completions, settings, and the derived statistics shapes.
package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/routine-minder/minder/internal/dates"
)

// ─── Time Categories ────────────────────────────────────────────────────────

// TimeCategory is the time-of-day bucket a routine is scheduled in.
type TimeCategory string

const (
	CategoryAM   TimeCategory = "AM"
	CategoryNoon TimeCategory = "NOON"
	CategoryPM   TimeCategory = "PM"
	CategoryAll  TimeCategory = "ALL"
)

// AllCategories lists every category in display order.
var AllCategories = []TimeCategory{CategoryAM, CategoryNoon, CategoryPM, CategoryAll}

// Valid reports whether c is one of the four known categories.
func (c TimeCategory) Valid() bool {
	switch c {
	case CategoryAM, CategoryNoon, CategoryPM, CategoryAll:
		return true
	default:
		return false
	}
}

func (c TimeCategory) rank() int {
	for i, cat := range AllCategories {
		if cat == c {
			return i
		}
	}
	return len(AllCategories)
}

// ParseTimeCategory accepts any casing ("am", "Noon").
func ParseTimeCategory(s string) (TimeCategory, error) {
	c := TimeCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeCategory, s)
	}
	return c, nil
}

// SortCategories returns a deduplicated copy in AM, NOON, PM, ALL order.
// Unknown categories are kept and sorted last.
func SortCategories(in []TimeCategory) []TimeCategory {
	seen := make(map[TimeCategory]bool, len(in))
	out := make([]TimeCategory, 0, len(in))
	for _, c := range in {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b TimeCategory) int {
		return cmp.Compare(a.rank(), b.rank())
	})
	return out
}

// ─── Routine ────────────────────────────────────────────────────────────────

// Routine is a user-defined habit scheduled in one or more time categories.
// Inactive routines keep their history but are left out of every statistic.
type Routine struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	TimeCategories      []TimeCategory `json:"timeCategories"`
	IsActive            bool           `json:"isActive"`
	SortOrder           int            `json:"sortOrder"`
	NotificationEnabled bool           `json:"notificationEnabled,omitempty"`
	NotificationTime    string         `json:"notificationTime,omitempty"` // "HH:MM"
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Validate checks the routine invariants: a name, at least one category,
// only known categories, and a well-formed notification time.
func (r Routine) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrRoutineNameEmpty
	}
	if len(r.TimeCategories) == 0 {
		return ErrNoTimeCategories
	}
	for _, c := range r.TimeCategories {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidTimeCategory, c)
		}
	}
	if r.NotificationTime != "" {
		if _, err := time.Parse("15:04", r.NotificationTime); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidNotifyTime, r.NotificationTime)
		}
	}
	return nil
}

// HasCategory reports whether the routine is scheduled in c.
func (r Routine) HasCategory(c TimeCategory) bool {
	for _, rc := range r.TimeCategories {
		if rc == c {
			return true
		}
	}
	return false
}

// Normalize trims the name and puts categories in display order.
func (r Routine) Normalize() Routine {
	r.Name = strings.TrimSpace(r.Name)
	r.TimeCategories = SortCategories(r.TimeCategories)
	return r
}

// ─── Completion ─────────────────────────────────────────────────────────────

// Completion records the state of one (routine, date, category) slot.
// Date is the local calendar day the user acted in, not a UTC date.
type Completion struct {
	ID           string       `json:"id"`
	RoutineID    string       `json:"routineId"`
	Date         string       `json:"date"` // YYYY-MM-DD
	TimeCategory TimeCategory `json:"timeCategory"`
	Completed    bool         `json:"completed"`
	CompletedAt  time.Time    `json:"completedAt"` // informational
}

// Key returns the slot this completion belongs to.
func (c Completion) Key() SlotKey {
	return SlotKey{RoutineID: c.RoutineID, Date: c.Date, Category: c.TimeCategory}
}

// Validate checks the date and category of a completion.
func (c Completion) Validate() error {
	if err := dates.Validate(c.Date); err != nil {
		return err
	}
	if !c.TimeCategory.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTimeCategory, c.TimeCategory)
	}
	return nil
}

// SlotKey identifies one schedulable slot. Stores keep at most one
// completion state per key.
type SlotKey struct {
	RoutineID string
	Date      string
	Category  TimeCategory
}

// ─── Settings ───────────────────────────────────────────────────────────────

// Settings is the per-user singleton of notification preferences.
// Timezone decides which calendar day "today" is.
type Settings struct {
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	AMTime               string `json:"amTime"`
	NoonTime             string `json:"noonTime"`
	PMTime               string `json:"pmTime"`
	Timezone             string `json:"timezone"`
}

// DefaultSettings returns the settings a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		NotificationsEnabled: false,
		AMTime:               "08:00",
		NoonTime:             "12:00",
		PMTime:               "20:00",
		Timezone:             "Local",
	}
}

// Validate checks reminder times and the timezone name.
func (s Settings) Validate() error {
	for _, hhmm := range []string{s.AMTime, s.NoonTime, s.PMTime} {
		if hhmm == "" {
			continue
		}
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidNotifyTime, hhmm)
		}
	}
	if _, err := dates.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimezone, err)
	}
	return nil
}

// Settings keys as stored in key/value tables.
const (
	settingNotifications = "notifications_enabled"
	settingAMTime        = "am_time"
	settingNoonTime      = "noon_time"
	settingPMTime        = "pm_time"
	settingTimezone      = "timezone"
)

// Pairs flattens s into key/value rows.
func (s Settings) Pairs() [][2]string {
	return [][2]string{
		{settingNotifications, strconv.FormatBool(s.NotificationsEnabled)},
		{settingAMTime, s.AMTime},
		{settingNoonTime, s.NoonTime},
		{settingPMTime, s.PMTime},
		{settingTimezone, s.Timezone},
	}
}

// Set applies one stored key/value row. Unknown keys are ignored.
func (s *Settings) Set(key, value string) error {
	switch key {
	case settingNotifications:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		s.NotificationsEnabled = b
	case settingAMTime:
		s.AMTime = value
	case settingNoonTime:
		s.NoonTime = value
	case settingPMTime:
		s.PMTime = value
	case settingTimezone:
		s.Timezone = value
	}
	return nil
}
