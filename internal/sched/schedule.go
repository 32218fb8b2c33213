// Package sched owns recurring digest schedules: one live timer per user,
// replaced atomically on reconfigure and gated by weekday and timezone.
package sched

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/boskobot/internal/favorites"
)

// WeekdayNames lists day names indexed by time.Weekday (Sunday = 0). The
// dialogue layer uses it for the day-selection keyboard so menu labels and
// schedule summaries always agree.
var WeekdayNames = []string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// Schedule is one user's digest configuration. Flavors and Shops are a
// snapshot of the favorites taken at finalize time; later favorite edits do
// not affect an installed schedule.
type Schedule struct {
	UserID   int64               `json:"user_id"`
	ChatID   int64               `json:"chat_id"`
	Hour     int                 `json:"hour"`
	Minute   int                 `json:"minute"`
	Days     []int               `json:"days"` // time.Weekday values, Sunday = 0
	Timezone string              `json:"timezone"`
	Flavors  []string            `json:"flavors"`
	Shops    []favorites.ShopRef `json:"shops"`
}

// Validate checks the schedule is complete enough to install.
func (s Schedule) Validate() error {
	if s.UserID == 0 || s.ChatID == 0 {
		return fmt.Errorf("schedule: missing owner")
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("schedule: invalid time %02d:%02d", s.Hour, s.Minute)
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("schedule: no days selected")
	}
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("schedule: invalid weekday %d", d)
		}
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if len(s.Flavors) == 0 || len(s.Shops) == 0 {
		return fmt.Errorf("schedule: empty favorites snapshot")
	}
	return nil
}

// Location resolves the schedule's IANA timezone.
func (s Schedule) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

func (s Schedule) daySet() map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(s.Days))
	for _, d := range s.Days {
		set[time.Weekday(d)] = true
	}
	return set
}

// DayNames returns the selected day names sorted by weekday.
func (s Schedule) DayNames() []string {
	days := append([]int(nil), s.Days...)
	sort.Ints(days)
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(WeekdayNames) {
			names = append(names, WeekdayNames[d])
		}
	}
	return names
}

// TimeOfDay formats the configured time as HH:MM.
func (s Schedule) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// NextFire computes the first instant strictly after the given time at which
// the schedule should fire: local wall-clock Hour:Minute in the schedule's
// timezone, on a selected weekday only.
func NextFire(after time.Time, s Schedule) (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	days := s.daySet()
	local := after.In(loc)

	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), s.Hour, s.Minute, 0, 0, loc)
		if !candidate.After(after) {
			continue
		}
		if days[candidate.Weekday()] {
			return candidate, nil
		}
	}
	return time.Time{}, fmt.Errorf("schedule: no qualifying day within a week")
}
