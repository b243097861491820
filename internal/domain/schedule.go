/**
 * @description
 * This file defines the weekly meal schedule model used by subscription edits.
 * A schedule is always seven day entries in Monday..Sunday order, and the helpers
 * here compare, normalize and inspect schedules without any I/O.
 */
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Weekday is a delivery day of the week. The zero value is invalid.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Weekdays lists every day in canonical schedule order.
var Weekdays = [7]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayNames = map[Weekday]string{
	Monday:    "MONDAY",
	Tuesday:   "TUESDAY",
	Wednesday: "WEDNESDAY",
	Thursday:  "THURSDAY",
	Friday:    "FRIDAY",
	Saturday:  "SATURDAY",
	Sunday:    "SUNDAY",
}

func (d Weekday) String() string {
	if name, ok := weekdayNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Weekday(%d)", int(d))
}

// Valid reports whether d is one of Monday..Sunday.
func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

// ParseWeekday accepts upper, lower or title case names and common three letter abbreviations.
func ParseWeekday(s string) (Weekday, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for _, d := range Weekdays {
		name := weekdayNames[d]
		if normalized == name || normalized == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day of week %q", s)
}

// WeekdayOf maps a calendar date to its schedule day.
func WeekdayOf(t time.Time) Weekday {
	if t.Weekday() == time.Sunday {
		return Sunday
	}
	return Weekday(t.Weekday())
}

func (d Weekday) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid weekday %d", int(d))
	}
	return json.Marshal(weekdayNames[d])
}

func (d *Weekday) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("day of week must be a string: %w", err)
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MealSelection references a vendor meal set. Name and Price are display copies
// looked up from the catalog and are never sent back to the backend as data.
type MealSelection struct {
	SetID    string           `json:"setId"`
	Quantity int              `json:"quantity"`
	Name     string           `json:"name,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// DayEntry is one day of a weekly schedule.
type DayEntry struct {
	DayOfWeek Weekday         `json:"dayOfWeek"`
	Enabled   bool            `json:"enabled"`
	Meals     []MealSelection `json:"meals"`
}

// WeeklySchedule holds exactly one DayEntry per weekday in canonical order.
type WeeklySchedule []DayEntry

// WellFormed reports whether s has exactly seven entries, one per weekday, in order.
func (s WeeklySchedule) WellFormed() bool {
	if len(s) != len(Weekdays) {
		return false
	}
	for i, day := range Weekdays {
		if s[i].DayOfWeek != day {
			return false
		}
	}
	return true
}

// Day returns the entry for d, if present.
func (s WeeklySchedule) Day(d Weekday) (DayEntry, bool) {
	for _, entry := range s {
		if entry.DayOfWeek == d {
			return entry, true
		}
	}
	return DayEntry{}, false
}

// HasMeals reports whether at least one enabled day carries at least one meal.
func (s WeeklySchedule) HasMeals() bool {
	for _, entry := range s {
		if entry.Enabled && len(entry.Meals) > 0 {
			return true
		}
	}
	return false
}

// Normalize rebuilds s in canonical day order. Missing days become disabled,
// duplicate days keep the first occurrence and disabled days lose their meals.
// Display fields are stripped so the result is safe to send to the backend.
func (s WeeklySchedule) Normalize() WeeklySchedule {
	byDay := make(map[Weekday]DayEntry, len(s))
	for _, entry := range s {
		if !entry.DayOfWeek.Valid() {
			continue
		}
		if _, seen := byDay[entry.DayOfWeek]; seen {
			continue
		}
		byDay[entry.DayOfWeek] = entry
	}

	out := make(WeeklySchedule, 0, len(Weekdays))
	for _, day := range Weekdays {
		entry, ok := byDay[day]
		if !ok || !entry.Enabled {
			out = append(out, DayEntry{DayOfWeek: day, Meals: []MealSelection{}})
			continue
		}
		meals := make([]MealSelection, 0, len(entry.Meals))
		for _, m := range entry.Meals {
			meals = append(meals, MealSelection{SetID: strings.TrimSpace(m.SetID), Quantity: m.Quantity})
		}
		out = append(out, DayEntry{DayOfWeek: day, Enabled: true, Meals: meals})
	}
	return out
}

// EmptySchedule returns a well-formed schedule with every day disabled.
func EmptySchedule() WeeklySchedule {
	return WeeklySchedule(nil).Normalize()
}

// SchedulesEqual compares a and b day by day in canonical order. Meal lists are
// compared as ordered (setId, quantity) sequences, so reordering meals within a
// day makes the schedules unequal. Malformed input is never equal to anything.
func SchedulesEqual(a, b WeeklySchedule) bool {
	if !a.WellFormed() || !b.WellFormed() {
		return false
	}
	for i := range a {
		if a[i].Enabled != b[i].Enabled {
			return false
		}
		if len(a[i].Meals) != len(b[i].Meals) {
			return false
		}
		for j := range a[i].Meals {
			if a[i].Meals[j].SetID != b[i].Meals[j].SetID || a[i].Meals[j].Quantity != b[i].Meals[j].Quantity {
				return false
			}
		}
	}
	return true
}
