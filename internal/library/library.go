// Package library owns the exercise catalog, the user defined categories,
// the per-category exercise ordering and the weekly schedule. The four
// structures cascade into each other on every edit, so one service guards
// them together and re-syncs them inside each mutating operation.
package library

import (
	"errors"
	"time"
)

const (
	// the reserved fallback category, always present, never deletable
	UnassignedID   = "unassigned"
	UnassignedName = "Unassigned"

	// Rest marks a schedule day with no assigned category
	Rest = "Rest"

	DefaultTargetSets = 3
)

var (
	ErrExerciseNotFound     = errors.New("exercise not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrEmptyName            = errors.New("name empty")
	ErrDuplicateCategory    = errors.New("category already exists")
	ErrReservedCategory     = errors.New("category is reserved")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrInvalidWeekday       = errors.New("invalid weekday")
	ErrInvalidIndex         = errors.New("index out of range")
	ErrConfirmationRequired = errors.New("permanent delete requires confirmation")
)

type Exercise struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	TargetSets    int      `json:"targetSets"`
	Categories    []string `json:"categories"`
	UseBodyweight bool     `json:"useBodyweight"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExercisePatch carries the editable exercise fields; nil means unchanged
type ExercisePatch struct {
	Name          *string  `json:"name,omitempty"`
	TargetSets    *int     `json:"targetSets,omitempty"`
	UseBodyweight *bool    `json:"useBodyweight,omitempty"`
	Categories    []string `json:"categories,omitempty"`
}

// Weekdays in schedule order, Sunday first (matches time.Weekday naming)
var Weekdays = []string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

func ValidWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// WeekdayName maps a calendar date to its weekday name,
// locale independent (Sunday=0 .. Saturday=6)
func WeekdayName(date time.Time) string {
	return date.Weekday().String()
}
