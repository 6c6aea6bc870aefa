// Package logbook stores the workout history: one entry per exercise per
// calendar day, append-only apart from the same-day replacement done when
// an exercise is completed again.
package logbook

import (
	"errors"
	"time"
)

var ErrEntryNotFound = errors.New("log entry not found")

// Set is one performed set of an exercise.
type Set struct {
	Reps   int     `json:"reps"`
	Weight float64 `json:"weight"`
}

// Entry is a completed exercise for one calendar day. ExerciseID is a weak
// reference: the exercise may be deleted later and the entry stays, which is
// why Name and Type carry snapshots taken at log time.
type Entry struct {
	ID            string     `json:"id"`
	ExerciseID    string     `json:"exerciseId"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	Date          time.Time  `json:"date"`
	Sets          []Set      `json:"sets"`
	Completed     bool       `json:"completed"`
	CompletedDate *time.Time `json:"completedDate"`
}

// Volume is the sum of reps times weight over the entry's sets.
func (e Entry) Volume() float64 {
	var total float64
	for _, s := range e.Sets {
		total += float64(s.Reps) * s.Weight
	}
	return total
}

// TotalReps is the sum of reps over the entry's sets.
func (e Entry) TotalReps() int {
	var total int
	for _, s := range e.Sets {
		total += s.Reps
	}
	return total
}

// DayKey truncates a timestamp to its calendar day. Two timestamps with the
// same key count as the same workout day.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return DayKey(a) == DayKey(b)
}
