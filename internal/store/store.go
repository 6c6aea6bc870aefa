// Package store is the flat key-value persistence layer of the tracker.
// Every component mirrors its full in-memory snapshot to one string key,
// JSON encoded, on every mutation. There are no transactions and no diffs.
package store

import (
	"context"
	"errors"
)

// keys for the persisted state snapshots
const (
	KeyExercises          = "exercises"
	KeyCategoryOrder      = "categoryOrder"
	KeyExerciseCategories = "exerciseCategories"
	KeyWeeklySchedule     = "weeklySchedule"
	KeyExerciseLogs       = "exerciseLogs"
	KeyUserBodyWeight     = "userBodyWeight"
)

var ErrKeyNotFound = errors.New("key not found")

type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}
