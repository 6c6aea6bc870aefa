// Package backup exports and imports the full persisted state as one JSON
// document, the same shape a user would download and restore from a file.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// ErrInvalidSnapshot marks a document that failed to parse; nothing was
// imported.
var ErrInvalidSnapshot = errors.New("invalid snapshot document")

// Snapshot is the exchange document. The structured fields stay raw JSON so
// an export/import round trip never reshapes data it does not understand.
type Snapshot struct {
	Exercises          json.RawMessage `json:"exercises,omitempty"`
	CategoryOrder      json.RawMessage `json:"categoryOrder,omitempty"`
	ExerciseCategories json.RawMessage `json:"exerciseCategories,omitempty"`
	WeeklySchedule     json.RawMessage `json:"weeklySchedule,omitempty"`
	ExerciseLogs       json.RawMessage `json:"exerciseLogs,omitempty"`
	UserBodyWeight     string          `json:"userBodyWeight,omitempty"`
}

// Export reads every persisted key into a snapshot. Missing keys are simply
// absent from the document.
func Export(ctx context.Context, kv store.KV) (_ *Snapshot, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.export")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	snapshot := &Snapshot{}
	for _, item := range []struct {
		key  string
		dest *json.RawMessage
	}{
		{store.KeyExercises, &snapshot.Exercises},
		{store.KeyCategoryOrder, &snapshot.CategoryOrder},
		{store.KeyExerciseCategories, &snapshot.ExerciseCategories},
		{store.KeyWeeklySchedule, &snapshot.WeeklySchedule},
		{store.KeyExerciseLogs, &snapshot.ExerciseLogs},
	} {
		val, err := kv.Get(ctx, item.key)
		if err != nil {
			if err == store.ErrKeyNotFound {
				continue
			}
			return nil, fmt.Errorf("export %q: %w", item.key, err)
		}
		if !json.Valid([]byte(val)) {
			return nil, fmt.Errorf("export %q: stored value is not valid json", item.key)
		}
		*item.dest = json.RawMessage(val)
	}

	bodyWeight, err := kv.Get(ctx, store.KeyUserBodyWeight)
	if err != nil && err != store.ErrKeyNotFound {
		return nil, fmt.Errorf("export %q: %w", store.KeyUserBodyWeight, err)
	}
	snapshot.UserBodyWeight = bodyWeight

	return snapshot, nil
}

// Import replaces each persisted key present in the document, wholesale. A
// document that fails to parse aborts before any key is touched, so a botched
// restore never leaves half-replaced state behind.
func Import(ctx context.Context, kv store.KV, data []byte) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.import")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSnapshot, err)
	}

	var errs error
	for _, item := range []struct {
		key string
		val json.RawMessage
	}{
		{store.KeyExercises, snapshot.Exercises},
		{store.KeyCategoryOrder, snapshot.CategoryOrder},
		{store.KeyExerciseCategories, snapshot.ExerciseCategories},
		{store.KeyWeeklySchedule, snapshot.WeeklySchedule},
		{store.KeyExerciseLogs, snapshot.ExerciseLogs},
	} {
		if item.val == nil {
			continue
		}
		if err := kv.Set(ctx, item.key, string(item.val)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("import %q: %w", item.key, err))
		}
	}
	if snapshot.UserBodyWeight != "" {
		if err := kv.Set(ctx, store.KeyUserBodyWeight, snapshot.UserBodyWeight); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("import %q: %w", store.KeyUserBodyWeight, err))
		}
	}

	if errs != nil {
		log.Errorf("backup import: %s", errs)
	}
	return errs
}
