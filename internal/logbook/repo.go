package logbook

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Repo keeps the full log history in memory and mirrors it to the key-value
// store after every mutation, same snapshot discipline as the library service.
type Repo struct {
	mu      sync.Mutex
	kv      store.KV
	entries []Entry

	// injectable for deterministic tests
	newID func() string
	now   func() time.Time
}

func NewRepo(ctx context.Context, kv store.KV) (*Repo, error) {
	r := &Repo{
		kv:    kv,
		newID: uuid.NewString,
		now:   time.Now,
	}
	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load exercise logs: %w", err)
	}
	return r, nil
}

// Reload drops the in-memory history and reads it back from the key-value
// store, e.g. after a backup import replaced the persisted keys.
func (r *Repo) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil

	val, err := r.kv.Get(ctx, store.KeyExerciseLogs)
	if err != nil {
		if err == store.ErrKeyNotFound {
			return nil
		}
		// storage unavailable: start empty, keep running in-memory only
		log.Errorf("logbook: load %q: %s", store.KeyExerciseLogs, err)
		return nil
	}
	if err := json.Unmarshal([]byte(val), &r.entries); err != nil {
		return fmt.Errorf("unmarshal %q: %w", store.KeyExerciseLogs, err)
	}
	return nil
}

// LogCompletion marks an exercise done for the given date. At most one entry
// exists per (exercise, calendar day): a prior entry for the same pair is
// replaced, so completing twice on one day never duplicates.
func (r *Repo) LogCompletion(
	ctx context.Context,
	exerciseID, name, category string,
	date time.Time,
	sets []Set,
) (_ Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "logbook.logCompletion")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	day := DayKey(date)
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.ExerciseID == exerciseID && DayKey(e.Date) == day {
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept

	completedAt := r.now()
	entry := Entry{
		ID:            r.newID(),
		ExerciseID:    exerciseID,
		Name:          name,
		Type:          category,
		Date:          date,
		Sets:          append([]Set(nil), sets...),
		Completed:     true,
		CompletedDate: &completedAt,
	}
	r.entries = append(r.entries, entry)

	r.persist(ctx)
	return entry, nil
}

// LastLogFor returns the most recent entry (by Date) for the exercise.
func (r *Repo) LastLogFor(exerciseID string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var last *Entry
	for i := range r.entries {
		e := &r.entries[i]
		if e.ExerciseID != exerciseID {
			continue
		}
		if last == nil || e.Date.After(last.Date) {
			last = e
		}
	}
	if last == nil {
		return Entry{}, ErrEntryNotFound
	}
	return *last, nil
}

// LogsForDate returns every entry whose calendar day matches the date.
func (r *Repo) LogsForDate(date time.Time) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := DayKey(date)
	var matched []Entry
	for _, e := range r.entries {
		if DayKey(e.Date) == day {
			matched = append(matched, e)
		}
	}
	return matched
}

// All returns the full history sorted by date ascending.
func (r *Repo) All() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]Entry, len(r.entries))
	copy(all, r.entries)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Date.Before(all[j].Date)
	})
	return all
}

// Count returns the number of stored entries.
func (r *Repo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Repo) persist(ctx context.Context) {
	data, err := json.Marshal(r.entries)
	if err != nil {
		log.Errorf("logbook: marshal entries: %s", err)
		return
	}
	if err := r.kv.Set(ctx, store.KeyExerciseLogs, string(data)); err != nil {
		log.Errorf("logbook: persist %q: %s", store.KeyExerciseLogs, err)
	}
}
