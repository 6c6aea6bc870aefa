package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Service is the single writer of the library state. All cascades caused by
// one edit happen inside one call, under one lock, and the full snapshot is
// mirrored to the key-value store before the call returns.
type Service struct {
	mu sync.Mutex
	kv store.KV

	exercises  map[string]Exercise
	categories []Category
	order      map[string][]string
	schedule   map[string]string

	// injectable for deterministic ids in tests
	newID func() string
}

func NewService(ctx context.Context, kv store.KV) (*Service, error) {
	s := &Service{
		kv:    kv,
		newID: uuid.NewString,
	}
	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load library state: %w", err)
	}
	return s, nil
}

// Reload drops the in-memory state and reads it back from the key-value
// store, e.g. after a backup import replaced the persisted keys.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exercises = make(map[string]Exercise)
	s.categories = nil
	s.order = make(map[string][]string)
	s.schedule = make(map[string]string)

	if err := s.loadKey(ctx, store.KeyExercises, &s.exercises); err != nil {
		return err
	}
	if err := s.loadKey(ctx, store.KeyExerciseCategories, &s.categories); err != nil {
		return err
	}
	if err := s.loadKey(ctx, store.KeyCategoryOrder, &s.order); err != nil {
		return err
	}
	if err := s.loadKey(ctx, store.KeyWeeklySchedule, &s.schedule); err != nil {
		return err
	}

	if len(s.categories) == 0 {
		s.seedDefaultCategories()
	}

	s.reconcile()
	s.persist(ctx)
	return nil
}

func (s *Service) loadKey(ctx context.Context, key string, dest interface{}) error {
	val, err := s.kv.Get(ctx, key)
	if err != nil {
		if err == store.ErrKeyNotFound {
			return nil
		}
		// storage unavailable: start empty, keep running in-memory only
		log.Errorf("library: load %q: %s", key, err)
		return nil
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return nil
}

func (s *Service) seedDefaultCategories() {
	s.categories = []Category{
		{ID: UnassignedID, Name: UnassignedName},
		{ID: s.newID(), Name: "Push"},
		{ID: s.newID(), Name: "Pull"},
		{ID: s.newID(), Name: "Legs"},
		{ID: s.newID(), Name: "Freestyle"},
	}
}

// AddCategory appends a new category; name is trimmed and must be unique
// case-insensitively.
func (s *Service) AddCategory(ctx context.Context, name string) (_ Category, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.category.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Category{}, ErrEmptyName
	}
	if s.categoryByName(trimmed) != nil {
		return Category{}, ErrDuplicateCategory
	}

	cat := Category{ID: s.newID(), Name: trimmed}
	s.categories = append(s.categories, cat)
	s.order[cat.Name] = []string{}

	s.persist(ctx)
	return cat, nil
}

// RenameCategory renames the category and cascades the new name into every
// exercise tagged with it, the order index key and the weekly schedule.
// Renaming to an existing category name is rejected as a duplicate instead
// of silently merging or overwriting the colliding order list.
func (s *Service) RenameCategory(ctx context.Context, id, newName string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.category.rename")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	cat := s.categoryByID(id)
	if cat == nil {
		return ErrCategoryNotFound
	}

	trimmed := strings.TrimSpace(newName)
	if trimmed == "" {
		return ErrEmptyName
	}
	if existing := s.categoryByName(trimmed); existing != nil && existing.ID != id {
		return ErrDuplicateCategory
	}

	oldName := cat.Name
	if oldName == trimmed {
		return nil
	}
	cat.Name = trimmed

	for exID, ex := range s.exercises {
		for i, c := range ex.Categories {
			if c == oldName {
				ex.Categories[i] = trimmed
				s.exercises[exID] = ex
			}
		}
	}

	if list, ok := s.order[oldName]; ok {
		s.order[trimmed] = list
		delete(s.order, oldName)
	}

	for day, assigned := range s.schedule {
		if assigned == oldName {
			s.schedule[day] = trimmed
		}
	}

	s.persist(ctx)
	return nil
}

// DeleteCategory removes the category and cascades: exercises lose the tag
// (falling back to Unassigned when it was their last one), the order list is
// dropped, and schedule days pointing at it are reset to Rest.
func (s *Service) DeleteCategory(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.category.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id == UnassignedID {
		return ErrReservedCategory
	}
	cat := s.categoryByID(id)
	if cat == nil {
		return ErrCategoryNotFound
	}
	name := cat.Name

	for i, c := range s.categories {
		if c.ID == id {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			break
		}
	}

	for exID, ex := range s.exercises {
		changed := false
		kept := ex.Categories[:0]
		for _, c := range ex.Categories {
			if c == name {
				changed = true
				continue
			}
			kept = append(kept, c)
		}
		if !changed {
			continue
		}
		if len(kept) == 0 {
			kept = []string{UnassignedName}
			s.appendToOrder(UnassignedName, exID)
		}
		ex.Categories = kept
		s.exercises[exID] = ex
	}

	delete(s.order, name)

	for day, assigned := range s.schedule {
		if assigned == name {
			s.schedule[day] = Rest
		}
	}

	s.persist(ctx)
	return nil
}

// AddExercise creates a new exercise and appends its id to the order list of
// every selected category. Empty categories default to Unassigned.
func (s *Service) AddExercise(
	ctx context.Context,
	name string,
	categories []string,
	targetSets int,
	useBodyweight bool,
) (_ Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.exercise.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Exercise{}, ErrEmptyName
	}

	cats, err := s.normalizeCategories(categories)
	if err != nil {
		return Exercise{}, err
	}

	if targetSets <= 0 {
		targetSets = DefaultTargetSets
	}

	ex := Exercise{
		ID:            s.newID(),
		Name:          trimmed,
		TargetSets:    targetSets,
		Categories:    cats,
		UseBodyweight: useBodyweight,
	}
	s.exercises[ex.ID] = ex
	for _, c := range cats {
		s.appendToOrder(c, ex.ID)
	}

	s.persist(ctx)
	return ex, nil
}

// EditExercise applies the patch and re-syncs the order index with the new
// category memberships.
func (s *Service) EditExercise(ctx context.Context, id string, patch ExercisePatch) (_ Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.exercise.edit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exercises[id]
	if !ok {
		return Exercise{}, ErrExerciseNotFound
	}

	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return Exercise{}, ErrEmptyName
		}
		ex.Name = trimmed
	}
	if patch.TargetSets != nil {
		ex.TargetSets = *patch.TargetSets
		if ex.TargetSets <= 0 {
			ex.TargetSets = DefaultTargetSets
		}
	}
	if patch.UseBodyweight != nil {
		ex.UseBodyweight = *patch.UseBodyweight
	}

	if patch.Categories != nil {
		newCats, err := s.normalizeCategories(patch.Categories)
		if err != nil {
			return Exercise{}, err
		}
		for _, old := range ex.Categories {
			if !contains(newCats, old) {
				s.removeFromOrder(old, id)
			}
		}
		for _, c := range newCats {
			s.appendToOrder(c, id)
		}
		ex.Categories = newCats
	}

	s.exercises[id] = ex
	s.persist(ctx)
	return ex, nil
}

// DeleteExercise is two-phase: an exercise still tagged with real categories
// is only soft-moved to Unassigned; only an Unassigned-only exercise is
// permanently deleted, and that needs the caller's explicit confirmation.
// Returns whether the delete was permanent.
func (s *Service) DeleteExercise(ctx context.Context, id string, confirmed bool) (permanent bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.exercise.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exercises[id]
	if !ok {
		return false, ErrExerciseNotFound
	}

	unassignedOnly := len(ex.Categories) == 1 && ex.Categories[0] == UnassignedName
	if unassignedOnly {
		if !confirmed {
			return false, ErrConfirmationRequired
		}
		delete(s.exercises, id)
		for cat := range s.order {
			s.removeFromOrder(cat, id)
		}
		s.persist(ctx)
		return true, nil
	}

	for _, c := range ex.Categories {
		s.removeFromOrder(c, id)
	}
	ex.Categories = []string{UnassignedName}
	s.exercises[id] = ex
	s.appendToOrder(UnassignedName, id)

	s.persist(ctx)
	return false, nil
}

// Reorder moves the exercise at fromIndex to toIndex within one category's
// order list. Moving between categories is not a thing here, that happens
// only through editing the exercise's categories.
func (s *Service) Reorder(ctx context.Context, category string, fromIndex, toIndex int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.exercise.reorder")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.order[category]
	if !ok {
		return ErrUnknownCategory
	}
	if fromIndex < 0 || fromIndex >= len(list) || toIndex < 0 || toIndex >= len(list) {
		return ErrInvalidIndex
	}
	if fromIndex == toIndex {
		return nil
	}

	moved := list[fromIndex]
	list = append(list[:fromIndex], list[fromIndex+1:]...)
	list = append(list[:toIndex], append([]string{moved}, list[toIndex:]...)...)
	s.order[category] = list

	s.persist(ctx)
	return nil
}

// SetDay assigns a category (or Rest) to one weekday
func (s *Service) SetDay(ctx context.Context, day, value string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "library.schedule.setday")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ValidWeekday(day) {
		return ErrInvalidWeekday
	}
	if value != Rest && s.categoryByName(value) == nil {
		return ErrUnknownCategory
	}

	s.schedule[day] = value
	s.persist(ctx)
	return nil
}

// CategoryForDate returns the category scheduled for the date's weekday,
// or Rest when unset
func (s *Service) CategoryForDate(date time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cat, ok := s.schedule[WeekdayName(date)]; ok {
		return cat
	}
	return Rest
}

// DueExercises resolves the date's scheduled category into the ordered
// exercises due that day. Rest days have none.
func (s *Service) DueExercises(date time.Time) (string, []Exercise) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.schedule[WeekdayName(date)]
	if !ok || cat == Rest {
		return Rest, nil
	}

	var due []Exercise
	for _, id := range s.order[cat] {
		if ex, ok := s.exercises[id]; ok {
			due = append(due, ex)
		}
	}
	return cat, due
}

func (s *Service) Exercise(id string) (Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exercises[id]
	if !ok {
		return Exercise{}, ErrExerciseNotFound
	}
	return ex, nil
}

// Exercises returns the catalog sorted by name for stable listing
func (s *Service) Exercises() []Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]Exercise, 0, len(s.exercises))
	for _, ex := range s.exercises {
		all = append(all, ex)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})
	return all
}

// ExercisesForCategory returns the category's exercises in user order
func (s *Service) ExercisesForCategory(category string) []Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exs []Exercise
	for _, id := range s.order[category] {
		if ex, ok := s.exercises[id]; ok {
			exs = append(exs, ex)
		}
	}
	return exs
}

func (s *Service) Categories() []Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	cats := make([]Category, len(s.categories))
	copy(cats, s.categories)
	return cats
}

func (s *Service) CategoryOrder() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := make(map[string][]string, len(s.order))
	for cat, list := range s.order {
		cp := make([]string, len(list))
		copy(cp, list)
		order[cat] = cp
	}
	return order
}

func (s *Service) Schedule() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := make(map[string]string, len(s.schedule))
	for day, cat := range s.schedule {
		schedule[day] = cat
	}
	return schedule
}

func (s *Service) Counts() (exercises, categories int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exercises), len(s.categories)
}

// normalizeCategories trims, dedupes and validates the category names;
// an empty result falls back to Unassigned
func (s *Service) normalizeCategories(categories []string) ([]string, error) {
	var cats []string
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		cat := s.categoryByName(c)
		if cat == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, c)
		}
		// keep the registry casing, otherwise the order index ends up
		// keyed under a name no category actually has
		if contains(cats, cat.Name) {
			continue
		}
		cats = append(cats, cat.Name)
	}
	if len(cats) == 0 {
		cats = []string{UnassignedName}
	}
	return cats, nil
}

func (s *Service) categoryByID(id string) *Category {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return &s.categories[i]
		}
	}
	return nil
}

func (s *Service) categoryByName(name string) *Category {
	for i := range s.categories {
		if strings.EqualFold(s.categories[i].Name, name) {
			return &s.categories[i]
		}
	}
	return nil
}

func (s *Service) appendToOrder(category, id string) {
	if contains(s.order[category], id) {
		return
	}
	s.order[category] = append(s.order[category], id)
}

func (s *Service) removeFromOrder(category, id string) {
	list := s.order[category]
	for i, eid := range list {
		if eid == id {
			s.order[category] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// reconcile repairs the invariants after loading possibly stale or foreign
// state: Unassigned exists, every exercise has categories, the order index
// and the category memberships agree, the schedule covers all weekdays.
func (s *Service) reconcile() {
	if s.categoryByID(UnassignedID) == nil {
		s.categories = append(
			[]Category{{ID: UnassignedID, Name: UnassignedName}},
			s.categories...,
		)
	}

	knownNames := make(map[string]bool, len(s.categories))
	for _, c := range s.categories {
		knownNames[c.Name] = true
	}

	for id, ex := range s.exercises {
		var kept []string
		for _, c := range ex.Categories {
			if knownNames[c] && !contains(kept, c) {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			kept = []string{UnassignedName}
		}
		ex.Categories = kept
		s.exercises[id] = ex
	}

	// drop order lists of unknown categories, prune dangling or misplaced
	// ids, dedupe, then add memberships the lists are missing
	for cat := range s.order {
		if !knownNames[cat] {
			delete(s.order, cat)
		}
	}
	for _, c := range s.categories {
		var kept []string
		for _, id := range s.order[c.Name] {
			ex, ok := s.exercises[id]
			if !ok || !contains(ex.Categories, c.Name) || contains(kept, id) {
				continue
			}
			kept = append(kept, id)
		}
		if kept == nil {
			kept = []string{}
		}
		s.order[c.Name] = kept
	}
	for id, ex := range s.exercises {
		for _, c := range ex.Categories {
			s.appendToOrder(c, id)
		}
	}

	for _, day := range Weekdays {
		assigned, ok := s.schedule[day]
		if !ok || (assigned != Rest && !knownNames[assigned]) {
			s.schedule[day] = Rest
		}
	}
	for day := range s.schedule {
		if !ValidWeekday(day) {
			delete(s.schedule, day)
		}
	}
}

// persist mirrors the full snapshot to the key-value store. Failures are
// logged and swallowed: with storage gone the tracker keeps running on the
// in-memory state alone.
func (s *Service) persist(ctx context.Context) {
	s.persistKey(ctx, store.KeyExercises, s.exercises)
	s.persistKey(ctx, store.KeyExerciseCategories, s.categories)
	s.persistKey(ctx, store.KeyCategoryOrder, s.order)
	s.persistKey(ctx, store.KeyWeeklySchedule, s.schedule)
}

func (s *Service) persistKey(ctx context.Context, key string, val interface{}) {
	data, err := json.Marshal(val)
	if err != nil {
		log.Errorf("library: marshal %q: %s", key, err)
		return
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		log.Errorf("library: persist %q: %s", key, err)
	}
}

func contains(list []string, s string) bool {
	for _, el := range list {
		if el == s {
			return true
		}
	}
	return false
}
