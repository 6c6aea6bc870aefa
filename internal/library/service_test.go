package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/2beens/liftlog/internal/library"
	"github.com/2beens/liftlog/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestService(t *testing.T) (*library.Service, *store.MemoryKV) {
	t.Helper()
	kv := store.NewMemoryKV()
	s, err := library.NewService(context.Background(), kv)
	require.NoError(t, err)
	return s, kv
}

func categoryID(t *testing.T, s *library.Service, name string) string {
	t.Helper()
	for _, c := range s.Categories() {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %s not found", name)
	return ""
}

func TestNewService_SeedsDefaults(t *testing.T) {
	s, _ := newTestService(t)

	var names []string
	for _, c := range s.Categories() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Unassigned", "Push", "Pull", "Legs", "Freestyle"}, names)

	schedule := s.Schedule()
	require.Len(t, schedule, 7)
	for _, day := range library.Weekdays {
		assert.Equal(t, library.Rest, schedule[day])
	}
}

func TestAddCategory_Validation(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.AddCategory(context.Background(), "   ")
	assert.ErrorIs(t, err, library.ErrEmptyName)

	// duplicate check is case-insensitive
	_, err = s.AddCategory(context.Background(), "push")
	assert.ErrorIs(t, err, library.ErrDuplicateCategory)

	cat, err := s.AddCategory(context.Background(), "  Arms  ")
	require.NoError(t, err)
	assert.Equal(t, "Arms", cat.Name)
	assert.NotEmpty(t, cat.ID)

	order := s.CategoryOrder()
	_, ok := order["Arms"]
	assert.True(t, ok, "new category gets an empty order list")
}

func TestRenameCategory_Cascades(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	bench, err := s.AddExercise(ctx, "Bench Press", []string{"Push"}, 3, false)
	require.NoError(t, err)
	dips, err := s.AddExercise(ctx, "Dips", []string{"Push", "Freestyle"}, 3, true)
	require.NoError(t, err)

	require.NoError(t, s.SetDay(ctx, "Monday", "Push"))
	require.NoError(t, s.SetDay(ctx, "Thursday", "Pull"))

	require.NoError(t, s.RenameCategory(ctx, categoryID(t, s, "Push"), "Chest"))

	benchAfter, err := s.Exercise(bench.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chest"}, benchAfter.Categories)

	dipsAfter, err := s.Exercise(dips.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chest", "Freestyle"}, dipsAfter.Categories)

	order := s.CategoryOrder()
	_, hasOld := order["Push"]
	assert.False(t, hasOld)
	assert.Equal(t, []string{bench.ID, dips.ID}, order["Chest"])

	schedule := s.Schedule()
	assert.Equal(t, "Chest", schedule["Monday"])
	assert.Equal(t, "Pull", schedule["Thursday"], "unrelated schedule days untouched")
}

func TestRenameCategory_CollisionRejected(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	err := s.RenameCategory(ctx, categoryID(t, s, "Push"), "pull")
	assert.ErrorIs(t, err, library.ErrDuplicateCategory)

	// a case-only rename of the same category is fine
	require.NoError(t, s.RenameCategory(ctx, categoryID(t, s, "Push"), "PUSH"))
	assert.Equal(t, "PUSH", categoryName(t, s, categoryID(t, s, "PUSH")))
}

func categoryName(t *testing.T, s *library.Service, id string) string {
	t.Helper()
	for _, c := range s.Categories() {
		if c.ID == id {
			return c.Name
		}
	}
	t.Fatalf("category %s not found", id)
	return ""
}

func TestDeleteCategory_Cascades(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	squat, err := s.AddExercise(ctx, "Squat", []string{"Legs"}, 5, false)
	require.NoError(t, err)
	lunges, err := s.AddExercise(ctx, "Lunges", []string{"Legs", "Freestyle"}, 3, false)
	require.NoError(t, err)

	require.NoError(t, s.SetDay(ctx, "Wednesday", "Legs"))

	require.NoError(t, s.DeleteCategory(ctx, categoryID(t, s, "Legs")))

	// squat only belonged to Legs: falls back to Unassigned, listed there once
	squatAfter, err := s.Exercise(squat.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{library.UnassignedName}, squatAfter.Categories)

	order := s.CategoryOrder()
	assert.Equal(t, []string{squat.ID}, order[library.UnassignedName])
	_, hasLegs := order["Legs"]
	assert.False(t, hasLegs)

	// lunges keeps its other membership and stays out of Unassigned
	lungesAfter, err := s.Exercise(lunges.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Freestyle"}, lungesAfter.Categories)

	assert.Equal(t, library.Rest, s.Schedule()["Wednesday"])
}

func TestDeleteCategory_ReservedForbidden(t *testing.T) {
	s, _ := newTestService(t)
	err := s.DeleteCategory(context.Background(), library.UnassignedID)
	assert.ErrorIs(t, err, library.ErrReservedCategory)
}

func TestAddExercise_Defaults(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.AddExercise(ctx, "  ", []string{"Push"}, 3, false)
	assert.ErrorIs(t, err, library.ErrEmptyName)

	_, err = s.AddExercise(ctx, "Kettlebell Swing", []string{"Cardio"}, 3, false)
	assert.ErrorIs(t, err, library.ErrUnknownCategory)

	ex, err := s.AddExercise(ctx, "  Chin Up  ", nil, 0, true)
	require.NoError(t, err)
	assert.Equal(t, "Chin Up", ex.Name)
	assert.Equal(t, library.DefaultTargetSets, ex.TargetSets)
	assert.Equal(t, []string{library.UnassignedName}, ex.Categories)
	assert.True(t, ex.UseBodyweight)

	assert.Equal(t, []string{ex.ID}, s.CategoryOrder()[library.UnassignedName])
}

func TestAddExercise_CanonicalizesCategoryCasing(t *testing.T) {
	s, kv := newTestService(t)
	ctx := context.Background()

	ex, err := s.AddExercise(ctx, "Bench Press", []string{"push", "PUSH", "Push"}, 3, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Push"}, ex.Categories)

	order := s.CategoryOrder()
	assert.Equal(t, []string{ex.ID}, order["Push"])
	_, ok := order["push"]
	assert.False(t, ok, "order index must only hold registry names")

	edited, err := s.EditExercise(ctx, ex.ID, library.ExercisePatch{
		Categories: []string{"pull"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Pull"}, edited.Categories)

	// a reopened service must see the same membership
	reopened, err := library.NewService(ctx, kv)
	require.NoError(t, err)
	got, err := reopened.Exercise(ex.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pull"}, got.Categories)
	assert.Equal(t, []string{ex.ID}, reopened.CategoryOrder()["Pull"])
}

func TestEditExercise_CategorySync(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	ex, err := s.AddExercise(ctx, "Row", []string{"Pull"}, 3, false)
	require.NoError(t, err)

	edited, err := s.EditExercise(ctx, ex.ID, library.ExercisePatch{
		Categories: []string{"Push", "Freestyle"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Push", "Freestyle"}, edited.Categories)

	order := s.CategoryOrder()
	assert.Empty(t, order["Pull"])
	assert.Equal(t, []string{ex.ID}, order["Push"])
	assert.Equal(t, []string{ex.ID}, order["Freestyle"])

	// clearing all categories forces the Unassigned fallback
	edited, err = s.EditExercise(ctx, ex.ID, library.ExercisePatch{
		Categories: []string{"  "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{library.UnassignedName}, edited.Categories)
	order = s.CategoryOrder()
	assert.Empty(t, order["Push"])
	assert.Empty(t, order["Freestyle"])
	assert.Equal(t, []string{ex.ID}, order[library.UnassignedName])
}

func TestEditExercise_FieldPatches(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	ex, err := s.AddExercise(ctx, "Press", []string{"Push"}, 3, false)
	require.NoError(t, err)

	newName := "Overhead Press"
	newSets := 5
	bodyweight := true
	edited, err := s.EditExercise(ctx, ex.ID, library.ExercisePatch{
		Name:          &newName,
		TargetSets:    &newSets,
		UseBodyweight: &bodyweight,
	})
	require.NoError(t, err)
	assert.Equal(t, "Overhead Press", edited.Name)
	assert.Equal(t, 5, edited.TargetSets)
	assert.True(t, edited.UseBodyweight)
	assert.Equal(t, []string{"Push"}, edited.Categories, "categories untouched by nil patch")

	_, err = s.EditExercise(ctx, "no-such-id", library.ExercisePatch{Name: &newName})
	assert.ErrorIs(t, err, library.ErrExerciseNotFound)
}

func TestDeleteExercise_TwoPhase(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	ex, err := s.AddExercise(ctx, "Deadlift", []string{"Pull", "Legs"}, 3, false)
	require.NoError(t, err)

	// phase one: soft delete to Unassigned, exercise survives
	permanent, err := s.DeleteExercise(ctx, ex.ID, false)
	require.NoError(t, err)
	assert.False(t, permanent)

	after, err := s.Exercise(ex.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{library.UnassignedName}, after.Categories)

	order := s.CategoryOrder()
	assert.Empty(t, order["Pull"])
	assert.Empty(t, order["Legs"])
	assert.Equal(t, []string{ex.ID}, order[library.UnassignedName])

	// phase two needs the confirmation flag
	_, err = s.DeleteExercise(ctx, ex.ID, false)
	assert.ErrorIs(t, err, library.ErrConfirmationRequired)

	permanent, err = s.DeleteExercise(ctx, ex.ID, true)
	require.NoError(t, err)
	assert.True(t, permanent)

	_, err = s.Exercise(ex.ID)
	assert.ErrorIs(t, err, library.ErrExerciseNotFound)
	for _, list := range s.CategoryOrder() {
		assert.NotContains(t, list, ex.ID)
	}
}

func TestReorder(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a, err := s.AddExercise(ctx, "A", []string{"Push"}, 3, false)
	require.NoError(t, err)
	b, err := s.AddExercise(ctx, "B", []string{"Push"}, 3, false)
	require.NoError(t, err)
	c, err := s.AddExercise(ctx, "C", []string{"Push"}, 3, false)
	require.NoError(t, err)

	require.NoError(t, s.Reorder(ctx, "Push", 0, 2))
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, s.CategoryOrder()["Push"])

	require.NoError(t, s.Reorder(ctx, "Push", 2, 0))
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, s.CategoryOrder()["Push"])

	assert.ErrorIs(t, s.Reorder(ctx, "Push", 0, 3), library.ErrInvalidIndex)
	assert.ErrorIs(t, s.Reorder(ctx, "Push", -1, 0), library.ErrInvalidIndex)
	assert.ErrorIs(t, s.Reorder(ctx, "Nope", 0, 0), library.ErrUnknownCategory)
}

func TestSchedule(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetDay(ctx, "Funday", "Push"), library.ErrInvalidWeekday)
	assert.ErrorIs(t, s.SetDay(ctx, "Monday", "Cardio"), library.ErrUnknownCategory)

	require.NoError(t, s.SetDay(ctx, "Monday", "Push"))
	require.NoError(t, s.SetDay(ctx, "Tuesday", library.Rest))

	// 2025-05-05 is a Monday
	monday := time.Date(2025, 5, 5, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "Push", s.CategoryForDate(monday))
	assert.Equal(t, library.Rest, s.CategoryForDate(monday.AddDate(0, 0, 1)))
}

func TestDueExercises(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	bench, err := s.AddExercise(ctx, "Bench Press", []string{"Push"}, 3, false)
	require.NoError(t, err)
	ohp, err := s.AddExercise(ctx, "Overhead Press", []string{"Push"}, 3, false)
	require.NoError(t, err)
	_, err = s.AddExercise(ctx, "Row", []string{"Pull"}, 3, false)
	require.NoError(t, err)

	require.NoError(t, s.SetDay(ctx, "Monday", "Push"))

	monday := time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)
	category, due := s.DueExercises(monday)
	assert.Equal(t, "Push", category)
	require.Len(t, due, 2)
	assert.Equal(t, bench.ID, due[0].ID)
	assert.Equal(t, ohp.ID, due[1].ID)

	category, due = s.DueExercises(monday.AddDate(0, 0, 1))
	assert.Equal(t, library.Rest, category)
	assert.Empty(t, due)
}

// the order index and the category memberships must agree after any
// sequence of library edits
func TestOrderIndexConsistency(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	ex1, err := s.AddExercise(ctx, "One", []string{"Push", "Pull"}, 3, false)
	require.NoError(t, err)
	ex2, err := s.AddExercise(ctx, "Two", []string{"Pull", "Legs"}, 3, false)
	require.NoError(t, err)

	_, err = s.EditExercise(ctx, ex1.ID, library.ExercisePatch{Categories: []string{"Legs"}})
	require.NoError(t, err)
	require.NoError(t, s.DeleteCategory(ctx, categoryID(t, s, "Pull")))
	_, err = s.DeleteExercise(ctx, ex2.ID, false)
	require.NoError(t, err)

	order := s.CategoryOrder()
	for _, ex := range s.Exercises() {
		assert.NotEmpty(t, ex.Categories, "categories never empty")
		for _, c := range ex.Categories {
			assert.Contains(t, order[c], ex.ID)
		}
	}
	for cat, list := range order {
		seen := make(map[string]bool)
		for _, id := range list {
			assert.False(t, seen[id], "no duplicate ids in %s", cat)
			seen[id] = true
			ex, err := s.Exercise(id)
			require.NoError(t, err)
			assert.Contains(t, ex.Categories, cat)
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()

	s1, err := library.NewService(ctx, kv)
	require.NoError(t, err)

	ex, err := s1.AddExercise(ctx, "Bench Press", []string{"Push"}, 4, false)
	require.NoError(t, err)
	require.NoError(t, s1.SetDay(ctx, "Friday", "Push"))

	// a fresh service over the same kv store sees the same state
	s2, err := library.NewService(ctx, kv)
	require.NoError(t, err)

	exAgain, err := s2.Exercise(ex.ID)
	require.NoError(t, err)
	assert.Equal(t, ex, exAgain)
	assert.Equal(t, "Push", s2.Schedule()["Friday"])
	assert.Equal(t, []string{ex.ID}, s2.CategoryOrder()["Push"])
}

func TestReload_RepairsForeignState(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()

	// simulate stale persisted state: an order list referencing a deleted
	// exercise and an exercise with no categories at all
	require.NoError(t, kv.Set(ctx, store.KeyExerciseCategories,
		`[{"id":"unassigned","name":"Unassigned"},{"id":"c1","name":"Push"}]`))
	require.NoError(t, kv.Set(ctx, store.KeyExercises,
		`{"e1":{"id":"e1","name":"Bench","targetSets":3,"categories":["Push"]},"e2":{"id":"e2","name":"Ghost","targetSets":3,"categories":[]}}`))
	require.NoError(t, kv.Set(ctx, store.KeyCategoryOrder,
		`{"Push":["e1","e1","deleted-ex"],"OldCat":["e1"]}`))
	require.NoError(t, kv.Set(ctx, store.KeyWeeklySchedule,
		`{"Monday":"OldCat","NotADay":"Push"}`))

	s, err := library.NewService(ctx, kv)
	require.NoError(t, err)

	order := s.CategoryOrder()
	assert.Equal(t, []string{"e1"}, order["Push"])
	_, hasOld := order["OldCat"]
	assert.False(t, hasOld)

	ghost, err := s.Exercise("e2")
	require.NoError(t, err)
	assert.Equal(t, []string{library.UnassignedName}, ghost.Categories)
	assert.Contains(t, order[library.UnassignedName], "e2")

	schedule := s.Schedule()
	assert.Equal(t, library.Rest, schedule["Monday"])
	_, hasBogusDay := schedule["NotADay"]
	assert.False(t, hasBogusDay)
}
