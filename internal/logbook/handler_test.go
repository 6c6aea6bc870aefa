package logbook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/liftlog/internal/library"
	"github.com/2beens/liftlog/internal/logbook"
	"github.com/2beens/liftlog/internal/store"
	"github.com/2beens/liftlog/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	router  *mux.Router
	repo    *logbook.Repo
	library *library.Service
	bench   library.Exercise
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	ctx := context.Background()
	kv := store.NewMemoryKV()

	lib, err := library.NewService(ctx, kv)
	require.NoError(t, err)
	bench, err := lib.AddExercise(ctx, "Bench Press", []string{"Push"}, 3, false)
	require.NoError(t, err)
	require.NoError(t, lib.SetDay(ctx, "Monday", "Push"))

	repo, err := logbook.NewRepo(ctx, kv)
	require.NoError(t, err)

	router := mux.NewRouter()
	handler := logbook.NewHandler(repo, lib, metrics.NewTestManager())
	handler.SetupRoutes(router.PathPrefix("/logbook").Subrouter())

	return &handlerFixture{
		router:  router,
		repo:    repo,
		library: lib,
		bench:   bench,
	}
}

func TestHandler_Complete(t *testing.T) {
	f := newHandlerFixture(t)

	// 2025-05-05 is a Monday, scheduled Push
	body := fmt.Sprintf(
		`{"exerciseId":%q,"date":"2025-05-05","sets":[{"reps":10,"weight":60},{"reps":8,"weight":70}]}`,
		f.bench.ID,
	)
	req := httptest.NewRequest("POST", "/logbook/complete", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var entry logbook.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, f.bench.ID, entry.ExerciseID)
	assert.Equal(t, "Bench Press", entry.Name)
	assert.Equal(t, "Push", entry.Type, "category snapshot from the schedule")
	assert.True(t, entry.Completed)
	require.NotNil(t, entry.CompletedDate)
	assert.Len(t, entry.Sets, 2)

	assert.Equal(t, 1, f.repo.Count())
}

func TestHandler_Complete_Validation(t *testing.T) {
	f := newHandlerFixture(t)

	for name, tc := range map[string]struct {
		body        string
		contentType string
		wantStatus  int
	}{
		"wrong content type": {
			body:        `{"exerciseId":"x"}`,
			contentType: "text/plain",
			wantStatus:  http.StatusBadRequest,
		},
		"broken json": {
			body:        `{"exerciseId":`,
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
		"missing exercise id": {
			body:        `{"sets":[]}`,
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
		"negative reps": {
			body:        fmt.Sprintf(`{"exerciseId":%q,"sets":[{"reps":-1,"weight":10}]}`, f.bench.ID),
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
		"unknown exercise": {
			body:        `{"exerciseId":"no-such-exercise","sets":[]}`,
			contentType: "application/json",
			wantStatus:  http.StatusNotFound,
		},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/logbook/complete", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}

	assert.Zero(t, f.repo.Count())
}

func TestHandler_Day(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	day := time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)
	_, err := f.repo.LogCompletion(ctx, f.bench.ID, "Bench Press", "Push", day,
		[]logbook.Set{{Reps: 10, Weight: 60}})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/logbook/day?date=2025-05-05", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []logbook.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, f.bench.ID, entries[0].ExerciseID)

	// empty day responds with an empty json array, not null
	req = httptest.NewRequest("GET", "/logbook/day?date=2025-05-06", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	req = httptest.NewRequest("GET", "/logbook/day?date=not-a-date", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Last(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	req := httptest.NewRequest("GET", "/logbook/last/"+f.bench.ID, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	older := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC)
	_, err := f.repo.LogCompletion(ctx, f.bench.ID, "Bench Press", "Push", older,
		[]logbook.Set{{Reps: 10, Weight: 55}})
	require.NoError(t, err)
	latest, err := f.repo.LogCompletion(ctx, f.bench.ID, "Bench Press", "Push", newer,
		[]logbook.Set{{Reps: 10, Weight: 60}})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry logbook.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, latest.ID, entry.ID)
}
