package logbook

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/2beens/liftlog/internal/library"
	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// libraryReader is the slice of the library service the logbook handler
// needs: the exercise snapshot and the day's scheduled category.
type libraryReader interface {
	Exercise(id string) (library.Exercise, error)
	CategoryForDate(date time.Time) string
}

type Handler struct {
	repo    *Repo
	library libraryReader
	metrics *metrics.Manager
}

func NewHandler(repo *Repo, lib libraryReader, metrics *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		library: lib,
		metrics: metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/complete", handler.handleComplete).Methods("POST", "OPTIONS").Name("log-complete")
	router.HandleFunc("/day", handler.handleDay).Methods("GET", "OPTIONS").Name("logs-for-day")
	router.HandleFunc("/last/{exid}", handler.handleLast).Methods("GET", "OPTIONS").Name("last-log")
	router.HandleFunc("/all", handler.handleAll).Methods("GET", "OPTIONS").Name("all-logs")
}

type CompleteRequest struct {
	ExerciseID string `json:"exerciseId"`
	Date       string `json:"date"`
	Sets       []Set  `json:"sets"`
}

func (handler *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.logbook.complete")
	defer span.End()

	if contentType := r.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "application/json") {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("complete log, unmarshal request: %s", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if req.ExerciseID == "" {
		http.Error(w, "exercise id is required", http.StatusBadRequest)
		return
	}
	for _, s := range req.Sets {
		if s.Reps < 0 || s.Weight < 0 {
			http.Error(w, "reps and weight must be non-negative", http.StatusBadRequest)
			return
		}
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	ex, err := handler.library.Exercise(req.ExerciseID)
	if err != nil {
		if errors.Is(err, library.ErrExerciseNotFound) {
			http.Error(w, "exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("complete log, get exercise: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	entry, err := handler.repo.LogCompletion(
		ctx, ex.ID, ex.Name, handler.library.CategoryForDate(date), date, req.Sets,
	)
	if err != nil {
		log.Errorf("complete log: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterExercisesLogged.Inc()
	writeEntryJSON(w, entry, http.StatusCreated)
}

func (handler *Handler) handleDay(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.logbook.day")
	defer span.End()

	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	entries := handler.repo.LogsForDate(date)
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		log.Errorf("get logs for day, marshal: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteJSONResponseOK(w, string(data))
}

func (handler *Handler) handleLast(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.logbook.last")
	defer span.End()

	vars := mux.Vars(r)
	exerciseID := vars["exid"]
	if exerciseID == "" {
		http.Error(w, "exercise id is required", http.StatusBadRequest)
		return
	}

	entry, err := handler.repo.LastLogFor(exerciseID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			http.Error(w, "log entry not found", http.StatusNotFound)
			return
		}
		log.Errorf("get last log for %s: %s", exerciseID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeEntryJSON(w, entry, http.StatusOK)
}

func (handler *Handler) handleAll(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.logbook.all")
	defer span.End()

	all := handler.repo.All()
	if all == nil {
		all = []Entry{}
	}

	data, err := json.Marshal(all)
	if err != nil {
		log.Errorf("get all logs, marshal: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteJSONResponseOK(w, string(data))
}

func writeEntryJSON(w http.ResponseWriter, entry Entry, status int) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("marshal log entry: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, data, status)
}
