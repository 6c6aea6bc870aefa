package library

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

type Handler struct {
	service *Service
	metrics *metrics.Manager
}

func NewHandler(service *Service, metrics *metrics.Manager) *Handler {
	return &Handler{
		service: service,
		metrics: metrics,
	}
}

func (handler *Handler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/library/exercises", handler.HandleListExercises).Methods("GET", "OPTIONS").Name("list-exercises")
	r.HandleFunc("/library/exercises", handler.HandleAddExercise).Methods("POST", "OPTIONS").Name("new-exercise")
	r.HandleFunc("/library/exercises/reorder", handler.HandleReorder).Methods("POST", "OPTIONS").Name("reorder-exercises")
	r.HandleFunc("/library/exercises/{id}", handler.HandleGetExercise).Methods("GET", "OPTIONS").Name("get-exercise")
	r.HandleFunc("/library/exercises/{id}", handler.HandleEditExercise).Methods("PUT", "OPTIONS").Name("edit-exercise")
	r.HandleFunc("/library/exercises/{id}", handler.HandleDeleteExercise).Methods("DELETE", "OPTIONS").Name("delete-exercise")
	r.HandleFunc("/library/categories", handler.HandleListCategories).Methods("GET", "OPTIONS").Name("list-categories")
	r.HandleFunc("/library/categories", handler.HandleAddCategory).Methods("POST", "OPTIONS").Name("new-category")
	r.HandleFunc("/library/categories/{id}", handler.HandleRenameCategory).Methods("PUT", "OPTIONS").Name("rename-category")
	r.HandleFunc("/library/categories/{id}", handler.HandleDeleteCategory).Methods("DELETE", "OPTIONS").Name("delete-category")
	r.HandleFunc("/library/order", handler.HandleGetOrder).Methods("GET", "OPTIONS").Name("get-order")
	r.HandleFunc("/library/schedule", handler.HandleGetSchedule).Methods("GET", "OPTIONS").Name("get-schedule")
	r.HandleFunc("/library/schedule/{day}", handler.HandleSetDay).Methods("PUT", "OPTIONS").Name("set-schedule-day")
	r.HandleFunc("/library/due", handler.HandleDue).Methods("GET", "OPTIONS").Name("due-exercises")
}

type AddExerciseRequest struct {
	Name          string   `json:"name"`
	Categories    []string `json:"categories"`
	TargetSets    int      `json:"targetSets"`
	UseBodyweight bool     `json:"useBodyweight"`
}

type ReorderRequest struct {
	Category  string `json:"category"`
	FromIndex int    `json:"fromIndex"`
	ToIndex   int    `json:"toIndex"`
}

type CategoryNameRequest struct {
	Name string `json:"name"`
}

type SetDayRequest struct {
	Category string `json:"category"`
}

type DeleteExerciseResponse struct {
	DeletedID string `json:"deletedId"`
	Permanent bool   `json:"permanent"`
}

type DueExercisesResponse struct {
	Date      string     `json:"date"`
	Category  string     `json:"category"`
	Exercises []Exercise `json:"exercises"`
}

func (handler *Handler) HandleListExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, handler.service.Exercises(), http.StatusOK)
}

func (handler *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.exercise.add")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req AddExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("new exercise, unmarshal json params: %s", err)
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}

	ex, err := handler.service.AddExercise(ctx, req.Name, req.Categories, req.TargetSets, req.UseBodyweight)
	if err != nil {
		writeLibraryError(w, "add exercise", err)
		return
	}

	handler.metrics.CounterLibraryEdits.Inc()
	handler.updateGauges()

	log.Debugf("new exercise added: [%s] %s", ex.ID, ex.Name)
	writeJSON(w, ex, http.StatusCreated)
}

func (handler *Handler) HandleGetExercise(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ex, err := handler.service.Exercise(id)
	if err != nil {
		http.Error(w, "exercise not found", http.StatusNotFound)
		return
	}
	writeJSON(w, ex, http.StatusOK)
}

func (handler *Handler) HandleEditExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.exercise.edit")
	defer span.End()

	var patch ExercisePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		log.Tracef("edit exercise, unmarshal json params: %s", err)
		http.Error(w, "edit exercise failed", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	ex, err := handler.service.EditExercise(ctx, id, patch)
	if err != nil {
		writeLibraryError(w, "edit exercise", err)
		return
	}

	handler.metrics.CounterLibraryEdits.Inc()
	writeJSON(w, ex, http.StatusOK)
}

func (handler *Handler) HandleDeleteExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.exercise.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	confirmed := r.URL.Query().Get("confirm") == "true"

	permanent, err := handler.service.DeleteExercise(ctx, id, confirmed)
	if err != nil {
		writeLibraryError(w, "delete exercise", err)
		return
	}

	handler.metrics.CounterLibraryEdits.Inc()
	handler.updateGauges()

	log.Debugf("exercise %s deleted (permanent: %t)", id, permanent)
	writeJSON(w, DeleteExerciseResponse{DeletedID: id, Permanent: permanent}, http.StatusOK)
}

func (handler *Handler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.exercise.reorder")
	defer span.End()

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "reorder failed", http.StatusBadRequest)
		return
	}

	if err := handler.service.Reorder(ctx, req.Category, req.FromIndex, req.ToIndex); err != nil {
		writeLibraryError(w, "reorder", err)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"reordered":true}`)
}

func (handler *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, handler.service.Categories(), http.StatusOK)
}

func (handler *Handler) HandleAddCategory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.category.add")
	defer span.End()

	var req CategoryNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "add category failed", http.StatusBadRequest)
		return
	}

	cat, err := handler.service.AddCategory(ctx, req.Name)
	if err != nil {
		writeLibraryError(w, "add category", err)
		return
	}

	handler.updateGauges()
	writeJSON(w, cat, http.StatusCreated)
}

func (handler *Handler) HandleRenameCategory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.category.rename")
	defer span.End()

	var req CategoryNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "rename category failed", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	if err := handler.service.RenameCategory(ctx, id, req.Name); err != nil {
		writeLibraryError(w, "rename category", err)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"renamed":true}`)
}

func (handler *Handler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.category.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := handler.service.DeleteCategory(ctx, id); err != nil {
		writeLibraryError(w, "delete category", err)
		return
	}

	handler.updateGauges()
	pkg.WriteJSONResponseOK(w, `{"deleted":true}`)
}

func (handler *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, handler.service.CategoryOrder(), http.StatusOK)
}

func (handler *Handler) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, handler.service.Schedule(), http.StatusOK)
}

func (handler *Handler) HandleSetDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.library.schedule.setday")
	defer span.End()

	var req SetDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "set schedule day failed", http.StatusBadRequest)
		return
	}

	day := mux.Vars(r)["day"]
	if err := handler.service.SetDay(ctx, day, req.Category); err != nil {
		writeLibraryError(w, "set schedule day", err)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"set":true}`)
}

func (handler *Handler) HandleDue(w http.ResponseWriter, r *http.Request) {
	date := time.Now()
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			http.Error(w, "invalid date, use YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	category, due := handler.service.DueExercises(date)
	if due == nil {
		due = []Exercise{}
	}

	writeJSON(w, DueExercisesResponse{
		Date:      date.Format(dateLayout),
		Category:  category,
		Exercises: due,
	}, http.StatusOK)
}

func (handler *Handler) updateGauges() {
	exercises, categories := handler.service.Counts()
	handler.metrics.GaugeExercises.Set(float64(exercises))
	handler.metrics.GaugeCategories.Set(float64(categories))
}

func writeJSON(w http.ResponseWriter, val interface{}, statusCode int) {
	data, err := json.Marshal(val)
	if err != nil {
		log.Errorf("failed to marshal response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, data, statusCode)
}

// writeLibraryError maps the service errors onto http statuses: validation
// errors are 400s, lookup misses 404s, the delete confirmation guard 409
func writeLibraryError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrExerciseNotFound), errors.Is(err, ErrCategoryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrConfirmationRequired):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrReservedCategory):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrEmptyName),
		errors.Is(err, ErrDuplicateCategory),
		errors.Is(err, ErrUnknownCategory),
		errors.Is(err, ErrInvalidWeekday),
		errors.Is(err, ErrInvalidIndex):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Errorf("%s: %s", op, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
