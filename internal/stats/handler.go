package stats

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// scheduleReader resolves a date to its scheduled category.
type scheduleReader interface {
	CategoryForDate(date time.Time) string
}

type Handler struct {
	analyzer *Analyzer
	schedule scheduleReader
}

func NewHandler(analyzer *Analyzer, schedule scheduleReader) *Handler {
	return &Handler{
		analyzer: analyzer,
		schedule: schedule,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/daily", handler.handleDaily).Methods("GET", "OPTIONS").Name("daily-stats")
	router.HandleFunc("/weekly", handler.handleWeekly).Methods("GET", "OPTIONS").Name("weekly-volume")
	router.HandleFunc("/top", handler.handleTop).Methods("GET", "OPTIONS").Name("top-exercises")
	router.HandleFunc("/series/{exid}", handler.handleSeries).Methods("GET", "OPTIONS").Name("exercise-series")
	router.HandleFunc("/volume", handler.handleVolume).Methods("GET", "OPTIONS").Name("volume")
	router.HandleFunc("/category/{name}", handler.handleCategory).Methods("GET", "OPTIONS").Name("category-volume")
	router.HandleFunc("/calendar", handler.handleCalendar).Methods("GET", "OPTIONS").Name("calendar-days")
}

type DailyStatsResponse struct {
	Date       string   `json:"date"`
	Category   string   `json:"category"`
	TargetSets int      `json:"targetSets"`
	LoggedSets int      `json:"loggedSets"`
	Volume     float64  `json:"volume"`
	Progress   Progress `json:"progress"`
}

func (handler *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.daily")
	defer span.End()

	date, ok := dateParam(w, r, "date", time.Now())
	if !ok {
		return
	}

	category := handler.schedule.CategoryForDate(date)
	target := handler.analyzer.DailyTargetSets(category)
	logged := handler.analyzer.DailyLoggedSets(date)

	handler.writeJSON(w, DailyStatsResponse{
		Date:       date.Format(dateLayout),
		Category:   category,
		TargetSets: target,
		LoggedSets: logged,
		Volume:     handler.analyzer.DailyVolume(date),
		Progress:   CalcProgress(target, logged),
	})
}

type WeeklyVolumeResponse struct {
	WeekStart string `json:"weekStart"`
	Series    Series `json:"series"`
}

func (handler *Handler) handleWeekly(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.weekly")
	defer span.End()

	weekStart, ok := dateParam(w, r, "start", WeekStart(time.Now()))
	if !ok {
		return
	}

	handler.writeJSON(w, WeeklyVolumeResponse{
		WeekStart: weekStart.Format(dateLayout),
		Series:    handler.analyzer.WeeklyVolume(ctx, weekStart),
	})
}

func (handler *Handler) handleTop(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.top")
	defer span.End()

	weekStart, ok := dateParam(w, r, "start", WeekStart(time.Now()))
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	top := handler.analyzer.TopExercises(ctx, weekStart, limit)
	if top == nil {
		top = []ExerciseVolume{}
	}
	handler.writeJSON(w, top)
}

func (handler *Handler) handleSeries(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.series")
	defer span.End()

	exerciseID := mux.Vars(r)["exid"]
	handler.writeJSON(w, handler.analyzer.VolumeSeries(ctx, exerciseID))
}

type VolumeResponse struct {
	Frame  Frame   `json:"frame"`
	Total  float64 `json:"total"`
	Series Series  `json:"series"`
}

func (handler *Handler) handleVolume(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.volume")
	defer span.End()

	frame := FrameAllTime
	if raw := r.URL.Query().Get("frame"); raw != "" {
		frame = Frame(raw)
		if !ValidFrame(frame) {
			http.Error(w, "invalid frame", http.StatusBadRequest)
			return
		}
	}

	handler.writeJSON(w, VolumeResponse{
		Frame:  frame,
		Total:  handler.analyzer.TotalVolume(ctx, frame),
		Series: handler.analyzer.VolumeByDay(ctx, frame),
	})
}

func (handler *Handler) handleCategory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.category")
	defer span.End()

	name := mux.Vars(r)["name"]
	handler.writeJSON(w, handler.analyzer.CategoryVolume(ctx, name))
}

type CalendarResponse struct {
	Days []string `json:"days"`
}

func (handler *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.calendar")
	defer span.End()

	handler.writeJSON(w, CalendarResponse{
		Days: handler.analyzer.LoggedDays(ctx),
	})
}

// WeekStart returns the Monday of the week the date falls in.
func WeekStart(date time.Time) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func dateParam(w http.ResponseWriter, r *http.Request, param string, fallback time.Time) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return fallback, true
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		http.Error(w, "invalid "+param, http.StatusBadRequest)
		return time.Time{}, false
	}
	return parsed, true
}

func (handler *Handler) writeJSON(w http.ResponseWriter, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("stats handler, marshal response: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, data, http.StatusOK)
}
