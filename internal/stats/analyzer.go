// Package stats derives analytics from the logbook history: daily progress
// against target sets, lifted volume per day, week and category, and the
// per-exercise series the charts are drawn from.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/2beens/liftlog/internal/library"
	"github.com/2beens/liftlog/internal/logbook"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const (
	dateLayout = "2006-01-02"

	// TopExercisesDefaultLimit caps the weekly leaderboard size
	TopExercisesDefaultLimit = 10
)

// Frame selects the period for volume aggregations.
type Frame string

const (
	FrameWeek    Frame = "week"
	FrameMonth   Frame = "month"
	FrameAllTime Frame = "all"
)

// Start returns the inclusive lower bound of the frame relative to now.
// The all-time frame has no bound and returns the zero time.
func (f Frame) Start(now time.Time) time.Time {
	switch f {
	case FrameWeek:
		return now.AddDate(0, 0, -7)
	case FrameMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

func ValidFrame(f Frame) bool {
	return f == FrameWeek || f == FrameMonth || f == FrameAllTime
}

// logsRepo is the slice of the logbook the analyzer reads from.
type logsRepo interface {
	All() []logbook.Entry
	LogsForDate(date time.Time) []logbook.Entry
}

// libraryReader resolves a category into its ordered exercises.
type libraryReader interface {
	ExercisesForCategory(category string) []library.Exercise
}

type Analyzer struct {
	logs    logsRepo
	library libraryReader

	now func() time.Time
}

func NewAnalyzer(logs logsRepo, library libraryReader) *Analyzer {
	return &Analyzer{
		logs:    logs,
		library: library,
		now:     time.Now,
	}
}

// Progress is the daily completion state: logged sets against the target of
// the day's scheduled category. Percent is capped at 100; OverAchieved marks
// that the cap was hit from above.
type Progress struct {
	Percent      float64 `json:"percent"`
	OverAchieved bool    `json:"overAchieved"`
}

// Series is a chart-ready pair of parallel arrays, dates ascending.
type Series struct {
	Dates   []string  `json:"dates"`
	Volumes []float64 `json:"volumes"`
}

// ExerciseVolume is one row of the weekly top-exercises leaderboard.
type ExerciseVolume struct {
	ExerciseID string  `json:"exerciseId"`
	Name       string  `json:"name"`
	Volume     float64 `json:"volume"`
}

// CategoryVolume aggregates all workouts logged under one category.
type CategoryVolume struct {
	Category          string  `json:"category"`
	Total             float64 `json:"total"`
	Series            Series  `json:"series"`
	AveragePerWorkout float64 `json:"averagePerWorkout"`
	Workouts          int     `json:"workouts"`
}

// DailyTargetSets sums the target sets over every exercise of the category.
func (a *Analyzer) DailyTargetSets(category string) int {
	var target int
	for _, ex := range a.library.ExercisesForCategory(category) {
		target += ex.TargetSets
	}
	return target
}

// DailyLoggedSets counts the sets logged on the given calendar day.
func (a *Analyzer) DailyLoggedSets(date time.Time) int {
	var logged int
	for _, e := range a.logs.LogsForDate(date) {
		logged += len(e.Sets)
	}
	return logged
}

// DailyVolume sums reps times weight over every set logged that day.
func (a *Analyzer) DailyVolume(date time.Time) float64 {
	var volume float64
	for _, e := range a.logs.LogsForDate(date) {
		volume += e.Volume()
	}
	return volume
}

// CalcProgress relates logged sets to target sets. A zero target always
// reads as zero percent, never as division blowup or instant completion.
func CalcProgress(target, logged int) Progress {
	if target <= 0 {
		return Progress{}
	}
	raw := 100 * float64(logged) / float64(target)
	p := Progress{Percent: raw}
	if raw > 100 {
		p.Percent = 100
		p.OverAchieved = true
	}
	return p
}

// WeeklyVolume returns the per-day volume for the six training days starting
// at weekStart (Monday), zero-filled so the chart has a bar for every day.
func (a *Analyzer) WeeklyVolume(ctx context.Context, weekStart time.Time) Series {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.weeklyVolume")
	defer span.End()
	span.SetAttributes(attribute.String("weekStart", weekStart.Format(dateLayout)))

	s := Series{
		Dates:   make([]string, 0, 6),
		Volumes: make([]float64, 0, 6),
	}
	for i := 0; i < 6; i++ {
		day := weekStart.AddDate(0, 0, i)
		s.Dates = append(s.Dates, day.Format(dateLayout))
		s.Volumes = append(s.Volumes, a.DailyVolume(day))
	}
	return s
}

// TopExercises ranks the exercises of the week starting at weekStart by total
// volume, descending, ties kept in first-logged order. The window covers the
// same six training days as WeeklyVolume, so Sunday logs count for neither.
// A limit below one falls back to the default of ten.
func (a *Analyzer) TopExercises(ctx context.Context, weekStart time.Time, limit int) []ExerciseVolume {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.topExercises")
	defer span.End()

	if limit < 1 {
		limit = TopExercisesDefaultLimit
	}

	weekDays := make(map[string]struct{}, 6)
	for i := 0; i < 6; i++ {
		weekDays[logbook.DayKey(weekStart.AddDate(0, 0, i))] = struct{}{}
	}

	totals := make(map[string]*ExerciseVolume)
	var order []string
	for _, e := range a.logs.All() {
		if _, ok := weekDays[logbook.DayKey(e.Date)]; !ok {
			continue
		}
		key := e.ExerciseID + "\x00" + e.Name
		row, ok := totals[key]
		if !ok {
			row = &ExerciseVolume{ExerciseID: e.ExerciseID, Name: e.Name}
			totals[key] = row
			order = append(order, key)
		}
		row.Volume += e.Volume()
	}

	ranked := make([]ExerciseVolume, 0, len(order))
	for _, key := range order {
		ranked = append(ranked, *totals[key])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Volume > ranked[j].Volume
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// VolumeSeries returns the per-day volume history of one exercise, sparse
// (only days with a log) and ascending.
func (a *Analyzer) VolumeSeries(ctx context.Context, exerciseID string) Series {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.volumeSeries")
	defer span.End()
	span.SetAttributes(attribute.String("exerciseId", exerciseID))

	perDay := make(map[string]float64)
	for _, e := range a.logs.All() {
		if e.ExerciseID != exerciseID {
			continue
		}
		perDay[logbook.DayKey(e.Date)] += e.Volume()
	}
	return toSeries(perDay)
}

// TotalVolume sums all volume logged within the frame.
func (a *Analyzer) TotalVolume(ctx context.Context, frame Frame) float64 {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.totalVolume")
	defer span.End()

	start := frame.Start(a.now())
	var total float64
	for _, e := range a.logs.All() {
		if e.Date.Before(start) {
			continue
		}
		total += e.Volume()
	}
	return total
}

// VolumeByDay returns the per-day volume within the frame, sparse ascending.
func (a *Analyzer) VolumeByDay(ctx context.Context, frame Frame) Series {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.volumeByDay")
	defer span.End()

	start := frame.Start(a.now())
	perDay := make(map[string]float64)
	for _, e := range a.logs.All() {
		if e.Date.Before(start) {
			continue
		}
		perDay[logbook.DayKey(e.Date)] += e.Volume()
	}
	return toSeries(perDay)
}

// CategoryVolume aggregates every log entry carrying the category snapshot:
// total volume, the per-day series, and the average per workout day.
func (a *Analyzer) CategoryVolume(ctx context.Context, category string) CategoryVolume {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.categoryVolume")
	defer span.End()
	span.SetAttributes(attribute.String("category", category))

	perDay := make(map[string]float64)
	var total float64
	for _, e := range a.logs.All() {
		if e.Type != category {
			continue
		}
		v := e.Volume()
		total += v
		perDay[logbook.DayKey(e.Date)] += v
	}

	cv := CategoryVolume{
		Category: category,
		Total:    total,
		Series:   toSeries(perDay),
		Workouts: len(perDay),
	}
	if cv.Workouts > 0 {
		cv.AveragePerWorkout = total / float64(cv.Workouts)
	}
	return cv
}

// LoggedDays returns every distinct calendar day with at least one log entry,
// ascending. The calendar view uses it to mark workout days.
func (a *Analyzer) LoggedDays(ctx context.Context) []string {
	_, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.loggedDays")
	defer span.End()

	seen := make(map[string]struct{})
	for _, e := range a.logs.All() {
		seen[logbook.DayKey(e.Date)] = struct{}{}
	}
	days := make([]string, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

func toSeries(perDay map[string]float64) Series {
	days := make([]string, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Strings(days)

	s := Series{
		Dates:   days,
		Volumes: make([]float64, 0, len(days)),
	}
	for _, day := range days {
		s.Volumes = append(s.Volumes, perDay[day])
	}
	return s
}
