package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/charlie0129/timing-notes-sync/internal/cache"
	"github.com/charlie0129/timing-notes-sync/internal/config"
	"github.com/charlie0129/timing-notes-sync/internal/models"
	"github.com/charlie0129/timing-notes-sync/internal/render"
	"github.com/charlie0129/timing-notes-sync/internal/section"
	"github.com/charlie0129/timing-notes-sync/internal/timing"
	"github.com/charlie0129/timing-notes-sync/internal/transform"
	"github.com/charlie0129/timing-notes-sync/internal/vault"
)

const (
	dayLayout      = "2006-01-02"
	weeklyTemplate = "# {{title}}\n"

	statusSuccess = "success"
	statusFailed  = "failed"
)

// ErrSyncInProgress is returned when the same date is already being synced.
var ErrSyncInProgress = errors.New("sync already in progress")

// Fetcher returns the tracked time of a day.
type Fetcher interface {
	Fetch(ctx context.Context, day time.Time) (*models.DailyTimeData, error)
}

// Store persists fetched days and sync attempts.
type Store interface {
	ReplaceDay(data *models.DailyTimeData) error
	GetDay(day time.Time) (*models.DailyTimeData, error)
	RecordSync(day time.Time, totalSeconds int, status, runID string) error
}

// Notes reads and writes markdown notes.
type Notes interface {
	Find(id string) (*vault.Note, error)
	Create(id, text string) (*vault.Note, error)
	Read(n *vault.Note) (string, error)
	Write(n *vault.Note, text string) error
}

// Result describes the outcome of writing one note.
type Result struct {
	Date     string `json:"date"`
	NoteID   string `json:"note_id"`
	RunID    string `json:"run_id"`
	Changed  bool   `json:"changed"`
	OptedOut bool   `json:"opted_out,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

type Syncer struct {
	cfg       *config.Config
	fetcher   Fetcher
	store     Store
	notes     Notes
	cache     *cache.Cache[*models.DailyTimeData]
	sections  *section.Synchronizer
	placement section.Placement
	weekStart time.Weekday
	classify  transform.Classifier
	loc       *time.Location
	now       func() time.Time
	retryWait time.Duration

	cron *cron.Cron
	stop chan struct{}

	mu       gosync.Mutex
	halted   bool
	inFlight map[string]struct{}
	status   Status
}

type Option func(*Syncer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithRetryInterval sets the first wait between fetch attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Syncer) { s.retryWait = d }
}

// WithClassifier replaces the keyword classifier of the weekly split.
func WithClassifier(c transform.Classifier) Option {
	return func(s *Syncer) { s.classify = c }
}

func NewSyncer(cfg *config.Config, fetcher Fetcher, store Store, notes Notes, c *cache.Cache[*models.DailyTimeData], opts ...Option) (*Syncer, error) {
	placement, err := cfg.PlacementPolicy()
	if err != nil {
		return nil, err
	}
	weekStart, err := cfg.WeekStart()
	if err != nil {
		return nil, err
	}

	s := &Syncer{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		notes:     notes,
		cache:     c,
		sections:  section.New(cfg.ReflectionTitle),
		placement: placement,
		weekStart: weekStart,
		classify:  transform.DefaultClassifier(),
		loc:       cfg.GetTimezone(),
		now:       time.Now,
		retryWait: time.Second,
		inFlight:  make(map[string]struct{}),
		status:    Status{State: StateIdle},
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithLocation(s.loc))
	return s, nil
}

func (s *Syncer) today() time.Time {
	n := s.now().In(s.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Syncer) isToday(day time.Time) bool {
	return day.Format(dayLayout) == s.today().Format(dayLayout)
}

func (s *Syncer) renderOptions(title string) render.Options {
	return render.Options{
		Title:           title,
		ReflectionTitle: s.cfg.ReflectionTitle,
		Use24HourTime:   s.cfg.Use24HourTime,
		ShowTimeline:    s.cfg.ShowTimeline,
		TopApplications: s.cfg.TopApplications,
	}
}

// begin claims key for this goroutine. It returns false when key is already claimed.
func (s *Syncer) begin(key, runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	s.status.State = StateSyncing
	s.status.LastRunID = runID
	return true
}

func (s *Syncer) end(key, runID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)

	if err != nil {
		s.status.LastError = err.Error()
		s.status.LastErrorAt = s.now()
		s.status.LastFailedRunID = runID
	} else {
		s.status.LastSuccess = s.now()
		s.status.LastError = ""
	}
	switch {
	case len(s.inFlight) > 0:
		s.status.State = StateSyncing
	case err != nil:
		s.status.State = StateError
	default:
		s.status.State = StateIdle
	}
}

// SyncDay refreshes the tracking section of the daily note of day.
//
// A failed fetch records a failed sync and leaves the note untouched.
func (s *Syncer) SyncDay(ctx context.Context, day time.Time) (res *Result, err error) {
	day = day.In(s.loc)
	date := day.Format(dayLayout)
	runID := uuid.NewString()

	key := "day:" + date
	if !s.begin(key, runID) {
		return nil, fmt.Errorf("%s: %w", date, ErrSyncInProgress)
	}
	defer func() { s.end(key, runID, err) }()

	log := slog.With("date", date, "run_id", runID)
	log.Info("syncing day")

	data, err := s.dayData(ctx, day)
	if err != nil {
		if recErr := s.store.RecordSync(day, 0, statusFailed, runID); recErr != nil {
			log.Error("failed to record sync", "error", recErr)
		}
		log.Error("failed to fetch day", "error", err)
		return nil, fmt.Errorf("fetch %s: %w", date, err)
	}

	noteID := vault.DailyNoteID(s.cfg.DailyNoteFolder, s.cfg.DailyNoteFormat, day)
	initial := vault.ExpandTemplate(s.cfg.DailyNoteTemplate, day.Format(s.cfg.DailyNoteFormat), day)
	body := render.Daily(data, s.renderOptions(s.cfg.SectionTitle))

	res, err = s.writeSection(noteID, initial, s.cfg.SectionTitle, body)
	if err != nil {
		log.Error("failed to update note", "note", noteID, "error", err)
		return nil, err
	}
	res.Date = date
	res.RunID = runID
	res.Degraded = data.Degraded

	if err := s.store.RecordSync(day, data.Summary.TotalTime, statusSuccess, runID); err != nil {
		log.Error("failed to record sync", "error", err)
	}
	log.Info("sync completed", "note", noteID, "changed", res.Changed, "total_seconds", data.Summary.TotalTime)
	return res, nil
}

// SyncWeek refreshes the summary section of the weekly note of the week containing day.
// Days that cannot be loaded are left out of the summary.
func (s *Syncer) SyncWeek(ctx context.Context, day time.Time) (res *Result, err error) {
	start := transform.WeekStart(day.In(s.loc), s.weekStart)
	date := start.Format(dayLayout)
	runID := uuid.NewString()

	key := "week:" + date
	if !s.begin(key, runID) {
		return nil, fmt.Errorf("week of %s: %w", date, ErrSyncInProgress)
	}
	defer func() { s.end(key, runID, err) }()

	log := slog.With("week", date, "run_id", runID)
	log.Info("syncing week")

	week := s.collectWeek(ctx, start, true)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	noteID := vault.WeeklyNoteID(s.cfg.WeeklyNoteFolder, start)
	year, wk := start.ISOWeek()
	initial := vault.ExpandTemplate(weeklyTemplate, fmt.Sprintf("%d-W%02d", year, wk), start)
	body := render.Weekly(week, s.renderOptions(s.cfg.WeeklySectionTitle))

	res, err = s.writeSection(noteID, initial, s.cfg.WeeklySectionTitle, body)
	if err != nil {
		log.Error("failed to update note", "note", noteID, "error", err)
		return nil, err
	}
	res.Date = date
	res.RunID = runID
	log.Info("weekly sync completed", "note", noteID, "changed", res.Changed, "days", week.Summary.DaysTracked)
	return res, nil
}

// SyncDateRange syncs every day from start to end, continuing past failures.
// It returns the number of days that failed.
func (s *Syncer) SyncDateRange(ctx context.Context, start, end time.Time) int {
	failed := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return failed + 1
		}
		if _, err := s.SyncDay(ctx, d); err != nil {
			slog.Error("failed to sync day", "date", d.Format(dayLayout), "error", err)
			failed++
		}
	}
	return failed
}

// LoadDay returns the known data of day from the cache or the database without
// fetching. It returns nil when the day was never synced.
func (s *Syncer) LoadDay(ctx context.Context, day time.Time) (*models.DailyTimeData, error) {
	date := day.In(s.loc).Format(dayLayout)
	if data, ok := s.cache.Get(ctx, date); ok {
		return data, nil
	}
	return s.store.GetDay(day)
}

// LoadWeek builds the week containing day from known data without fetching.
func (s *Syncer) LoadWeek(ctx context.Context, day time.Time) *models.WeeklyTimeData {
	start := transform.WeekStart(day.In(s.loc), s.weekStart)
	return s.collectWeek(ctx, start, false)
}

func (s *Syncer) collectWeek(ctx context.Context, start time.Time, fetch bool) *models.WeeklyTimeData {
	today := s.today()
	days := make(map[string]*models.DailyTimeData)
	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		if d.After(today) || ctx.Err() != nil {
			break
		}

		var data *models.DailyTimeData
		var err error
		if fetch {
			data, err = s.dayData(ctx, d)
		} else {
			data, err = s.LoadDay(ctx, d)
		}
		if err != nil {
			slog.Warn("leaving day out of weekly summary", "date", d.Format(dayLayout), "error", err)
			continue
		}
		if data != nil {
			days[data.Date] = data
		}
	}
	return transform.BuildWeekly(start, days, s.classify)
}

// dayData returns cached data for past days and fetches otherwise. Fetched data is
// persisted and cached unless it is synthetic.
func (s *Syncer) dayData(ctx context.Context, day time.Time) (*models.DailyTimeData, error) {
	date := day.Format(dayLayout)
	if !s.isToday(day) {
		if data, ok := s.cache.Get(ctx, date); ok {
			slog.Debug("using cached day", "date", date)
			return data, nil
		}
	}

	data, err := s.fetchWithRetry(ctx, day)
	if err != nil {
		return nil, err
	}
	if data.Degraded {
		return data, nil
	}

	if err := s.store.ReplaceDay(data); err != nil {
		return nil, fmt.Errorf("persist %s: %w", date, err)
	}
	if err := s.cache.Put(ctx, date, data); err != nil {
		slog.Warn("failed to cache day", "date", date, "error", err)
	}
	return data, nil
}

// fetchWithRetry retries transient fetch failures with exponential backoff. Errors
// that need user action fail on the first attempt.
func (s *Syncer) fetchWithRetry(ctx context.Context, day time.Time) (*models.DailyTimeData, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retryWait
	exp.Multiplier = 2
	exp.MaxInterval = 30 * s.retryWait
	exp.Reset()

	attempts := max(s.cfg.FetchAttempts, 1)
	for attempt := 1; ; attempt++ {
		data, err := s.fetcher.Fetch(ctx, day)
		if err == nil {
			return data, nil
		}
		if !timing.IsRetryable(err) || attempt >= attempts || ctx.Err() != nil {
			return nil, err
		}

		wait := exp.NextBackOff()
		slog.Warn("fetch failed, retrying", "date", day.Format(dayLayout), "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// writeSection reads the note, creating it from initial when missing, synchronizes
// the section and writes the note back when the text changed.
//
// There is no check that the note is unchanged between the read and the write, so an
// edit made in between is overwritten.
func (s *Syncer) writeSection(noteID, initial, title, body string) (*Result, error) {
	res := &Result{NoteID: noteID}

	note, err := s.notes.Find(noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		if note, err = s.notes.Create(noteID, initial); err != nil {
			return nil, err
		}
		slog.Info("created note", "note", noteID)
	}

	text, err := s.notes.Read(note)
	if err != nil {
		return nil, err
	}
	if vault.OptedOut(text) {
		slog.Info("note opted out of syncing", "note", noteID)
		res.OptedOut = true
		return res, nil
	}

	updated := s.sections.Synchronize(text, title, body, s.placement)
	if updated == text {
		return res, nil
	}
	if err := s.notes.Write(note, updated); err != nil {
		return nil, err
	}
	res.Changed = true
	return res, nil
}
