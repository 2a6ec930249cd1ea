package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/charlie0129/timing-notes-sync/internal/config"
	"github.com/charlie0129/timing-notes-sync/internal/database"
	"github.com/charlie0129/timing-notes-sync/internal/format"
	"github.com/charlie0129/timing-notes-sync/internal/models"
	"github.com/charlie0129/timing-notes-sync/internal/sync"
	"github.com/charlie0129/timing-notes-sync/internal/timing"
	"github.com/charlie0129/timing-notes-sync/internal/transform"
)

const maxBackfillDays = 366

type Handler struct {
	cfg    *config.Config
	db     *database.DB
	syncer *sync.Syncer
	now    func() time.Time
}

func NewHandler(cfg *config.Config, db *database.DB, syncer *sync.Syncer) *Handler {
	return &Handler{
		cfg:    cfg,
		db:     db,
		syncer: syncer,
		now:    time.Now,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/days/{date}", h.getDay)
	mux.HandleFunc("GET /api/v1/weeks/{date}", h.getWeek)

	mux.HandleFunc("GET /api/v1/stats/daily", h.getDailyStats)
	mux.HandleFunc("GET /api/v1/stats/range", h.getRangeStats)

	// Sync endpoints
	mux.HandleFunc("POST /api/v1/sync", h.requireToken(h.triggerSync))
	mux.HandleFunc("POST /api/v1/sync/week", h.requireToken(h.triggerWeekSync))
	mux.HandleFunc("GET /api/v1/sync/status", h.getSyncStatus)

	// Health check
	mux.HandleFunc("GET /health", h.healthCheck)
}

// --- Response helpers ---

type APIResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIResponse{Error: message})
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	if err := transform.ValidateDate(s); err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation("2006-01-02", s, h.cfg.GetTimezone())
}

func (h *Handler) today() time.Time {
	n := h.now().In(h.cfg.GetTimezone())
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// dateParam parses the "date" query parameter, defaulting to today.
func (h *Handler) dateParam(r *http.Request) (time.Time, error) {
	s := r.URL.Query().Get("date")
	if s == "" {
		return h.today(), nil
	}
	return h.parseDate(s)
}

// rangeParams parses "start" and "end", defaulting to the days-long period ending yesterday.
func (h *Handler) rangeParams(r *http.Request, days int) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" || endStr == "" {
		end := h.today().AddDate(0, 0, -1)
		return end.AddDate(0, 0, -(days - 1)), end, nil
	}

	start, err := h.parseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid start date format, use YYYY-MM-DD")
	}
	end, err := h.parseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid end date format, use YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end is before start")
	}
	return start, end, nil
}

// requireToken rejects requests without the configured API token. No token configured
// means no check.
func (h *Handler) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.APIToken != "" {
			token := r.URL.Query().Get("api_key")
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				token = bearer
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.APIToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next(w, r)
	}
}

// --- Handlers ---

// getDay returns the known data of a day
// GET /api/v1/days/2024-01-15
func (h *Handler) getDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
		return
	}

	data, err := h.syncer.LoadDay(r.Context(), day)
	if err != nil {
		slog.Error("failed to load day", "date", day.Format("2006-01-02"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load day")
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "day not synced yet")
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Data: data})
}

// getWeek returns the week containing a date, built from synced days
// GET /api/v1/weeks/2024-01-17
func (h *Handler) getWeek(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Data: h.syncer.LoadWeek(r.Context(), day)})
}

// getDailyStats returns daily totals for a date range
// GET /api/v1/stats/daily?start=2024-01-01&end=2024-01-31
func (h *Handler) getDailyStats(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.rangeParams(r, 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := h.db.GetDaySummaries(start, end)
	if err != nil {
		slog.Error("failed to get daily stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	summaryMap := make(map[string]models.DaySummary)
	for _, s := range summaries {
		summaryMap[s.Day.Format("2006-01-02")] = s
	}

	// Fill in all days including zeros
	data := []map[string]any{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dateStr := d.Format("2006-01-02")
		s := summaryMap[dateStr]
		data = append(data, map[string]any{
			"date":          dateStr,
			"total_seconds": s.TotalSeconds,
			"entries":       s.EntryCount,
			"text":          format.Duration(s.TotalSeconds),
			"digital":       format.Digital(s.TotalSeconds),
		})
	}

	writeJSON(w, http.StatusOK, APIResponse{Data: data})
}

// getRangeStats returns aggregated stats for a date range
// GET /api/v1/stats/range?start=2024-01-01&end=2024-01-31
func (h *Handler) getRangeStats(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.rangeParams(r, 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	applications, err := h.db.GetAggregatedStats(start, end, models.StatApplication)
	if err != nil {
		slog.Error("failed to get application stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	categories, err := h.db.GetAggregatedStats(start, end, models.StatCategory)
	if err != nil {
		slog.Error("failed to get category stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	totalSeconds := 0
	for _, a := range applications {
		totalSeconds += a.TotalSeconds
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_seconds": totalSeconds,
		"text":          format.Duration(totalSeconds),
		"applications":  formatAggStats(applications, totalSeconds),
		"categories":    formatAggStats(categories, totalSeconds),
		"start":         start.Format("2006-01-02"),
		"end":           end.Format("2006-01-02"),
	})
}

func formatAggStats(stats []models.AggregatedStat, totalSeconds int) []map[string]any {
	items := make([]map[string]any, len(stats))
	for i, s := range stats {
		items[i] = map[string]any{
			"name":          s.Name,
			"total_seconds": s.TotalSeconds,
			"percent":       format.Percentage(s.TotalSeconds, totalSeconds),
			"text":          format.Duration(s.TotalSeconds),
		}
	}
	return items
}

// syncErrorStatus maps a sync failure to an HTTP status.
func syncErrorStatus(err error) int {
	var fe *timing.FetchError
	switch {
	case errors.Is(err, sync.ErrSyncInProgress):
		return http.StatusConflict
	case errors.As(err, &fe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// triggerSync syncs the daily note of a date, or backfills the last N days in the
// background when "days" is given
// POST /api/v1/sync?date=2024-01-15
// POST /api/v1/sync?days=7
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days <= 0 || days > maxBackfillDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 366")
			return
		}
		end := h.today()
		start := end.AddDate(0, 0, -(days - 1))

		// Run sync in background
		go func() {
			if failed := h.syncer.SyncDateRange(context.Background(), start, end); failed > 0 {
				slog.Error("backfill finished with failures", "failed_days", failed)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"message": "sync started",
			"start":   start.Format("2006-01-02"),
			"end":     end.Format("2006-01-02"),
		})
		return
	}

	day, err := h.dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
		return
	}

	res, err := h.syncer.SyncDay(context.WithoutCancel(r.Context()), day)
	if err != nil {
		writeError(w, syncErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Data: res})
}

// triggerWeekSync syncs the weekly note of the week containing a date
// POST /api/v1/sync/week?date=2024-01-15
func (h *Handler) triggerWeekSync(w http.ResponseWriter, r *http.Request) {
	day, err := h.dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
		return
	}

	res, err := h.syncer.SyncWeek(context.WithoutCancel(r.Context()), day)
	if err != nil {
		writeError(w, syncErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Data: res})
}

// getSyncStatus returns sync status
// GET /api/v1/sync/status
func (h *Handler) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	last, err := h.db.GetLastSync()
	if err != nil {
		slog.Error("failed to get sync status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get sync status")
		return
	}

	status := h.syncer.Status()
	resp := map[string]any{
		"state":       status.State,
		"status":      status,
		"last_synced": last,
	}
	if !status.LastSuccess.IsZero() {
		resp["last_success_text"] = humanize.RelTime(status.LastSuccess, h.now(), "ago", "from now")
	}
	if last != nil {
		resp["last_synced_text"] = humanize.RelTime(last.SyncedAt, h.now(), "ago", "from now")
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}
