// Package transform turns loosely typed Timing payloads into DailyTimeData and
// rolls days up into weeks.
package transform

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charlie0129/timing-notes-sync/internal/models"
)

const (
	maxLabelLength  = 200
	maxProductivity = 5
	maxEntrySeconds = 24 * 60 * 60

	// Uncategorized labels entries without a category in ByCategory.
	Uncategorized = "Uncategorized"
)

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern  = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d):([0-5]\d)$`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// ValidationError rejects a whole payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Reason)
}

// EntryWarning describes an entry that was dropped during Transform.
type EntryWarning struct {
	Index  int
	Reason string
}

func (w EntryWarning) String() string {
	return fmt.Sprintf("entry %d: %s", w.Index, w.Reason)
}

// Transform validates payload and builds the canonical DailyTimeData.
//
// The payload must be an object with a valid "date" and an "entries" list. Malformed
// entries are dropped and reported as warnings; only structural problems fail the call.
func Transform(payload any) (*models.DailyTimeData, []EntryWarning, error) {
	obj, ok := payload.(map[string]any)
	if !ok || obj == nil {
		return nil, nil, &ValidationError{Field: "payload", Reason: "missing or not an object"}
	}

	rawDate, ok := obj["date"].(string)
	if !ok {
		return nil, nil, &ValidationError{Field: "date", Reason: "missing"}
	}
	date := strings.TrimSpace(rawDate)
	if err := ValidateDate(date); err != nil {
		return nil, nil, &ValidationError{Field: "date", Reason: err.Error()}
	}

	var rawEntries []any
	switch v := obj["entries"].(type) {
	case []any:
		rawEntries = v
	case []map[string]any:
		rawEntries = make([]any, len(v))
		for i := range v {
			rawEntries[i] = v[i]
		}
	default:
		return nil, nil, &ValidationError{Field: "entries", Reason: "not a list"}
	}

	var warnings []EntryWarning
	entries := make([]models.TimeEntry, 0, len(rawEntries))
	for i, raw := range rawEntries {
		entry, err := transformEntry(raw)
		if err != nil {
			w := EntryWarning{Index: i, Reason: err.Error()}
			slog.Warn("dropping time entry", "date", date, "index", i, "reason", w.Reason)
			warnings = append(warnings, w)
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime < entries[j].StartTime
	})

	return &models.DailyTimeData{
		Date:    date,
		Entries: entries,
		Summary: Summarize(entries),
	}, warnings, nil
}

// ValidateDate checks a strict YYYY-MM-DD calendar date.
func ValidateDate(date string) error {
	if !datePattern.MatchString(date) {
		return fmt.Errorf("%q is not YYYY-MM-DD", date)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%q is not a calendar date", date)
	}
	return nil
}

// Summarize aggregates entries. An entry counts entirely towards the hour it starts in.
func Summarize(entries []models.TimeEntry) models.DailySummary {
	s := models.DailySummary{
		ByApplication: make(map[string]int),
		ByCategory:    make(map[string]int),
		ByHour:        make(map[int]int),
	}
	for _, e := range entries {
		s.TotalTime += e.Duration
		s.ByApplication[e.Application] += e.Duration

		category := e.Category
		if category == "" {
			category = Uncategorized
		}
		s.ByCategory[category] += e.Duration

		if hour, err := strconv.Atoi(e.StartTime[:2]); err == nil {
			s.ByHour[hour] += e.Duration
		}
	}
	return s
}

func transformEntry(raw any) (models.TimeEntry, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return models.TimeEntry{}, fmt.Errorf("not an object")
	}

	start, err := normalizeTime(obj["startTime"])
	if err != nil {
		return models.TimeEntry{}, fmt.Errorf("startTime: %w", err)
	}
	end, err := normalizeTime(obj["endTime"])
	if err != nil {
		return models.TimeEntry{}, fmt.Errorf("endTime: %w", err)
	}

	app := cleanLabel(obj["application"])
	if app == "" {
		return models.TimeEntry{}, fmt.Errorf("application: missing")
	}

	n, err := toNumber(obj["duration"])
	if err != nil {
		return models.TimeEntry{}, fmt.Errorf("duration: %w", err)
	}
	n = math.Round(n)
	if n < 0 {
		return models.TimeEntry{}, fmt.Errorf("duration: negative")
	}
	if n > maxEntrySeconds {
		return models.TimeEntry{}, fmt.Errorf("duration: longer than a day")
	}
	duration := int(n)

	entry := models.TimeEntry{
		StartTime:   start,
		EndTime:     end,
		Duration:    duration,
		Application: app,
		Category:    cleanLabel(obj["category"]),
		Title:       cleanLabel(obj["title"]),
	}

	// Unlike duration, a bad productivity score only drops the field.
	if p, err := toNumber(obj["productivity"]); err == nil {
		score := int(min(max(math.Round(p), 0), maxProductivity))
		entry.Productivity = &score
	}

	return entry, nil
}

func normalizeTime(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("missing")
	}
	m := timePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("%q is not H:MM:SS", s)
	}
	h, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s:%s", h, m[2], m[3]), nil
}

// toNumber accepts JSON numbers and numeric strings.
func toNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", n.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", n)
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// cleanLabel trims, collapses whitespace and truncates a free-text label.
func cleanLabel(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = spacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
	if r := []rune(s); len(r) > maxLabelLength {
		s = string(r[:maxLabelLength])
	}
	return s
}
