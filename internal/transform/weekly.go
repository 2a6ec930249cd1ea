package transform

import (
	"log/slog"
	"strings"
	"time"

	"github.com/charlie0129/timing-notes-sync/internal/models"
)

// Bucket is the coarse activity class of an application.
type Bucket int

const (
	BucketOther Bucket = iota
	BucketFocus
	BucketMeeting
)

func (b Bucket) String() string {
	switch b {
	case BucketFocus:
		return "focus"
	case BucketMeeting:
		return "meeting"
	default:
		return "other"
	}
}

// Classifier maps an application name to a bucket.
type Classifier func(application string) Bucket

var (
	DefaultFocusKeywords = []string{
		"code", "xcode", "terminal", "iterm", "intellij", "goland", "pycharm", "webstorm",
		"vim", "emacs", "sublime", "obsidian", "notion", "word", "pages", "figma", "sketch",
	}
	DefaultMeetingKeywords = []string{
		"zoom", "teams", "meet", "webex", "facetime", "skype", "slack huddle", "gotomeeting",
	}
)

// KeywordClassifier matches lower-cased application names against keyword lists.
// Meeting keywords are checked first, so an application matching both lists is
// counted once, as a meeting.
func KeywordClassifier(focus, meeting []string) Classifier {
	return func(application string) Bucket {
		name := strings.ToLower(application)
		for _, k := range meeting {
			if strings.Contains(name, k) {
				return BucketMeeting
			}
		}
		for _, k := range focus {
			if strings.Contains(name, k) {
				return BucketFocus
			}
		}
		return BucketOther
	}
}

// DefaultClassifier uses the built-in keyword lists.
func DefaultClassifier() Classifier {
	return KeywordClassifier(DefaultFocusKeywords, DefaultMeetingKeywords)
}

// WeekStart returns the first day of the week containing day.
func WeekStart(day time.Time, startsOn time.Weekday) time.Time {
	offset := (int(day.Weekday()) - int(startsOn) + 7) % 7
	d := day.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, day.Location())
}

// WeekDates returns the 7 YYYY-MM-DD dates starting at start.
func WeekDates(start time.Time) []string {
	dates := make([]string, 7)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	return dates
}

// BuildWeekly aggregates the days of the week starting at start. days may miss dates;
// entries for dates outside the week are ignored.
func BuildWeekly(start time.Time, days map[string]*models.DailyTimeData, classify Classifier) *models.WeeklyTimeData {
	if classify == nil {
		classify = DefaultClassifier()
	}
	dates := WeekDates(start)

	w := &models.WeeklyTimeData{
		StartDate: dates[0],
		EndDate:   dates[6],
		Days:      make(map[string]*models.DailyTimeData),
		Summary: models.WeeklySummary{
			ByWeekday:     make(map[string]int),
			ByApplication: make(map[string]int),
			ByCategory:    make(map[string]int),
		},
	}

	for i, date := range dates {
		day, ok := days[date]
		if !ok || day == nil {
			continue
		}
		w.Days[date] = day

		s := &w.Summary
		s.DaysTracked++
		s.TotalTime += day.Summary.TotalTime
		s.ByWeekday[start.AddDate(0, 0, i).Weekday().String()] += day.Summary.TotalTime
		for app, secs := range day.Summary.ByApplication {
			s.ByApplication[app] += secs
			switch classify(app) {
			case BucketFocus:
				s.FocusTime += secs
			case BucketMeeting:
				s.MeetingTime += secs
			}
		}
		for cat, secs := range day.Summary.ByCategory {
			s.ByCategory[cat] += secs
		}
	}

	s := &w.Summary
	if s.DaysTracked > 0 {
		s.AverageTime = s.TotalTime / s.DaysTracked
	}
	s.BreakTime = s.TotalTime - s.FocusTime - s.MeetingTime
	if s.BreakTime < 0 {
		slog.Warn("focus and meeting time exceed total, clamping break time",
			"week", w.StartDate, "total", s.TotalTime, "focus", s.FocusTime, "meeting", s.MeetingTime)
		s.BreakTime = 0
	}
	return w
}
