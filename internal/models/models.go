package models

import (
	"time"
)

// TimeEntry is one observed activity interval reported by Timing.
type TimeEntry struct {
	StartTime    string `json:"startTime"` // HH:MM:SS
	EndTime      string `json:"endTime"`   // HH:MM:SS
	Duration     int    `json:"duration"`  // seconds, authoritative for aggregation
	Application  string `json:"application"`
	Category     string `json:"category,omitempty"`
	Title        string `json:"title,omitempty"`
	Productivity *int   `json:"productivity,omitempty"` // 0-5
}

// DailySummary is derived from the entries of a DailyTimeData.
type DailySummary struct {
	TotalTime     int            `json:"totalTime"`
	ByApplication map[string]int `json:"byApplication"`
	ByCategory    map[string]int `json:"byCategory"`
	ByHour        map[int]int    `json:"byHour"`
}

// DailyTimeData is the aggregate for one calendar date. It is built once per fetch
// and never mutated afterwards.
type DailyTimeData struct {
	Date    string       `json:"date"` // YYYY-MM-DD
	Entries []TimeEntry  `json:"entries"`
	Summary DailySummary `json:"summary"`
	// Source names the fetch strategy that produced the data.
	Source string `json:"source,omitempty"`
	// Degraded is set for synthetic placeholder data.
	Degraded bool `json:"degraded,omitempty"`
}

// WeeklySummary is derived from the days of a WeeklyTimeData.
type WeeklySummary struct {
	TotalTime     int            `json:"totalTime"`
	AverageTime   int            `json:"averageTime"`
	DaysTracked   int            `json:"daysTracked"`
	ByWeekday     map[string]int `json:"byWeekday"`
	ByApplication map[string]int `json:"byApplication"`
	ByCategory    map[string]int `json:"byCategory"`
	FocusTime     int            `json:"focusTime"`
	MeetingTime   int            `json:"meetingTime"`
	BreakTime     int            `json:"breakTime"`
}

// WeeklyTimeData spans 7 consecutive days starting at StartDate. Days whose fetch
// failed are absent from Days.
type WeeklyTimeData struct {
	StartDate string                    `json:"startDate"`
	EndDate   string                    `json:"endDate"`
	Days      map[string]*DailyTimeData `json:"days"`
	Summary   WeeklySummary             `json:"summary"`
}

// DaySummary is the persisted grand total of a day.
type DaySummary struct {
	ID           int64     `json:"id"`
	Day          time.Time `json:"day"`
	TotalSeconds int       `json:"total_seconds"`
	EntryCount   int       `json:"entry_count"`
	Source       string    `json:"source,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stat types stored in day_stats.
const (
	StatApplication = "application"
	StatCategory    = "category"
	StatHour        = "hour"
)

// DayStats is one persisted breakdown row of a day.
type DayStats struct {
	ID           int64     `json:"id"`
	Day          time.Time `json:"day"`
	Type         string    `json:"type"` // application, category, hour
	Name         string    `json:"name"`
	TotalSeconds int       `json:"total_seconds"`
	CreatedAt    time.Time `json:"created_at"`
}

// AggregatedStat is a named total over a date range.
type AggregatedStat struct {
	Name         string `json:"name"`
	TotalSeconds int    `json:"total_seconds"`
}

// SyncRecord is the last sync attempt of a day.
type SyncRecord struct {
	Day          time.Time `json:"day"`
	SyncedAt     time.Time `json:"synced_at"`
	TotalSeconds int       `json:"total_seconds"`
	Status       string    `json:"status"`
	RunID        string    `json:"run_id,omitempty"`
}
