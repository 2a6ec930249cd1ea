package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/charlie0129/timing-notes-sync/internal/cache"
	"github.com/charlie0129/timing-notes-sync/internal/models"
	"github.com/charlie0129/timing-notes-sync/internal/transform"
)

const dayLayout = "2006-01-02"

type DB struct {
	*sql.DB
}

var _ cache.Store = (*DB)(nil)

func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	d := &DB{db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	slog.Info("database initialized", "path", path)
	return d, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		// Entries of a day in fetch order
		`CREATE TABLE IF NOT EXISTS time_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			position INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration INTEGER NOT NULL,
			application TEXT NOT NULL,
			category TEXT,
			title TEXT,
			productivity INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_time_entries_day ON time_entries(day)`,

		// Day summaries table (grand total per day)
		`CREATE TABLE IF NOT EXISTS day_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL UNIQUE,
			total_seconds INTEGER NOT NULL,
			entry_count INTEGER NOT NULL DEFAULT 0,
			source TEXT,
			degraded INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Day stats table (breakdown by type: application, category, hour)
		`CREATE TABLE IF NOT EXISTS day_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			total_seconds INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(day, type, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_day_stats_day ON day_stats(day)`,
		`CREATE INDEX IF NOT EXISTS idx_day_stats_type ON day_stats(type)`,

		// Sync log table (last attempt per day)
		`CREATE TABLE IF NOT EXISTS sync_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day TEXT NOT NULL UNIQUE,
			synced_at INTEGER NOT NULL,
			total_seconds INTEGER,
			status TEXT DEFAULT 'success',
			run_id TEXT
		)`,

		// Persistent tier of the fetch cache
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			stored_at INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// --- Day operations ---

// ReplaceDay stores the entries, summary and stats of a day, replacing what was stored
// before, in one transaction.
func (db *DB) ReplaceDay(data *models.DailyTimeData) error {
	if _, err := time.Parse(dayLayout, data.Date); err != nil {
		return fmt.Errorf("invalid day %q: %w", data.Date, err)
	}
	day := data.Date
	now := time.Now()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"time_entries", "day_stats"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE day = ?", day); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, day, err)
		}
	}

	entryStmt, err := tx.Prepare(`
		INSERT INTO time_entries (day, position, start_time, end_time, duration, application, category, title, productivity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer entryStmt.Close()

	for i, e := range data.Entries {
		var productivity sql.NullInt64
		if e.Productivity != nil {
			productivity = sql.NullInt64{Int64: int64(*e.Productivity), Valid: true}
		}
		if _, err := entryStmt.Exec(day, i, e.StartTime, e.EndTime, e.Duration, e.Application, e.Category, e.Title, productivity, now); err != nil {
			return fmt.Errorf("insert entry %d of %s: %w", i, day, err)
		}
	}

	statStmt, err := tx.Prepare(`
		INSERT INTO day_stats (day, type, name, total_seconds, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day, type, name) DO UPDATE SET total_seconds = excluded.total_seconds
	`)
	if err != nil {
		return err
	}
	defer statStmt.Close()

	for _, s := range statsOf(data) {
		if _, err := statStmt.Exec(day, s.Type, s.Name, s.TotalSeconds, now); err != nil {
			return fmt.Errorf("insert %s stat of %s: %w", s.Type, day, err)
		}
	}

	degraded := 0
	if data.Degraded {
		degraded = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO day_summaries (day, total_seconds, entry_count, source, degraded, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			total_seconds = excluded.total_seconds,
			entry_count = excluded.entry_count,
			source = excluded.source,
			degraded = excluded.degraded
	`, day, data.Summary.TotalTime, len(data.Entries), data.Source, degraded, now); err != nil {
		return fmt.Errorf("upsert summary of %s: %w", day, err)
	}

	return tx.Commit()
}

func statsOf(data *models.DailyTimeData) []models.DayStats {
	var stats []models.DayStats
	for name, secs := range data.Summary.ByApplication {
		stats = append(stats, models.DayStats{Type: models.StatApplication, Name: name, TotalSeconds: secs})
	}
	for name, secs := range data.Summary.ByCategory {
		stats = append(stats, models.DayStats{Type: models.StatCategory, Name: name, TotalSeconds: secs})
	}
	for hour, secs := range data.Summary.ByHour {
		stats = append(stats, models.DayStats{Type: models.StatHour, Name: strconv.Itoa(hour), TotalSeconds: secs})
	}
	return stats
}

func (db *DB) GetEntriesByDay(day time.Time) ([]models.TimeEntry, error) {
	rows, err := db.Query(`
		SELECT start_time, end_time, duration, application, category, title, productivity
		FROM time_entries WHERE day = ? ORDER BY position
	`, day.Format(dayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		var e models.TimeEntry
		var category, title sql.NullString
		var productivity sql.NullInt64
		if err := rows.Scan(&e.StartTime, &e.EndTime, &e.Duration, &e.Application, &category, &title, &productivity); err != nil {
			return nil, err
		}
		e.Category = category.String
		e.Title = title.String
		if productivity.Valid {
			p := int(productivity.Int64)
			e.Productivity = &p
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetDay rebuilds the stored data of a day. It returns nil when the day was never stored.
func (db *DB) GetDay(day time.Time) (*models.DailyTimeData, error) {
	summary, err := db.GetDaySummary(day)
	if err != nil || summary == nil {
		return nil, err
	}
	entries, err := db.GetEntriesByDay(day)
	if err != nil {
		return nil, err
	}
	var degraded int
	if err := db.QueryRow("SELECT degraded FROM day_summaries WHERE day = ?", day.Format(dayLayout)).Scan(&degraded); err != nil {
		return nil, err
	}
	return &models.DailyTimeData{
		Date:     day.Format(dayLayout),
		Entries:  entries,
		Summary:  transform.Summarize(entries),
		Source:   summary.Source,
		Degraded: degraded == 1,
	}, nil
}

// --- Day Summary operations ---

func (db *DB) GetDaySummary(day time.Time) (*models.DaySummary, error) {
	var s models.DaySummary
	var dayStr string
	var source sql.NullString
	err := db.QueryRow(`
		SELECT id, day, total_seconds, entry_count, source, created_at
		FROM day_summaries WHERE day = ?
	`, day.Format(dayLayout)).Scan(&s.ID, &dayStr, &s.TotalSeconds, &s.EntryCount, &source, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Day, _ = time.Parse(dayLayout, dayStr)
	s.Source = source.String
	return &s, nil
}

func (db *DB) GetDaySummaries(start, end time.Time) ([]models.DaySummary, error) {
	rows, err := db.Query(`
		SELECT id, day, total_seconds, entry_count, source, created_at
		FROM day_summaries WHERE day >= ? AND day <= ? ORDER BY day
	`, start.Format(dayLayout), end.Format(dayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.DaySummary
	for rows.Next() {
		var s models.DaySummary
		var dayStr string
		var source sql.NullString
		if err := rows.Scan(&s.ID, &dayStr, &s.TotalSeconds, &s.EntryCount, &source, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Day, _ = time.Parse(dayLayout, dayStr)
		s.Source = source.String
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// --- Day Stats operations ---

func (db *DB) GetDayStatsByDayAndType(day time.Time, statType string) ([]models.DayStats, error) {
	rows, err := db.Query(`
		SELECT id, day, type, name, total_seconds, created_at
		FROM day_stats WHERE day = ? AND type = ?
		ORDER BY total_seconds DESC, name
	`, day.Format(dayLayout), statType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.DayStats
	for rows.Next() {
		var s models.DayStats
		var dayStr string
		if err := rows.Scan(&s.ID, &dayStr, &s.Type, &s.Name, &s.TotalSeconds, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Day, _ = time.Parse(dayLayout, dayStr)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (db *DB) GetAggregatedStats(start, end time.Time, statType string) ([]models.AggregatedStat, error) {
	rows, err := db.Query(`
		SELECT name, SUM(total_seconds) as total
		FROM day_stats WHERE day >= ? AND day <= ? AND type = ?
		GROUP BY name ORDER BY total DESC, name
	`, start.Format(dayLayout), end.Format(dayLayout), statType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.AggregatedStat
	for rows.Next() {
		var s models.AggregatedStat
		if err := rows.Scan(&s.Name, &s.TotalSeconds); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// --- Sync Log operations ---

func (db *DB) RecordSync(day time.Time, totalSeconds int, status, runID string) error {
	_, err := db.Exec(`
		INSERT INTO sync_log (day, synced_at, total_seconds, status, run_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			synced_at = excluded.synced_at,
			total_seconds = excluded.total_seconds,
			status = excluded.status,
			run_id = excluded.run_id
	`, day.Format(dayLayout), time.Now().UnixNano(), totalSeconds, status, runID)
	return err
}

// GetLastSync returns the most recent sync attempt, or nil when nothing was synced yet.
func (db *DB) GetLastSync() (*models.SyncRecord, error) {
	var r models.SyncRecord
	var dayStr string
	var syncedAt int64
	var runID sql.NullString
	err := db.QueryRow(`
		SELECT day, synced_at, total_seconds, status, run_id
		FROM sync_log ORDER BY synced_at DESC LIMIT 1
	`).Scan(&dayStr, &syncedAt, &r.TotalSeconds, &r.Status, &runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Day, _ = time.Parse(dayLayout, dayStr)
	r.SyncedAt = time.Unix(0, syncedAt)
	r.RunID = runID.String
	return &r, nil
}

func (db *DB) IsDaySynced(day time.Time) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sync_log WHERE day = ? AND status = 'success'", day.Format(dayLayout)).Scan(&count)
	return count > 0, err
}

// --- Cache operations ---

func (db *DB) LoadCache(ctx context.Context, key string) (*cache.Record, error) {
	var rec cache.Record
	var storedAt int64
	err := db.QueryRowContext(ctx, "SELECT value, stored_at FROM cache_entries WHERE key = ?", key).Scan(&rec.Value, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.StoredAt = time.Unix(0, storedAt)
	return &rec, nil
}

func (db *DB) SaveCache(ctx context.Context, key string, rec cache.Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, stored_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at
	`, key, rec.Value, rec.StoredAt.UnixNano())
	return err
}

func (db *DB) DeleteCache(ctx context.Context, key string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// PruneCache removes cache entries stored before the given time.
func (db *DB) PruneCache(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM cache_entries WHERE stored_at < ?", before.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
