// Package timing fetches a day of tracked time from the Timing app through an ordered
// list of strategies.
package timing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charlie0129/timing-notes-sync/internal/models"
	"github.com/charlie0129/timing-notes-sync/internal/transform"
)

// SourceSynthetic is the Source of placeholder data.
const SourceSynthetic = "synthetic"

type Adapter struct {
	strategies []Strategy
	synthetic  bool
}

type Option func(*Adapter)

// WithSyntheticFallback makes Fetch return labelled placeholder data when every
// strategy fails.
func WithSyntheticFallback(enabled bool) Option {
	return func(a *Adapter) { a.synthetic = enabled }
}

func New(strategies []Strategy, opts ...Option) *Adapter {
	a := &Adapter{strategies: strategies}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultStrategies returns the report export, followed by the export folder when
// exportDir is set.
func DefaultStrategies(runner Runner, appName, exportDir string) []Strategy {
	strategies := []Strategy{&ReportExport{Runner: runner, AppName: appName}}
	if exportDir != "" {
		strategies = append(strategies, &ExportFile{Dir: exportDir})
	}
	return strategies
}

// Fetch returns the data of day from the first strategy that succeeds. When all fail,
// the error of the first strategy is returned.
func (a *Adapter) Fetch(ctx context.Context, day time.Time) (*models.DailyTimeData, error) {
	date := day.Format(dayLayout)
	var firstErr error

	for _, s := range a.strategies {
		data, err := a.try(ctx, s, day)
		if err == nil {
			slog.Debug("fetched time entries", "date", date, "strategy", s.Name(), "entries", len(data.Entries))
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("fetch strategy failed", "date", date, "strategy", s.Name(), "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if firstErr == nil {
		firstErr = &FetchError{Kind: KindExecution, Err: errors.New("no fetch strategies configured")}
	}
	if a.synthetic {
		slog.Warn("using synthetic placeholder data", "date", date, "error", firstErr)
		return Synthetic(day), nil
	}
	return nil, firstErr
}

func (a *Adapter) try(ctx context.Context, s Strategy, day time.Time) (*models.DailyTimeData, error) {
	payload, err := s.Fetch(ctx, day)
	if err != nil {
		return nil, err
	}

	data, warnings, err := transform.Transform(payload)
	if err != nil {
		return nil, &FetchError{Kind: KindParsing, Strategy: s.Name(), Err: err}
	}
	if data.Date != day.Format(dayLayout) {
		return nil, &FetchError{Kind: KindParsing, Strategy: s.Name(),
			Err: fmt.Errorf("payload is for %s, want %s", data.Date, day.Format(dayLayout))}
	}
	if len(warnings) > 0 {
		slog.Info("dropped malformed time entries", "date", data.Date, "strategy", s.Name(), "count", len(warnings))
	}
	data.Source = s.Name()
	return data, nil
}

// Synthetic builds placeholder data for day. It is marked Degraded so it is never
// mistaken for real tracking.
func Synthetic(day time.Time) *models.DailyTimeData {
	payload := map[string]any{
		"date": day.Format(dayLayout),
		"entries": []any{
			map[string]any{"startTime": "09:00:00", "endTime": "10:30:00", "duration": 5400, "application": "Xcode", "category": "Development"},
			map[string]any{"startTime": "10:30:00", "endTime": "11:00:00", "duration": 1800, "application": "Zoom", "category": "Meetings"},
			map[string]any{"startTime": "11:00:00", "endTime": "11:45:00", "duration": 2700, "application": "Safari", "category": "Research"},
			map[string]any{"startTime": "13:00:00", "endTime": "13:20:00", "duration": 1200, "application": "Mail", "category": "Communication"},
		},
	}
	data, _, _ := transform.Transform(payload)
	data.Source = SourceSynthetic
	data.Degraded = true
	return data
}
