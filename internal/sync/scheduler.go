package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Status is a snapshot of the syncer for status displays.
type Status struct {
	State           State     `json:"state"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at,omitempty"`
	LastRunID       string    `json:"last_run_id,omitempty"`
	LastFailedRunID string    `json:"last_failed_run_id,omitempty"`
	InFlight        []string  `json:"in_flight,omitempty"`
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.InFlight = make([]string, 0, len(s.inFlight))
	for k := range s.inFlight {
		st.InFlight = append(st.InFlight, k)
	}
	return st
}

// SyncToday syncs the daily note of today, logging failures.
func (s *Syncer) SyncToday(ctx context.Context) {
	today := s.today()
	if _, err := s.SyncDay(ctx, today); err != nil {
		slog.Error("failed to sync today", "date", today.Format(dayLayout), "error", err)
	}
}

// SyncThisWeek syncs the weekly note of the current week, logging failures.
func (s *Syncer) SyncThisWeek(ctx context.Context) {
	if _, err := s.SyncWeek(ctx, s.today()); err != nil {
		slog.Error("failed to sync week", "error", err)
	}
}

// StartScheduler syncs today once, then refreshes today every refresh interval and the
// weekly note on the weekly schedule. Jobs run with ctx.
func (s *Syncer) StartScheduler(ctx context.Context) error {
	s.SyncToday(ctx)
	if s.stopped() {
		return nil
	}

	interval := s.cfg.RefreshInterval()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		slog.Debug("running periodic refresh", "interval", interval.String())
		s.SyncToday(ctx)
	}); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	schedule := s.cfg.WeeklySyncSchedule
	if _, err := s.cron.AddFunc(schedule, func() {
		slog.Info("running scheduled weekly sync", "schedule", schedule)
		s.SyncThisWeek(ctx)
	}); err != nil {
		slog.Error("failed to add weekly cron job, falling back to 7 day ticker", "schedule", schedule, "error", err)
		go func() {
			ticker := time.NewTicker(7 * 24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.SyncThisWeek(ctx)
				case <-s.stop:
					return
				}
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return nil
	}
	slog.Info("scheduler started", "refresh_interval", interval.String(), "weekly_schedule", schedule, "timezone", s.loc.String())
	s.cron.Start()
	return nil
}

// Stop stops scheduling new jobs and waits for running ones to finish. A scheduler
// that has not started yet never starts. Stop may be called more than once.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.halted {
		s.halted = true
		close(s.stop)
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

func (s *Syncer) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}
