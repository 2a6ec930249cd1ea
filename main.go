package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charlie0129/timing-notes-sync/internal/api"
	"github.com/charlie0129/timing-notes-sync/internal/cache"
	"github.com/charlie0129/timing-notes-sync/internal/config"
	"github.com/charlie0129/timing-notes-sync/internal/database"
	"github.com/charlie0129/timing-notes-sync/internal/models"
	"github.com/charlie0129/timing-notes-sync/internal/sync"
	"github.com/charlie0129/timing-notes-sync/internal/timing"
	"github.com/charlie0129/timing-notes-sync/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "sync the daily note once and exit")
	week := flag.Bool("week", false, "with -once, sync the weekly note instead")
	date := flag.String("date", "", "with -once, the date to sync (YYYY-MM-DD), default today")
	flag.Parse()

	// Setup structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if l, err := cfg.SlogLevel(); err == nil {
		level.Set(l)
	}

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	loc := cfg.GetTimezone()
	slog.Info("local time", "time", time.Now().In(loc).Format(time.RFC3339))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := db.PruneCache(ctx, time.Now().Add(-cfg.CacheTTL())); err != nil {
		slog.Warn("failed to prune cache", "error", err)
	} else if n > 0 {
		slog.Info("pruned expired cache entries", "count", n)
	}

	dayCache, err := cache.New[*models.DailyTimeData](db, cfg.CacheCapacity, cfg.CacheTTL())
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}

	fetcher := timing.New(
		timing.DefaultStrategies(timing.ExecRunner{}, cfg.TimingAppName, cfg.ExportDir),
		timing.WithSyntheticFallback(cfg.AllowSyntheticFallback),
	)

	notes := vault.New(cfg.VaultPath)
	slog.Info("using vault", "root", notes.Root())

	// Initialize syncer
	syncer, err := sync.NewSyncer(cfg, fetcher, db, notes, dayCache)
	if err != nil {
		slog.Error("failed to initialize syncer", "error", err)
		os.Exit(1)
	}

	if *once {
		code := runOnce(ctx, syncer, *date, *week, loc)
		stop()
		db.Close()
		os.Exit(code)
	}

	// Start background sync scheduler
	go func() {
		if err := syncer.StartScheduler(ctx); err != nil {
			slog.Error("failed to start scheduler", "error", err)
		}
	}()

	// Setup HTTP server
	handler := api.NewHandler(cfg, db, syncer)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		syncer.Stop() // Stop cron scheduler
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runOnce syncs a single note and returns the process exit code.
func runOnce(ctx context.Context, syncer *sync.Syncer, date string, week bool, loc *time.Location) int {
	day := time.Now().In(loc)
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			slog.Error("invalid -date, use YYYY-MM-DD", "date", date)
			return 2
		}
		day = d
	}

	var res *sync.Result
	var err error
	if week {
		res, err = syncer.SyncWeek(ctx, day)
	} else {
		res, err = syncer.SyncDay(ctx, day)
	}
	if err != nil {
		slog.Error("sync failed", "error", err)
		return 1
	}
	slog.Info("sync finished", "note", res.NoteID, "changed", res.Changed, "opted_out", res.OptedOut)
	return 0
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
