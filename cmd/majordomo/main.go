// Package main contains the entrypoint for the majordomo assistant core.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hlopes/majordomo/internal/calendar"
	"github.com/hlopes/majordomo/internal/config"
	"github.com/hlopes/majordomo/internal/database"
	"github.com/hlopes/majordomo/internal/jobs"
	"github.com/hlopes/majordomo/internal/logger"
	"github.com/hlopes/majordomo/internal/notify"
	"github.com/hlopes/majordomo/internal/notify/telegram"
	"github.com/hlopes/majordomo/internal/scheduler"
	"github.com/hlopes/majordomo/internal/web"
)

// shutdownTimeout bounds how long graceful shutdown may take before the
// process exits anyway.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components, starts the scheduler and API server, and
// blocks until the context is cancelled. It returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	loc, err := cfg.Location()
	if err != nil {
		log.Error("Failed to resolve timezone", "timezone", cfg.Timezone, "error", err)
		return 1
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	dispatcher := notify.NewDispatcher(log)
	dispatcher.RegisterHandler("log", notify.LogHandler(log))
	if cfg.Telegram.Token != "" {
		channel, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
		if err != nil {
			log.Error("Failed to create Telegram channel", "error", err)
			return 1
		}
		dispatcher.RegisterHandler("telegram", channel.Handler())
	}
	log.Info("Notification dispatcher ready", "handlers", dispatcher.HandlerCount())

	deps := jobs.Deps{
		Logger:     log,
		Store:      store,
		Dispatcher: dispatcher,
		Calendar:   calendar.Unconfigured{},
		Location:   loc,
	}

	sched, err := scheduler.NewScheduler(log, loc)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	if err := registerJobs(sched, &cfg.Scheduler, jobs.RegisterAllJobs(deps)); err != nil {
		log.Error("Failed to register scheduled jobs", "error", err)
		return 1
	}

	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error("Failed to stop scheduler", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	// The scheduler runs on its own goroutines, so the group must block on
	// the signal context even when no server is attached to it.
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web.Addr, store, log, loc)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("majordomo started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Stopped due to error", "error", err)
		return 1
	}

	log.Info("majordomo stopped gracefully")
	return 0
}

// registerJobs binds each job body to its configured trigger.
func registerJobs(sched *scheduler.Scheduler, cfg *config.SchedulerConfig, jobSet map[string]scheduler.JobFunc) error {
	daily := []struct {
		name   string
		hour   int
		minute int
	}{
		{"morning_summary", cfg.MorningSummaryHour, cfg.MorningSummaryMinute},
		{"eod_review", cfg.EODReviewHour, cfg.EODReviewMinute},
		{"maintenance", cfg.MaintenanceHour, 0},
	}
	for _, d := range daily {
		if err := sched.AddDailyJob(d.name, d.hour, d.minute, jobSet[d.name]); err != nil {
			return err
		}
	}

	intervals := []struct {
		name  string
		every time.Duration
	}{
		{"reminder_delivery", cfg.ReminderInterval},
		{"recurrence_sweep", cfg.RecurrenceInterval},
		{"calendar_sync", cfg.CalendarSyncInterval},
	}
	for _, iv := range intervals {
		if err := sched.AddIntervalJob(iv.name, iv.every, jobSet[iv.name]); err != nil {
			return err
		}
	}
	return nil
}
