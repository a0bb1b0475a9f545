// Package main is the entry point for the finwatch monitoring service.
// It wires the event router, the job scheduler, and the financial
// watchdog, registers the recurring jobs, and runs until interrupted.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkallio/finwatch/internal/config"
	"github.com/mkallio/finwatch/internal/database"
	"github.com/mkallio/finwatch/internal/events"
	"github.com/mkallio/finwatch/internal/finance"
	"github.com/mkallio/finwatch/internal/metrics"
	"github.com/mkallio/finwatch/internal/monitor"
	"github.com/mkallio/finwatch/internal/reliability"
	"github.com/mkallio/finwatch/internal/scheduler"
	"github.com/mkallio/finwatch/internal/watchdog"
	"github.com/mkallio/finwatch/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("timezone", cfg.Timezone).
		Msg("Starting finwatch")

	metrics.Serve(cfg.MetricsPort, log)

	// Databases
	schedulerDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "scheduler.db"),
		Name: "scheduler",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open scheduler database")
	}
	defer schedulerDB.Close()

	financeDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "finance.db"),
		Name: "finance",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open finance database")
	}
	defer financeDB.Close()

	for _, db := range []*database.DB{schedulerDB, financeDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	// Event router
	bus := events.NewBusWithOptions(log, events.Options{
		HistorySize:  cfg.EventHistorySize,
		QueueSize:    cfg.EventQueueSize,
		DrainTimeout: cfg.DrainTimeout,
	})
	bus.Start()

	subscribeEventLogging(bus, log)

	// Watchdog and monitor
	reader := finance.NewReader(financeDB, log)
	wd := watchdog.New(reader, watchdog.GoalConfig{
		TargetAmount: cfg.SavingsTarget,
		Years:        cfg.SavingsYears,
	}, log)
	mon := monitor.NewService(wd, bus, reader, log)

	// Reliability jobs
	databases := map[string]*database.DB{
		"scheduler": schedulerDB,
		"finance":   financeDB,
	}
	backupDir := filepath.Join(cfg.DataDir, "backups")
	maintenanceJob := reliability.NewMaintenanceJob(databases, cfg.DataDir, bus, log)
	backupJob := reliability.NewBackupJob(databases, backupDir, 0, bus, log)

	// Scheduler
	store := scheduler.NewStore(schedulerDB, log)
	sched := scheduler.New(store, cfg.Location(), cfg.SchedulerWorkers, cfg.DrainTimeout, log)

	if err := registerJobs(sched, mon, maintenanceJob, backupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	sched.Start()
	log.Info().Msg("Scheduler started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	sched.Stop()
	bus.Stop()

	log.Info().Msg("Shutdown complete")
}

// registerJobs binds the recurring jobs to the scheduler.
func registerJobs(sched *scheduler.Scheduler, mon *monitor.Service, maintenance *reliability.MaintenanceJob, backup *reliability.BackupJob) error {
	jobs := []struct {
		job scheduler.Job
		fn  scheduler.JobFunc
	}{
		{
			job: scheduler.Job{
				ID:           "nightly_analysis",
				Name:         "Nightly financial analysis",
				Trigger:      scheduler.Trigger{Calendar: &scheduler.CalendarSpec{Hour: 3, Minute: 30}},
				Coalesce:     true,
				MisfireGrace: nightlyGrace,
			},
			fn: mon.RunNightlyAnalysis,
		},
		{
			job: scheduler.Job{
				ID:       "monitoring_sweep",
				Name:     "Watchdog monitoring sweep",
				Trigger:  scheduler.Trigger{Interval: sweepInterval},
				Coalesce: true,
			},
			fn: mon.RunMonitoringSweep,
		},
		{
			job: scheduler.Job{
				ID:           "daily_maintenance",
				Name:         "Daily database maintenance",
				Trigger:      scheduler.Trigger{Calendar: &scheduler.CalendarSpec{Hour: 2, Minute: 0}},
				Coalesce:     true,
				MisfireGrace: nightlyGrace,
			},
			fn: maintenance.Run,
		},
		{
			job: scheduler.Job{
				ID:           "daily_backup",
				Name:         "Daily database backup",
				Trigger:      scheduler.Trigger{Calendar: &scheduler.CalendarSpec{Hour: 1, Minute: 0}},
				Coalesce:     true,
				MisfireGrace: nightlyGrace,
			},
			fn: backup.Run,
		},
	}

	for _, j := range jobs {
		if err := sched.RegisterJob(j.job, j.fn); err != nil {
			return err
		}
	}
	return nil
}

const (
	// sweepInterval is how often the watchdog re-checks every subject.
	sweepInterval = 5 * time.Minute
	// nightlyGrace lets a missed overnight run still fire after restart.
	nightlyGrace = time.Hour
)

// subscribeEventLogging attaches debug-level subscribers for the
// watchdog's own events so mode changes always land in the log.
func subscribeEventLogging(bus *events.Bus, log zerolog.Logger) {
	eventLog := log.With().Str("component", "event_log").Logger()

	bus.Subscribe(events.ModeChanged, func(event *events.Event) error {
		eventLog.Info().
			Str("subject_id", event.SubjectID).
			Interface("payload", event.Payload).
			Msg("Watchdog mode changed")
		return nil
	})
	bus.Subscribe(events.EmergencyDeclared, func(event *events.Event) error {
		eventLog.Error().
			Str("subject_id", event.SubjectID).
			Msg("EMERGENCY: savings at critical risk")
		return nil
	})
	bus.Subscribe(events.AssessmentCompleted, func(event *events.Event) error {
		eventLog.Debug().
			Str("subject_id", event.SubjectID).
			Interface("payload", event.Payload).
			Msg("Assessment completed")
		return nil
	})
}

