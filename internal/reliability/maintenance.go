// Package reliability contains the self-maintenance jobs: database
// health checks, WAL hygiene, disk space monitoring, and backups.
package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mkallio/finwatch/internal/database"
	"github.com/mkallio/finwatch/internal/events"
)

const (
	diskCriticalGB = 0.5
	diskLowGB      = 5.0
	diskWarnGB     = 10.0
)

// MaintenanceJob performs daily database and host maintenance.
type MaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	bus       *events.Bus
	log       zerolog.Logger
}

// NewMaintenanceJob creates the daily maintenance job.
func NewMaintenanceJob(databases map[string]*database.DB, dataDir string, bus *events.Bus, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		bus:       bus,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the maintenance pass. Integrity failures and critical
// disk shortage return an error; everything else is logged and skipped.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running integrity check")
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Database integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running WAL checkpoint")
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical, the next checkpoint catches up.
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.logHostVitals()

	duration := time.Since(startTime)
	j.log.Info().Dur("duration_ms", duration).Msg("Daily maintenance completed")

	return j.bus.Emit(events.MaintenanceDone, "reliability", "", events.PriorityLow, map[string]interface{}{
		"durationMs": duration.Milliseconds(),
		"databases":  len(j.databases),
	})
}

// checkDiskSpace verifies sufficient disk space remains under the data
// directory. Less than 500MB free is a hard failure.
func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if availableGB < diskCriticalGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.dataDir)
	}
	if availableGB < diskLowGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("Low disk space - consider cleanup")
	} else if availableGB < diskWarnGB {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}

	return nil
}

// logHostVitals records CPU and memory load for the maintenance report.
// Failures here never fail the job.
func (j *MaintenanceJob) logHostVitals() {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		j.log.Warn().Err(err).Msg("Failed to read CPU usage")
		cpuPercent = []float64{0}
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read memory usage")
		return
	}

	j.log.Info().
		Float64("cpu_percent", cpuPercent[0]).
		Float64("mem_percent", vm.UsedPercent).
		Uint64("mem_used_mb", vm.Used/1024/1024).
		Msg("Host vitals")
}
