package reliability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkallio/finwatch/internal/database"
	"github.com/mkallio/finwatch/internal/events"
)

// DefaultBackupRetention is the number of backup files kept per database.
const DefaultBackupRetention = 14

// BackupJob snapshots every database into the backup directory and
// rotates old snapshots.
type BackupJob struct {
	databases map[string]*database.DB
	backupDir string
	retention int
	bus       *events.Bus
	log       zerolog.Logger
}

// NewBackupJob creates the daily backup job. retention <= 0 uses the
// default.
func NewBackupJob(databases map[string]*database.DB, backupDir string, retention int, bus *events.Bus, log zerolog.Logger) *BackupJob {
	if retention <= 0 {
		retention = DefaultBackupRetention
	}
	return &BackupJob{
		databases: databases,
		backupDir: backupDir,
		retention: retention,
		bus:       bus,
		log:       log.With().Str("job", "daily_backup").Logger(),
	}
}

// Run backs up every database. A failure on one database is logged and
// the rest still run; the job fails if any database failed.
func (j *BackupJob) Run(ctx context.Context) error {
	if err := os.MkdirAll(j.backupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")
	failed := 0
	for name, db := range j.databases {
		destPath := filepath.Join(j.backupDir, fmt.Sprintf("%s-%s.db", name, stamp))

		if err := db.BackupTo(destPath); err != nil {
			failed++
			j.log.Error().Str("database", name).Err(err).Msg("Backup failed")
			continue
		}

		j.log.Info().Str("database", name).Str("path", destPath).Msg("Backup written")

		if err := j.rotate(name); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("Backup rotation failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("backup failed for %d of %d databases", failed, len(j.databases))
	}

	return j.bus.Emit(events.BackupDone, "reliability", "", events.PriorityLow, map[string]interface{}{
		"databases": len(j.databases),
		"stamp":     stamp,
	})
}

// rotate deletes the oldest backups of the named database beyond the
// retention count. Timestamped names sort chronologically.
func (j *BackupJob) rotate(name string) error {
	entries, err := os.ReadDir(j.backupDir)
	if err != nil {
		return err
	}

	prefix := name + "-"
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) && strings.HasSuffix(entry.Name(), ".db") {
			backups = append(backups, entry.Name())
		}
	}

	if len(backups) <= j.retention {
		return nil
	}

	sort.Strings(backups)
	for _, old := range backups[:len(backups)-j.retention] {
		path := filepath.Join(j.backupDir, old)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		j.log.Debug().Str("path", path).Msg("Removed expired backup")
	}

	return nil
}
