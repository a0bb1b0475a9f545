package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mkallio/finwatch/internal/database"
)

// StoredJob is a job definition plus its persisted fire bookkeeping.
type StoredJob struct {
	Job
	NextFireAt *time.Time
	LastFireAt *time.Time
}

// Store persists job definitions and fire bookkeeping so the schedule
// survives a process restart.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a job store backed by the scheduler database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "job_store").Logger(),
	}
}

// Save upserts a job definition. The trigger is serialized as a msgpack blob.
func (s *Store) Save(job Job, nextFire *time.Time) error {
	blob, err := msgpack.Marshal(job.Trigger)
	if err != nil {
		return fmt.Errorf("failed to encode trigger for job %s: %w", job.ID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, name, trigger_def, max_instances, "coalesce", misfire_grace_secs, next_fire_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trigger_def = excluded.trigger_def,
			max_instances = excluded.max_instances,
			"coalesce" = excluded."coalesce",
			misfire_grace_secs = excluded.misfire_grace_secs,
			next_fire_at = excluded.next_fire_at,
			updated_at = excluded.updated_at`,
		job.ID,
		job.Name,
		blob,
		job.MaxInstances,
		boolToInt(job.Coalesce),
		int64(job.MisfireGrace.Seconds()),
		timeToUnix(nextFire),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}

	return nil
}

// UpdateFireTimes records the last fire and the computed next fire for a job.
func (s *Store) UpdateFireTimes(id string, lastFire, nextFire *time.Time) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET last_fire_at = ?, next_fire_at = ?, updated_at = ? WHERE id = ?`,
		timeToUnix(lastFire), timeToUnix(nextFire), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update fire times for job %s: %w", id, err)
	}
	return nil
}

// Load returns all persisted jobs. Rows with an undecodable trigger are
// skipped with a logged error rather than failing the whole load.
func (s *Store) Load() ([]StoredJob, error) {
	rows, err := s.db.Query(`
		SELECT id, name, trigger_def, max_instances, "coalesce", misfire_grace_secs, next_fire_at, last_fire_at
		FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}
	defer rows.Close()

	var jobs []StoredJob
	for rows.Next() {
		var (
			sj           StoredJob
			blob         []byte
			coalesce     int
			graceSecs    int64
			nextFireUnix sql.NullInt64
			lastFireUnix sql.NullInt64
		)
		if err := rows.Scan(&sj.ID, &sj.Name, &blob, &sj.MaxInstances, &coalesce, &graceSecs, &nextFireUnix, &lastFireUnix); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		if err := msgpack.Unmarshal(blob, &sj.Trigger); err != nil {
			s.log.Error().Err(err).Str("job_id", sj.ID).Msg("Skipping job with undecodable trigger")
			continue
		}

		sj.Coalesce = coalesce != 0
		sj.MisfireGrace = time.Duration(graceSecs) * time.Second
		sj.NextFireAt = unixToTime(nextFireUnix)
		sj.LastFireAt = unixToTime(lastFireUnix)

		jobs = append(jobs, sj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}

	return jobs, nil
}

// Delete removes a persisted job definition.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func unixToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
