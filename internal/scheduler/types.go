// Package scheduler executes named recurring jobs on interval or calendar
// triggers, persisting schedule state so it survives process restarts.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// JobTimeout is the maximum duration a job execution can run before being cancelled.
const JobTimeout = 5 * time.Minute

// DefaultMisfireGrace is how long a saturated fire may wait before being abandoned.
const DefaultMisfireGrace = 60 * time.Second

// JobFunc is the unit of work bound to a job at registration time.
type JobFunc func(ctx context.Context) error

// CalendarSpec fires at a fixed local time, optionally restricted to weekdays.
type CalendarSpec struct {
	Hour     int            `msgpack:"hour"`
	Minute   int            `msgpack:"minute"`
	Weekdays []time.Weekday `msgpack:"weekdays"` // empty = every day
}

// Trigger defines when a job fires. Exactly one of Interval or Calendar
// must be set.
type Trigger struct {
	Interval time.Duration `msgpack:"interval"`
	Calendar *CalendarSpec `msgpack:"calendar"`
}

// Validate rejects malformed trigger definitions with a descriptive error.
func (t Trigger) Validate() error {
	hasInterval := t.Interval > 0
	hasCalendar := t.Calendar != nil

	if hasInterval == hasCalendar {
		return fmt.Errorf("trigger must set exactly one of interval or calendar")
	}

	if hasInterval && t.Interval < time.Second {
		return fmt.Errorf("trigger interval must be at least one second, got %s", t.Interval)
	}

	if hasCalendar {
		c := t.Calendar
		if c.Hour < 0 || c.Hour > 23 {
			return fmt.Errorf("calendar hour must be in [0,23], got %d", c.Hour)
		}
		if c.Minute < 0 || c.Minute > 59 {
			return fmt.Errorf("calendar minute must be in [0,59], got %d", c.Minute)
		}
		for _, wd := range c.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("invalid weekday %d", wd)
			}
		}
	}

	return nil
}

// cronSpec renders a calendar trigger as a standard 5-field cron expression.
// Only valid for calendar triggers.
func (t Trigger) cronSpec() string {
	c := t.Calendar

	dow := "*"
	if len(c.Weekdays) > 0 {
		parts := make([]string, len(c.Weekdays))
		for i, wd := range c.Weekdays {
			parts[i] = fmt.Sprintf("%d", int(wd))
		}
		dow = strings.Join(parts, ",")
	}

	return fmt.Sprintf("%d %d * * %s", c.Minute, c.Hour, dow)
}

// String returns a human-readable description of the trigger.
func (t Trigger) String() string {
	if t.Interval > 0 {
		return fmt.Sprintf("every %s", t.Interval)
	}
	if t.Calendar != nil {
		return fmt.Sprintf("at %02d:%02d (%s)", t.Calendar.Hour, t.Calendar.Minute, t.cronSpec())
	}
	return "invalid"
}

// Job is a registered unit of scheduled work. Jobs carry no mutable state;
// execution is stateless invocation of the bound function.
type Job struct {
	ID           string
	Name         string
	Trigger      Trigger
	MaxInstances int           // concurrent executions allowed per job id (default 1)
	Coalesce     bool          // collapse fires that arrive while saturated
	MisfireGrace time.Duration // how long a deferred fire may wait (default 60s)
}

// applyDefaults fills zero-valued tuning fields.
func (j *Job) applyDefaults() {
	if j.MaxInstances <= 0 {
		j.MaxInstances = 1
	}
	if j.MisfireGrace <= 0 {
		j.MisfireGrace = DefaultMisfireGrace
	}
	if j.Name == "" {
		j.Name = j.ID
	}
}

// Status reports scheduler state
type Status struct {
	Running      bool       `json:"running"`
	JobCount     int        `json:"job_count"`
	NextFireTime *time.Time `json:"next_fire_time,omitempty"`
}
