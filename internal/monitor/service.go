// Package monitor contains the scheduled job bodies that drive the
// watchdog and publish its results through the event router.
package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mkallio/finwatch/internal/events"
	"github.com/mkallio/finwatch/internal/watchdog"
)

// SubjectLister provides the set of subjects to monitor. Implemented by
// the external data-access collaborator.
type SubjectLister interface {
	ActiveSubjects(ctx context.Context) ([]string, error)
}

// Service holds the monitoring job bodies. The only state it keeps is
// the last published mode per subject, used to publish alerts on change
// only; assessments themselves are stateless.
type Service struct {
	watchdog *watchdog.Watchdog
	bus      *events.Bus
	subjects SubjectLister
	lastMode map[string]watchdog.Mode
	mu       sync.Mutex
	log      zerolog.Logger
}

// NewService creates the monitoring service.
func NewService(wd *watchdog.Watchdog, bus *events.Bus, subjects SubjectLister, log zerolog.Logger) *Service {
	return &Service{
		watchdog: wd,
		bus:      bus,
		subjects: subjects,
		lastMode: make(map[string]watchdog.Mode),
		log:      log.With().Str("component", "monitor").Logger(),
	}
}

// RunNightlyAnalysis re-assesses every active subject and publishes the
// full assessment. Per-subject failures are isolated: the remaining
// subjects still run.
func (s *Service) RunNightlyAnalysis(ctx context.Context) error {
	subjects, err := s.subjects.ActiveSubjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}

	failed := 0
	for _, subjectID := range subjects {
		assessment, err := s.watchdog.Assess(ctx, subjectID)
		if err != nil {
			failed++
			s.log.Error().Err(err).Str("subject_id", subjectID).Msg("Nightly analysis failed for subject")
			continue
		}

		s.publishAssessment(assessment)
	}

	s.log.Info().
		Int("subjects", len(subjects)).
		Int("failed", failed).
		Msg("Nightly analysis completed")

	if failed > 0 {
		return fmt.Errorf("analysis failed for %d of %d subjects", failed, len(subjects))
	}
	return nil
}

// RunMonitoringSweep re-assesses every subject and publishes an alert
// only when a subject's mode changed since the last published one. At
// emergency, the full protocol is published as well.
func (s *Service) RunMonitoringSweep(ctx context.Context) error {
	subjects, err := s.subjects.ActiveSubjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}

	failed := 0
	for _, subjectID := range subjects {
		if err := s.sweepOne(ctx, subjectID); err != nil {
			failed++
			s.log.Error().Err(err).Str("subject_id", subjectID).Msg("Monitoring sweep failed for subject")
		}
	}

	if failed > 0 {
		return fmt.Errorf("sweep failed for %d of %d subjects", failed, len(subjects))
	}
	return nil
}

func (s *Service) sweepOne(ctx context.Context, subjectID string) error {
	assessment, err := s.watchdog.Assess(ctx, subjectID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	previous, seen := s.lastMode[subjectID]
	s.lastMode[subjectID] = assessment.WatchdogMode
	s.mu.Unlock()

	if seen && previous == assessment.WatchdogMode {
		return nil
	}

	comm := s.watchdog.Communication(assessment)
	if err := s.bus.Emit(events.ModeChanged, "monitor", subjectID, priorityForMode(assessment.WatchdogMode), map[string]interface{}{
		"mode":          string(assessment.WatchdogMode),
		"previousMode":  string(previous),
		"riskScore":     assessment.RiskScore,
		"riskLevel":     string(assessment.RiskLevel),
		"savingsGap":    assessment.SavingsGap,
		"communication": comm,
	}); err != nil {
		return err
	}

	if assessment.WatchdogMode == watchdog.ModeEmergency {
		protocol, err := s.watchdog.EmergencyProtocol(ctx, subjectID)
		if err != nil {
			return fmt.Errorf("failed to build emergency protocol: %w", err)
		}
		return s.bus.Emit(events.EmergencyDeclared, "monitor", subjectID, events.PriorityCritical, map[string]interface{}{
			"protocol": protocol,
		})
	}

	return nil
}

func (s *Service) publishAssessment(assessment *watchdog.RiskAssessment) {
	err := s.bus.Emit(events.AssessmentCompleted, "monitor", assessment.SubjectID, priorityForMode(assessment.WatchdogMode), map[string]interface{}{
		"riskScore":        assessment.RiskScore,
		"riskLevel":        string(assessment.RiskLevel),
		"mode":             string(assessment.WatchdogMode),
		"savingsGap":       assessment.SavingsGap,
		"insufficientData": assessment.InsufficientData,
	})
	if err != nil {
		s.log.Error().Err(err).Str("subject_id", assessment.SubjectID).Msg("Failed to publish assessment")
	}
}

// priorityForMode maps a watchdog mode to an event priority.
func priorityForMode(mode watchdog.Mode) events.Priority {
	switch mode {
	case watchdog.ModePassive:
		return events.PriorityLow
	case watchdog.ModeActive:
		return events.PriorityNormal
	case watchdog.ModeAggressive:
		return events.PriorityHigh
	default:
		return events.PriorityCritical
	}
}
