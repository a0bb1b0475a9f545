package watchdog

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkallio/finwatch/internal/metrics"
	"github.com/mkallio/finwatch/pkg/formulas"
)

// Factor weights for the composite risk score.
const (
	weightSavings = 0.40
	weightIncome  = 0.25
	weightExpense = 0.20
	weightTrend   = 0.15
)

// insufficientDataScore is the conservative default when a subject has no
// recent activity to score. Missing data must never read as "low risk".
const insufficientDataScore = 0.65

// noTrendRisk is the trend factor when there is no positive savings trend
// to compare against.
const noTrendRisk = 0.8

// Watchdog computes risk assessments against a fixed savings goal.
type Watchdog struct {
	data DataAccess
	goal GoalConfig
	log  zerolog.Logger
}

// New creates a watchdog scoring against the given goal.
func New(data DataAccess, goal GoalConfig, log zerolog.Logger) *Watchdog {
	return &Watchdog{
		data: data,
		goal: goal,
		log:  log.With().Str("component", "watchdog").Logger(),
	}
}

// Goal returns the configured savings goal.
func (w *Watchdog) Goal() GoalConfig {
	return w.goal
}

// Assess builds a fresh snapshot for the subject and scores it.
// Data-access failures are returned as errors; business-logic edge cases
// (zero income, no transactions) are encoded in the result instead.
func (w *Watchdog) Assess(ctx context.Context, subjectID string) (*RiskAssessment, error) {
	snapshot, err := w.BuildSnapshot(ctx, subjectID, time.Now())
	if err != nil {
		return nil, err
	}
	return w.AssessSnapshot(snapshot), nil
}

// AssessSnapshot scores an already-built snapshot. Pure and idempotent:
// identical snapshots always yield identical scores, levels, and modes.
func (w *Watchdog) AssessSnapshot(snapshot *SituationSnapshot) *RiskAssessment {
	required := w.goal.RequiredMonthlySavings()
	current := snapshot.Window30.NetSavings
	gap := required - current

	assessment := &RiskAssessment{
		SubjectID:  snapshot.SubjectID,
		SavingsGap: gap,
		Snapshot:   *snapshot,
		AssessedAt: time.Now(),
	}

	if snapshot.Window30.TransactionCount == 0 {
		assessment.InsufficientData = true
		assessment.RiskScore = insufficientDataScore
		assessment.RiskLevel = LevelForScore(assessment.RiskScore)
		assessment.WatchdogMode = ModeForScore(assessment.RiskScore)
		assessment.Factors = map[string]float64{}

		metrics.AssessmentsComputed.WithLabelValues(string(assessment.WatchdogMode)).Inc()
		w.log.Warn().
			Str("subject_id", snapshot.SubjectID).
			Msg("No recent activity, returning conservative low-confidence assessment")
		return assessment
	}

	savingsRisk := 0.0
	if required > 0 {
		savingsRisk = math.Min(math.Abs(gap)/required, 1.0)
	}

	avgDailyIncome := snapshot.Window30.Income / 30
	incomeRisk := 0.5
	if avgDailyIncome > 0 {
		incomeRisk = math.Min(snapshot.Window30.IncomeVolatility/avgDailyIncome, 1.0)
	}

	avgDailyExpense := snapshot.Window30.Expenses / 30
	expenseRisk := 0.5
	if avgDailyExpense > 0 {
		expenseRisk = math.Min(snapshot.Window30.ExpenseVolatility/avgDailyExpense, 1.0)
	}

	// Compare recent daily savings against the monthly baseline. A missing
	// or negative baseline is itself treated as risky.
	recentAvg := snapshot.Window7.NetSavings / 7
	monthlyAvg := snapshot.Window30.NetSavings / 30
	trendRisk := noTrendRisk
	if monthlyAvg > 0 {
		trendRisk = math.Max(0, (monthlyAvg-recentAvg)/monthlyAvg)
	}

	score := formulas.Clamp01(
		weightSavings*savingsRisk +
			weightIncome*incomeRisk +
			weightExpense*expenseRisk +
			weightTrend*trendRisk,
	)

	assessment.RiskScore = score
	assessment.RiskLevel = LevelForScore(score)
	assessment.WatchdogMode = ModeForScore(score)
	assessment.Factors = map[string]float64{
		"savings": savingsRisk,
		"income":  incomeRisk,
		"expense": expenseRisk,
		"trend":   trendRisk,
	}

	metrics.AssessmentsComputed.WithLabelValues(string(assessment.WatchdogMode)).Inc()
	w.log.Debug().
		Str("subject_id", snapshot.SubjectID).
		Float64("risk_score", score).
		Str("risk_level", string(assessment.RiskLevel)).
		Str("mode", string(assessment.WatchdogMode)).
		Float64("savings_gap", gap).
		Msg("Assessment computed")

	return assessment
}
