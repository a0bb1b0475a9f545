// Package watchdog implements savings-goal risk scoring for the
// monitoring core. It turns recent financial activity into a normalized
// risk score, a discrete operating mode, and mode-appropriate guidance.
//
// The machine is stateless between calls: every assessment recomputes the
// mode from the current snapshot, so identical inputs always yield the
// identical mode.
package watchdog

import (
	"context"
	"time"
)

// Mode is the watchdog operating mode, strictly ordered by severity.
type Mode string

const (
	ModePassive    Mode = "passive"
	ModeActive     Mode = "active"
	ModeAggressive Mode = "aggressive"
	ModeEmergency  Mode = "emergency"
)

// Severity returns the mode's position in the PASSIVE < ACTIVE <
// AGGRESSIVE < EMERGENCY ordering.
func (m Mode) Severity() int {
	switch m {
	case ModePassive:
		return 0
	case ModeActive:
		return 1
	case ModeAggressive:
		return 2
	case ModeEmergency:
		return 3
	default:
		return -1
	}
}

// RiskLevel classifies the risk score for reporting.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelForScore maps a score in [0,1] to a risk level. Bands are
// half-open on the lower bound (score <= threshold selects the band), so
// exactly one level applies to any score.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score <= 0.3:
		return RiskLow
	case score <= 0.6:
		return RiskModerate
	case score <= 0.8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ModeForScore maps a score in [0,1] to an operating mode with the same
// half-open band semantics as LevelForScore.
func ModeForScore(score float64) Mode {
	switch {
	case score <= 0.4:
		return ModePassive
	case score <= 0.65:
		return ModeActive
	case score <= 0.85:
		return ModeAggressive
	default:
		return ModeEmergency
	}
}

// Transaction is one financial movement as supplied by the data-access
// collaborator.
type Transaction struct {
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
}

// DataAccess is the injected read-only query interface to the relational
// store owned by an external collaborator.
//
// Sign convention (source-system): negative amounts are income, positive
// amounts are expenses.
type DataAccess interface {
	TransactionsInRange(ctx context.Context, subjectID string, start, end time.Time) ([]Transaction, error)
}

// WindowAggregates holds the aggregate figures for one trailing window.
type WindowAggregates struct {
	Days              int     `json:"days"`
	Income            float64 `json:"income"`
	Expenses          float64 `json:"expenses"`
	NetSavings        float64 `json:"netSavings"`
	IncomeVolatility  float64 `json:"incomeVolatility"`
	ExpenseVolatility float64 `json:"expenseVolatility"`
	TransactionCount  int     `json:"transactionCount"`
}

// SituationSnapshot is the derived (never stored) input to risk scoring:
// trailing 7/30/90-day aggregates for one subject.
type SituationSnapshot struct {
	SubjectID  string           `json:"subjectId"`
	Window7    WindowAggregates `json:"window7"`
	Window30   WindowAggregates `json:"window30"`
	Window90   WindowAggregates `json:"window90"`
	ComputedAt time.Time        `json:"computedAt"`
}

// RiskAssessment is the output of one assessment.
type RiskAssessment struct {
	SubjectID        string             `json:"subjectId"`
	RiskScore        float64            `json:"riskScore"`
	RiskLevel        RiskLevel          `json:"riskLevel"`
	WatchdogMode     Mode               `json:"watchdogMode"`
	SavingsGap       float64            `json:"savingsGap"`
	Factors          map[string]float64 `json:"factors"`
	InsufficientData bool               `json:"insufficientData"`
	Snapshot         SituationSnapshot  `json:"snapshot"`
	AssessedAt       time.Time          `json:"assessedAt"`
}

// GoalConfig is the fixed savings goal the watchdog scores against.
type GoalConfig struct {
	TargetAmount float64 // amount to accumulate
	Years        float64 // horizon in years
}

// RequiredMonthlySavings returns the monthly savings needed to reach the
// target within the horizon.
func (g GoalConfig) RequiredMonthlySavings() float64 {
	if g.TargetAmount <= 0 || g.Years <= 0 {
		return 0
	}
	return g.TargetAmount / (g.Years * 12)
}
