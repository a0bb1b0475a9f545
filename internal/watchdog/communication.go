package watchdog

import (
	"fmt"
	"math"
)

// Urgency mirrors event priority for downstream notification dispatchers.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Communication is the mode-keyed guidance payload consumed by the
// notification and UI collaborators.
type Communication struct {
	Mode    Mode     `json:"mode"`
	Urgency Urgency  `json:"urgency"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
}

// Communication builds the guidance payload for an assessment's mode.
func (w *Watchdog) Communication(assessment *RiskAssessment) Communication {
	required := w.goal.RequiredMonthlySavings()
	gap := math.Max(assessment.SavingsGap, 0)
	monthlySavings := assessment.Snapshot.Window30.NetSavings

	if assessment.InsufficientData {
		return Communication{
			Mode:    assessment.WatchdogMode,
			Urgency: UrgencyNormal,
			Title:   "Not enough recent activity",
			Message: "There is too little transaction history to judge progress toward the savings goal. Default guidance is shown until more data arrives.",
			Actions: []string{
				"Connect or import recent transactions",
				fmt.Sprintf("Aim for %.0f in monthly savings as a baseline", required),
			},
		}
	}

	switch assessment.WatchdogMode {
	case ModePassive:
		return Communication{
			Mode:    ModePassive,
			Urgency: UrgencyLow,
			Title:   "On track",
			Message: fmt.Sprintf("Savings are on pace: %.0f put aside over the last 30 days against a %.0f monthly target. Keep doing what you are doing.", monthlySavings, required),
			Actions: []string{
				"Consider moving surplus savings to an interest-bearing account",
			},
		}

	case ModeActive:
		return Communication{
			Mode:    ModeActive,
			Urgency: UrgencyNormal,
			Title:   "Falling behind the savings target",
			Message: fmt.Sprintf("You are %.0f short of the %.0f required this month. Closing the gap now avoids harder cuts later.", gap, required),
			Actions: []string{
				fmt.Sprintf("Cut discretionary spending by %.0f this month", gap*0.6),
				fmt.Sprintf("Find %.0f in extra income (overtime, side work, sales)", gap*0.4),
				"Review subscriptions and cancel anything unused",
			},
		}

	case ModeAggressive:
		return Communication{
			Mode:    ModeAggressive,
			Urgency: UrgencyHigh,
			Title:   "Savings goal at serious risk",
			Message: fmt.Sprintf("The monthly shortfall has reached %.0f against a %.0f target. Daily action is now required; a spending lockdown will follow if the trend continues.", gap, required),
			Actions: []string{
				"Log every expense daily until the gap closes",
				fmt.Sprintf("Hold non-essential spending under %.0f per day", math.Max(required/30*0.2, 5)),
				"Pause all non-essential purchases over 50 until further notice",
				"Identify one immediate income action this week",
			},
		}

	default: // ModeEmergency
		return Communication{
			Mode:    ModeEmergency,
			Urgency: UrgencyCritical,
			Title:   "Emergency: full spending lockdown",
			Message: fmt.Sprintf("The savings plan is failing (shortfall %.0f of %.0f). The emergency protocol is in effect: category spending caps apply, with escalation reviews on days 3, 7, and 14.", gap, required),
			Actions: []string{
				"Follow the emergency protocol action list in priority order",
				"All discretionary categories are capped at zero",
				"Essential categories are capped at 80% of recent spend",
				"Escalation review on day 3, 7, and 14 until the trend reverses",
			},
		}
	}
}
