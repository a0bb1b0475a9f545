package watchdog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// SpendingCategory is the typed identifier shared between the watchdog
// and the category owner. Lockdown caps are keyed by these identifiers,
// never by free-text names.
type SpendingCategory string

const (
	CategoryGroceries     SpendingCategory = "groceries"
	CategoryTransport     SpendingCategory = "transport"
	CategoryDining        SpendingCategory = "dining"
	CategoryEntertainment SpendingCategory = "entertainment"
	CategoryShopping      SpendingCategory = "shopping"
	CategorySubscriptions SpendingCategory = "subscriptions"
	CategoryTravel        SpendingCategory = "travel"
)

// Essential categories keep a reduced cap during lockdown; everything
// else on the whitelist is capped at zero.
var essentialCategories = map[SpendingCategory]bool{
	CategoryGroceries: true,
	CategoryTransport: true,
}

// LockdownCategories returns the whitelist of categories subject to caps.
func LockdownCategories() []SpendingCategory {
	return []SpendingCategory{
		CategoryGroceries,
		CategoryTransport,
		CategoryDining,
		CategoryEntertainment,
		CategoryShopping,
		CategorySubscriptions,
		CategoryTravel,
	}
}

// ParseCategory maps a stored category identifier to the typed
// enumeration. Matching is exact (case-insensitive), not substring-based.
func ParseCategory(s string) (SpendingCategory, bool) {
	c := SpendingCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range LockdownCategories() {
		if c == known {
			return known, true
		}
	}
	return "", false
}

// EmergencyAction is one prioritized step with a numeric target.
type EmergencyAction struct {
	Priority    int     `json:"priority"`
	Kind        string  `json:"kind"` // "income", "expense_cut", "investment"
	Description string  `json:"description"`
	Target      float64 `json:"target"`
}

// LockdownCap is the monthly spending cap for one category.
type LockdownCap struct {
	Category    SpendingCategory `json:"category"`
	MonthlyCap  float64          `json:"monthlyCap"`
	RecentSpend float64          `json:"recentSpend"` // trailing 30-day spend the cap was derived from
}

// EscalationStage is one step of the staged escalation calendar.
type EscalationStage struct {
	AfterDays   int    `json:"afterDays"`
	Description string `json:"description"`
}

// EmergencyProtocol is the full lockdown plan produced at the most
// severe mode.
type EmergencyProtocol struct {
	SubjectID  string            `json:"subjectId"`
	SavingsGap float64           `json:"savingsGap"`
	Actions    []EmergencyAction `json:"actions"`
	Lockdown   []LockdownCap     `json:"lockdown"`
	Escalation []EscalationStage `json:"escalation"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// EmergencyProtocol builds the lockdown plan for a subject from current
// data: prioritized actions (income first, then expense cuts, then
// optional investment activation), per-category caps, and the escalation
// calendar.
func (w *Watchdog) EmergencyProtocol(ctx context.Context, subjectID string) (*EmergencyProtocol, error) {
	now := time.Now()

	snapshot, err := w.BuildSnapshot(ctx, subjectID, now)
	if err != nil {
		return nil, err
	}
	assessment := w.AssessSnapshot(snapshot)

	txns, err := w.data.TransactionsInRange(ctx, subjectID, now.AddDate(0, 0, -30), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for lockdown caps: %w", err)
	}

	return &EmergencyProtocol{
		SubjectID:  subjectID,
		SavingsGap: assessment.SavingsGap,
		Actions:    w.emergencyActions(assessment),
		Lockdown:   buildLockdownCaps(txns),
		Escalation: escalationCalendar(),
		CreatedAt:  now,
	}, nil
}

// emergencyActions produces the prioritized action list with numeric
// targets derived from the savings gap.
func (w *Watchdog) emergencyActions(assessment *RiskAssessment) []EmergencyAction {
	gap := math.Max(assessment.SavingsGap, 0)
	if gap == 0 {
		gap = w.goal.RequiredMonthlySavings()
	}

	return []EmergencyAction{
		{
			Priority:    1,
			Kind:        "income",
			Description: "Raise immediate income: overtime, freelance work, or selling unused assets",
			Target:      math.Round(gap * 0.5),
		},
		{
			Priority:    2,
			Kind:        "expense_cut",
			Description: "Cut discretionary spending to the lockdown caps",
			Target:      math.Round(gap * 0.4),
		},
		{
			Priority:    3,
			Kind:        "investment",
			Description: "Optional: activate low-risk interest on idle balances",
			Target:      math.Round(gap * 0.1),
		},
	}
}

// buildLockdownCaps derives per-category caps from trailing 30-day
// spend. Discretionary categories are capped at zero; essential
// categories keep 80% of their recent spend. Transactions whose category
// is not on the whitelist do not produce caps.
func buildLockdownCaps(txns []Transaction) []LockdownCap {
	spend := make(map[SpendingCategory]float64)
	for _, t := range txns {
		if t.Amount <= 0 {
			continue // income
		}
		category, ok := ParseCategory(t.Category)
		if !ok {
			continue
		}
		spend[category] += t.Amount
	}

	caps := make([]LockdownCap, 0, len(spend))
	for category, total := range spend {
		monthlyCap := 0.0
		if essentialCategories[category] {
			monthlyCap = math.Round(total * 0.8)
		}
		caps = append(caps, LockdownCap{
			Category:    category,
			MonthlyCap:  monthlyCap,
			RecentSpend: total,
		})
	}

	sort.Slice(caps, func(i, j int) bool {
		return caps[i].Category < caps[j].Category
	})

	return caps
}

// escalationCalendar is the fixed staged review plan for emergency mode.
func escalationCalendar() []EscalationStage {
	return []EscalationStage{
		{AfterDays: 3, Description: "Review daily spend against caps; tighten any category still over its cap"},
		{AfterDays: 7, Description: "Re-assess risk score; if still in emergency, extend caps and require a second income action"},
		{AfterDays: 14, Description: "Full situation review with revised goal horizon if the trend has not reversed"},
	}
}
