package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/mkallio/finwatch/pkg/formulas"
)

// aggregateWindow computes the trailing-window aggregates for the given
// number of days ending at now. Volatility is the standard deviation of
// the per-day income/expense totals, with zero-activity days included.
func aggregateWindow(txns []Transaction, now time.Time, days int) WindowAggregates {
	start := now.AddDate(0, 0, -days)

	incomeDaily := make([]float64, days)
	expenseDaily := make([]float64, days)

	agg := WindowAggregates{Days: days}
	for _, t := range txns {
		if t.Timestamp.Before(start) || t.Timestamp.After(now) {
			continue
		}

		dayIdx := int(now.Sub(t.Timestamp).Hours() / 24)
		if dayIdx < 0 {
			dayIdx = 0
		}
		if dayIdx >= days {
			dayIdx = days - 1
		}

		// Negative = income, positive = expense (source convention)
		if t.Amount < 0 {
			agg.Income += -t.Amount
			incomeDaily[dayIdx] += -t.Amount
		} else {
			agg.Expenses += t.Amount
			expenseDaily[dayIdx] += t.Amount
		}
		agg.TransactionCount++
	}

	agg.NetSavings = agg.Income - agg.Expenses
	agg.IncomeVolatility = formulas.StdDev(incomeDaily)
	agg.ExpenseVolatility = formulas.StdDev(expenseDaily)

	return agg
}

// BuildSnapshot computes a fresh situation snapshot for a subject from
// the data-access collaborator. Nothing is cached or stored.
func (w *Watchdog) BuildSnapshot(ctx context.Context, subjectID string, now time.Time) (*SituationSnapshot, error) {
	txns, err := w.data.TransactionsInRange(ctx, subjectID, now.AddDate(0, 0, -90), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for subject %s: %w", subjectID, err)
	}

	return &SituationSnapshot{
		SubjectID:  subjectID,
		Window7:    aggregateWindow(txns, now, 7),
		Window30:   aggregateWindow(txns, now, 30),
		Window90:   aggregateWindow(txns, now, 90),
		ComputedAt: now,
	}, nil
}
