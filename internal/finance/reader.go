// Package finance is the read-only adapter over the transactions
// database. It feeds the watchdog's assessments and the monitor's
// subject enumeration.
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkallio/finwatch/internal/database"
	"github.com/mkallio/finwatch/internal/watchdog"
)

// Reader performs read-only queries against the finance database.
// Amounts follow the ledger convention: positive is an expense,
// negative is income.
type Reader struct {
	db  *database.DB
	log zerolog.Logger
}

// NewReader creates a finance reader.
func NewReader(db *database.DB, log zerolog.Logger) *Reader {
	return &Reader{
		db:  db,
		log: log.With().Str("component", "finance").Logger(),
	}
}

// TransactionsInRange returns the subject's transactions with
// start <= timestamp < end, oldest first.
func (r *Reader) TransactionsInRange(ctx context.Context, subjectID string, start, end time.Time) ([]watchdog.Transaction, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT amount, category, timestamp
		FROM transactions
		WHERE subject_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, subjectID, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []watchdog.Transaction
	for rows.Next() {
		var (
			amount   float64
			category string
			ts       int64
		)
		if err := rows.Scan(&amount, &category, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, watchdog.Transaction{
			Amount:    amount,
			Category:  category,
			Timestamp: time.Unix(ts, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}

// ActiveSubjects returns every subject that has at least one transaction.
func (r *Reader) ActiveSubjects(ctx context.Context) ([]string, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT DISTINCT subject_id FROM transactions ORDER BY subject_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subjects: %w", err)
	}

	return subjects, nil
}
