package finance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkallio/finwatch/internal/database"
)

func newTestReader(t *testing.T) (*Reader, *database.DB) {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "finance.db"),
		Name: "finance",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewReader(db, zerolog.Nop()), db
}

func insertTxn(t *testing.T, db *database.DB, id, subject string, amount float64, category string, ts time.Time) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO transactions (id, subject_id, amount, category, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		id, subject, amount, category, ts.Unix())
	require.NoError(t, err)
}

func TestTransactionsInRange(t *testing.T) {
	reader, db := newTestReader(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	insertTxn(t, db, "t1", "alice", -2000, "", now.AddDate(0, 0, -10))
	insertTxn(t, db, "t2", "alice", 150, "groceries", now.AddDate(0, 0, -5))
	insertTxn(t, db, "t3", "alice", 90, "dining", now.AddDate(0, 0, -40)) // outside range
	insertTxn(t, db, "t4", "bob", 75, "transport", now.AddDate(0, 0, -5)) // other subject

	txns, err := reader.TransactionsInRange(ctx, "alice", now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, -2000.0, txns[0].Amount, "oldest first")
	assert.Equal(t, 150.0, txns[1].Amount)
	assert.Equal(t, "groceries", txns[1].Category)
	assert.Equal(t, now.AddDate(0, 0, -5).Unix(), txns[1].Timestamp.Unix())
}

func TestTransactionsInRangeEndExclusive(t *testing.T) {
	reader, db := newTestReader(t)
	ctx := context.Background()

	boundary := time.Now().Truncate(time.Second)
	insertTxn(t, db, "t1", "alice", 10, "", boundary)

	txns, err := reader.TransactionsInRange(ctx, "alice", boundary.AddDate(0, 0, -1), boundary)
	require.NoError(t, err)
	assert.Empty(t, txns, "end of range is exclusive")

	txns, err = reader.TransactionsInRange(ctx, "alice", boundary, boundary.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, txns, 1, "start of range is inclusive")
}

func TestActiveSubjects(t *testing.T) {
	reader, db := newTestReader(t)
	ctx := context.Background()

	subjects, err := reader.ActiveSubjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, subjects)

	now := time.Now()
	insertTxn(t, db, "t1", "bob", 10, "", now)
	insertTxn(t, db, "t2", "alice", 20, "", now)
	insertTxn(t, db, "t3", "alice", 30, "", now)

	subjects, err = reader.ActiveSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, subjects)
}
