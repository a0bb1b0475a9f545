package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkallio/finwatch/internal/events"
	"github.com/mkallio/finwatch/internal/watchdog"
)

// fakeSource serves canned transactions per subject and doubles as the
// subject lister.
type fakeSource struct {
	mu       sync.Mutex
	subjects []string
	txns     map[string][]watchdog.Transaction
	failFor  map[string]bool
	listErr  error
}

func (f *fakeSource) ActiveSubjects(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subjects, nil
}

func (f *fakeSource) TransactionsInRange(ctx context.Context, subjectID string, start, end time.Time) ([]watchdog.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[subjectID] {
		return nil, errors.New("query failed")
	}
	var out []watchdog.Transaction
	for _, t := range f.txns[subjectID] {
		if !t.Timestamp.Before(start) && t.Timestamp.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSource) setTxns(subjectID string, txns []watchdog.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txns == nil {
		f.txns = map[string][]watchdog.Transaction{}
	}
	f.txns[subjectID] = txns
}

// criticalTxns produces data that scores in the emergency band: a single
// income spike cancelled by a single expense spike, so savings are zero
// and both volatility factors saturate.
func criticalTxns() []watchdog.Transaction {
	now := time.Now()
	return []watchdog.Transaction{
		{Amount: -1000, Timestamp: now.AddDate(0, 0, -5)},
		{Amount: 1000, Timestamp: now.AddDate(0, 0, -3)},
	}
}

// steadyTxns produces on-target data: daily income and expenses that net
// out right at the required monthly savings with no volatility.
func steadyTxns() []watchdog.Transaction {
	now := time.Now()
	var txns []watchdog.Transaction
	for d := 0; d < 30; d++ {
		ts := now.AddDate(0, 0, -d).Add(-2 * time.Hour)
		txns = append(txns,
			watchdog.Transaction{Amount: -100, Timestamp: ts},
			watchdog.Transaction{Amount: 44.5, Timestamp: ts},
		)
	}
	return txns
}

type capturedEvents struct {
	mu     sync.Mutex
	events []*events.Event
}

func (c *capturedEvents) add(e *events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturedEvents) byCategory(cat events.Category) []*events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*events.Event
	for _, e := range c.events {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T, source *fakeSource) (*Service, *events.Bus, *capturedEvents) {
	t.Helper()

	bus := events.NewBusWithOptions(zerolog.Nop(), events.Options{
		QueueSize:    64,
		DrainTimeout: 2 * time.Second,
	})
	bus.Start()
	t.Cleanup(bus.Stop)

	captured := &capturedEvents{}
	for _, cat := range []events.Category{events.AssessmentCompleted, events.ModeChanged, events.EmergencyDeclared} {
		bus.Subscribe(cat, func(e *events.Event) error {
			captured.add(e)
			return nil
		})
	}

	wd := watchdog.New(source, watchdog.GoalConfig{TargetAmount: 100000, Years: 5}, zerolog.Nop())
	svc := NewService(wd, bus, source, zerolog.Nop())
	return svc, bus, captured
}

func waitForEvents(t *testing.T, bus *events.Bus, n uint64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if bus.Stats().EventsProcessed >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events", n)
}

func TestRunNightlyAnalysisPublishesPerSubject(t *testing.T) {
	source := &fakeSource{subjects: []string{"alice", "bob"}}
	source.setTxns("alice", steadyTxns())
	source.setTxns("bob", criticalTxns())

	svc, bus, captured := newTestService(t, source)

	require.NoError(t, svc.RunNightlyAnalysis(context.Background()))
	waitForEvents(t, bus, 2)

	assessments := captured.byCategory(events.AssessmentCompleted)
	require.Len(t, assessments, 2)
	assert.Equal(t, "alice", assessments[0].SubjectID)
	assert.Equal(t, "bob", assessments[1].SubjectID)
	assert.Equal(t, events.PriorityLow, assessments[0].Priority)
	assert.Equal(t, events.PriorityCritical, assessments[1].Priority)
}

func TestRunNightlyAnalysisIsolatesSubjectFailures(t *testing.T) {
	source := &fakeSource{
		subjects: []string{"bad", "good"},
		failFor:  map[string]bool{"bad": true},
	}
	source.setTxns("good", steadyTxns())

	svc, bus, captured := newTestService(t, source)

	err := svc.RunNightlyAnalysis(context.Background())
	require.Error(t, err, "aggregate failure is reported")
	waitForEvents(t, bus, 1)

	assessments := captured.byCategory(events.AssessmentCompleted)
	require.Len(t, assessments, 1, "healthy subject still assessed")
	assert.Equal(t, "good", assessments[0].SubjectID)
}

func TestRunNightlyAnalysisListError(t *testing.T) {
	source := &fakeSource{listErr: errors.New("database offline")}
	svc, _, _ := newTestService(t, source)

	err := svc.RunNightlyAnalysis(context.Background())
	assert.Error(t, err)
}

func TestRunMonitoringSweepPublishesOnModeChangeOnly(t *testing.T) {
	source := &fakeSource{subjects: []string{"alice"}}
	source.setTxns("alice", steadyTxns())

	svc, bus, captured := newTestService(t, source)
	ctx := context.Background()

	// First sweep establishes the mode and announces it.
	require.NoError(t, svc.RunMonitoringSweep(ctx))
	waitForEvents(t, bus, 1)
	require.Len(t, captured.byCategory(events.ModeChanged), 1)

	// Same data, same mode: silent sweep.
	require.NoError(t, svc.RunMonitoringSweep(ctx))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, captured.byCategory(events.ModeChanged), 1)

	// Deteriorating data flips the mode and announces again.
	source.setTxns("alice", criticalTxns())
	require.NoError(t, svc.RunMonitoringSweep(ctx))
	waitForEvents(t, bus, 3)

	changes := captured.byCategory(events.ModeChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, string(watchdog.ModePassive), changes[0].Payload["mode"])
	assert.Equal(t, string(watchdog.ModeEmergency), changes[1].Payload["mode"])
	assert.Equal(t, events.PriorityCritical, changes[1].Priority)
}

func TestRunMonitoringSweepDeclaresEmergency(t *testing.T) {
	source := &fakeSource{subjects: []string{"alice"}}
	source.setTxns("alice", criticalTxns())

	svc, bus, captured := newTestService(t, source)

	require.NoError(t, svc.RunMonitoringSweep(context.Background()))
	waitForEvents(t, bus, 2)

	emergencies := captured.byCategory(events.EmergencyDeclared)
	require.Len(t, emergencies, 1)
	assert.Equal(t, "alice", emergencies[0].SubjectID)
	assert.Equal(t, events.PriorityCritical, emergencies[0].Priority)
	assert.Contains(t, emergencies[0].Payload, "protocol")
}

func TestPriorityForMode(t *testing.T) {
	assert.Equal(t, events.PriorityLow, priorityForMode(watchdog.ModePassive))
	assert.Equal(t, events.PriorityNormal, priorityForMode(watchdog.ModeActive))
	assert.Equal(t, events.PriorityHigh, priorityForMode(watchdog.ModeAggressive))
	assert.Equal(t, events.PriorityCritical, priorityForMode(watchdog.ModeEmergency))
}
