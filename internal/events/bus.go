package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mkallio/finwatch/internal/metrics"
)

// ErrBusStopped is returned by Publish after Stop has been called.
var ErrBusStopped = errors.New("event bus is stopped")

// Default sizing for the history buffer and delivery queue.
const (
	DefaultHistorySize  = 10000
	DefaultQueueSize    = 4096
	DefaultDrainTimeout = 10 * time.Second
)

// Options tunes bus behavior. Zero values fall back to the defaults above.
type Options struct {
	HistorySize  int
	QueueSize    int
	DrainTimeout time.Duration
}

type subscriberEntry struct {
	id      string
	handler Handler
}

// Bus routes published events to subscribers asynchronously.
//
// A single delivery loop drains the queue one event at a time. For each
// event, every subscriber of its category is invoked concurrently and the
// loop waits for the whole fan-out to finish before dequeuing the next
// event. This preserves publish order per category while parallelizing
// work within one event.
//
// Subscribers registered after an event was published but before it was
// delivered may or may not receive it; callers must not depend on
// registration completing synchronously with delivery.
//
// The delivery queue is bounded; Publish blocks while it is full. This is
// the chosen backpressure policy for sustained overload.
type Bus struct {
	subscribers  map[Category][]subscriberEntry
	history      *historyRing
	queue        chan *Event
	stop         chan struct{}
	stopDone     chan struct{}
	drainTimeout time.Duration
	running      bool
	closed       bool
	processed    atomic.Uint64
	failed       atomic.Uint64
	log          zerolog.Logger
	mu           sync.RWMutex
}

// NewBus creates a new event bus with default sizing
func NewBus(log zerolog.Logger) *Bus {
	return NewBusWithOptions(log, Options{})
}

// NewBusWithOptions creates a new event bus with explicit sizing.
// This is primarily used by main wiring and tests.
func NewBusWithOptions(log zerolog.Logger, opts Options) *Bus {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	return &Bus{
		subscribers:  make(map[Category][]subscriberEntry),
		history:      newHistoryRing(opts.HistorySize),
		queue:        make(chan *Event, opts.QueueSize),
		stop:         make(chan struct{}),
		stopDone:     make(chan struct{}),
		drainTimeout: opts.DrainTimeout,
		log:          log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for a category and returns a removal handle.
// Multiple handlers per category are allowed and invoked in subscription order.
func (b *Bus) Subscribe(category Category, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := subscriberEntry{
		id:      uuid.New().String(),
		handler: handler,
	}
	b.subscribers[category] = append(b.subscribers[category], entry)

	b.log.Debug().
		Str("category", string(category)).
		Str("subscription_id", entry.id).
		Msg("Subscriber registered")

	return &Subscription{ID: entry.id, Category: category}
}

// Unsubscribe removes a previously registered handler.
// It is a no-op for nil or already removed handles. Deliveries already
// dispatched are not cancelled.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subscribers[sub.Category]
	for i, entry := range entries {
		if entry.id == sub.ID {
			b.subscribers[sub.Category] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Emit constructs an event and publishes it. Convenience wrapper around Publish.
func (b *Bus) Emit(category Category, source, subjectID string, priority Priority, payload map[string]interface{}) error {
	return b.Publish(&Event{
		Category:  category,
		SubjectID: subjectID,
		Payload:   payload,
		Source:    source,
		Priority:  priority,
	})
}

// Publish appends the event to the history and enqueues it for
// asynchronous delivery. It blocks only while the bounded queue is full
// and fails only after Stop has been called.
func (b *Bus) Publish(event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Priority == "" {
		event.Priority = PriorityNormal
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusStopped
	}

	b.history.Append(event)

	select {
	case b.queue <- event:
	case <-b.stop:
		return ErrBusStopped
	}

	metrics.EventsPublished.Inc()
	metrics.EventQueueDepth.Set(float64(len(b.queue)))

	b.log.Debug().
		Str("category", string(event.Category)).
		Str("source", event.Source).
		Str("subject_id", event.SubjectID).
		Str("priority", string(event.Priority)).
		Msg("Event published")

	return nil
}

// Start begins the delivery loop
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running || b.closed {
		b.log.Warn().Msg("Event bus already started or stopped, ignoring")
		return
	}
	b.running = true

	go b.deliveryLoop()
	b.log.Info().Msg("Event bus started")
}

// Stop shuts down the delivery loop. Queued events are drained within the
// configured grace period; anything still queued afterwards is discarded
// with a warning. Publish fails from this point on.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	wasRunning := b.running
	b.running = false
	close(b.stop)
	b.mu.Unlock()

	if !wasRunning {
		return
	}

	select {
	case <-b.stopDone:
		b.log.Info().Msg("Event bus stopped")
	case <-time.After(b.drainTimeout + time.Second):
		b.log.Warn().
			Int("queue_depth", len(b.queue)).
			Msg("Event bus stop timed out waiting for delivery loop")
	}
}

// History returns the most recent matching events in chronological order.
// Empty category or subjectID match everything; limit <= 0 means no limit.
func (b *Bus) History(category Category, subjectID string, limit int) []*Event {
	return b.history.Query(category, subjectID, limit)
}

// Stats returns router counters and current state
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, entries := range b.subscribers {
		total += len(entries)
	}

	return Stats{
		EventsProcessed: b.processed.Load(),
		EventsFailed:    b.failed.Load(),
		Subscribers:     total,
		QueueDepth:      len(b.queue),
		Running:         b.running,
	}
}

// deliveryLoop is the single consumer draining the queue.
func (b *Bus) deliveryLoop() {
	defer close(b.stopDone)

	for {
		select {
		case <-b.stop:
			b.drainRemaining()
			return
		case event := <-b.queue:
			b.deliver(event)
		}
	}
}

// drainRemaining delivers queued events until the queue is empty or the
// grace period elapses. Events past the deadline are discarded.
func (b *Bus) drainRemaining() {
	deadline := time.Now().Add(b.drainTimeout)
	discarded := 0

	for {
		select {
		case event := <-b.queue:
			if time.Now().After(deadline) {
				discarded++
				continue
			}
			b.deliver(event)
		default:
			if discarded > 0 {
				b.log.Warn().
					Int("discarded", discarded).
					Msg("Discarded undelivered events after drain timeout")
			}
			return
		}
	}
}

// deliver fans the event out to all currently registered subscribers of
// its category and waits for every invocation to finish.
func (b *Bus) deliver(event *Event) {
	b.mu.RLock()
	entries := make([]subscriberEntry, len(b.subscribers[event.Category]))
	copy(entries, b.subscribers[event.Category])
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(entry subscriberEntry) {
			defer wg.Done()
			b.invoke(entry, event)
		}(entry)
	}
	wg.Wait()

	b.processed.Add(1)
	metrics.EventsDelivered.Inc()
	metrics.EventQueueDepth.Set(float64(len(b.queue)))
}

// invoke runs one subscriber callback, isolating errors and panics so a
// failing subscriber never affects its siblings or the delivery loop.
func (b *Bus) invoke(entry subscriberEntry, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			metrics.EventDeliveryFailures.Inc()
			b.log.Error().
				Interface("panic", r).
				Str("category", string(event.Category)).
				Str("source", event.Source).
				Str("subscription_id", entry.id).
				Msg("Subscriber panicked")
		}
	}()

	if err := entry.handler(event); err != nil {
		b.failed.Add(1)
		metrics.EventDeliveryFailures.Inc()
		b.log.Error().
			Err(err).
			Str("category", string(event.Category)).
			Str("source", event.Source).
			Str("subscription_id", entry.id).
			Msg("Subscriber callback failed")
	}
}
