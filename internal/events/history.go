package events

import "sync"

// historyRing is a bounded ring buffer of delivered events.
// Once full, the oldest entry is evicted on each append.
type historyRing struct {
	buf   []*Event
	head  int // index of the oldest entry
	count int
	mu    sync.RWMutex
}

func newHistoryRing(size int) *historyRing {
	if size < 1 {
		size = 1
	}
	return &historyRing{
		buf: make([]*Event, size),
	}
}

// Append adds an event, evicting the oldest entry when the buffer is full.
func (r *historyRing) Append(event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = event
		r.count++
		return
	}

	// Full: overwrite the oldest slot and advance head
	r.buf[r.head] = event
	r.head = (r.head + 1) % len(r.buf)
}

// Query returns the most recent events matching the filters, in
// chronological (oldest-first) order. A zero category or empty subjectID
// matches everything; limit <= 0 means no limit.
func (r *historyRing) Query(category Category, subjectID string, limit int) []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		event := r.buf[(r.head+i)%len(r.buf)]
		if category != "" && event.Category != category {
			continue
		}
		if subjectID != "" && event.SubjectID != subjectID {
			continue
		}
		matches = append(matches, event)
	}

	if limit > 0 && len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	return matches
}

// Len returns the number of retained events.
func (r *historyRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
