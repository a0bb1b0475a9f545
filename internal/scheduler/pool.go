package scheduler

import (
	"sync"
	"time"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue.
type workerPool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// newWorkerPool creates and starts a pool with n goroutines.
func newWorkerPool(n int) *workerPool {
	if n < 1 {
		n = 1
	}
	p := &workerPool{
		tasks: make(chan func(), n*4),
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit hands a task to the pool, blocking while the queue is full.
// Returns false once the pool has been drained.
func (p *workerPool) Submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.tasks <- task
	return true
}

// Drain closes the queue and waits up to grace for in-flight tasks to
// finish. Returns true if everything completed in time.
func (p *workerPool) Drain(grace time.Duration) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return true
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// QueueLen returns how many tasks are currently queued.
func (p *workerPool) QueueLen() int {
	return len(p.tasks)
}
