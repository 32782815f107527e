package governance

import (
	"sync"
	"time"
)

// Notification is one queued investigation notice.
type Notification struct {
	Topic     string    `json:"topic"`
	QueuedAt  time.Time `json:"queued_at"`
	Rationale string    `json:"rationale,omitempty"`
}

// Batcher debounces notifications: every Add restarts the timer, and the
// batch flushes only after delay passes with no new arrivals.
type Batcher struct {
	delay time.Duration
	flush func([]Notification)

	mu      sync.Mutex
	pending []Notification
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewBatcher creates a batcher delivering batches to flush.
func NewBatcher(delay time.Duration, flush func([]Notification)) *Batcher {
	return &Batcher{delay: delay, flush: flush}
}

// Add queues n and restarts the debounce timer. Adds after Stop are dropped.
func (b *Batcher) Add(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.pending = append(b.pending, n)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(b.delay, func() { b.fire(gen) })
}

// fire flushes if gen still names the latest timer. A timer that fired
// while a newer Add held the lock is stale.
func (b *Batcher) fire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	batch := b.take()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.flush(batch)
	}
}

// take detaches the pending batch. Caller holds mu.
func (b *Batcher) take() []Notification {
	batch := b.pending
	b.pending = nil
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

// Pending returns the number of queued notifications.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush delivers the pending batch immediately.
func (b *Batcher) Flush() {
	b.mu.Lock()
	batch := b.take()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.flush(batch)
	}
}

// Stop cancels the timer and delivers anything still pending.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	batch := b.take()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.flush(batch)
	}
}
