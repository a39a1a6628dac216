// Package loop provides the single execution context that owns every
// document and pipeline mutation. Other goroutines never touch that state
// directly; they Post a closure and the loop runs it, one at a time, in
// arrival order.
package loop

import (
	"context"
	"sync"
)

// Poster accepts work for the loop. Post is safe from any goroutine and
// never blocks.
type Poster interface {
	Post(fn func())
}

// Loop is an unbounded FIFO of closures with a single consumer.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running bool
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Pending returns the number of queued closures.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued closures until the queue is empty, including
// closures posted while it runs, and returns how many ran. It must only be
// called from the goroutine that owns the loop.
func (l *Loop) RunPending() int {
	n := 0
	for {
		fn, ok := l.pop()
		if !ok {
			return n
		}
		fn()
		n++
	}
}

// Run processes closures until ctx is done. Only one Run may be active.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		panic("loop: Run called twice")
	}
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be
// called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
