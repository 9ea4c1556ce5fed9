package engine

import (
	"context"
	"sync"
)

// Loop is the single goroutine that owns the queue. Everything that touches
// the node tree, the groups or the session pools runs as a function posted
// here; workers only report back through Post.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

// NewLoop creates an idle loop. Nothing runs until Run or RunUntil is called.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn for the loop goroutine. It never blocks and is safe to call
// from any goroutine, including the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	return l.RunUntil(ctx, func() bool { return false })
}

// RunUntil processes posted functions until cond holds or ctx is cancelled.
// cond is evaluated on the loop goroutine after every batch.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	for {
		l.drain()
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// drain runs everything queued, including functions posted while draining.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}
