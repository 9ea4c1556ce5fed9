package session

import (
	"sync"
	"time"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

// manualLoop collects posted functions so tests decide when they run.
type manualLoop struct {
	mu      sync.Mutex
	pending []func()
}

func (l *manualLoop) post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, fn)
}

func (l *manualLoop) hasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) > 0
}

func (l *manualLoop) drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()
		fn()
	}
}
