package sim

import (
	"sync"

	"go.uber.org/atomic"
)

// Line is a single wire. It idles high, like an 8N1 line with a pull-up.
type Line struct {
	level atomic.Bool

	mu       sync.Mutex
	watchers []func(high bool)
}

// NewLine returns a line at the idle (high) level.
func NewLine() *Line {
	l := &Line{}
	l.level.Store(true)
	return l
}

// Get returns the current level.
func (l *Line) Get() bool {
	return l.level.Load()
}

// Set drives the line. Watchers are called synchronously, and only when
// the level actually changes.
func (l *Line) Set(high bool) {
	if l.level.Swap(high) == high {
		return
	}
	l.mu.Lock()
	watchers := l.watchers
	l.mu.Unlock()
	for _, fn := range watchers {
		fn(high)
	}
}

// Watch registers fn to be called on every level change. fn runs on the
// goroutine that drove the line and must not block.
func (l *Line) Watch(fn func(high bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, fn)
}
