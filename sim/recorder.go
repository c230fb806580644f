package sim

import "sync"

// Transition is a level change on a line.
type Transition struct {
	Tick uint64
	High bool
}

// Recorder timestamps every level change of a line with board time.
type Recorder struct {
	now func() uint64

	mu     sync.Mutex
	events []Transition
}

// NewRecorder starts recording l using b's clock.
func NewRecorder(b *Board, l *Line) *Recorder {
	r := &Recorder{now: b.Now}
	l.Watch(r.record)
	return r
}

func (r *Recorder) record(high bool) {
	r.mu.Lock()
	r.events = append(r.events, Transition{Tick: r.now(), High: high})
	r.mu.Unlock()
}

// Transitions returns a copy of the recorded transitions.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.events...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
