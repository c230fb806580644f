// Package sim is a tick-accurate host simulation of the peripherals a soft
// UART needs, plus an ideal UART to talk to it.
//
// Simulated time only moves when Board.Advance is called, either directly
// by a test or by Run in step with the wall clock. Handlers run on the
// goroutine that advances the board.
package sim

import (
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/speters/softuart/hal"
)

// ErrInitialized is returned by a second Board.Init.
var ErrInitialized = errors.New("board already initialized")

// Source identifies an interrupt source.
type Source uint8

// Interrupt sources in dispatch priority order (INT0, TIMER1_COMPA,
// TIMER1_COMPB on the ATmega328P).
const (
	SourceEdge Source = iota
	SourceCompareA
	SourceCompareB
	numSources
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceEdge:
		return "edge"
	case SourceCompareA:
		return "compare-a"
	case SourceCompareB:
		return "compare-b"
	default:
		return "unknown"
	}
}

// Device is something attached to a board that acts once per tick, such as
// a Peer driving and sampling the lines.
type Device interface {
	Tick(now uint64)
}

type compareUnit struct {
	target  uint16
	enabled bool
	pending bool
}

// Board implements hal.Board.
//
// Each tick the counter advances, attached devices tick, enabled compare
// channels whose target equals the counter latch, and every pending enabled
// interrupt is dispatched in priority order until none is left.
//
// A falling edge on the RX line latches the edge flag even while the edge
// interrupt is disabled, as INTF0 does.
//
// Global interrupts start enabled. While they are disabled Advance waits,
// so a masked section takes no simulated time. DisableInterrupts must not
// be called from a handler.
type Board struct {
	tickRate uint32
	tx, rx   *Line

	mu          sync.Mutex
	cond        *sync.Cond
	irqEnabled  bool
	initialized bool
	handlers    hal.Handlers
	units       [2]compareUnit
	edgeEnabled bool
	devices     []Device

	edgePending atomic.Bool
	now         atomic.Uint64
	dispatches  [numSources]atomic.Uint64
}

// NewBoard returns a board whose timer counts tickRate ticks per second,
// driving tx and sampling rx. tx and rx may be the same line for loopback.
func NewBoard(tickRate uint32, tx, rx *Line) *Board {
	b := &Board{
		tickRate:   tickRate,
		tx:         tx,
		rx:         rx,
		irqEnabled: true,
	}
	b.cond = sync.NewCond(&b.mu)
	rx.Watch(func(high bool) {
		if !high {
			b.edgePending.Store(true)
		}
	})
	return b
}

// TX returns the line driven by the board.
func (b *Board) TX() *Line { return b.tx }

// RX returns the line sampled by the board.
func (b *Board) RX() *Line { return b.rx }

// Attach adds a device that ticks with the board.
func (b *Board) Attach(d Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, d)
}

// Now returns the number of ticks simulated so far.
func (b *Board) Now() uint64 {
	return b.now.Load()
}

// Advance simulates n ticks.
func (b *Board) Advance(n uint64) {
	for i := uint64(0); i < n; i++ {
		b.step()
	}
}

// Dispatches returns how many times a source has been dispatched.
func (b *Board) Dispatches(s Source) uint64 {
	return b.dispatches[s].Load()
}

// EdgeEnabled reports whether the edge interrupt is enabled.
func (b *Board) EdgeEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.edgeEnabled
}

// CompareEnabled reports whether a compare channel's interrupt is enabled.
func (b *Board) CompareEnabled(ch hal.Channel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.units[ch].enabled
}

func (b *Board) step() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.irqEnabled {
		b.cond.Wait()
	}

	now := b.now.Inc()
	for _, d := range b.devices {
		d.Tick(now)
	}
	counter := uint16(now)
	for i := range b.units {
		u := &b.units[i]
		if u.enabled && u.target == counter {
			u.pending = true
		}
	}
	b.dispatch()
}

func (b *Board) dispatch() {
	a, c := &b.units[hal.ChannelA], &b.units[hal.ChannelB]
	for {
		switch {
		case b.edgeEnabled && b.edgePending.Load():
			b.edgePending.Store(false)
			b.fire(SourceEdge, b.handlers.Edge)
		case a.enabled && a.pending:
			a.pending = false
			b.fire(SourceCompareA, b.handlers.CompareA)
		case c.enabled && c.pending:
			c.pending = false
			b.fire(SourceCompareB, b.handlers.CompareB)
		default:
			return
		}
	}
}

func (b *Board) fire(s Source, h func()) {
	b.dispatches[s].Inc()
	if h != nil {
		h()
	}
}

// Init implements hal.Board.
func (b *Board) Init(h hal.Handlers) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return ErrInitialized
	}
	b.initialized = true
	b.handlers = h
	b.tx.Set(true)
	b.edgePending.Store(false)
	b.edgeEnabled = true
	b.irqEnabled = true
	b.cond.Broadcast()
	return nil
}

// TickRate implements hal.Board.
func (b *Board) TickRate() uint32 { return b.tickRate }

// The register accessors below do not lock: they are called either from a
// handler, with the board lock held by step, or from a masked section,
// during which step is parked in cond.Wait.

// Counter implements hal.Board.
func (b *Board) Counter() uint16 { return uint16(b.now.Load()) }

// Compare implements hal.Board.
func (b *Board) Compare(ch hal.Channel) uint16 { return b.units[ch].target }

// SetCompare implements hal.Board.
func (b *Board) SetCompare(ch hal.Channel, target uint16) { b.units[ch].target = target }

// EnableCompare implements hal.Board.
func (b *Board) EnableCompare(ch hal.Channel) { b.units[ch].enabled = true }

// DisableCompare implements hal.Board.
func (b *Board) DisableCompare(ch hal.Channel) {
	b.units[ch].enabled = false
	b.units[ch].pending = false
}

// EnableEdge implements hal.Board.
func (b *Board) EnableEdge() { b.edgeEnabled = true }

// DisableEdge implements hal.Board.
func (b *Board) DisableEdge() { b.edgeEnabled = false }

// ClearEdge implements hal.Board.
func (b *Board) ClearEdge() { b.edgePending.Store(false) }

// WriteTX implements hal.Board.
func (b *Board) WriteTX(high bool) { b.tx.Set(high) }

// ReadRX implements hal.Board.
func (b *Board) ReadRX() bool { return b.rx.Get() }

// DisableInterrupts implements hal.Board.
func (b *Board) DisableInterrupts() hal.InterruptState {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.irqEnabled
	b.irqEnabled = false
	if prev {
		return 1
	}
	return 0
}

// RestoreInterrupts implements hal.Board.
func (b *Board) RestoreInterrupts(state hal.InterruptState) {
	b.mu.Lock()
	b.irqEnabled = state != 0
	b.mu.Unlock()
	b.cond.Broadcast()
}
