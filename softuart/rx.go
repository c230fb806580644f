package softuart

import "github.com/speters/softuart/hal"

// RxPhase is the state of the Receiver state machine.
type RxPhase uint8

const (
	RxIdle     RxPhase = iota // Waiting for a start edge; only the edge interrupt is armed
	RxSampling                // Sampling data bits in the middle of each bit period
	RxFinalize                // Next invocation samples the stop bit
)

// String returns the phase name.
func (p RxPhase) String() string {
	switch p {
	case RxIdle:
		return "idle"
	case RxSampling:
		return "sampling"
	case RxFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Receiver assembles frames from the RX pin. The falling-edge interrupt
// detects the start bit and hands off to compare channel A, which samples
// once per bit period. It owns the enable bit of channel A and of the edge
// interrupt.
type Receiver struct {
	board       hal.Board
	ring        *RingBuffer
	ticks       uint16
	firstSample uint16 // 1.5 bit periods: middle of data bit 0
	counters    *counters
	notify      chan struct{}

	phase RxPhase
	acc   byte
	bit   uint8
}

// HandleEdge is the falling-edge handler.
func (r *Receiver) HandleEdge() {
	r.board.DisableEdge()
	r.bit = 0
	r.acc = 0
	r.phase = RxSampling
	r.board.SetCompare(hal.ChannelA, r.board.Counter()+r.firstSample)
	r.board.EnableCompare(hal.ChannelA)
}

// HandleCompare is the channel A compare-match handler.
func (r *Receiver) HandleCompare() {
	r.board.SetCompare(hal.ChannelA, r.board.Compare(hal.ChannelA)+r.ticks)

	switch r.phase {
	case RxSampling:
		if r.board.ReadRX() {
			r.acc |= 1 << r.bit
		}
		r.bit++
		if r.bit >= 8 {
			r.phase = RxFinalize
		}

	case RxFinalize:
		if r.board.ReadRX() {
			r.store()
		} else {
			r.counters.framingErrors.Inc()
		}
		r.phase = RxIdle
		r.board.DisableCompare(hal.ChannelA)
		// The payload's own falling edges latched the flag.
		r.board.ClearEdge()
		r.board.EnableEdge()

	default:
		r.phase = RxIdle
		r.board.DisableCompare(hal.ChannelA)
		r.board.EnableEdge()
	}
}

// store pushes the assembled byte without waiting; a full ring drops it.
func (r *Receiver) store() {
	if !r.ring.TryPush(r.acc) {
		r.counters.overruns.Inc()
		return
	}
	r.counters.received.Inc()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
