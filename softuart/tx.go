package softuart

import "github.com/speters/softuart/hal"

// TxPhase is the state of the Transmitter state machine.
type TxPhase uint8

const (
	TxInactive TxPhase = iota // Nothing on the wire; channel B runs one more period after a stop bit
	TxStartBit                // Next invocation pops a byte and drives the start bit
	TxPayload                 // Shifting data bits out, LSB first
	TxStopBit                 // Next invocation drives the stop bit
)

// String returns the phase name.
func (p TxPhase) String() string {
	switch p {
	case TxInactive:
		return "inactive"
	case TxStartBit:
		return "start"
	case TxPayload:
		return "payload"
	case TxStopBit:
		return "stop"
	default:
		return "unknown"
	}
}

// Transmitter shifts bytes from the outbound ring onto the TX pin, one bit
// per compare-match on channel B. It owns the enable bit of channel B.
type Transmitter struct {
	board    hal.Board
	ring     *RingBuffer
	ticks    uint16
	counters *counters

	phase   TxPhase
	shift   byte
	bit     uint8
	running bool // channel B enabled
}

// HandleCompare is the channel B compare-match handler.
func (t *Transmitter) HandleCompare() {
	// Relative to the previous target, so frames do not drift.
	t.board.SetCompare(hal.ChannelB, t.board.Compare(hal.ChannelB)+t.ticks)

	switch t.phase {
	case TxStartBit:
		b, ok := t.ring.TryPop()
		if !ok {
			t.stop()
			return
		}
		t.board.WriteTX(false)
		t.shift = b
		t.bit = 0
		t.phase = TxPayload

	case TxPayload:
		t.board.WriteTX(t.shift&(1<<t.bit) != 0)
		t.bit++
		if t.bit >= 8 {
			t.phase = TxStopBit
		}

	case TxStopBit:
		t.board.WriteTX(true)
		t.counters.sent.Inc()
		t.phase = TxInactive

	case TxInactive:
		if !t.ring.Empty() {
			t.phase = TxStartBit
		} else {
			t.stop()
		}
	}
}

// arm moves an inactive transmitter straight to TxStartBit so the next
// invocation drives the start bit. Interrupts must be masked.
//
// While channel B is still running after a stop bit, the pending target
// already marks the end of that stop bit and is left alone; otherwise the
// channel is scheduled FastStartTicks ahead.
func (t *Transmitter) arm() {
	if t.phase != TxInactive {
		return
	}
	t.phase = TxStartBit
	if t.running {
		return
	}
	t.board.SetCompare(hal.ChannelB, t.board.Counter()+FastStartTicks)
	t.board.EnableCompare(hal.ChannelB)
	t.running = true
}

func (t *Transmitter) stop() {
	t.phase = TxInactive
	t.board.DisableCompare(hal.ChannelB)
	t.running = false
}
