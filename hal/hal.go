// Package hal describes the peripherals a soft UART is built from: one
// free-running 16-bit timer with two compare channels, one falling-edge
// external interrupt, an output pin, an input pin and the global interrupt
// enable flag.
//
// A Board implementation exists for TinyGo on the ATmega328P (package avr)
// and for the host as a tick-accurate simulation (package sim).
package hal

// Channel selects one of the timer's two compare units.
type Channel uint8

// Compare channels. The receiver owns ChannelA, the transmitter ChannelB.
const (
	ChannelA Channel = iota
	ChannelB
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return "?"
	}
}

// InterruptState is the opaque global interrupt state returned by
// DisableInterrupts. It must be handed back unchanged to RestoreInterrupts.
type InterruptState uintptr

// Handlers are the interrupt service routines a Board dispatches.
// Handlers run to completion with interrupts masked and must never block.
type Handlers struct {
	Edge     func() // falling edge on the RX pin
	CompareA func() // timer counter reached the channel A target
	CompareB func() // timer counter reached the channel B target
}

// Board is the hardware abstraction used by the soft UART engine.
//
// Every method except Init, DisableInterrupts and RestoreInterrupts may be
// called from a handler. Init is called exactly once, from normal context.
type Board interface {
	// Init configures the pins (TX output idling high, RX input with
	// pull-up), starts the timer, selects falling-edge sense for the
	// external interrupt, installs the handlers, enables the edge
	// interrupt and finally enables interrupts globally.
	Init(h Handlers) error

	// TickRate is the timer's counting rate in ticks per second, that is
	// the input clock divided by the prescaler.
	TickRate() uint32

	// Counter returns the current value of the free-running counter.
	Counter() uint16

	// Compare returns the target of a compare channel.
	Compare(ch Channel) uint16
	// SetCompare sets the target of a compare channel.
	SetCompare(ch Channel, target uint16)
	// EnableCompare enables the compare-match interrupt of a channel.
	EnableCompare(ch Channel)
	// DisableCompare disables the compare-match interrupt of a channel.
	DisableCompare(ch Channel)

	// EnableEdge enables the falling-edge interrupt. A pending edge flag
	// fires immediately.
	EnableEdge()
	// DisableEdge disables the falling-edge interrupt. Edges keep latching
	// the pending flag while disabled.
	DisableEdge()
	// ClearEdge clears a latched edge flag.
	ClearEdge()

	// WriteTX drives the output pin.
	WriteTX(high bool)
	// ReadRX samples the input pin.
	ReadRX() bool

	// DisableInterrupts masks all handlers and returns the previous state.
	DisableInterrupts() InterruptState
	// RestoreInterrupts restores a state returned by DisableInterrupts.
	RestoreInterrupts(state InterruptState)
}
