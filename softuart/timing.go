package softuart

import (
	"fmt"
	"math"
)

// FastStartTicks is how far ahead of the current counter TransmitByte
// schedules the start bit when the transmitter is idle.
const FastStartTicks = 10

// BitTicks returns the number of timer ticks in one bit period at baud,
// tickRate/baud truncated.
//
// The receiver places its first sample 1.5 bit periods after the start edge,
// so the bit duration is rejected unless 1.5 times it still fits the 16-bit
// compare register. That sets the lowest usable baud rate at roughly
// tickRate/43690; lower rates are refused, never clamped.
func BitTicks(tickRate, baud uint32) (uint16, error) {
	if baud == 0 {
		return 0, fmt.Errorf("%w: baud rate is zero", ErrInvalidBaudRate)
	}
	ticks := tickRate / baud
	if ticks == 0 {
		return 0, fmt.Errorf("%w: %d baud exceeds the %d Hz timer rate", ErrInvalidBaudRate, baud, tickRate)
	}
	if uint64(ticks)*3/2 > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d baud needs %d ticks per bit, timer holds at most %d",
			ErrInvalidBaudRate, baud, ticks, math.MaxUint16*2/3)
	}
	return uint16(ticks), nil
}
