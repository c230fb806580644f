//go:build atmega328p

// Package avr drives a soft UART from Timer1 and INT0 of an ATmega328P.
//
// TX is PD3 (Arduino pin 3) and RX is PD2 (Arduino pin 2, INT0, with the
// internal pull-up). Timer1 runs free at CPU/8, so a 16 MHz part counts
// 2 MHz and 9600 baud is 208 ticks per bit. Timer1 and INT0 must not be
// used by anything else.
package avr

import (
	"device/avr"
	"machine"
	"runtime/interrupt"

	"github.com/speters/softuart/hal"
)

const (
	txPin = avr.PORTD_PORTD3
	rxPin = avr.PIND_PIND2
)

// Board implements hal.Board on the ATmega328P. There is only one; use
// Default.
type Board struct{}

// Default is the board singleton.
var Default = &Board{}

var handlers hal.Handlers

func init() {
	interrupt.New(avr.IRQ_INT0, handleEdge)
	interrupt.New(avr.IRQ_TIMER1_COMPA, handleCompareA)
	interrupt.New(avr.IRQ_TIMER1_COMPB, handleCompareB)
}

func handleEdge(interrupt.Interrupt) {
	if handlers.Edge != nil {
		handlers.Edge()
	}
}

func handleCompareA(interrupt.Interrupt) {
	if handlers.CompareA != nil {
		handlers.CompareA()
	}
}

func handleCompareB(interrupt.Interrupt) {
	if handlers.CompareB != nil {
		handlers.CompareB()
	}
}

// Init implements hal.Board. It configures the pins, starts Timer1 in normal
// mode at CPU/8, selects the falling edge for INT0 and enables it. The TinyGo
// runtime has interrupts enabled globally by the time main runs.
func (b *Board) Init(h hal.Handlers) error {
	state := interrupt.Disable()
	handlers = h

	avr.DDRD.SetBits(avr.DDRD_DDD3)
	avr.PORTD.SetBits(txPin)
	avr.DDRD.ClearBits(avr.DDRD_DDD2)
	avr.PORTD.SetBits(avr.PORTD_PORTD2)

	avr.TCCR1A.Set(0)
	avr.TCCR1B.Set(avr.TCCR1B_CS11)
	avr.TIMSK1.ClearBits(avr.TIMSK1_OCIE1A | avr.TIMSK1_OCIE1B)

	avr.EICRA.SetBits(avr.EICRA_ISC01)
	avr.EICRA.ClearBits(avr.EICRA_ISC00)
	avr.EIFR.Set(avr.EIFR_INTF0)
	avr.EIMSK.SetBits(avr.EIMSK_INT0)

	interrupt.Restore(state)
	return nil
}

// TickRate implements hal.Board.
func (b *Board) TickRate() uint32 { return machine.CPUFrequency() / 8 }

// 16-bit timer registers go through the shared TEMP latch: read low then
// high, write high then low. Callers are in a handler or a masked section.

// Counter implements hal.Board.
func (b *Board) Counter() uint16 {
	lo := avr.TCNT1L.Get()
	hi := avr.TCNT1H.Get()
	return uint16(hi)<<8 | uint16(lo)
}

// Compare implements hal.Board.
func (b *Board) Compare(ch hal.Channel) uint16 {
	if ch == hal.ChannelA {
		lo := avr.OCR1AL.Get()
		return uint16(avr.OCR1AH.Get())<<8 | uint16(lo)
	}
	lo := avr.OCR1BL.Get()
	return uint16(avr.OCR1BH.Get())<<8 | uint16(lo)
}

// SetCompare implements hal.Board.
func (b *Board) SetCompare(ch hal.Channel, target uint16) {
	if ch == hal.ChannelA {
		avr.OCR1AH.Set(uint8(target >> 8))
		avr.OCR1AL.Set(uint8(target))
		return
	}
	avr.OCR1BH.Set(uint8(target >> 8))
	avr.OCR1BL.Set(uint8(target))
}

func compareMask(ch hal.Channel) uint8 {
	if ch == hal.ChannelA {
		return avr.TIMSK1_OCIE1A
	}
	return avr.TIMSK1_OCIE1B
}

func compareFlag(ch hal.Channel) uint8 {
	if ch == hal.ChannelA {
		return avr.TIFR1_OCF1A
	}
	return avr.TIFR1_OCF1B
}

// EnableCompare implements hal.Board. A match flag left over from while the
// channel was disabled is cleared first.
func (b *Board) EnableCompare(ch hal.Channel) {
	avr.TIFR1.Set(compareFlag(ch))
	avr.TIMSK1.SetBits(compareMask(ch))
}

// DisableCompare implements hal.Board.
func (b *Board) DisableCompare(ch hal.Channel) {
	avr.TIMSK1.ClearBits(compareMask(ch))
}

// EnableEdge implements hal.Board.
func (b *Board) EnableEdge() { avr.EIMSK.SetBits(avr.EIMSK_INT0) }

// DisableEdge implements hal.Board.
func (b *Board) DisableEdge() { avr.EIMSK.ClearBits(avr.EIMSK_INT0) }

// ClearEdge implements hal.Board. INTF0 is cleared by writing a one.
func (b *Board) ClearEdge() { avr.EIFR.Set(avr.EIFR_INTF0) }

// WriteTX implements hal.Board.
func (b *Board) WriteTX(high bool) {
	if high {
		avr.PORTD.SetBits(txPin)
	} else {
		avr.PORTD.ClearBits(txPin)
	}
}

// ReadRX implements hal.Board.
func (b *Board) ReadRX() bool { return avr.PIND.HasBits(rxPin) }

// DisableInterrupts implements hal.Board.
func (b *Board) DisableInterrupts() hal.InterruptState {
	return hal.InterruptState(interrupt.Disable())
}

// RestoreInterrupts implements hal.Board.
func (b *Board) RestoreInterrupts(state hal.InterruptState) {
	interrupt.Restore(interrupt.State(state))
}
