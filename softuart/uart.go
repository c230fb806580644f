// Package softuart implements a full-duplex 8N1 serial port on top of one
// 16-bit timer with two compare channels, one falling-edge interrupt and two
// GPIO pins.
//
// The transmitter is a state machine clocked by compare channel B; the
// receiver is started by the edge interrupt and then clocked by compare
// channel A. Bytes cross between interrupt and normal context through two
// single-producer/single-consumer rings. Handlers never lock; normal
// context masks interrupts only around reads that must see both ring indices,
// or the transmitter phase, consistently.
//
// Reception is best effort: a frame with a low stop bit, or one that arrives
// while the inbound ring is full, is dropped without an error (see Stats).
// A frame is also lost if the compare handler is held off for a whole bit
// period by other interrupts. Reliable delivery needs a protocol on top.
package softuart

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/speters/softuart/hal"
)

// Config holds the soft UART settings.
type Config struct {
	// BaudRate in bits per second. Required.
	BaudRate uint32
	// TxBufferSize and RxBufferSize are ring sizes in slots; one slot stays
	// free. Zero selects DefaultBufferSize.
	TxBufferSize int
	RxBufferSize int
}

// UART is a soft UART. Its methods must be called from normal context,
// never from a handler. They are safe for concurrent use: writers take
// turns on the outbound ring and readers on the inbound ring, so each ring
// keeps a single producer and a single consumer.
type UART struct {
	board hal.Board
	baud  uint32
	ticks uint16

	outbound *RingBuffer
	inbound  *RingBuffer
	tx       *Transmitter
	rx       *Receiver
	counters counters

	txMu sync.Mutex // the one outbound producer
	rxMu sync.Mutex // the one inbound consumer

	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// New configures board for a soft UART and starts it: pins, timer, edge
// sense and handlers are set up by board.Init, after which the receiver is
// waiting for a start bit.
func New(board hal.Board, cfg Config) (*UART, error) {
	if board == nil {
		return nil, ErrNilBoard
	}
	ticks, err := BitTicks(board.TickRate(), cfg.BaudRate)
	if err != nil {
		return nil, err
	}
	if cfg.TxBufferSize == 0 {
		cfg.TxBufferSize = DefaultBufferSize
	}
	if cfg.RxBufferSize == 0 {
		cfg.RxBufferSize = DefaultBufferSize
	}
	outbound, err := NewRingBuffer(cfg.TxBufferSize)
	if err != nil {
		return nil, fmt.Errorf("tx buffer: %w", err)
	}
	inbound, err := NewRingBuffer(cfg.RxBufferSize)
	if err != nil {
		return nil, fmt.Errorf("rx buffer: %w", err)
	}

	u := &UART{
		board:    board,
		baud:     cfg.BaudRate,
		ticks:    ticks,
		outbound: outbound,
		inbound:  inbound,
		notify:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	u.tx = &Transmitter{
		board:    board,
		ring:     outbound,
		ticks:    ticks,
		counters: &u.counters,
	}
	u.rx = &Receiver{
		board:       board,
		ring:        inbound,
		ticks:       ticks,
		firstSample: uint16(uint32(ticks) * 3 / 2),
		counters:    &u.counters,
		notify:      u.notify,
	}

	err = board.Init(hal.Handlers{
		Edge:     u.rx.HandleEdge,
		CompareA: u.rx.HandleCompare,
		CompareB: u.tx.HandleCompare,
	})
	if err != nil {
		return nil, fmt.Errorf("board init: %w", err)
	}

	return u, nil
}

// critical runs fn with interrupts masked and restores the previous
// interrupt state on every exit path.
func (u *UART) critical(fn func()) {
	state := u.board.DisableInterrupts()
	defer u.board.RestoreInterrupts(state)
	fn()
}

// BaudRate returns the configured baud rate.
func (u *UART) BaudRate() uint32 { return u.baud }

// BitTicks returns the bit duration in timer ticks.
func (u *UART) BitTicks() uint16 { return u.ticks }

// TransmitByte queues b for transmission. It busy-waits while the outbound
// ring is full, so it must never be called from a handler. If the
// transmitter is idle the start bit is scheduled right away rather than
// after the next idle compare period.
func (u *UART) TransmitByte(b byte) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()

	if u.isClosed() {
		return ErrClosed
	}
	for !u.outbound.TryPush(b) {
		if u.isClosed() {
			return ErrClosed
		}
		runtime.Gosched()
	}
	if !u.startTransmit() {
		return ErrClosed
	}
	return nil
}

// startTransmit arms the transmitter unless Close got there first, in which
// case channel B stays off.
func (u *UART) startTransmit() bool {
	armed := false
	u.critical(func() {
		if u.isClosed() {
			return
		}
		u.tx.arm()
		armed = true
	})
	return armed
}

// Print transmits text byte by byte. It is not atomic: bytes queued from
// elsewhere in the meantime may interleave.
func (u *UART) Print(text string) error {
	for i := 0; i < len(text); i++ {
		if err := u.TransmitByte(text[i]); err != nil {
			return err
		}
	}
	return nil
}

// Write implements io.Writer with the blocking behaviour of TransmitByte.
// It returns once every byte is queued, not once it is on the wire. Bytes
// of concurrent Writes may interleave, but none is lost.
func (u *UART) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := u.TransmitByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (u *UART) WriteByte(c byte) error {
	return u.TransmitByte(c)
}

// Available returns how many received bytes are waiting.
func (u *UART) Available() int {
	var n int
	u.critical(func() {
		n = u.inbound.Available()
	})
	return n
}

// Buffered is Available under the name used by TinyGo's machine.UART.
func (u *UART) Buffered() int { return u.Available() }

// ReceiveByte pops one received byte. It never blocks.
func (u *UART) ReceiveByte() (byte, bool) {
	u.rxMu.Lock()
	defer u.rxMu.Unlock()
	return u.inbound.TryPop()
}

// ReadByte implements io.ByteReader. It returns ErrBufferEmpty when nothing
// has been received.
func (u *UART) ReadByte() (byte, error) {
	b, ok := u.ReceiveByte()
	if !ok {
		return 0, ErrBufferEmpty
	}
	return b, nil
}

// Read copies up to len(p) buffered bytes. Like machine.UART it does not
// block and returns 0, nil when nothing is buffered.
func (u *UART) Read(p []byte) (int, error) {
	u.rxMu.Lock()
	defer u.rxMu.Unlock()
	n := 0
	for n < len(p) {
		b, ok := u.inbound.TryPop()
		if !ok {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

// ReadLine drains whatever is buffered right now into buf, at most
// len(buf)-1 bytes, and writes a NUL after them. It returns false without
// touching buf when nothing is available or buf is empty.
//
// Despite the name it does not look for or wait for a line terminator.
func (u *UART) ReadLine(buf []byte) (int, bool) {
	if len(buf) == 0 {
		return 0, false
	}
	u.rxMu.Lock()
	defer u.rxMu.Unlock()
	if u.Available() == 0 {
		return 0, false
	}
	n := 0
	for n < len(buf)-1 {
		b, ok := u.inbound.TryPop()
		if !ok {
			break
		}
		buf[n] = b
		n++
	}
	buf[n] = 0
	return n, true
}

// WaitReadable blocks until at least one byte is buffered, ctx is done or
// the UART is closed.
func (u *UART) WaitReadable(ctx context.Context) error {
	if !u.inbound.Empty() {
		return nil
	}
	for {
		select {
		case <-u.notify:
			if !u.inbound.Empty() {
				return nil
			}
		case <-u.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadBlocking blocks until at least one byte is available and then
// behaves like Read.
func (u *UART) ReadBlocking(ctx context.Context, p []byte) (int, error) {
	for {
		if n, _ := u.Read(p); n > 0 || len(p) == 0 {
			return n, nil
		}
		if err := u.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadByteBlocking blocks until a byte is available and returns it.
func (u *UART) ReadByteBlocking(ctx context.Context) (byte, error) {
	for {
		if b, ok := u.ReceiveByte(); ok {
			return b, nil
		}
		if err := u.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// TxPhase returns the transmitter state.
func (u *UART) TxPhase() TxPhase {
	var p TxPhase
	u.critical(func() {
		p = u.tx.phase
	})
	return p
}

// RxPhase returns the receiver state.
func (u *UART) RxPhase() RxPhase {
	var p RxPhase
	u.critical(func() {
		p = u.rx.phase
	})
	return p
}

// Stats returns a snapshot of the frame counters.
func (u *UART) Stats() Stats {
	return u.counters.snapshot()
}

// Close stops both state machines, disables their interrupts, leaves the TX
// line idle and wakes blocked readers. Queued outbound bytes are discarded.
func (u *UART) Close() error {
	u.closeOnce.Do(func() {
		close(u.closed)
		u.critical(func() {
			u.board.DisableEdge()
			u.board.DisableCompare(hal.ChannelA)
			u.board.DisableCompare(hal.ChannelB)
			u.board.WriteTX(true)
			u.tx.phase = TxInactive
			u.tx.running = false
			u.rx.phase = RxIdle
		})
	})
	return nil
}

func (u *UART) isClosed() bool {
	select {
	case <-u.closed:
		return true
	default:
		return false
	}
}
