package sim

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/atomic"
)

// ErrPeerClosed is returned by Write after Close.
var ErrPeerClosed = errors.New("peer closed")

// frameBits is start + 8 data + stop.
const frameBits = 10

// Peer is an ideal 8N1 UART on the far end of the wire, standing in for a
// USB serial adapter or another MCU. It has its own bit duration, so clock
// mismatch against the device under test can be simulated.
//
// Bytes written to the Peer are sent back to back on one line; frames
// decoded from the other line are returned by Read. Reception samples the
// middle of every bit, including the start bit.
type Peer struct {
	bitTicks uint64
	out      *Line
	in       *Line

	mu        sync.Mutex
	pending   []byte
	received  []byte
	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	framingErrors atomic.Uint32

	// Touched only from Tick.
	txActive bool
	txFrame  uint16
	txBit    uint
	txNext   uint64

	rxActive bool
	rxStart  uint64
	rxBit    uint
	rxAcc    byte
	rxLast   bool
}

// NewPeer returns a peer that drives out and decodes in, with bitTicks
// ticks per bit. Attach it to the board whose lines it shares.
func NewPeer(bitTicks uint64, out, in *Line) *Peer {
	return &Peer{
		bitTicks: bitTicks,
		out:      out,
		in:       in,
		notify:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
		rxLast:   true,
	}
}

// Write queues bytes for transmission. It never blocks.
func (p *Peer) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, ErrPeerClosed
	default:
	}
	p.mu.Lock()
	p.pending = append(p.pending, b...)
	p.mu.Unlock()
	return len(b), nil
}

// Pending returns the number of queued bytes not yet started on the wire.
func (p *Peer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Read blocks until decoded bytes are available and copies them to b. It
// returns io.EOF once the peer is closed and drained.
func (p *Peer) Read(b []byte) (int, error) {
	return p.ReadContext(context.Background(), b)
}

// ReadContext is Read with cancellation.
func (p *Peer) ReadContext(ctx context.Context, b []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.received) > 0 {
			n := copy(b, p.received)
			p.received = p.received[n:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-p.closed:
			return 0, io.EOF
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Drain returns and forgets everything decoded so far. It never blocks.
func (p *Peer) Drain() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.received
	p.received = nil
	return b
}

// FramingErrors returns the number of frames dropped for a low stop bit.
func (p *Peer) FramingErrors() uint32 {
	return p.framingErrors.Load()
}

// Close unblocks readers and rejects further writes.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// Tick implements Device.
func (p *Peer) Tick(now uint64) {
	p.tickTx(now)
	p.tickRx(now)
}

func (p *Peer) tickTx(now uint64) {
	if !p.txActive {
		b, ok := p.nextOutgoing()
		if !ok {
			return
		}
		p.txFrame = 1<<(frameBits-1) | uint16(b)<<1
		p.txBit = 0
		p.txNext = now
		p.txActive = true
	}
	if now < p.txNext {
		return
	}
	if p.txBit == frameBits {
		p.txActive = false
		return
	}
	p.out.Set(p.txFrame&(1<<p.txBit) != 0)
	p.txBit++
	p.txNext += p.bitTicks
}

func (p *Peer) tickRx(now uint64) {
	level := p.in.Get()
	if !p.rxActive {
		if p.rxLast && !level {
			p.rxActive = true
			p.rxStart = now
			p.rxBit = 0
			p.rxAcc = 0
		}
		p.rxLast = level
		return
	}

	if now == p.rxStart+p.bitTicks/2+uint64(p.rxBit)*p.bitTicks {
		switch {
		case p.rxBit == 0:
			if level {
				// Glitch shorter than half a bit.
				p.rxActive = false
			}
		case p.rxBit <= 8:
			if level {
				p.rxAcc |= 1 << (p.rxBit - 1)
			}
		default:
			p.rxActive = false
			if level {
				p.deliver(p.rxAcc)
			} else {
				p.framingErrors.Inc()
			}
		}
		p.rxBit++
	}
	p.rxLast = level
}

func (p *Peer) nextOutgoing() (byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return 0, false
	}
	b := p.pending[0]
	p.pending = p.pending[1:]
	return b, true
}

func (p *Peer) deliver(b byte) {
	p.mu.Lock()
	p.received = append(p.received, b)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}
