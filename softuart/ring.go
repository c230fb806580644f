package softuart

import (
	"fmt"

	"go.uber.org/atomic"
)

// DefaultBufferSize is the number of slots in each ring when Config leaves
// the size unset. One slot is always kept free, so 63 bytes fit.
const DefaultBufferSize = 64

// RingBuffer is a fixed-size single-producer/single-consumer byte queue.
//
// The buffer is empty when write == read and full when advancing write by
// one would make it equal read; one slot is sacrificed so that neither side
// needs a lock. Each index is stored only by its owner: write by the
// producer, read by the consumer. The slot is written before the index is
// published and read before the index is released.
type RingBuffer struct {
	buf   []byte
	write atomic.Uint32
	read  atomic.Uint32
}

// NewRingBuffer returns a ring with size slots. size must be at least 2.
func NewRingBuffer(size int) (*RingBuffer, error) {
	if size < 2 {
		return nil, fmt.Errorf("%w: %d slots, need at least 2", ErrBufferSize, size)
	}
	return &RingBuffer{buf: make([]byte, size)}, nil
}

// Cap returns how many bytes the ring can hold at once.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf) - 1
}

// TryPush stores a byte. If the ring is full it returns false and leaves
// the ring unchanged.
func (rb *RingBuffer) TryPush(b byte) bool {
	w := rb.write.Load()
	next := rb.advance(w)
	if next == rb.read.Load() {
		return false
	}
	rb.buf[w] = b
	rb.write.Store(next)
	return true
}

// TryPop removes the oldest byte. It returns (0, false) if the ring is empty.
func (rb *RingBuffer) TryPop() (byte, bool) {
	r := rb.read.Load()
	if r == rb.write.Load() {
		return 0, false
	}
	b := rb.buf[r]
	rb.read.Store(rb.advance(r))
	return b, true
}

// Available returns the number of queued bytes. Both indices are read, so
// a caller racing the other context must mask interrupts around it.
func (rb *RingBuffer) Available() int {
	n := uint32(len(rb.buf))
	return int((rb.write.Load() + n - rb.read.Load()) % n)
}

// Empty reports whether the ring holds no bytes.
func (rb *RingBuffer) Empty() bool {
	return rb.write.Load() == rb.read.Load()
}

// Full reports whether a TryPush would fail.
func (rb *RingBuffer) Full() bool {
	return rb.advance(rb.write.Load()) == rb.read.Load()
}

func (rb *RingBuffer) advance(i uint32) uint32 {
	return (i + 1) % uint32(len(rb.buf))
}
