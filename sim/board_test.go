package sim

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speters/softuart/hal"
)

type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) handler(name string) func() {
	return func() {
		tr.mu.Lock()
		tr.events = append(tr.events, name)
		tr.mu.Unlock()
	}
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

func newTracedBoard(t *testing.T) (*Board, *trace) {
	t.Helper()
	b := NewBoard(1000000, NewLine(), NewLine())
	tr := &trace{}
	require.NoError(t, b.Init(hal.Handlers{
		Edge:     tr.handler("edge"),
		CompareA: tr.handler("A"),
		CompareB: tr.handler("B"),
	}))
	return b, tr
}

func TestBoard_Init(t *testing.T) {
	b, _ := newTracedBoard(t)
	assert.True(t, b.TX().Get())
	assert.True(t, b.EdgeEnabled())
	assert.ErrorIs(t, b.Init(hal.Handlers{}), ErrInitialized)
}

func TestBoard_DispatchOrder(t *testing.T) {
	b, tr := newTracedBoard(t)

	b.SetCompare(hal.ChannelB, 1)
	b.SetCompare(hal.ChannelA, 1)
	b.EnableCompare(hal.ChannelB)
	b.EnableCompare(hal.ChannelA)
	b.RX().Set(false)
	b.Advance(1)

	assert.Equal(t, []string{"edge", "A", "B"}, tr.get())
	for _, s := range []Source{SourceEdge, SourceCompareA, SourceCompareB} {
		assert.Equal(t, uint64(1), b.Dispatches(s), s.String())
	}
}

func TestBoard_CompareWraps(t *testing.T) {
	b, tr := newTracedBoard(t)

	b.SetCompare(hal.ChannelA, 3)
	b.EnableCompare(hal.ChannelA)
	b.Advance(1 << 16)
	assert.Equal(t, []string{"A"}, tr.get())
	assert.Equal(t, uint16(0), b.Counter())

	b.Advance(3)
	assert.Equal(t, []string{"A", "A"}, tr.get())

	b.DisableCompare(hal.ChannelA)
	b.Advance(1 << 16)
	assert.Len(t, tr.get(), 2)
}

func TestBoard_EdgeLatch(t *testing.T) {
	b, tr := newTracedBoard(t)

	b.DisableEdge()
	b.RX().Set(false)
	b.Advance(10)
	assert.Empty(t, tr.get())

	// Rising edges do not latch; the earlier falling one is still pending.
	b.RX().Set(true)
	b.EnableEdge()
	b.Advance(1)
	assert.Equal(t, []string{"edge"}, tr.get())

	b.DisableEdge()
	b.RX().Set(false)
	b.ClearEdge()
	b.EnableEdge()
	b.Advance(10)
	assert.Len(t, tr.get(), 1)
}

func TestBoard_MaskedSectionFreezesTime(t *testing.T) {
	b, _ := newTracedBoard(t)

	state := b.DisableInterrupts()
	done := make(chan struct{})
	go func() {
		b.Advance(100)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("board advanced with interrupts disabled")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Zero(t, b.Now())

	b.RestoreInterrupts(state)
	<-done
	assert.Equal(t, uint64(100), b.Now())
}

func TestBoard_NestedMask(t *testing.T) {
	b, _ := newTracedBoard(t)

	outer := b.DisableInterrupts()
	inner := b.DisableInterrupts()
	b.RestoreInterrupts(inner)

	done := make(chan struct{})
	go func() {
		b.Advance(1)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("inner restore re-enabled interrupts")
	case <-time.After(20 * time.Millisecond):
	}

	b.RestoreInterrupts(outer)
	<-done
}

func TestPeer_Loopback(t *testing.T) {
	a, c := NewLine(), NewLine()
	b := NewBoard(1000000, a, c)
	p1 := NewPeer(104, a, c)
	p2 := NewPeer(104, c, a)
	b.Attach(p1)
	b.Attach(p2)

	_, err := p1.Write([]byte("ping"))
	require.NoError(t, err)
	_, err = p2.Write([]byte("pong"))
	require.NoError(t, err)
	assert.Equal(t, 4, p1.Pending())

	b.Advance(5 * 11 * 104)
	assert.Zero(t, p1.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf := make([]byte, 8)
	n, err := p2.ReadContext(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.Equal(t, "pong", string(p1.Drain()))
}

func TestPeer_FramingError(t *testing.T) {
	out, in := NewLine(), NewLine()
	b := NewBoard(1000000, out, in)
	p := NewPeer(10, out, in)
	b.Attach(p)

	in.Set(false)
	b.Advance(100) // start and eight zero bits, stop still low
	in.Set(true)
	b.Advance(20)

	assert.Equal(t, uint32(1), p.FramingErrors())
	assert.Empty(t, p.Drain())
}

func TestPeer_Close(t *testing.T) {
	p := NewPeer(104, NewLine(), NewLine())
	require.NoError(t, p.Close())

	_, err := p.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	_, err = p.Write([]byte{1})
	assert.ErrorIs(t, err, ErrPeerClosed)
}

func TestRecorder(t *testing.T) {
	l := NewLine()
	b := NewBoard(1000000, l, l)
	rec := NewRecorder(b, l)

	b.Advance(5)
	l.Set(false)
	l.Set(false)
	b.Advance(3)
	l.Set(true)

	assert.Equal(t, []Transition{{Tick: 5, High: false}, {Tick: 8, High: true}}, rec.Transitions())
	rec.Reset()
	assert.Empty(t, rec.Transitions())
}

func TestRun(t *testing.T) {
	b := NewBoard(1000000, NewLine(), NewLine())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := Run(ctx, b, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotZero(t, b.Now())
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "edge", SourceEdge.String())
	assert.Equal(t, "compare-a", SourceCompareA.String())
	assert.Equal(t, "compare-b", SourceCompareB.String())
	assert.Equal(t, "unknown", Source(9).String())
}
