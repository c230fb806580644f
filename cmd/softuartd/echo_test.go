package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speters/softuart/sim"
	"github.com/speters/softuart/softuart"
)

// newTestRig returns a UART at 9600 baud on a 2 MHz board with a peer
// attached, the clock running flat out until the test ends.
func newTestRig(t *testing.T) (*softuart.UART, *sim.Peer) {
	t.Helper()
	mcuTx, mcuRx := sim.NewLine(), sim.NewLine()
	b := sim.NewBoard(2000000, mcuTx, mcuRx)
	u, err := softuart.New(b, softuart.Config{BaudRate: 9600})
	require.NoError(t, err)
	peer := sim.NewPeer(2000000/9600, mcuRx, mcuTx)
	b.Attach(peer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			b.Advance(2000)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		u.Close()
	})
	return u, peer
}

func collect(t *testing.T, peer *sim.Peer, want int) string {
	t.Helper()
	var got []byte
	require.Eventually(t, func() bool {
		got = append(got, peer.Drain()...)
		return len(got) >= want
	}, 10*time.Second, time.Millisecond)
	return string(got)
}

func TestRunEcho(t *testing.T) {
	u, peer := newTestRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- runEcho(ctx, u) }()

	assert.Equal(t, banner, collect(t, peer, len(banner)))

	_, err := peer.Write([]byte("ab"))
	require.NoError(t, err)
	want := "Echo: a\nEcho: b\n"
	assert.Equal(t, want, collect(t, peer, len(want)))

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestRunEcho_Closed(t *testing.T) {
	u, _ := newTestRig(t)
	require.NoError(t, u.Close())
	assert.ErrorIs(t, runEcho(context.Background(), u), softuart.ErrClosed)
}

func TestLinkLoop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	peer := sim.NewPeer(208, sim.NewLine(), sim.NewLine())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		linkLoop(ctx, peer, "tcp://"+ln.Addr().String(), 9600)
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("xyz"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return peer.Pending() == 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("link loop did not stop")
	}
}
