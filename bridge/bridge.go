package bridge

import (
	"context"
	"errors"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Endpoint is the simulated side of a bridge, such as a sim.Peer: bytes
// written to it go onto the wire, bytes read from it came off the wire.
type Endpoint interface {
	io.Writer
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// Bridge copies bytes both ways between a simulated endpoint and a link.
type Bridge struct {
	Peer Endpoint
	Link io.ReadWriteCloser
}

// Run pumps until ctx is done or either side fails, then closes the link.
// It returns the first error; a link closed by the remote end yields
// io.EOF.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errc <- b.toPeer()
	}()
	go func() {
		defer wg.Done()
		errc <- b.toLink(ctx)
	}()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	b.Link.Close()
	wg.Wait()

	if errors.Is(err, context.Canceled) {
		log.Debug("bridge stopped")
	} else {
		log.WithError(err).Warn("bridge stopped")
	}
	return err
}

func (b *Bridge) toPeer() error {
	buf := make([]byte, 256)
	for {
		n, err := b.Link.Read(buf)
		if n > 0 {
			log.Debugf("link -> peer b='%# x'", buf[:n])
			if _, werr := b.Peer.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

func (b *Bridge) toLink(ctx context.Context) error {
	buf := make([]byte, 256)
	for {
		n, err := b.Peer.ReadContext(ctx, buf)
		if err != nil {
			return err
		}
		log.Debugf("peer -> link b='%# x'", buf[:n])
		if _, err := b.Link.Write(buf[:n]); err != nil {
			return err
		}
	}
}
