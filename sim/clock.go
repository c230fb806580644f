package sim

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultResolution is how often Run catches up with the wall clock.
const DefaultResolution = time.Millisecond

// Run advances b in step with the wall clock until ctx is done. Every
// resolution it simulates the ticks that are due since Run started; when the
// host cannot keep up, simulated time falls behind rather than skipping.
func Run(ctx context.Context, b *Board, resolution time.Duration) error {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	rate := float64(b.TickRate())
	start := time.Now()
	var done uint64

	log.WithFields(log.Fields{
		"tick_rate":  b.TickRate(),
		"resolution": resolution,
	}).Debug("simulated clock started")

	for {
		select {
		case <-ctx.Done():
			log.WithField("ticks", done).Debug("simulated clock stopped")
			return ctx.Err()
		case t := <-ticker.C:
			due := uint64(t.Sub(start).Seconds() * rate)
			if due > done {
				b.Advance(due - done)
				done = due
			}
		}
	}
}
