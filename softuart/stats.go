package softuart

import "go.uber.org/atomic"

// Stats holds counters since the UART was created.
type Stats struct {
	BytesSent     uint32 `json:"bytes_sent"`     // frames completed by the transmitter
	BytesReceived uint32 `json:"bytes_received"` // frames stored in the inbound ring
	FramingErrors uint32 `json:"framing_errors"` // frames dropped for a low stop bit
	Overruns      uint32 `json:"overruns"`       // frames dropped because the inbound ring was full
}

// counters are written by handlers and read from normal context.
type counters struct {
	sent          atomic.Uint32
	received      atomic.Uint32
	framingErrors atomic.Uint32
	overruns      atomic.Uint32
}

func (c *counters) snapshot() Stats {
	return Stats{
		BytesSent:     c.sent.Load(),
		BytesReceived: c.received.Load(),
		FramingErrors: c.framingErrors.Load(),
		Overruns:      c.overruns.Load(),
	}
}
