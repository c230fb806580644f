package api

import "github.com/speters/softuart/softuart"

// Info identifies the running build.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
}

// Status is a snapshot of a UART.
type Status struct {
	BaudRate  uint32         `json:"baud_rate"`
	BitTicks  uint16         `json:"bit_ticks"`
	TxPhase   string         `json:"tx_phase"`
	RxPhase   string         `json:"rx_phase"`
	Available int            `json:"available"`
	Stats     softuart.Stats `json:"stats"`
}

// StatusOf takes a snapshot of u.
func StatusOf(u *softuart.UART) Status {
	return Status{
		BaudRate:  u.BaudRate(),
		BitTicks:  u.BitTicks(),
		TxPhase:   u.TxPhase().String(),
		RxPhase:   u.RxPhase().String(),
		Available: u.Available(),
		Stats:     u.Stats(),
	}
}

// TxResult is the response to a transmit request.
type TxResult struct {
	Queued int `json:"queued"`
}
