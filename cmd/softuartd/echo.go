package main

import (
	"context"

	"github.com/speters/softuart/softuart"
)

const banner = "Software UART Initialized.\nSend me something!\n"

// runEcho is the demo firmware: greet, then answer every received byte
// with "Echo: <byte>\n".
func runEcho(ctx context.Context, u *softuart.UART) error {
	if err := u.Print(banner); err != nil {
		return err
	}
	for {
		c, err := u.ReadByteBlocking(ctx)
		if err != nil {
			return err
		}
		if err := u.Print("Echo: "); err != nil {
			return err
		}
		if err := u.TransmitByte(c); err != nil {
			return err
		}
		if err := u.Print("\n"); err != nil {
			return err
		}
	}
}
