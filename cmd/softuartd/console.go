package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/speters/softuart/api"
	"github.com/speters/softuart/sim"
	"github.com/speters/softuart/softuart"
)

// newConsole returns a shell that plays the terminal on the far end of the
// wire, plus a few commands acting on the simulated board itself. It reads
// the peer, so it must not run alongside a bridge (see checkFlags).
func newConsole(u *softuart.UART, peer *sim.Peer) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("softuart> ")

	sh.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "TEXT - send a line from the far end to the board",
		Func: func(c *ishell.Context) {
			if err := sendLine(peer, c.Args); err != nil {
				c.Err(err)
			}
		},
	})
	sh.AddCmd(&ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "show what the far end has received",
		Func: func(c *ishell.Context) {
			c.Print(quoteReceived(peer.Drain()))
		},
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "print",
		Help: "TEXT - transmit a line from the board",
		Func: func(c *ishell.Context) {
			if err := u.Print(strings.Join(c.Args, " ") + "\n"); err != nil {
				c.Err(err)
			}
		},
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show UART state and counters",
		Func: func(c *ishell.Context) {
			text, err := statusText(u)
			if err != nil {
				c.Err(err)
				return
			}
			c.Print(text)
		},
	})
	return sh
}

func sendLine(peer *sim.Peer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("nothing to send")
	}
	_, err := peer.Write([]byte(strings.Join(args, " ") + "\n"))
	return err
}

// quoteReceived renders bytes for the terminal, escaping what is not
// printable.
func quoteReceived(b []byte) string {
	if len(b) == 0 {
		return "(nothing)\n"
	}
	q := fmt.Sprintf("%+q", b)
	q = strings.ReplaceAll(q[1:len(q)-1], `\n`, "\n")
	if !strings.HasSuffix(q, "\n") {
		q += "\n"
	}
	return q
}

func statusText(u *softuart.UART) (string, error) {
	b, err := json.MarshalIndent(api.StatusOf(u), "", "    ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
