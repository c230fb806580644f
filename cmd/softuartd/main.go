// softuartd runs the soft UART on a simulated board in real time and
// attaches the far end of the wire to a serial port, TCP socket, websocket
// or MQTT broker, with an optional HTTP API and interactive console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/speters/softuart/api"
	"github.com/speters/softuart/bridge"
	"github.com/speters/softuart/sim"
	"github.com/speters/softuart/softuart"
)

var baudRate = flag.Uint("b", 9600, "baud rate")
var tickRate = flag.Uint("clock", 2000000, "simulated timer rate in Hz (16 MHz CPU / 8)")
var connTo = flag.String("c", "", "link for the far end: socket://[host]:[port], ws://[host]/[path], mqtt://[broker]/[prefix] or [serialDevice]")
var httpServe = flag.String("s", "", "start http server at [bindtohost][:]port")
var verbose = flag.Bool("v", false, "verbose logging")
var interactive = flag.Bool("i", false, "interactive console")
var echo = flag.Bool("echo", false, "run the echo program on the simulated board")
var listPorts = flag.Bool("list", false, "list serial ports and exit")
var rxBuf = flag.Int("rxbuf", softuart.DefaultBufferSize, "inbound ring size in slots")
var txBuf = flag.Int("txbuf", softuart.DefaultBufferSize, "outbound ring size in slots")

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

// To be set via go build -ldflags "-X main.buildVersion=$(git describe --dirty) -X main.buildDate=$(date -u +%FT%TZ)"
var buildVersion = "unspecified"
var buildDate = "unknown"

// reconnectDelay is how long the link loop waits after the link drops.
const reconnectDelay = 12 * time.Second

func writeMemProfile() {
	if *memprofile == "" {
		return
	}
	f, err := os.Create(*memprofile)
	if err != nil {
		log.Fatal("could not create memory profile: ", err)
	}
	defer f.Close()
	runtime.GC() // get up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Fatal("could not write memory profile: ", err)
	}
}

// checkFlags rejects flag combinations that cannot work together.
func checkFlags(interactive bool, link string) error {
	if interactive && link != "" {
		// Both the console's recv and the bridge read the far end; each
		// byte would reach only one of them.
		return errors.New("-i and -c are exclusive: the console and the link both read the far end of the wire")
	}
	return nil
}

// linkLoop keeps the far end of the wire attached to the link, redialing
// after every failure until ctx is done.
func linkLoop(ctx context.Context, peer bridge.Endpoint, link string, baud int) {
	for {
		conn, err := bridge.Dial(link, baud)
		if err != nil {
			log.Error(err)
		} else {
			b := &bridge.Bridge{Peer: peer, Link: conn}
			b.Run(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
			log.WithField("link", link).Info("reconnecting")
		}
	}
}

func main() {
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}

	if *listPorts {
		ports, err := bridge.ListPorts()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if err := checkFlags(*interactive, *connTo); err != nil {
		log.Fatal(err)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		s := <-done
		log.WithField("signal", s).Info("shutting down")
		cancel()
	}()

	// The board drives mcuTx and samples mcuRx; the peer on the far end
	// does the opposite.
	mcuTx, mcuRx := sim.NewLine(), sim.NewLine()
	board := sim.NewBoard(uint32(*tickRate), mcuTx, mcuRx)

	u, err := softuart.New(board, softuart.Config{
		BaudRate:     uint32(*baudRate),
		TxBufferSize: *txBuf,
		RxBufferSize: *rxBuf,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		u.Close()
		log.WithField("stats", u.Stats()).Debug("soft UART closed")
	}()
	log.WithFields(log.Fields{
		"baud":      u.BaudRate(),
		"tick_rate": board.TickRate(),
		"bit_ticks": u.BitTicks(),
		"tx_slots":  *txBuf,
		"rx_slots":  *rxBuf,
	}).Info("soft UART configured")

	peer := sim.NewPeer(uint64(*tickRate / *baudRate), mcuRx, mcuTx)
	board.Attach(peer)
	defer peer.Close()

	go sim.Run(ctx, board, sim.DefaultResolution)

	if *echo {
		go func() {
			if err := runEcho(ctx, u); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("echo program stopped")
			}
		}()
	}

	if *httpServe != "" {
		// accept :[portnum] as well as [portnum]
		if i, err := strconv.Atoi(*httpServe); err == nil {
			*httpServe = fmt.Sprintf(":%d", i)
		}
		h := &http.Server{
			Addr:    *httpServe,
			Handler: api.NewRouter(u, api.Info{Version: buildVersion, BuildDate: buildDate}),
		}
		go func() { log.Error(h.ListenAndServe()) }()
		defer h.Close()
	}

	if *connTo != "" {
		go linkLoop(ctx, peer, *connTo, int(*baudRate))
	}

	if *interactive {
		sh := newConsole(u, peer)
		go func() {
			<-ctx.Done()
			sh.Close()
		}()
		sh.Run()
		cancel()
	} else {
		<-ctx.Done()
	}

	writeMemProfile()
}
