// Package bridge connects the far end of a simulated soft UART wire to
// something outside the process: a host serial port, a TCP socket, a
// websocket or an MQTT broker.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"golang.org/x/net/websocket"
)

// ErrNoLink is returned by Dial for a connection string it cannot use.
var ErrNoLink = errors.New("no valid link in connection string")

// Dial opens the link named by a connection string:
//
//	socket://host:port, tcp://host:port   TCP
//	ws://host/path, wss://host/path       websocket, binary frames
//	mqtt://[user:pass@]broker:port[/prefix], mqtts://...
//	file:///dev/ttyUSB0, /dev/ttyUSB0      host serial port, 8N1 at baud
func Dial(link string, baud int) (io.ReadWriteCloser, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "socket", "tcp":
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return nil, err
		}
		conn.(*net.TCPConn).SetKeepAlive(true)
		conn.(*net.TCPConn).SetKeepAlivePeriod(30 * time.Second)
		log.WithField("link", link).Info("connected via TCP")
		return conn, nil

	case "ws", "wss":
		origin := "http://localhost/"
		if u.Scheme == "wss" {
			origin = "https://localhost/"
		}
		conn, err := websocket.Dial(link, "", origin)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		log.WithField("link", link).Info("connected via websocket")
		return conn, nil

	case "mqtt", "mqtts":
		return dialMQTT(u)

	case "file", "":
		if u.Path == "" {
			break
		}
		port, err := serial.OpenPort(&serial.Config{
			Name:     u.Path,
			Baud:     baud,
			Size:     8,
			Parity:   serial.ParityNone,
			StopBits: serial.Stop1,
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"port": u.Path, "baud": baud}).Info("connected via serial port")
		return port, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoLink, link)
}
