package bridge

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	// Topics below the prefix: what the link writes goes to TopicOut,
	// what arrives on TopicIn is read from the link.
	TopicOut = "/tx"
	TopicIn  = "/rx"

	mqttTimeout = 5 * time.Second
)

// DefaultTopicPrefix returns a prefix that is stable for this host and does
// not leak its machine ID.
func DefaultTopicPrefix() string {
	id, err := machineid.ProtectedID("softuart")
	if err != nil || len(id) < 12 {
		return "softuart/local"
	}
	return "softuart/" + id[:12]
}

// mqttOptions builds client options from a mqtt:// or mqtts:// URL. The
// URL path, if any, is the topic prefix.
func mqttOptions(u *url.URL) (*paho.ClientOptions, string) {
	server := "tcp"
	if u.Scheme == "mqtts" {
		server = "ssl"
	}
	server += "://" + u.Host

	prefix := strings.Trim(u.Path, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, prefix
}

// mqttLink is a byte stream over two MQTT topics. Each Write is one
// message; message boundaries are not preserved on Read.
type mqttLink struct {
	client paho.Client
	prefix string

	in        chan []byte
	mu        sync.Mutex
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func dialMQTT(u *url.URL) (io.ReadWriteCloser, error) {
	opts, prefix := mqttOptions(u)
	l := &mqttLink{
		prefix: prefix,
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	opts.SetOnConnectHandler(l.onConnect)
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})
	l.client = paho.NewClient(opts)

	token := l.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", u.Host)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"broker": u.Host, "prefix": prefix}).Info("connected via MQTT")
	return l, nil
}

// onConnect subscribes again after every (re)connect.
func (l *mqttLink) onConnect(c paho.Client) {
	c.Subscribe(l.prefix+TopicIn, 0, l.receive)
}

func (l *mqttLink) receive(c paho.Client, msg paho.Message) {
	p := append([]byte(nil), msg.Payload()...)
	select {
	case l.in <- p:
	case <-l.closed:
	}
}

func (l *mqttLink) Read(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		select {
		case l.pending = <-l.in:
		case <-l.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *mqttLink) Write(b []byte) (int, error) {
	select {
	case <-l.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	token := l.client.Publish(l.prefix+TopicOut, 0, false, append([]byte(nil), b...))
	if !token.WaitTimeout(mqttTimeout) {
		return 0, paho.ErrNotConnected
	}
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (l *mqttLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.client.Disconnect(250)
	})
	return nil
}
