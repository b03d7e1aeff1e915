package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/wire"
)

// dialTimeout bounds the TCP connect.
const dialTimeout = 10 * time.Second

// ErrClientClosed indicates use of a client after Close.
var ErrClientClosed = errors.New("transport client closed")

// Handler processes one incoming frame. Handlers run on the client's
// single reader goroutine, strictly in arrival order.
type Handler func(frame wire.Frame)

// ClientConfig configures a relay connection.
type ClientConfig struct {
	// Addr is the relay's host:port.
	Addr string
	// Noise upgrades the connection to a Noise-XX encrypted channel.
	Noise bool
}

// Client is one connection to the relay. It is constructed per
// connection and owned by its caller; there is no shared global socket.
type Client struct {
	conn Conn

	handlersMu sync.RWMutex
	handlers   map[wire.PacketType]Handler

	onDisconnect func(error)

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the relay and, if configured, runs the channel
// handshake. Call Start to begin dispatching incoming frames.
func Dial(cfg ClientConfig) (*Client, error) {
	netConn, err := net.DialTimeout("tcp", cfg.Addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	var conn Conn
	if cfg.Noise {
		static, err := GenerateStaticKey()
		if err != nil {
			netConn.Close()
			return nil, err
		}
		conn, err = ClientHandshake(netConn, static)
		if err != nil {
			netConn.Close()
			return nil, err
		}
	} else {
		conn = NewPlainConn(netConn)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"addr":     cfg.Addr,
		"noise":    cfg.Noise,
	}).Info("Connected to relay")

	return &Client{
		conn:     conn,
		handlers: make(map[wire.PacketType]Handler),
		closed:   make(chan struct{}),
	}, nil
}

// NewClient wraps an already-established connection. Used by tests and
// by callers that manage their own handshake.
func NewClient(conn Conn) *Client {
	return &Client{
		conn:     conn,
		handlers: make(map[wire.PacketType]Handler),
		closed:   make(chan struct{}),
	}
}

// RegisterHandler binds a handler to a packet type. Registration happens
// once per connection lifetime, before Start.
func (c *Client) RegisterHandler(t wire.PacketType, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[t] = h
}

// OnDisconnect sets a callback invoked when the read loop stops on error.
func (c *Client) OnDisconnect(f func(error)) {
	c.onDisconnect = f
}

// Start launches the reader goroutine. Frames dispatch sequentially so
// every handler observes the session state as of its own arrival.
func (c *Client) Start() {
	go c.readLoop()
}

func (c *Client) readLoop() {
	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"error":    err.Error(),
			}).Warn("Relay connection lost")
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame wire.Frame) {
	c.handlersMu.RLock()
	h, ok := c.handlers[frame.Type]
	c.handlersMu.RUnlock()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":    "dispatch",
			"packet_type": frame.Type.String(),
		}).Debug("No handler for packet type, dropping")
		return
	}
	h(frame)
}

// Send encodes and writes one frame to the relay.
func (c *Client) Send(t wire.PacketType, v any) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	frame, err := wire.Encode(t, v)
	if err != nil {
		return err
	}
	return c.conn.WriteFrame(frame)
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
