package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/presence"
	"github.com/shakilkhan1801/NYXAR/storage"
	"github.com/shakilkhan1801/NYXAR/transport"
	"github.com/shakilkhan1801/NYXAR/wire"
)

// connHandle adapts a framed connection to the registry's routing
// handle. Pointer identity distinguishes superseded connections.
type connHandle struct {
	conn transport.Conn
}

func (h *connHandle) Send(t wire.PacketType, v any) error {
	frame, err := wire.Encode(t, v)
	if err != nil {
		return err
	}
	return h.conn.WriteFrame(frame)
}

func (h *connHandle) Close() error {
	return h.conn.Close()
}

// Server accepts relay connections and runs one session per connection.
type Server struct {
	relay    *Relay
	listener *transport.Listener

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// NewServer binds the listen address. Pass a static key to require the
// encrypted channel, or nil to accept plain framing.
func NewServer(addr string, static *noise.DHKey, relay *Relay) (*Server, error) {
	listener, err := transport.Listen(addr, static)
	if err != nil {
		return nil, err
	}
	return &Server{
		relay:    relay,
		listener: listener,
		done:     make(chan struct{}),
	}, nil
}

// Addr reports the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Close. Each connection gets its own
// goroutine covering handshake, session loop, and teardown.
func (s *Server) Serve(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function": "Serve",
		"addr":     s.listener.Addr().String(),
	}).Info("Relay listening")

	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, raw)
		}()
	}
}

// Close stops the accept loop and waits for in-flight sessions to drain.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()
	})
	s.wg.Wait()
	return err
}

func (s *Server) handle(ctx context.Context, raw net.Conn) {
	conn, err := s.listener.Upgrade(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handle",
			"remote":   raw.RemoteAddr().String(),
			"error":    err.Error(),
		}).Warn("Connection handshake failed")
		raw.Close()
		return
	}

	sess := &session{
		relay:  s.relay,
		conn:   conn,
		handle: &connHandle{conn: conn},
	}
	sess.run(ctx)
}

// session is the per-connection state: the framed connection and, once
// a register frame arrives, the identity bound to it.
type session struct {
	relay  *Relay
	conn   transport.Conn
	handle *connHandle
	id     string
}

func (s *session) run(ctx context.Context) {
	defer s.teardown(ctx)

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			return
		}
		if err := s.dispatch(ctx, frame); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "run",
				"id":          s.id,
				"packet_type": frame.Type.String(),
				"error":       err.Error(),
			}).Warn("Failed to handle packet")
		}
	}
}

// teardown releases the identity binding when the connection drops.
// The handle-matched unregister keeps a late disconnect from a
// superseded connection from touching the live binding.
func (s *session) teardown(ctx context.Context) {
	s.conn.Close()
	if s.id != "" {
		s.relay.Unregister(ctx, s.id, s.handle)
	}
}

func (s *session) dispatch(ctx context.Context, frame wire.Frame) error {
	switch frame.Type {
	case wire.PacketRegister:
		return s.handleRegister(ctx, frame)
	case wire.PacketPrivateMessage:
		return s.handlePrivateMessage(ctx, frame)
	case wire.PacketSignal:
		return s.handleSignal(frame)
	case wire.PacketTyping:
		return s.handleTyping(frame)
	case wire.PacketDirectoryRequest:
		return s.handleDirectoryRequest(ctx)
	default:
		return wire.ErrUnknownPacket
	}
}

func (s *session) handleRegister(ctx context.Context, frame wire.Frame) error {
	var reg wire.Register
	if err := frame.Decode(&reg); err != nil {
		return err
	}
	if reg.ID == "" {
		return errors.New("register without identity")
	}

	rec := storage.DirectoryRecord{
		ID:         reg.ID,
		Username:   reg.Username,
		PublicKey:  reg.PublicKey,
		LastActive: time.Now(),
	}
	if err := s.relay.Register(ctx, rec, s.handle); err != nil {
		return err
	}
	s.id = reg.ID

	// Push the current directory so a fresh client starts with the full
	// roster instead of waiting to request it.
	return s.handleDirectoryRequest(ctx)
}

func (s *session) handlePrivateMessage(ctx context.Context, frame wire.Frame) error {
	if s.id == "" {
		return ErrNotRegistered
	}
	var pm wire.PrivateMessage
	if err := frame.Decode(&pm); err != nil {
		return err
	}

	env := pm.Envelope
	// The connection's registered identity is authoritative for the
	// sender field, whatever the client wrote into the envelope.
	env.SenderID = s.id
	if env.ReceiverID == "" {
		env.ReceiverID = pm.ReceiverID
	}
	return s.relay.Deliver(ctx, env)
}

func (s *session) handleSignal(frame wire.Frame) error {
	if s.id == "" {
		return ErrNotRegistered
	}
	var sig wire.Signal
	if err := frame.Decode(&sig); err != nil {
		return err
	}

	err := s.relay.DeliverSignal(s.id, sig)
	if errors.Is(err, ErrUserOffline) {
		return s.handle.Send(wire.PacketSignalError, wire.SignalError{
			Code:     wire.CodeUserOffline,
			Message:  "target user is offline",
			TargetID: sig.TargetID,
		})
	}
	return err
}

func (s *session) handleTyping(frame wire.Frame) error {
	if s.id == "" {
		return ErrNotRegistered
	}
	var t wire.Typing
	if err := frame.Decode(&t); err != nil {
		return err
	}
	s.relay.DeliverTyping(s.id, t)
	return nil
}

func (s *session) handleDirectoryRequest(ctx context.Context) error {
	entries, err := s.relay.Directory(ctx)
	if err != nil {
		return err
	}
	return s.handle.Send(wire.PacketDirectoryResponse, wire.DirectoryResponse{Users: entries})
}

var _ presence.Handle = (*connHandle)(nil)
