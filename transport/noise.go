package transport

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/wire"
)

// handshakeTimeout bounds the whole Noise handshake exchange.
const handshakeTimeout = 10 * time.Second

// ErrHandshakeFailed indicates the Noise handshake did not complete.
var ErrHandshakeFailed = errors.New("noise handshake failed")

// noiseSuite is the fixed channel cipher suite: Curve25519 key agreement,
// ChaCha20-Poly1305 transport cipher, BLAKE2s hashing.
var noiseSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// GenerateStaticKey creates a Curve25519 static keypair for the channel.
// The relay holds one long-term key; clients generate one per connection.
func GenerateStaticKey() (noise.DHKey, error) {
	return noiseSuite.GenerateKeypair(rand.Reader)
}

// NoiseConn carries frames over a Noise-XX encrypted channel. The whole
// record (type byte and payload) is encrypted, so an observer sees only
// record lengths.
type NoiseConn struct {
	conn    net.Conn
	send    *noise.CipherState
	recv    *noise.CipherState
	writeMu sync.Mutex
}

// ClientHandshake runs the initiator side of the XX handshake and
// returns the encrypted connection.
func ClientHandshake(conn net.Conn, static noise.DHKey) (*NoiseConn, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     true,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, err
	}
	defer conn.SetDeadline(time.Time{})

	// -> e
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := writeRecord(conn, msg1); err != nil {
		return nil, err
	}

	// <- e, ee, s, es
	msg2, err := readRecord(conn)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg2); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// -> s, se
	msg3, send, recv, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := writeRecord(conn, msg3); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "ClientHandshake",
		"remote":   conn.RemoteAddr().String(),
	}).Debug("Noise channel established")

	return &NoiseConn{conn: conn, send: send, recv: recv}, nil
}

// ServerHandshake runs the responder side of the XX handshake using the
// relay's long-term static key.
func ServerHandshake(conn net.Conn, static noise.DHKey) (*NoiseConn, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     false,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, err
	}
	defer conn.SetDeadline(time.Time{})

	// <- e
	msg1, err := readRecord(conn)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// -> e, ee, s, es
	msg2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := writeRecord(conn, msg2); err != nil {
		return nil, err
	}

	// <- s, se
	msg3, err := readRecord(conn)
	if err != nil {
		return nil, err
	}
	_, send, recv, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	return &NoiseConn{conn: conn, send: send, recv: recv}, nil
}

func (c *NoiseConn) ReadFrame() (wire.Frame, error) {
	ciphertext, err := readRecord(c.conn)
	if err != nil {
		return wire.Frame{}, err
	}
	record, err := c.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		// A failed decrypt desynchronizes the cipher state; the
		// connection is unusable from here on.
		return wire.Frame{}, fmt.Errorf("decrypt record: %w", err)
	}
	if len(record) == 0 {
		return wire.Frame{}, ErrEmptyRecord
	}
	return wire.Frame{Type: wire.PacketType(record[0]), Payload: record[1:]}, nil
}

func (c *NoiseConn) WriteFrame(f wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	record := make([]byte, 1+len(f.Payload))
	record[0] = byte(f.Type)
	copy(record[1:], f.Payload)

	ciphertext, err := c.send.Encrypt(nil, nil, record)
	if err != nil {
		return fmt.Errorf("encrypt record: %w", err)
	}
	return writeRecord(c.conn, ciphertext)
}

func (c *NoiseConn) Close() error {
	return c.conn.Close()
}

func (c *NoiseConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
