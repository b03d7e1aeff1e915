package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/shakilkhan1801/NYXAR/wire"
)

const (
	// writeTimeout bounds a single record write.
	writeTimeout = 5 * time.Second
	// maxRecordSize bounds one record: type byte + payload + AEAD overhead.
	maxRecordSize = wire.MaxPayloadSize + 64
)

var (
	// ErrRecordTooLarge indicates an incoming record above the size cap.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
	// ErrEmptyRecord indicates a record without even a packet type byte.
	ErrEmptyRecord = errors.New("empty record")
)

// Conn is a framed, typed connection carrying wire frames.
type Conn interface {
	ReadFrame() (wire.Frame, error)
	WriteFrame(wire.Frame) error
	Close() error
	RemoteAddr() net.Addr
}

// writeRecord writes one length-prefixed record.
func writeRecord(conn net.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(data)))
	if _, err := conn.Write(prefix); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

// readRecord reads one length-prefixed record, enforcing the size cap
// before allocating.
func readRecord(conn net.Conn) ([]byte, error) {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(prefix)
	if size > maxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// PlainConn carries frames without channel encryption.
// Record layout: [type:1][json payload].
type PlainConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// NewPlainConn wraps a net.Conn with frame codec behavior.
func NewPlainConn(conn net.Conn) *PlainConn {
	return &PlainConn{conn: conn}
}

func (c *PlainConn) ReadFrame() (wire.Frame, error) {
	record, err := readRecord(c.conn)
	if err != nil {
		return wire.Frame{}, err
	}
	if len(record) == 0 {
		return wire.Frame{}, ErrEmptyRecord
	}
	return wire.Frame{Type: wire.PacketType(record[0]), Payload: record[1:]}, nil
}

func (c *PlainConn) WriteFrame(f wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	record := make([]byte, 1+len(f.Payload))
	record[0] = byte(f.Type)
	copy(record[1:], f.Payload)
	return writeRecord(c.conn, record)
}

func (c *PlainConn) Close() error {
	return c.conn.Close()
}

func (c *PlainConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
