package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PacketType identifies the payload carried by a frame.
type PacketType byte

const (
	// PacketRegister announces an identity and binds its connection.
	PacketRegister PacketType = 0x01
	// PacketDirectoryRequest asks for all known identities.
	PacketDirectoryRequest PacketType = 0x02
	// PacketDirectoryResponse returns the directory listing.
	PacketDirectoryResponse PacketType = 0x03

	// PacketPrivateMessage carries an envelope from sender to relay.
	PacketPrivateMessage PacketType = 0x10
	// PacketReceiveMessage carries an envelope from relay to recipient.
	PacketReceiveMessage PacketType = 0x11
	// PacketTyping is a live-only, fire-and-forget typing indicator.
	PacketTyping PacketType = 0x12

	// PacketSignal carries call signaling; never queued.
	PacketSignal PacketType = 0x20
	// PacketSignalError reports a signaling delivery failure to the sender.
	PacketSignalError PacketType = 0x21

	// PacketUserJoined broadcasts a registration to other connections.
	PacketUserJoined PacketType = 0x30
	// PacketUserLeft broadcasts a disconnect to other connections.
	PacketUserLeft PacketType = 0x31
)

// MaxPayloadSize bounds a single frame payload. Envelopes carry inline
// base64 content, so the cap is generous but finite.
const MaxPayloadSize = 1 << 20

var (
	// ErrPayloadTooLarge indicates a frame exceeding MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum frame size")
	// ErrUnknownPacket indicates a packet type this build does not handle.
	ErrUnknownPacket = errors.New("unknown packet type")
)

// Frame is one decoded unit off the wire: a type tag and its raw payload.
type Frame struct {
	Type    PacketType
	Payload []byte
}

// Encode builds a frame from a packet type and payload value.
func Encode(t PacketType, v any) (Frame, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal payload: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return Frame{}, ErrPayloadTooLarge
	}
	return Frame{Type: t, Payload: payload}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %v payload: %w", f.Type, err)
	}
	return nil
}

// String names the packet type for logs.
func (t PacketType) String() string {
	switch t {
	case PacketRegister:
		return "register"
	case PacketDirectoryRequest:
		return "directory_request"
	case PacketDirectoryResponse:
		return "directory_response"
	case PacketPrivateMessage:
		return "private_message"
	case PacketReceiveMessage:
		return "receive_message"
	case PacketTyping:
		return "typing"
	case PacketSignal:
		return "signal"
	case PacketSignalError:
		return "signal_error"
	case PacketUserJoined:
		return "user_joined"
	case PacketUserLeft:
		return "user_left"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}
