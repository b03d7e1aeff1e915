package wire

import (
	"errors"
	"time"

	"github.com/shakilkhan1801/NYXAR/crypto"
)

// MessageKind distinguishes what an envelope's plaintext contains.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindAudio  MessageKind = "audio"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// Envelope is the encrypted, addressed unit of a single chat message.
// It is immutable once created and always has exactly one recipient.
type Envelope struct {
	ID               string      `json:"id"`
	SenderID         string      `json:"senderId"`
	ReceiverID       string      `json:"receiverId"`
	EncryptedKey     string      `json:"encryptedKey"`
	EncryptedContent string      `json:"encryptedContent"`
	IV               string      `json:"iv"`
	Timestamp        int64       `json:"timestamp"`
	Kind             MessageKind `json:"kind"`
}

var errInvalidEnvelope = errors.New("invalid envelope")

// Validate checks the addressing and cipher fields the relay depends on.
// The relay never validates (or sees) plaintext.
func (e *Envelope) Validate() error {
	if e.ID == "" || e.SenderID == "" || e.ReceiverID == "" {
		return errInvalidEnvelope
	}
	if e.EncryptedContent == "" || e.EncryptedKey == "" || e.IV == "" {
		return errInvalidEnvelope
	}
	return nil
}

// Cipher extracts the envelope's encrypted fields for the crypto engine.
func (e *Envelope) Cipher() *crypto.EnvelopeCipher {
	return &crypto.EnvelopeCipher{
		EncryptedKey:     e.EncryptedKey,
		EncryptedContent: e.EncryptedContent,
		IV:               e.IV,
	}
}

// SignalType is the call signaling message variant.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalBye       SignalType = "bye"
)

// ByeReason explains why a call ended.
type ByeReason string

const (
	ReasonHangup ByeReason = "hangup"
	ReasonReject ByeReason = "reject"
	ReasonCancel ByeReason = "cancel"
	ReasonBusy   ByeReason = "busy"
)

// SignalMessage is one call signaling message. CallID and Timestamp are
// the integrity anchors of the whole protocol: CallID rejects mismatched
// ("ghost") signals and Timestamp rejects stale ones.
type SignalMessage struct {
	Type      SignalType `json:"type"`
	CallID    string     `json:"callId"`
	Timestamp int64      `json:"timestamp"`
	IsVideo   bool       `json:"isVideo"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate string     `json:"candidate,omitempty"`
	Duration  int64      `json:"duration,omitempty"`
	Reason    ByeReason  `json:"reason,omitempty"`
}

// Age reports how old the signal is relative to now.
func (s *SignalMessage) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(s.Timestamp))
}

// NowMillis is the timestamp format used on the wire (Unix milliseconds).
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Register announces an identity to the relay.
type Register struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	PublicKey *crypto.JWK `json:"publicKey"`
}

// PrivateMessage asks the relay to deliver an envelope.
type PrivateMessage struct {
	ReceiverID string   `json:"receiverId"`
	Envelope   Envelope `json:"envelope"`
}

// Signal asks the relay for a live-only forward of a signaling message.
// SenderID is filled in by the relay from the sending connection.
type Signal struct {
	TargetID string        `json:"targetId"`
	SenderID string        `json:"senderId,omitempty"`
	Signal   SignalMessage `json:"signal"`
}

// Signal error codes.
const (
	CodeUserOffline = "USER_OFFLINE"
)

// SignalError tells a sender that a signal could not be delivered live.
type SignalError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	TargetID string `json:"targetId"`
}

// DirectoryEntry is one identity as the relay directory publishes it.
type DirectoryEntry struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	PublicKey *crypto.JWK `json:"publicKey"`
	Online    bool        `json:"online"`
}

// DirectoryResponse lists all known identities.
type DirectoryResponse struct {
	Users []DirectoryEntry `json:"users"`
}

// UserLeft announces that an identity went unreachable.
type UserLeft struct {
	UserID string `json:"userId"`
}

// Typing is a live-only typing indicator. SenderID is filled by the relay.
type Typing struct {
	ReceiverID string `json:"receiverId"`
	SenderID   string `json:"senderId,omitempty"`
}
