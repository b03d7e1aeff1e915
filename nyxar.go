// Package nyxar is the client-side entry point: one type that owns an
// identity, a relay connection, end-to-end message encryption, and the
// call state machine.
//
// The relay only ever sees sealed envelopes; plaintext exists at the
// two endpoints and nowhere else.
package nyxar

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/call"
	"github.com/shakilkhan1801/NYXAR/crypto"
	"github.com/shakilkhan1801/NYXAR/transport"
	"github.com/shakilkhan1801/NYXAR/wire"
)

var (
	// ErrUnknownRecipient indicates a send to an identity missing from the
	// directory, so no public key is available to seal for.
	ErrUnknownRecipient = errors.New("recipient not found in directory")
)

// Config selects the relay to connect to.
type Config struct {
	// RelayAddr is the relay's host:port.
	RelayAddr string
	// Noise upgrades the relay connection to an encrypted channel. This
	// protects the envelope metadata in transit; message content is
	// end-to-end encrypted either way.
	Noise bool
}

// Message is one decrypted incoming message.
type Message struct {
	ID       string
	SenderID string
	Content  []byte
	Kind     wire.MessageKind
	SentAt   time.Time
}

// Contact is one directory entry as the client tracks it.
type Contact struct {
	ID       string
	Username string
	Online   bool

	key *rsa.PublicKey
}

// Client is one identity's connection to the messenger.
type Client struct {
	identity *crypto.Identity
	conn     *transport.Client
	calls    *call.Manager

	mu       sync.RWMutex
	contacts map[string]*Contact

	onMessage  func(Message)
	onPresence func(Contact)
	onTyping   func(senderID string)
}

// Connect dials the relay and wires up the client. Set callbacks, then
// call Start to register and begin receiving.
func Connect(identity *crypto.Identity, media call.MediaTransport, cfg Config) (*Client, error) {
	if identity == nil || identity.KeyPair == nil {
		return nil, errors.New("identity with keypair required")
	}

	conn, err := transport.Dial(transport.ClientConfig{Addr: cfg.RelayAddr, Noise: cfg.Noise})
	if err != nil {
		return nil, err
	}

	if media == nil {
		media = unavailableMedia{}
	}

	c := &Client{
		identity: identity,
		conn:     conn,
		contacts: make(map[string]*Contact),
	}
	c.calls = call.NewManager(media, signalSender{conn: conn})
	c.bindHandlers()
	return c, nil
}

// Start launches the receive loop and registers the identity. Queued
// offline messages begin arriving immediately after.
func (c *Client) Start() error {
	c.conn.Start()

	pub, err := crypto.ExportPublicKey(c.identity.KeyPair.Public)
	if err != nil {
		return fmt.Errorf("export public key: %w", err)
	}
	return c.conn.Send(wire.PacketRegister, wire.Register{
		ID:        c.identity.ID,
		Username:  c.identity.Username,
		PublicKey: pub,
	})
}

// Close tears down the relay connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ID returns the client's identity id.
func (c *Client) ID() string {
	return c.identity.ID
}

// OnMessage sets the decrypted-message callback.
func (c *Client) OnMessage(f func(Message)) { c.onMessage = f }

// OnPresence sets the callback for directory changes (join, leave,
// initial roster).
func (c *Client) OnPresence(f func(Contact)) { c.onPresence = f }

// OnTyping sets the typing indicator callback.
func (c *Client) OnTyping(f func(senderID string)) { c.onTyping = f }

// OnCallState sets the call transition callback.
func (c *Client) OnCallState(f func(call.StateChange)) { c.calls.OnStateChange(f) }

// OnDisconnect sets the callback invoked when the relay connection drops.
func (c *Client) OnDisconnect(f func(error)) { c.conn.OnDisconnect(f) }

// SendMessage seals content for the recipient and hands it to the relay.
// Returns the new message's id.
func (c *Client) SendMessage(receiverID string, content []byte, kind wire.MessageKind) (string, error) {
	c.mu.RLock()
	contact, ok := c.contacts[receiverID]
	c.mu.RUnlock()
	if !ok || contact.key == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownRecipient, receiverID)
	}

	sealed, err := crypto.EncryptMessage(content, contact.key)
	if err != nil {
		return "", fmt.Errorf("seal message: %w", err)
	}

	env := wire.Envelope{
		ID:               uuid.NewString(),
		SenderID:         c.identity.ID,
		ReceiverID:       receiverID,
		EncryptedKey:     sealed.EncryptedKey,
		EncryptedContent: sealed.EncryptedContent,
		IV:               sealed.IV,
		Timestamp:        wire.NowMillis(),
		Kind:             kind,
	}
	if err := c.conn.Send(wire.PacketPrivateMessage, wire.PrivateMessage{
		ReceiverID: receiverID,
		Envelope:   env,
	}); err != nil {
		return "", err
	}
	return env.ID, nil
}

// SendTyping fires a best-effort typing indicator at the recipient.
func (c *Client) SendTyping(receiverID string) error {
	return c.conn.Send(wire.PacketTyping, wire.Typing{ReceiverID: receiverID})
}

// Contacts lists the directory as last seen, sorted by id.
func (c *Client) Contacts() []Contact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Contact, 0, len(c.contacts))
	for _, contact := range c.contacts {
		out = append(out, *contact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Contact returns one directory entry.
func (c *Client) Contact(id string) (Contact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contact, ok := c.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return *contact, true
}

// RefreshDirectory asks the relay for the current roster.
func (c *Client) RefreshDirectory() error {
	return c.conn.Send(wire.PacketDirectoryRequest, struct{}{})
}

// StartCall places an outgoing call to the peer.
func (c *Client) StartCall(peerID string, video bool) (string, error) {
	return c.calls.StartCall(peerID, video)
}

// AnswerCall accepts the ringing incoming call.
func (c *Client) AnswerCall() error {
	return c.calls.Answer()
}

// Hangup ends the current call, whatever its phase.
func (c *Client) Hangup() error {
	return c.calls.Hangup()
}

// CallState reports the call machine's current phase.
func (c *Client) CallState() call.State {
	return c.calls.State()
}

func (c *Client) bindHandlers() {
	c.conn.RegisterHandler(wire.PacketReceiveMessage, c.handleReceive)
	c.conn.RegisterHandler(wire.PacketDirectoryResponse, c.handleDirectory)
	c.conn.RegisterHandler(wire.PacketUserJoined, c.handleUserJoined)
	c.conn.RegisterHandler(wire.PacketUserLeft, c.handleUserLeft)
	c.conn.RegisterHandler(wire.PacketTyping, c.handleTyping)
	c.conn.RegisterHandler(wire.PacketSignal, c.handleSignal)
	c.conn.RegisterHandler(wire.PacketSignalError, c.handleSignalError)
}

// handleReceive decrypts one envelope. Anything that fails to decrypt,
// for any reason, is discarded whole; no partial plaintext reaches the
// callback.
func (c *Client) handleReceive(frame wire.Frame) {
	var env wire.Envelope
	if err := frame.Decode(&env); err != nil {
		return
	}

	plaintext, err := crypto.DecryptMessage(env.Cipher(), c.identity.KeyPair.Private)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "handleReceive",
			"message_id": env.ID,
			"sender":     env.SenderID,
		}).Warn("Discarding undecryptable envelope")
		return
	}

	if c.onMessage != nil {
		c.onMessage(Message{
			ID:       env.ID,
			SenderID: env.SenderID,
			Content:  plaintext,
			Kind:     env.Kind,
			SentAt:   time.UnixMilli(env.Timestamp),
		})
	}
}

func (c *Client) handleDirectory(frame wire.Frame) {
	var dir wire.DirectoryResponse
	if err := frame.Decode(&dir); err != nil {
		return
	}
	for _, entry := range dir.Users {
		if entry.ID == c.identity.ID {
			continue
		}
		c.updateContact(entry)
	}
}

func (c *Client) handleUserJoined(frame wire.Frame) {
	var entry wire.DirectoryEntry
	if err := frame.Decode(&entry); err != nil {
		return
	}
	c.updateContact(entry)
}

func (c *Client) handleUserLeft(frame wire.Frame) {
	var left wire.UserLeft
	if err := frame.Decode(&left); err != nil {
		return
	}

	c.mu.Lock()
	contact, ok := c.contacts[left.UserID]
	if ok {
		contact.Online = false
	}
	c.mu.Unlock()

	if ok && c.onPresence != nil {
		c.onPresence(*contact)
	}
}

func (c *Client) updateContact(entry wire.DirectoryEntry) {
	key, err := crypto.ImportPublicKey(entry.PublicKey)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "updateContact",
			"id":       entry.ID,
		}).Warn("Directory entry carries an unusable public key")
		key = nil
	}

	contact := &Contact{
		ID:       entry.ID,
		Username: entry.Username,
		Online:   entry.Online,
		key:      key,
	}
	c.mu.Lock()
	c.contacts[entry.ID] = contact
	c.mu.Unlock()

	if c.onPresence != nil {
		c.onPresence(*contact)
	}
}

func (c *Client) handleTyping(frame wire.Frame) {
	var t wire.Typing
	if err := frame.Decode(&t); err != nil {
		return
	}
	if c.onTyping != nil {
		c.onTyping(t.SenderID)
	}
}

func (c *Client) handleSignal(frame wire.Frame) {
	var sig wire.Signal
	if err := frame.Decode(&sig); err != nil {
		return
	}
	if err := c.calls.HandleSignal(sig.SenderID, sig.Signal); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleSignal",
			"call_id":  sig.Signal.CallID,
			"error":    err.Error(),
		}).Debug("Signal not applied")
	}
}

func (c *Client) handleSignalError(frame wire.Frame) {
	var se wire.SignalError
	if err := frame.Decode(&se); err != nil {
		return
	}
	c.calls.HandleSignalError(se)
}

// signalSender routes the call manager's outbound signaling through the
// relay connection.
type signalSender struct {
	conn *transport.Client
}

func (s signalSender) SendSignal(targetID string, sig wire.SignalMessage) error {
	return s.conn.Send(wire.PacketSignal, wire.Signal{TargetID: targetID, Signal: sig})
}

// unavailableMedia stands in when the caller provides no media
// transport; call attempts fail cleanly instead of panicking.
type unavailableMedia struct{}

func (unavailableMedia) Acquire(bool) (call.MediaSession, error) {
	return nil, errors.New("no media transport configured")
}
