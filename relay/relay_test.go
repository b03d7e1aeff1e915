package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakilkhan1801/NYXAR/presence"
	"github.com/shakilkhan1801/NYXAR/storage"
	"github.com/shakilkhan1801/NYXAR/wire"
)

// fakeHandle records pushed frames and can be made to fail after a
// number of successful sends.
type fakeHandle struct {
	mu        sync.Mutex
	frames    []wire.Frame
	failAfter int
	sends     int
}

func (f *fakeHandle) Send(t wire.PacketType, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && f.sends >= f.failAfter {
		return errors.New("connection gone")
	}
	f.sends++
	frame, err := wire.Encode(t, v)
	if err != nil {
		return err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeHandle) Close() error { return nil }

// failAll makes every further send fail.
func (f *fakeHandle) failAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = 1
	f.sends = f.failAfter
}

func (f *fakeHandle) received() []wire.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Frame(nil), f.frames...)
}

func (f *fakeHandle) envelopes(t *testing.T) []wire.Envelope {
	t.Helper()
	var out []wire.Envelope
	for _, frame := range f.received() {
		if frame.Type != wire.PacketReceiveMessage {
			continue
		}
		var env wire.Envelope
		require.NoError(t, frame.Decode(&env))
		out = append(out, env)
	}
	return out
}

func testRelay() (*Relay, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return New(presence.NewRegistry(store), store), store
}

func envelope(id, sender, receiver string) wire.Envelope {
	return wire.Envelope{
		ID:               id,
		SenderID:         sender,
		ReceiverID:       receiver,
		EncryptedKey:     "wrapped-key",
		EncryptedContent: "ciphertext",
		IV:               "nonce",
		Timestamp:        wire.NowMillis(),
		Kind:             wire.KindText,
	}
}

func registerPeer(t *testing.T, r *Relay, id string) *fakeHandle {
	t.Helper()
	h := &fakeHandle{}
	rec := storage.DirectoryRecord{ID: id, Username: id, LastActive: time.Now()}
	require.NoError(t, r.Register(context.Background(), rec, h))
	return h
}

func TestDeliverForwardsLive(t *testing.T) {
	ctx := context.Background()
	r, store := testRelay()
	bob := registerPeer(t, r, "bob")

	require.NoError(t, r.Deliver(ctx, envelope("m1", "alice", "bob")))

	envs := bob.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "m1", envs[0].ID)

	pending, err := store.Pending(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending, "live delivery must not queue")
}

func TestDeliverQueuesForOfflineRecipient(t *testing.T) {
	ctx := context.Background()
	r, store := testRelay()

	require.NoError(t, r.Deliver(ctx, envelope("m1", "alice", "bob")))

	pending, err := store.Pending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].Envelope.ID)
}

func TestDeliverQueuesWhenLiveSendFails(t *testing.T) {
	ctx := context.Background()
	r, store := testRelay()
	bob := registerPeer(t, r, "bob")
	bob.failAll()

	require.NoError(t, r.Deliver(ctx, envelope("m1", "alice", "bob")))

	pending, err := store.Pending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].Envelope.ID)
}

func TestDeliverRejectsInvalidEnvelope(t *testing.T) {
	r, _ := testRelay()
	env := envelope("m1", "alice", "bob")
	env.EncryptedKey = ""
	assert.Error(t, r.Deliver(context.Background(), env))
}

func TestRegistrationFlushesQueueInOrder(t *testing.T) {
	ctx := context.Background()
	r, store := testRelay()

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.Deliver(ctx, envelope(fmt.Sprintf("m%d", i), "alice", "bob")))
	}

	bob := registerPeer(t, r, "bob")

	envs := bob.envelopes(t)
	require.Len(t, envs, 3)
	for i, env := range envs {
		assert.Equal(t, fmt.Sprintf("m%d", i+1), env.ID)
	}

	pending, err := store.Pending(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending, "flushed messages must be deleted")
}

func TestFlushStopsOnFirstFailureAndRetains(t *testing.T) {
	ctx := context.Background()
	r, store := testRelay()

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.Deliver(ctx, envelope(fmt.Sprintf("m%d", i), "alice", "bob")))
	}

	h := &fakeHandle{failAfter: 1}
	rec := storage.DirectoryRecord{ID: "bob", Username: "bob", LastActive: time.Now()}
	require.NoError(t, r.Register(ctx, rec, h))

	envs := h.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "m1", envs[0].ID)

	pending, err := store.Pending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 2, "undelivered messages stay queued for the next registration")
	assert.Equal(t, "m2", pending[0].Envelope.ID)
	assert.Equal(t, "m3", pending[1].Envelope.ID)
}

func TestDeliverSignalStampsSender(t *testing.T) {
	r, _ := testRelay()
	bob := registerPeer(t, r, "bob")

	sig := wire.Signal{
		TargetID: "bob",
		Signal: wire.SignalMessage{
			Type:      wire.SignalOffer,
			CallID:    "call-1",
			Timestamp: wire.NowMillis(),
		},
	}
	require.NoError(t, r.DeliverSignal("alice", sig))

	frames := bob.received()
	var got wire.Signal
	found := false
	for _, frame := range frames {
		if frame.Type == wire.PacketSignal {
			require.NoError(t, frame.Decode(&got))
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, "alice", got.SenderID)
	assert.Equal(t, "call-1", got.Signal.CallID)
}

func TestDeliverSignalOfflineTargetIsNeverQueued(t *testing.T) {
	r, store := testRelay()

	sig := wire.Signal{
		TargetID: "bob",
		Signal:   wire.SignalMessage{Type: wire.SignalOffer, CallID: "call-1", Timestamp: wire.NowMillis()},
	}
	err := r.DeliverSignal("alice", sig)
	require.ErrorIs(t, err, ErrUserOffline)

	pending, storeErr := store.Pending(context.Background(), "bob")
	require.NoError(t, storeErr)
	assert.Empty(t, pending, "signals are live-only")
}

func TestDeliverSignalSendFailureReportsOffline(t *testing.T) {
	r, _ := testRelay()
	bob := registerPeer(t, r, "bob")
	bob.failAll()

	sig := wire.Signal{
		TargetID: "bob",
		Signal:   wire.SignalMessage{Type: wire.SignalOffer, CallID: "call-1", Timestamp: wire.NowMillis()},
	}
	assert.ErrorIs(t, r.DeliverSignal("alice", sig), ErrUserOffline)
}

func TestTypingDropsWhenOffline(t *testing.T) {
	r, _ := testRelay()
	// No registration for bob; must not panic or queue.
	r.DeliverTyping("alice", wire.Typing{ReceiverID: "bob"})
}

func TestTypingForwardsLive(t *testing.T) {
	r, _ := testRelay()
	bob := registerPeer(t, r, "bob")

	r.DeliverTyping("alice", wire.Typing{ReceiverID: "bob"})

	var got wire.Typing
	found := false
	for _, frame := range bob.received() {
		if frame.Type == wire.PacketTyping {
			require.NoError(t, frame.Decode(&got))
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, "alice", got.SenderID)
}
