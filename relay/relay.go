package relay

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/presence"
	"github.com/shakilkhan1801/NYXAR/storage"
	"github.com/shakilkhan1801/NYXAR/wire"
)

// lockStripes is the size of the per-identity lock table.
const lockStripes = 64

var (
	// ErrUserOffline indicates a live-only delivery to an unreachable identity.
	ErrUserOffline = errors.New("target user is offline")
	// ErrNotRegistered indicates traffic from a connection that never registered.
	ErrNotRegistered = errors.New("connection has not registered an identity")
)

// Relay routes envelopes and signals between registered identities.
type Relay struct {
	registry *presence.Registry
	queue    storage.QueueStore

	// locks serialize delivery against registration per identity, so a
	// message arriving mid-registration is either forwarded live or
	// queued before the flush runs, never lost between the two.
	locks [lockStripes]sync.Mutex
}

// New creates a relay over the given registry and offline queue.
func New(registry *presence.Registry, queue storage.QueueStore) *Relay {
	return &Relay{registry: registry, queue: queue}
}

func (r *Relay) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockStripes]
}

// Register binds an identity to a routing handle and flushes its
// offline queue over the new connection, oldest first.
func (r *Relay) Register(ctx context.Context, rec storage.DirectoryRecord, h presence.Handle) error {
	mu := r.lock(rec.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := r.registry.Register(ctx, rec, h); err != nil {
		return err
	}
	return r.flushPending(ctx, rec.ID, h)
}

// Unregister releases the identity's handle if it still owns the binding.
func (r *Relay) Unregister(ctx context.Context, id string, h presence.Handle) error {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()
	return r.registry.Unregister(ctx, id, h)
}

// Directory lists all known identities.
func (r *Relay) Directory(ctx context.Context) ([]wire.DirectoryEntry, error) {
	return r.registry.Directory(ctx)
}

// Deliver routes one envelope: live forward when the recipient is
// reachable, durable queue append otherwise. A failed live send falls
// back to the queue rather than dropping the envelope.
func (r *Relay) Deliver(ctx context.Context, env wire.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	mu := r.lock(env.ReceiverID)
	mu.Lock()
	defer mu.Unlock()

	if h, ok := r.registry.Lookup(env.ReceiverID); ok {
		err := h.Send(wire.PacketReceiveMessage, env)
		if err == nil {
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "Deliver",
			"receiver": env.ReceiverID,
			"error":    err.Error(),
		}).Warn("Live forward failed, queueing envelope")
	}
	return r.queue.Append(ctx, env.ReceiverID, env, time.Now())
}

// flushPending hands every queued envelope to the handle in arrival
// order, deleting each entry only after the handoff succeeds. A failed
// handoff stops the flush; what remains is retried on the next
// registration, so delivery is at-least-once.
func (r *Relay) flushPending(ctx context.Context, id string, h presence.Handle) error {
	pending, err := r.queue.Pending(ctx, id)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "flushPending",
		"id":       id,
		"count":    len(pending),
	}).Info("Flushing offline messages")

	for _, entry := range pending {
		if err := h.Send(wire.PacketReceiveMessage, entry.Envelope); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "flushPending",
				"id":       id,
				"seq":      entry.Seq,
				"error":    err.Error(),
			}).Warn("Flush interrupted, remaining messages stay queued")
			return nil
		}
		if err := r.queue.Delete(ctx, entry.Seq); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

// DeliverSignal forwards call signaling live, stamping the sender's
// identity. Signals are ephemeral: no recipient means ErrUserOffline,
// never a queue entry.
func (r *Relay) DeliverSignal(senderID string, sig wire.Signal) error {
	sig.SenderID = senderID

	h, ok := r.registry.Lookup(sig.TargetID)
	if !ok {
		return ErrUserOffline
	}
	if err := h.Send(wire.PacketSignal, sig); err != nil {
		return ErrUserOffline
	}
	return nil
}

// DeliverTyping forwards a typing indicator. Best-effort: an offline
// recipient just misses it.
func (r *Relay) DeliverTyping(senderID string, t wire.Typing) {
	t.SenderID = senderID
	if h, ok := r.registry.Lookup(t.ReceiverID); ok {
		if err := h.Send(wire.PacketTyping, t); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "DeliverTyping",
				"receiver": t.ReceiverID,
			}).Debug("Typing forward failed")
		}
	}
}
