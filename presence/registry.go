package presence

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/storage"
	"github.com/shakilkhan1801/NYXAR/wire"
)

// Handle is the push capability the relay binds to a registered
// identity: the live connection it can forward frames over.
type Handle interface {
	Send(t wire.PacketType, v any) error
	Close() error
}

// Registry is the source of truth for whether an identity can receive
// live traffic, and for the handle to reach it.
type Registry struct {
	directory storage.DirectoryStore

	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry creates a registry over the given directory store.
func NewRegistry(directory storage.DirectoryStore) *Registry {
	return &Registry{
		directory: directory,
		handles:   make(map[string]Handle),
	}
}

// Register upserts the directory entry, marks it reachable, and binds
// the routing handle. A prior handle for the same identity is closed
// and superseded (last-registration-wins). All other connected
// identities receive a join broadcast.
func (r *Registry) Register(ctx context.Context, rec storage.DirectoryRecord, h Handle) error {
	rec.Online = true
	if rec.LastActive.IsZero() {
		rec.LastActive = time.Now()
	}
	if err := r.directory.Upsert(ctx, rec); err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.handles[rec.ID]
	r.handles[rec.ID] = h
	r.mu.Unlock()

	if prev != nil && prev != h {
		logrus.WithFields(logrus.Fields{
			"function": "Register",
			"id":       rec.ID,
		}).Info("Superseding previous routing handle")
		prev.Close()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"id":       rec.ID,
		"username": rec.Username,
	}).Info("Identity registered")

	r.broadcast(rec.ID, wire.PacketUserJoined, wire.DirectoryEntry{
		ID:        rec.ID,
		Username:  rec.Username,
		PublicKey: rec.PublicKey,
		Online:    true,
	})
	return nil
}

// Lookup reports whether an identity is reachable and over which handle.
// The relay consults this before every forward decision.
func (r *Registry) Lookup(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Unregister marks the identity unreachable and clears its handle.
// Idempotent. The handle must match the current binding: a disconnect
// from a superseded connection must not knock the live one offline.
func (r *Registry) Unregister(ctx context.Context, id string, h Handle) error {
	r.mu.Lock()
	current, ok := r.handles[id]
	if !ok || (h != nil && current != h) {
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Unregister",
			"id":       id,
		}).Debug("Unregister for unbound or superseded handle, ignoring")
		return nil
	}
	delete(r.handles, id)
	r.mu.Unlock()

	if err := r.directory.SetOnline(ctx, id, false, time.Now()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Unregister",
			"id":       id,
			"error":    err.Error(),
		}).Warn("Failed to persist offline status")
	}

	logrus.WithFields(logrus.Fields{
		"function": "Unregister",
		"id":       id,
	}).Info("Identity unregistered")

	r.broadcast(id, wire.PacketUserLeft, wire.UserLeft{UserID: id})
	return nil
}

// Directory returns all known identities with their reachability.
func (r *Registry) Directory(ctx context.Context) ([]wire.DirectoryEntry, error) {
	records, err := r.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]wire.DirectoryEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, wire.DirectoryEntry{
			ID:        rec.ID,
			Username:  rec.Username,
			PublicKey: rec.PublicKey,
			Online:    rec.Online,
		})
	}
	return out, nil
}

// broadcast pushes a frame to every bound handle except the subject.
// Send failures are the receiving connection's problem; its own read
// loop will notice and unregister it.
func (r *Registry) broadcast(exceptID string, t wire.PacketType, v any) {
	r.mu.RLock()
	targets := make([]Handle, 0, len(r.handles))
	for id, h := range r.handles {
		if id != exceptID {
			targets = append(targets, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range targets {
		if err := h.Send(t, v); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "broadcast",
				"packet_type": t.String(),
				"error":       err.Error(),
			}).Debug("Broadcast send failed")
		}
	}
}
