package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shakilkhan1801/NYXAR/crypto"
	"github.com/shakilkhan1801/NYXAR/wire"
)

// ErrNotFound indicates a directory id with no entry.
var ErrNotFound = errors.New("directory entry not found")

// DirectoryRecord is the persisted form of one identity. Entries are
// created on first registration and never deleted while the account
// exists; only reachability flips afterward.
type DirectoryRecord struct {
	ID         string
	Username   string
	PublicKey  *crypto.JWK
	Online     bool
	LastActive time.Time
}

// QueueEntry is one envelope awaiting an offline recipient. Seq orders
// entries by arrival; it is unique per store.
type QueueEntry struct {
	Seq         int64
	RecipientID string
	Envelope    wire.Envelope
	ArrivedAt   time.Time
}

// DirectoryStore persists identity directory entries.
type DirectoryStore interface {
	// Upsert creates or replaces an entry.
	Upsert(ctx context.Context, rec DirectoryRecord) error
	// SetOnline flips reachability without touching identity fields.
	SetOnline(ctx context.Context, id string, online bool, at time.Time) error
	// Get returns one entry or ErrNotFound.
	Get(ctx context.Context, id string) (DirectoryRecord, error)
	// List returns every known entry.
	List(ctx context.Context) ([]DirectoryRecord, error)
}

// QueueStore persists envelopes that could not be delivered live.
type QueueStore interface {
	// Append stores an envelope for a recipient.
	Append(ctx context.Context, recipientID string, env wire.Envelope, arrivedAt time.Time) error
	// Pending returns a recipient's queued entries in arrival order.
	Pending(ctx context.Context, recipientID string) ([]QueueEntry, error)
	// Delete removes one entry after successful hand-off.
	Delete(ctx context.Context, seq int64) error
}
