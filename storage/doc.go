// Package storage defines the relay's durable state: the identity
// directory and the per-recipient offline message queue.
//
// Directory entries and queued envelopes must survive a relay restart;
// live routing handles never touch this layer and are rebuilt on
// reconnect. Two implementations exist: the in-memory store in this
// package (tests, single-process deployments) and the PostgreSQL store
// in storage/postgres.
package storage
