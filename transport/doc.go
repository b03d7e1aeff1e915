// Package transport moves wire frames between clients and the relay.
//
// Frames travel as length-prefixed records over TCP. A connection can be
// upgraded with a Noise-XX handshake so that every record after the
// handshake is encrypted and authenticated at the channel level; the
// message envelopes inside remain end-to-end encrypted regardless.
//
// The Client dispatches incoming frames to registered handlers from a
// single reader goroutine, one at a time in arrival order. Handlers that
// need session state must read it at invocation time, not capture it at
// registration time.
package transport
