// Package wire defines the client/relay protocol: packet types, payload
// structures, and their encoding.
//
// Every frame on the wire is a packet type byte followed by a JSON
// payload (the transport package adds length prefixes and, optionally,
// channel encryption). JSON is used because the payloads carry variable
// structured data — JWK public keys, SDP blobs, base64 ciphertext —
// rather than fixed binary fields.
//
// The relay never inspects envelope contents; it routes on the addressing
// fields only.
package wire
