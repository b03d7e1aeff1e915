// Package call implements the call signaling state machine.
//
// A manager owns at most one call at a time and moves through four
// states: idle, calling (outgoing, waiting for an answer), ringing
// (incoming, waiting for the user), and connected. Every signaling
// message carries a call identifier and a timestamp; signals whose
// identifier does not match the current call are ghosts and are
// rejected, and offers older than the liveness window are dropped so a
// reconnect cannot replay a long-dead ring.
//
// Media itself does not flow through this package. The manager drives a
// MediaTransport for session description and candidate exchange and
// leaves the actual streams to the transport implementation.
package call
