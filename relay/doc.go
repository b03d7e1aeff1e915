// Package relay implements the store-and-forward message relay.
//
// The relay is a blind router: envelopes pass through encrypted and are
// never inspected beyond their addressing fields. Messages to reachable
// identities forward live; messages to unreachable identities land in a
// durable per-recipient queue and flush, in arrival order, on the next
// registration. Call signaling is live-only and is never queued; a
// signal to an unreachable identity turns into a signal error back to
// the sender.
package relay
