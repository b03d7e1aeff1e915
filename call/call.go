package call

import (
	"errors"
	"time"

	"github.com/shakilkhan1801/NYXAR/wire"
)

// SignalLivenessWindow bounds how old an incoming offer may be. Offers
// past the window are leftovers of a dead call attempt, typically
// replayed across a reconnect, and must not ring.
const SignalLivenessWindow = 30 * time.Second

var (
	// ErrCallInProgress indicates an outgoing call attempt while a call exists.
	ErrCallInProgress = errors.New("a call is already in progress")
	// ErrNoPendingCall indicates an answer without a ringing call.
	ErrNoPendingCall = errors.New("no incoming call to answer")
	// ErrMediaAcquisition indicates the media transport could not start.
	ErrMediaAcquisition = errors.New("failed to acquire media")
	// ErrStaleSignal indicates an offer older than the liveness window.
	ErrStaleSignal = errors.New("stale signal dropped")
)

// State is the call machine's current phase.
type State int

const (
	// StateIdle means no call exists.
	StateIdle State = iota
	// StateCalling means an outgoing offer is waiting for an answer.
	StateCalling
	// StateRinging means an incoming offer is waiting for the user.
	StateRinging
	// StateConnected means both sides exchanged descriptions.
	StateConnected
)

// String names the state for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session describes the one call the manager owns.
type Session struct {
	CallID    string
	PeerID    string
	Video     bool
	StartedAt time.Time
}

// StateChange is delivered to the state callback on every transition.
// Reason is set only on transitions to idle.
type StateChange struct {
	State   State
	Session Session
	Reason  wire.ByeReason
}

// SignalSender delivers signaling messages toward a peer, normally
// through the relay connection.
type SignalSender interface {
	SendSignal(targetID string, sig wire.SignalMessage) error
}

// MediaSession is one live media negotiation. Implementations own the
// streams; the manager only drives description and candidate exchange.
type MediaSession interface {
	CreateOffer() (string, error)
	CreateAnswer(remoteOffer string) (string, error)
	HandleAnswer(remoteAnswer string) error
	AddCandidate(candidate string) error
	Close() error
}

// MediaTransport produces media sessions. Acquire fails when capture
// devices or the transport itself are unavailable.
type MediaTransport interface {
	Acquire(video bool) (MediaSession, error)
}
