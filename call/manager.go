package call

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shakilkhan1801/NYXAR/wire"
)

// Manager runs the call state machine for one identity. All public
// methods are safe for concurrent use; signaling handlers and user
// actions race freely against each other.
type Manager struct {
	transport MediaTransport
	sender    SignalSender

	mu       sync.Mutex
	state    State
	session  *Session
	media    MediaSession
	remote   string   // pending remote offer, held while ringing
	buffered []string // candidates arriving before media exists

	onChange func(StateChange)
	now      func() time.Time
}

// NewManager creates an idle call manager.
func NewManager(transport MediaTransport, sender SignalSender) *Manager {
	return &Manager{
		transport: transport,
		sender:    sender,
		state:     StateIdle,
		now:       time.Now,
	}
}

// OnStateChange sets the transition callback. Set it before the manager
// sees traffic; the callback runs outside the manager's lock and may
// call back into it.
func (m *Manager) OnStateChange(f func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = f
}

// State reports the current phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current call, if one exists.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// StartCall places an outgoing call. Media is acquired first: if the
// devices are unavailable the manager stays idle and the peer never
// sees a signal. Returns the new call's identifier.
func (m *Manager) StartCall(peerID string, video bool) (string, error) {
	m.mu.Lock()
	change, callID, err := m.startCallLocked(peerID, video)
	m.mu.Unlock()
	m.emit(change)
	return callID, err
}

func (m *Manager) startCallLocked(peerID string, video bool) (*StateChange, string, error) {
	if m.state != StateIdle {
		return nil, "", ErrCallInProgress
	}

	media, err := m.transport.Acquire(video)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrMediaAcquisition, err)
	}
	sdp, err := media.CreateOffer()
	if err != nil {
		media.Close()
		return nil, "", fmt.Errorf("create offer: %w", err)
	}

	callID := uuid.NewString()
	sig := wire.SignalMessage{
		Type:      wire.SignalOffer,
		CallID:    callID,
		Timestamp: wire.NowMillis(),
		IsVideo:   video,
		SDP:       sdp,
	}
	if err := m.sender.SendSignal(peerID, sig); err != nil {
		media.Close()
		return nil, "", fmt.Errorf("send offer: %w", err)
	}

	m.media = media
	m.session = &Session{CallID: callID, PeerID: peerID, Video: video}
	m.state = StateCalling

	logrus.WithFields(logrus.Fields{
		"function": "StartCall",
		"call_id":  callID,
		"peer":     peerID,
		"video":    video,
	}).Info("Outgoing call started")

	return &StateChange{State: StateCalling, Session: *m.session}, callID, nil
}

// Answer accepts the ringing call. The state moves to connected as soon
// as the answer is sent; candidate exchange continues underneath.
func (m *Manager) Answer() error {
	m.mu.Lock()
	change, err := m.answerLocked()
	m.mu.Unlock()
	m.emit(change)
	return err
}

func (m *Manager) answerLocked() (*StateChange, error) {
	if m.state != StateRinging || m.session == nil {
		return nil, ErrNoPendingCall
	}

	media, err := m.transport.Acquire(m.session.Video)
	if err != nil {
		// Unlike an outgoing call, a ringing session already exists and
		// cannot survive without media; abort it.
		change := m.teardownLocked(wire.ReasonReject)
		return change, fmt.Errorf("%w: %s", ErrMediaAcquisition, err)
	}
	sdp, err := media.CreateAnswer(m.remote)
	if err != nil {
		media.Close()
		change := m.teardownLocked(wire.ReasonReject)
		return change, fmt.Errorf("create answer: %w", err)
	}

	m.media = media
	m.remote = ""
	for _, candidate := range m.buffered {
		if err := media.AddCandidate(candidate); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Answer",
				"call_id":  m.session.CallID,
				"error":    err.Error(),
			}).Warn("Dropping buffered candidate")
		}
	}
	m.buffered = nil

	sig := wire.SignalMessage{
		Type:      wire.SignalAnswer,
		CallID:    m.session.CallID,
		Timestamp: wire.NowMillis(),
		SDP:       sdp,
	}
	if err := m.sender.SendSignal(m.session.PeerID, sig); err != nil {
		change := m.teardownLocked(wire.ReasonCancel)
		return change, fmt.Errorf("send answer: %w", err)
	}

	m.state = StateConnected
	m.session.StartedAt = m.now()

	logrus.WithFields(logrus.Fields{
		"function": "Answer",
		"call_id":  m.session.CallID,
		"peer":     m.session.PeerID,
	}).Info("Call answered")

	return &StateChange{State: StateConnected, Session: *m.session}, nil
}

// Hangup ends the current call, whatever its phase. The bye reason
// tells the peer which user action this was: cancel for an unanswered
// outgoing call, reject for a ringing incoming one, hangup for a
// connected call (with the call's duration in seconds).
func (m *Manager) Hangup() error {
	m.mu.Lock()
	change, err := m.hangupLocked()
	m.mu.Unlock()
	m.emit(change)
	return err
}

func (m *Manager) hangupLocked() (*StateChange, error) {
	if m.state == StateIdle || m.session == nil {
		return nil, nil
	}

	var reason wire.ByeReason
	var duration int64
	switch m.state {
	case StateCalling:
		reason = wire.ReasonCancel
	case StateRinging:
		reason = wire.ReasonReject
	case StateConnected:
		reason = wire.ReasonHangup
		duration = int64(m.now().Sub(m.session.StartedAt).Seconds())
	}

	sig := wire.SignalMessage{
		Type:      wire.SignalBye,
		CallID:    m.session.CallID,
		Timestamp: wire.NowMillis(),
		Reason:    reason,
		Duration:  duration,
	}
	if err := m.sender.SendSignal(m.session.PeerID, sig); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Hangup",
			"call_id":  m.session.CallID,
			"error":    err.Error(),
		}).Warn("Failed to send bye, tearing down anyway")
	}
	return m.teardownLocked(reason), nil
}

// HandleSignal processes one signaling message from the given peer.
func (m *Manager) HandleSignal(senderID string, sig wire.SignalMessage) error {
	m.mu.Lock()
	var (
		change *StateChange
		err    error
	)
	switch sig.Type {
	case wire.SignalOffer:
		change, err = m.handleOfferLocked(senderID, sig)
	case wire.SignalAnswer:
		change, err = m.handleAnswerLocked(senderID, sig)
	case wire.SignalCandidate:
		err = m.handleCandidateLocked(sig)
	case wire.SignalBye:
		change = m.handleByeLocked(sig)
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "HandleSignal",
			"signal_type": string(sig.Type),
		}).Debug("Unknown signal type, dropping")
	}
	m.mu.Unlock()
	m.emit(change)
	return err
}

func (m *Manager) handleOfferLocked(senderID string, sig wire.SignalMessage) (*StateChange, error) {
	if sig.Age(m.now()) > SignalLivenessWindow {
		logrus.WithFields(logrus.Fields{
			"function": "handleOffer",
			"call_id":  sig.CallID,
			"age":      sig.Age(m.now()).String(),
		}).Info("Dropping stale offer")
		return nil, ErrStaleSignal
	}

	if m.state != StateIdle {
		// Already in a call; tell the caller we are busy and keep the
		// current call untouched.
		m.sendBye(senderID, sig.CallID, wire.ReasonBusy, 0)
		return nil, nil
	}

	m.session = &Session{CallID: sig.CallID, PeerID: senderID, Video: sig.IsVideo}
	m.remote = sig.SDP
	m.buffered = nil
	m.state = StateRinging

	logrus.WithFields(logrus.Fields{
		"function": "handleOffer",
		"call_id":  sig.CallID,
		"peer":     senderID,
		"video":    sig.IsVideo,
	}).Info("Incoming call ringing")

	return &StateChange{State: StateRinging, Session: *m.session}, nil
}

func (m *Manager) handleAnswerLocked(senderID string, sig wire.SignalMessage) (*StateChange, error) {
	if m.state != StateCalling || m.session == nil || m.session.CallID != sig.CallID {
		// A ghost answer: it belongs to a call this side no longer
		// owns. Tell the answerer that call is dead and leave any
		// current call alone.
		logrus.WithFields(logrus.Fields{
			"function": "handleAnswer",
			"call_id":  sig.CallID,
			"state":    m.state.String(),
		}).Info("Rejecting answer for unknown call")
		m.sendBye(senderID, sig.CallID, wire.ReasonCancel, 0)
		return nil, nil
	}

	if err := m.media.HandleAnswer(sig.SDP); err != nil {
		change := m.teardownLocked(wire.ReasonCancel)
		return change, fmt.Errorf("apply answer: %w", err)
	}

	m.state = StateConnected
	m.session.StartedAt = m.now()

	logrus.WithFields(logrus.Fields{
		"function": "handleAnswer",
		"call_id":  sig.CallID,
	}).Info("Call connected")

	return &StateChange{State: StateConnected, Session: *m.session}, nil
}

func (m *Manager) handleCandidateLocked(sig wire.SignalMessage) error {
	if m.session == nil || m.session.CallID != sig.CallID {
		return nil
	}
	if m.media == nil {
		// Ringing: no media session yet, hold the candidate for Answer.
		m.buffered = append(m.buffered, sig.Candidate)
		return nil
	}
	return m.media.AddCandidate(sig.Candidate)
}

func (m *Manager) handleByeLocked(sig wire.SignalMessage) *StateChange {
	if m.session == nil || m.session.CallID != sig.CallID {
		logrus.WithFields(logrus.Fields{
			"function": "handleBye",
			"call_id":  sig.CallID,
		}).Debug("Bye for unknown call, ignoring")
		return nil
	}

	reason := sig.Reason
	if reason == "" {
		reason = wire.ReasonHangup
	}
	logrus.WithFields(logrus.Fields{
		"function": "handleBye",
		"call_id":  sig.CallID,
		"reason":   string(reason),
	}).Info("Peer ended call")
	return m.teardownLocked(reason)
}

// HandleSignalError reacts to a relay-reported delivery failure. An
// unreachable peer kills a call that is still being set up; an already
// connected call is left alone, since media may outlive the relay's
// view of the peer.
func (m *Manager) HandleSignalError(se wire.SignalError) {
	m.mu.Lock()
	var change *StateChange
	if se.Code == wire.CodeUserOffline &&
		m.session != nil && m.session.PeerID == se.TargetID &&
		(m.state == StateCalling || m.state == StateRinging) {
		logrus.WithFields(logrus.Fields{
			"function": "HandleSignalError",
			"call_id":  m.session.CallID,
			"peer":     se.TargetID,
		}).Info("Peer unreachable, ending call")
		change = m.teardownLocked(wire.ReasonCancel)
	}
	m.mu.Unlock()
	m.emit(change)
}

// teardownLocked is the single exit path to idle. Safe to reach from
// any state, any number of times.
func (m *Manager) teardownLocked(reason wire.ByeReason) *StateChange {
	if m.state == StateIdle && m.session == nil {
		return nil
	}

	if m.media != nil {
		m.media.Close()
		m.media = nil
	}

	var ended Session
	if m.session != nil {
		ended = *m.session
	}
	m.session = nil
	m.remote = ""
	m.buffered = nil
	m.state = StateIdle

	return &StateChange{State: StateIdle, Session: ended, Reason: reason}
}

// sendBye emits a bye for a call this manager does not own (busy and
// ghost rejections). Failures are logged only; there is no state to
// protect.
func (m *Manager) sendBye(targetID, callID string, reason wire.ByeReason, duration int64) {
	sig := wire.SignalMessage{
		Type:      wire.SignalBye,
		CallID:    callID,
		Timestamp: wire.NowMillis(),
		Reason:    reason,
		Duration:  duration,
	}
	if err := m.sender.SendSignal(targetID, sig); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendBye",
			"call_id":  callID,
			"error":    err.Error(),
		}).Debug("Failed to send bye")
	}
}

func (m *Manager) emit(change *StateChange) {
	if change == nil {
		return
	}
	m.mu.Lock()
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(*change)
	}
}
