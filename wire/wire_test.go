package wire

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecode(t *testing.T) {
	sig := Signal{
		TargetID: "peer-1",
		Signal: SignalMessage{
			Type:      SignalOffer,
			CallID:    "call-abc",
			Timestamp: NowMillis(),
			IsVideo:   true,
			SDP:       "v=0...",
		},
	}

	frame, err := Encode(PacketSignal, sig)
	require.NoError(t, err)
	assert.Equal(t, PacketSignal, frame.Type)

	var decoded Signal
	require.NoError(t, frame.Decode(&decoded))
	assert.Equal(t, sig, decoded)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	env := Envelope{
		ID:               "m1",
		SenderID:         "a",
		ReceiverID:       "b",
		EncryptedKey:     "k",
		IV:               "iv",
		EncryptedContent: strings.Repeat("A", MaxPayloadSize+1),
	}
	_, err := Encode(PacketPrivateMessage, PrivateMessage{ReceiverID: "b", Envelope: env})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{
		ID:               "m1",
		SenderID:         "a",
		ReceiverID:       "b",
		EncryptedKey:     "k",
		EncryptedContent: "c",
		IV:               "iv",
		Timestamp:        NowMillis(),
		Kind:             KindText,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"missing id", func(e *Envelope) { e.ID = "" }},
		{"missing sender", func(e *Envelope) { e.SenderID = "" }},
		{"missing receiver", func(e *Envelope) { e.ReceiverID = "" }},
		{"missing content", func(e *Envelope) { e.EncryptedContent = "" }},
		{"missing key", func(e *Envelope) { e.EncryptedKey = "" }},
		{"missing iv", func(e *Envelope) { e.IV = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestSignalAge(t *testing.T) {
	now := time.Now()
	sig := SignalMessage{Timestamp: now.Add(-31 * time.Second).UnixMilli()}
	assert.InDelta(t, 31*time.Second, sig.Age(now), float64(50*time.Millisecond))
}

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "signal", PacketSignal.String())
	assert.Equal(t, "register", PacketRegister.String())
	assert.Contains(t, PacketType(0xEE).String(), "unknown")
}
