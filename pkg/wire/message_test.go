package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhaddad/go-relay/pkg/wire"
)

func TestDecodeTypedMessage(t *testing.T) {
	payload := []byte(`{"kind":"chat-send","ts":1700000000000,"group_id":7,"body":"hello"}`)

	msg, derr := wire.Decode(payload)
	require.Nil(t, derr)

	send, ok := msg.(*wire.ChatSend)
	require.True(t, ok, "expected *wire.ChatSend, got %T", msg)
	assert.Equal(t, wire.KindChatSend, send.MessageKind())
	assert.Equal(t, int64(7), send.GroupID)
	assert.Equal(t, "hello", send.Body)
}

func TestDecodeUnknownKind(t *testing.T) {
	msg, derr := wire.Decode([]byte(`{"kind":"teleport"}`))
	require.Nil(t, msg)
	require.NotNil(t, derr)
	assert.Equal(t, wire.UnknownKind, derr.Reason)
	assert.Equal(t, "teleport", derr.Kind)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{{`},
		{"missing kind", `{"ts":1}`},
		{"kind not a string", `{"kind":42}`},
		{"wrong field type", `{"kind":"chat-send","group_id":"seven","body":"x"}`},
		{"missing required field", `{"kind":"chat-send","group_id":7}`},
		{"empty credentials", `{"kind":"login","username":"","password":""}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, derr := wire.Decode([]byte(tc.payload))
			require.Nil(t, msg)
			require.NotNil(t, derr)
			assert.Equal(t, wire.Malformed, derr.Reason)
		})
	}
}

// A malformed payload must never decode into a default-filled struct; the
// decoder rejects it instead of guessing.
func TestDecodeNeverDefaultFills(t *testing.T) {
	msg, derr := wire.Decode([]byte(`{"kind":"enter-group"}`))
	require.Nil(t, msg)
	require.NotNil(t, derr)
}

func TestEncodeMessageStampsKind(t *testing.T) {
	ok := &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindEnterGroup}
	payload, err := wire.EncodeMessage(ok)
	require.NoError(t, err)

	decoded, derr := wire.Decode(payload)
	require.Nil(t, derr)
	round, isOk := decoded.(*wire.Ok)
	require.True(t, isOk)
	assert.Equal(t, wire.KindEnterGroup, round.Op)
	assert.NotZero(t, round.TS)
}

func TestEncodeMessageRejectsMissingEnvelope(t *testing.T) {
	_, err := wire.EncodeMessage(&wire.Ok{})
	require.Error(t, err)
}

func TestNewError(t *testing.T) {
	e := wire.NewError(wire.CodePermission, "not a member", wire.KindChatSend)
	assert.Equal(t, wire.KindError, e.MessageKind())
	assert.Equal(t, wire.CodePermission, e.Code)
	assert.Equal(t, wire.KindChatSend, e.Op)
	require.NoError(t, e.Validate())
}
