package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("should parse a command frame", func(t *testing.T) {
		req := require.New(t)
		env, err := DecodeEnvelope([]byte(`{"event":"send-message","data":{"conversationId":"c1","receiverId":"u2","text":"hi"}}`))
		req.NoError(err)
		req.Equal(CmdSendMessage, env.Event)

		var cmd SendMessageCommand
		req.NoError(json.Unmarshal(env.Data, &cmd))
		req.Equal("c1", cmd.ConversationID)
		req.Equal("u2", cmd.ReceiverID)
		req.Equal("hi", cmd.Text)
	})

	t.Run("should reject invalid json", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte("{"))
		require.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("should reject a frame without an event name", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"data":{}}`))
		require.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestEncodeEvent(t *testing.T) {
	req := require.New(t)
	frame, err := EncodeEvent(EvtUserTyping, UserTyping{UserID: "u1", UserName: "Alice", IsTyping: true, ConversationID: "c1"})
	req.NoError(err)

	var wire map[string]json.RawMessage
	req.NoError(json.Unmarshal(frame, &wire))
	req.JSONEq(`"user-typing"`, string(wire["event"]))
	req.JSONEq(`{"userId":"u1","userName":"Alice","isTyping":true,"conversationId":"c1"}`, string(wire["data"]))
}
