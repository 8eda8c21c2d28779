package evolution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wa-retell-relay/internal/errx"
)

const upsertFixture = `{
  "event": "messages.upsert",
  "instance": "bot-1",
  "data": {
    "key": {"remoteJid": "34600111222@s.whatsapp.net", "fromMe": false, "id": "3EB0C767D26A"},
    "pushName": "Lucia",
    "message": {"conversation": "hola"},
    "messageType": "conversation",
    "messageTimestamp": 1700000000
  }
}`

func TestDecodeAndInbound(t *testing.T) {
	evt, err := DecodeWebhookEvent([]byte(upsertFixture))
	require.NoError(t, err)
	assert.Equal(t, "messages.upsert", evt.Event)
	assert.False(t, evt.FromMe())

	msg, err := evt.Inbound()
	require.NoError(t, err)
	assert.Equal(t, "34600111222", msg.SenderID)
	assert.Equal(t, "34600111222@s.whatsapp.net", msg.RemoteJID)
	assert.Equal(t, "hola", msg.Text)
	assert.Equal(t, "3EB0C767D26A", msg.EventID)
	assert.Equal(t, "Lucia", msg.PushName)
	assert.Equal(t, int64(1700000000), msg.Timestamp.Unix())
}

func TestInboundExtendedText(t *testing.T) {
	evt, err := DecodeWebhookEvent([]byte(`{"data":{"key":{"remoteJid":"34600111222@s.whatsapp.net"},"message":{"extendedTextMessage":{"text":"mira esto https://x.y"}}}}`))
	require.NoError(t, err)
	msg, err := evt.Inbound()
	require.NoError(t, err)
	assert.Equal(t, "mira esto https://x.y", msg.Text)
}

func TestInboundMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{"data":{"key":{"remoteJid":"34600111222@s.whatsapp.net"},"message":{}}}`},
		{"missing message", `{"data":{"key":{"remoteJid":"34600111222@s.whatsapp.net"}}}`},
		{"missing sender", `{"data":{"key":{},"message":{"conversation":"hola"}}}`},
		{"bare suffix sender", `{"data":{"key":{"remoteJid":"@s.whatsapp.net"},"message":{"conversation":"hola"}}}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := DecodeWebhookEvent([]byte(tt.body))
			require.NoError(t, err)
			_, err = evt.Inbound()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errx.ErrMalformedPayload))
		})
	}
}

func TestDecodeInvalidBody(t *testing.T) {
	for _, body := range []string{"", "   ", "{not json"} {
		_, err := DecodeWebhookEvent([]byte(body))
		assert.True(t, errors.Is(err, errx.ErrMalformedPayload), "body %q", body)
	}
}

func TestFromMe(t *testing.T) {
	evt, err := DecodeWebhookEvent([]byte(`{"data":{"key":{"remoteJid":"34600111222@s.whatsapp.net","fromMe":true},"message":{"conversation":"sent by bot"}}}`))
	require.NoError(t, err)
	assert.True(t, evt.FromMe())
}

func TestNormalizeSender(t *testing.T) {
	cases := map[string]string{
		"34600111222@s.whatsapp.net":   "34600111222",
		"34600111222:5@s.whatsapp.net": "34600111222",
		"+34600111222":                 "34600111222",
		" 34600111222@c.us ":           "34600111222",
		"@s.whatsapp.net":              "",
		"":                             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSender(in), in)
	}
}

func TestInboundKeepsTextVerbatim(t *testing.T) {
	evt, err := DecodeWebhookEvent([]byte(`{"data":{"key":{"remoteJid":"34600111222@s.whatsapp.net"},"message":{"conversation":"  hola\n  que tal \n"}}}`))
	require.NoError(t, err)
	msg, err := evt.Inbound()
	require.NoError(t, err)
	assert.Equal(t, "  hola\n  que tal \n", msg.Text)

	evt, err = DecodeWebhookEvent([]byte(`{"data":{"key":{"remoteJid":"34600111222@s.whatsapp.net"},"message":{"conversation":"   ","extendedTextMessage":{"text":" ver link "}}}}`))
	require.NoError(t, err)
	assert.Equal(t, " ver link ", evt.Text())

	evt, err = DecodeWebhookEvent([]byte(`{"data":{"key":{"remoteJid":"34600111222@s.whatsapp.net"},"message":{"conversation":" \t "}}}`))
	require.NoError(t, err)
	_, err = evt.Inbound()
	assert.True(t, errors.Is(err, errx.ErrMalformedPayload), "whitespace-only text is missing text")
}
