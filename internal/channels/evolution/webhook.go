package evolution

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/wa-retell-relay/internal/errx"
)

// DecodeWebhookEvent unmarshals an inbound webhook body. Undecodable bodies are
// reported as malformed payloads.
func DecodeWebhookEvent(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if len(strings.TrimSpace(string(body))) == 0 {
		return event, errx.Malformed(errors.New("empty body"))
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return event, errx.Malformed(fmt.Errorf("decode webhook: %w", err))
	}
	return event, nil
}

// FromMe reports whether the event is the echo of a message this instance sent.
func (e WebhookEvent) FromMe() bool {
	return e.Data.Key.FromMe
}

// Text returns the message text as sent, preferring the plain conversation
// field. A whitespace-only field counts as absent.
func (e WebhookEvent) Text() string {
	if e.Data.Message == nil {
		return ""
	}
	if text := e.Data.Message.Conversation; strings.TrimSpace(text) != "" {
		return text
	}
	if ext := e.Data.Message.ExtendedTextMessage; ext != nil && strings.TrimSpace(ext.Text) != "" {
		return ext.Text
	}
	return ""
}

// Inbound extracts the sender and text. A missing sender or text is a malformed payload.
func (e WebhookEvent) Inbound() (ParsedInboundMessage, error) {
	sender := NormalizeSender(e.Data.Key.RemoteJID)
	text := e.Text()
	switch {
	case sender == "" && text == "":
		return ParsedInboundMessage{}, errx.Malformed(errors.New("missing sender and message text"))
	case sender == "":
		return ParsedInboundMessage{}, errx.Malformed(errors.New("missing sender"))
	case text == "":
		return ParsedInboundMessage{}, errx.Malformed(errors.New("missing message text"))
	}
	msg := ParsedInboundMessage{
		EventID:   e.Data.Key.ID,
		SenderID:  sender,
		RemoteJID: e.Data.Key.RemoteJID,
		PushName:  e.Data.PushName,
		Text:      text,
	}
	if e.Data.MessageTimestamp > 0 {
		msg.Timestamp = time.Unix(e.Data.MessageTimestamp, 0).UTC()
	}
	return msg, nil
}

// NormalizeSender strips the WhatsApp server suffix and any device suffix from
// a JID: "34600111222:5@s.whatsapp.net" becomes "34600111222".
func NormalizeSender(jid string) string {
	jid = strings.TrimSpace(jid)
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return strings.TrimPrefix(jid, "+")
}
