package evolution

import "time"

// WebhookEvent is the envelope Evolution API posts for message events.
type WebhookEvent struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     MessageData `json:"data"`
}

// MessageData carries a single WhatsApp message.
type MessageData struct {
	Key              MessageKey `json:"key"`
	PushName         string     `json:"pushName"`
	Message          *Message   `json:"message,omitempty"`
	MessageType      string     `json:"messageType"`
	MessageTimestamp int64      `json:"messageTimestamp"`
}

// MessageKey identifies the chat and the message.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// Message holds the text variants we understand.
type Message struct {
	Conversation        string               `json:"conversation"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
}

// ExtendedTextMessage is used for replies and messages with link previews.
type ExtendedTextMessage struct {
	Text string `json:"text"`
}

// SendTextRequest is the body of POST /message/sendText/{instance}.
type SendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// ParsedInboundMessage is the normalized result of parsing a webhook event.
type ParsedInboundMessage struct {
	EventID   string
	SenderID  string
	RemoteJID string
	PushName  string
	Text      string
	Timestamp time.Time
}
