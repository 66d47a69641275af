package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyBody          = errors.New("chat: message body is empty")
	ErrInvalidMessageType = errors.New("chat: invalid message type")
)

// MessageType is the closed set of message payload kinds.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// ParseMessageType maps a wire value to a MessageType. The empty string
// defaults to text.
func ParseMessageType(raw string) (MessageType, error) {
	switch MessageType(strings.TrimSpace(raw)) {
	case "":
		return MessageTypeText, nil
	case MessageTypeText:
		return MessageTypeText, nil
	case MessageTypeImage:
		return MessageTypeImage, nil
	case MessageTypeFile:
		return MessageTypeFile, nil
	}
	return "", ErrInvalidMessageType
}

// Attachment carries the descriptor of a non-text message. Text messages
// never have one.
type Attachment struct {
	URL      string
	Name     string
	MimeType string
	Size     int64
}

// Message is a persisted chat message. Only the IsRead/ReadAt pair is ever
// mutated after creation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           string
	Type           MessageType
	Timestamp      time.Time
	IsRead         bool
	ReadAt         *time.Time
	Attachment     *Attachment
}

// MarkRead sets the read state at the given time. The first call wins;
// repeated calls leave ReadAt untouched.
func (m *Message) MarkRead(at time.Time) bool {
	if m.IsRead {
		return false
	}
	m.IsRead = true
	m.ReadAt = &at
	return true
}

// ValidateBody rejects empty or whitespace-only message bodies.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	return nil
}
