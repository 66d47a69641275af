package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Command events accepted from clients.
const (
	CmdJoinConversation  = "join-conversation"
	CmdLeaveConversation = "leave-conversation"
	CmdSendMessage       = "send-message"
	CmdTyping            = "typing"
	CmdMarkAsRead        = "mark-as-read"
)

// Notification events emitted to clients.
const (
	EvtConnectionSuccess = "connection-success"
	EvtConnectError      = "connect-error"
	EvtUserOnline        = "user-online"
	EvtUserOffline       = "user-offline"
	EvtNewMessage        = "new-message"
	EvtMessageSent       = "message-sent"
	EvtMessageError      = "message-error"
	EvtUserTyping        = "user-typing"
	EvtMessageRead       = "message-read"
)

var ErrMalformedEvent = errors.New("realtime: malformed event")

// Envelope is the wire frame for every live event in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return env, nil
}

// EncodeEvent marshals an outbound event into its wire frame.
func EncodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// JoinConversationCommand subscribes the connection to a conversation room.
type JoinConversationCommand struct {
	ConversationID string `json:"conversationId"`
}

// LeaveConversationCommand unsubscribes the connection from a conversation room.
type LeaveConversationCommand struct {
	ConversationID string `json:"conversationId"`
}

// SendMessageCommand persists and fans out a message.
type SendMessageCommand struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
	Text           string `json:"text"`
	Type           string `json:"type,omitempty"`
}

// TypingCommand relays a typing indicator. Never persisted.
type TypingCommand struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
	IsTyping       bool   `json:"isTyping"`
}

// MarkAsReadCommand records a read receipt.
type MarkAsReadCommand struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// ConnectionSuccess acknowledges an authenticated connection.
type ConnectionSuccess struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

// ConnectError reports a refused connection.
type ConnectError struct {
	Message string `json:"message"`
}

// UserOnline announces a user's presence to all connections.
type UserOnline struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

// UserOffline announces a departed user.
type UserOffline struct {
	UserID string `json:"userId"`
}

// NewMessage carries a persisted message to conversation and personal rooms.
type NewMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Text           string    `json:"text"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	SenderRole     string    `json:"senderRole"`
	SenderName     string    `json:"senderName"`
	IsRead         bool      `json:"isRead"`
}

// MessageSent acknowledges a send to its originator.
type MessageSent struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// MessageError reports a failed live command to its originator.
type MessageError struct {
	Error string `json:"error"`
}

// UserTyping relays a typing indicator to a conversation room.
type UserTyping struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
	ConversationID string `json:"conversationId"`
}

// MessageRead announces a read receipt to a conversation room.
type MessageRead struct {
	MessageID  string `json:"messageId"`
	ReadBy     string `json:"readBy"`
	ReadByName string `json:"readByName"`
}
