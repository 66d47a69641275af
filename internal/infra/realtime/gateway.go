package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	appchat "github.com/sthaarwin/Dental-Smile-sub001/internal/app/chat"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/app/identity"
	domainchat "github.com/sthaarwin/Dental-Smile-sub001/internal/domain/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway authenticates websocket connections, tracks presence, and routes
// live commands to the chat service and broadcast rooms.
type Gateway struct {
	Registry  *Registry
	Chat      *appchat.Service
	Verifier  identity.TokenVerifier
	Directory identity.Directory
	Bus       EventBus
	NodeID    string
	Logger    *slog.Logger
}

// ServeHTTP upgrades the request and drives the connection lifecycle:
// connecting -> authenticated -> disconnected.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log().Debug("websocket upgrade failed", "error", err)
		return
	}
	conn := NewConnection(ws)

	token := bearerToken(r)
	if token == "" {
		g.refuse(conn, identity.ErrTokenRequired.Error())
		return
	}
	claims, err := g.Verifier.Verify(token)
	if err != nil {
		g.log().Warn("connection refused", "connection_id", conn.ID, "error", err)
		g.refuse(conn, "Authentication failed: "+err.Error())
		return
	}

	// Directory failures never abort an authenticated connection.
	name := appchat.PlaceholderName
	if g.Directory != nil {
		if profile, err := g.Directory.Profile(r.Context(), claims.UserID); err == nil {
			name = profile.Name
		}
	}

	conn.Start()
	entry := Entry{UserID: claims.UserID, Role: claims.Role, DisplayName: name}
	g.Registry.Register(conn, entry)
	g.log().Info("user connected", "connection_id", conn.ID, "user_id", claims.UserID, "role", claims.Role)

	g.broadcastAll(EvtUserOnline, UserOnline{UserID: claims.UserID, Role: claims.Role, Name: name})
	g.sendTo(conn, EvtConnectionSuccess, ConnectionSuccess{UserID: claims.UserID, Role: claims.Role, Name: name})

	conn.ReadLoop(func(raw []byte) {
		g.dispatch(conn, raw)
	})
	g.disconnect(conn)
}

// Replay applies a bus event originating on a peer node.
func (g *Gateway) Replay(evt BusEvent) {
	g.Registry.Replay(evt, g.NodeID)
}

func (g *Gateway) disconnect(conn *Connection) {
	conn.Close(websocket.CloseNormalClosure, "")
	entry, ok := g.Registry.Unregister(conn.ID)
	if !ok {
		return
	}
	g.log().Info("user disconnected", "connection_id", conn.ID, "user_id", entry.UserID)
	g.broadcastAll(EvtUserOffline, UserOffline{UserID: entry.UserID})
}

func (g *Gateway) dispatch(conn *Connection, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		g.log().Debug("dropping malformed frame", "connection_id", conn.ID, "error", err)
		return
	}
	entry, ok := g.Registry.Lookup(conn.ID)
	if !ok {
		return
	}

	switch env.Event {
	case CmdJoinConversation:
		var cmd JoinConversationCommand
		if json.Unmarshal(env.Data, &cmd) != nil || cmd.ConversationID == "" {
			return
		}
		g.Registry.Join(conn.ID, ConversationRoom(cmd.ConversationID))
		g.log().Debug("joined conversation room", "user_id", entry.UserID, "conversation_id", cmd.ConversationID)
	case CmdLeaveConversation:
		var cmd LeaveConversationCommand
		if json.Unmarshal(env.Data, &cmd) != nil || cmd.ConversationID == "" {
			return
		}
		g.Registry.Leave(conn.ID, ConversationRoom(cmd.ConversationID))
	case CmdSendMessage:
		var cmd SendMessageCommand
		if json.Unmarshal(env.Data, &cmd) != nil {
			return
		}
		g.handleSendMessage(conn, entry, cmd)
	case CmdTyping:
		var cmd TypingCommand
		if json.Unmarshal(env.Data, &cmd) != nil || cmd.ConversationID == "" {
			return
		}
		g.broadcastRoom(ConversationRoom(cmd.ConversationID), EvtUserTyping, UserTyping{
			UserID:         entry.UserID,
			UserName:       entry.DisplayName,
			IsTyping:       cmd.IsTyping,
			ConversationID: cmd.ConversationID,
		})
	case CmdMarkAsRead:
		var cmd MarkAsReadCommand
		if json.Unmarshal(env.Data, &cmd) != nil {
			return
		}
		g.handleMarkAsRead(conn, entry, cmd)
	default:
		g.log().Debug("unknown command", "connection_id", conn.ID, "event", env.Event)
	}
}

func (g *Gateway) handleSendMessage(conn *Connection, entry Entry, cmd SendMessageCommand) {
	msgType, err := domainchat.ParseMessageType(cmd.Type)
	if err != nil {
		g.sendTo(conn, EvtMessageError, MessageError{Error: err.Error()})
		return
	}
	outcome, err := g.Chat.SaveMessage(context.Background(), appchat.SaveMessageParams{
		ConversationID: cmd.ConversationID,
		SenderID:       entry.UserID,
		ReceiverID:     cmd.ReceiverID,
		Body:           cmd.Text,
		Type:           msgType,
	})
	if err != nil {
		g.log().Warn("send failed", "user_id", entry.UserID, "conversation_id", cmd.ConversationID, "error", err)
		g.sendTo(conn, EvtMessageError, MessageError{Error: sendErrorText(err)})
		return
	}

	msg := outcome.Message
	payload := NewMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Text:           msg.Body,
		Type:           string(msg.Type),
		Timestamp:      msg.Timestamp,
		SenderRole:     entry.Role,
		SenderName:     entry.DisplayName,
		IsRead:         msg.IsRead,
	}
	// Triple delivery: conversation room plus both personal rooms, so both
	// parties hear about the message even before joining the conversation
	// room. Clients deduplicate by message id.
	g.broadcastRoom(ConversationRoom(msg.ConversationID), EvtNewMessage, payload)
	g.broadcastRoom(UserRoom(msg.ReceiverID), EvtNewMessage, payload)
	g.broadcastRoom(UserRoom(msg.SenderID), EvtNewMessage, payload)

	g.sendTo(conn, EvtMessageSent, MessageSent{MessageID: msg.ID, Timestamp: msg.Timestamp, Success: true})
}

func (g *Gateway) handleMarkAsRead(conn *Connection, entry Entry, cmd MarkAsReadCommand) {
	if _, err := g.Chat.MarkMessageAsRead(context.Background(), cmd.MessageID, entry.UserID); err != nil {
		// Unknown ids on live commands are logged and dropped.
		g.log().Warn("mark-as-read failed", "message_id", cmd.MessageID, "reader_id", entry.UserID, "error", err)
		return
	}
	g.broadcastRoom(ConversationRoom(cmd.ConversationID), EvtMessageRead, MessageRead{
		MessageID:  cmd.MessageID,
		ReadBy:     entry.UserID,
		ReadByName: entry.DisplayName,
	})
}

// refuse runs before Start, so the reason is written synchronously; queueing
// it would lose the race against the close frame.
func (g *Gateway) refuse(conn *Connection, reason string) {
	if frame, err := EncodeEvent(EvtConnectError, ConnectError{Message: reason}); err == nil {
		_ = conn.WriteNow(frame)
	}
	conn.Close(websocket.ClosePolicyViolation, "unauthorized")
}

func (g *Gateway) sendTo(conn *Connection, event string, payload any) {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		g.log().Error("event encode failed", "event", event, "error", err)
		return
	}
	_ = conn.Send(frame)
}

func (g *Gateway) broadcastRoom(room, event string, payload any) {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		g.log().Error("event encode failed", "event", event, "error", err)
		return
	}
	g.Registry.Broadcast(room, frame)
	g.publish(BusEvent{Origin: g.NodeID, Room: room, Payload: frame})
}

func (g *Gateway) broadcastAll(event string, payload any) {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		g.log().Error("event encode failed", "event", event, "error", err)
		return
	}
	g.Registry.BroadcastAll(frame)
	g.publish(BusEvent{Origin: g.NodeID, All: true, Payload: frame})
}

func (g *Gateway) publish(evt BusEvent) {
	if g.Bus == nil {
		return
	}
	if err := g.Bus.Publish(context.Background(), evt); err != nil {
		g.log().Warn("bus publish failed", "room", evt.Room, "error", err)
	}
}

func (g *Gateway) log() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, domainchat.ErrEmptyBody):
		return "message text is required"
	case errors.Is(err, domainchat.ErrConversationNotFound):
		return "conversation not found"
	}
	return "failed to send message"
}

func bearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
