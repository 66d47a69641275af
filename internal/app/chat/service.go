package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sthaarwin/Dental-Smile-sub001/internal/app/identity"
	domainchat "github.com/sthaarwin/Dental-Smile-sub001/internal/domain/chat"
)

// PlaceholderName is used when the user directory cannot resolve a profile.
// Directory failures never abort chat operations.
const PlaceholderName = "Unknown User"

const (
	// DefaultPageSize bounds message pagination; it is the only deliberate
	// payload limit in the core.
	DefaultPageSize = 50
	MaxPageSize     = 50
)

// Store is the persistence port for conversations and messages.
type Store interface {
	ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error)
	ConversationByPair(ctx context.Context, pairKey string) (*domainchat.Conversation, error)
	InsertConversation(ctx context.Context, conv *domainchat.Conversation) error
	ConversationsForUser(ctx context.Context, userID string) ([]domainchat.Conversation, error)
	HideForUser(ctx context.Context, conversationID, userID string) (*domainchat.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	ClearMessages(ctx context.Context, conversationID string) error

	InsertMessage(ctx context.Context, msg *domainchat.Message) error
	MessageByID(ctx context.Context, id string) (*domainchat.Message, error)
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]domainchat.Message, error)
	MarkMessageRead(ctx context.Context, messageID string, at time.Time) (*domainchat.Message, bool, error)
	UpdateLastMessage(ctx context.Context, conversationID string, msg *domainchat.Message, unhideUserID string) error
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Service implements the chat business operations over a Store and the
// account subsystem's user directory.
type Service struct {
	Store     Store
	Directory identity.Directory
	Logger    *slog.Logger
	Now       func() time.Time
}

// ConversationView is a conversation annotated with participant profiles.
type ConversationView struct {
	Conversation domainchat.Conversation
	Participants []identity.Profile
}

// MessageView is a message annotated with the sender's resolved profile.
type MessageView struct {
	Message    domainchat.Message
	SenderName string
	SenderRole string
}

// SaveMessageParams carries a message to persist.
type SaveMessageParams struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           string
	Type           domainchat.MessageType
	Attachment     *domainchat.Attachment
}

// SaveOutcome distinguishes the primary persist from the best-effort
// conversation projection that follows it. ProjectionErr being non-nil does
// not invalidate the saved message.
type SaveOutcome struct {
	Message       *domainchat.Message
	ProjectionErr error
}

// GetOrCreateConversation returns the unique conversation for the unordered
// pair {userA, userB}, creating it on first contact. Repeated calls in either
// argument order return the same conversation.
func (s *Service) GetOrCreateConversation(ctx context.Context, userA, userB string) (*ConversationView, error) {
	pair, err := domainchat.NewParticipantPair(userA, userB)
	if err != nil {
		return nil, err
	}
	key := domainchat.PairKey(pair[0], pair[1])

	conv, err := s.Store.ConversationByPair(ctx, key)
	switch {
	case err == nil:
		return s.annotateConversation(ctx, conv), nil
	case !errors.Is(err, domainchat.ErrConversationNotFound):
		return nil, err
	}

	now := s.now()
	conv = &domainchat.Conversation{
		ID:              uuid.NewString(),
		Participants:    pair,
		LastMessageTime: now,
		IsActive:        true,
		CreatedAt:       now,
	}
	if err := s.Store.InsertConversation(ctx, conv); err != nil {
		if errors.Is(err, domainchat.ErrConversationExists) {
			// Lost a first-contact race; the winner's row is the conversation.
			conv, err = s.Store.ConversationByPair(ctx, key)
			if err != nil {
				return nil, err
			}
			return s.annotateConversation(ctx, conv), nil
		}
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("conversation created", "conversation_id", conv.ID, "participants", conv.Participants)
	}
	return s.annotateConversation(ctx, conv), nil
}

// ListConversations returns the conversations userID participates in and has
// not hidden, most recently active first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainchat.ErrParticipantRequired
	}
	conversations, err := s.Store.ConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]ConversationView, 0, len(conversations))
	for i := range conversations {
		if conversations[i].HiddenFor(userID) {
			continue
		}
		views = append(views, *s.annotateConversation(ctx, &conversations[i]))
	}
	return views, nil
}

// ListMessages returns one page of a conversation's messages, newest first,
// each annotated with the sender's display name and role.
func (s *Service) ListMessages(ctx context.Context, conversationID string, page, pageSize int) ([]MessageView, error) {
	if _, err := s.Store.ConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	messages, err := s.Store.ListMessages(ctx, conversationID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]identity.Profile)
	views := make([]MessageView, 0, len(messages))
	for _, msg := range messages {
		profile, ok := profiles[msg.SenderID]
		if !ok {
			profile = s.resolveProfile(ctx, msg.SenderID)
			profiles[msg.SenderID] = profile
		}
		views = append(views, MessageView{Message: msg, SenderName: profile.Name, SenderRole: profile.Role})
	}
	return views, nil
}

// SaveMessage persists a message. Persisting the message is the atomic unit
// of success; the follow-up conversation projection (lastMessage bookkeeping
// and receiver unhide) is best-effort and its failure is reported in the
// outcome after being logged.
func (s *Service) SaveMessage(ctx context.Context, params SaveMessageParams) (SaveOutcome, error) {
	if err := domainchat.ValidateBody(params.Body); err != nil {
		return SaveOutcome{}, err
	}
	conv, err := s.Store.ConversationByID(ctx, params.ConversationID)
	if err != nil {
		return SaveOutcome{}, err
	}

	msg := &domainchat.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		ReceiverID:     params.ReceiverID,
		Body:           params.Body,
		Type:           params.Type,
		Timestamp:      s.now(),
		Attachment:     params.Attachment,
	}
	if msg.Type == "" {
		msg.Type = domainchat.MessageTypeText
	}
	if msg.Type == domainchat.MessageTypeText {
		msg.Attachment = nil
	}
	if err := s.Store.InsertMessage(ctx, msg); err != nil {
		return SaveOutcome{}, err
	}

	outcome := SaveOutcome{Message: msg}
	// A hidden conversation reappears for the receiver on new inbound mail.
	if err := s.Store.UpdateLastMessage(ctx, conv.ID, msg, params.ReceiverID); err != nil {
		outcome.ProjectionErr = err
		if s.Logger != nil {
			s.Logger.Warn("conversation projection update failed", "conversation_id", conv.ID, "message_id", msg.ID, "error", err)
		}
	}
	return outcome, nil
}

// MarkMessageAsRead flips the message's read state. The operation is
// idempotent: a second call leaves isRead and readAt unchanged.
func (s *Service) MarkMessageAsRead(ctx context.Context, messageID, readerID string) (*domainchat.Message, error) {
	msg, changed, err := s.Store.MarkMessageRead(ctx, messageID, s.now())
	if err != nil {
		return nil, err
	}
	if changed && s.Logger != nil {
		s.Logger.Debug("message marked read", "message_id", messageID, "reader_id", readerID)
	}
	return msg, nil
}

// UnreadCount reports how many persisted messages address userID and remain
// unread.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.Store.CountUnread(ctx, userID)
}

// HideConversation soft-hides the conversation for userID. Once both
// participants have hidden it, the conversation and all its messages are
// permanently deleted. The hide itself is a single atomic store operation;
// concurrent hides from both sides cannot overwrite each other.
func (s *Service) HideConversation(ctx context.Context, conversationID, userID string) error {
	conv, err := s.Store.ConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return domainchat.ErrNotParticipant
	}
	updated, err := s.Store.HideForUser(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if updated.HiddenByAll() {
		// Both sides of a concurrent mutual hide may observe the final
		// state; the second delete then finds nothing.
		if err := s.Store.DeleteConversation(ctx, updated.ID); err != nil && !errors.Is(err, domainchat.ErrConversationNotFound) {
			return err
		}
		if s.Logger != nil {
			s.Logger.Info("conversation deleted after mutual hide", "conversation_id", updated.ID)
		}
	}
	return nil
}

// DeleteConversation unconditionally removes a conversation and its messages.
// Administrative operation.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := s.Store.ConversationByID(ctx, conversationID); err != nil {
		return err
	}
	return s.Store.DeleteConversation(ctx, conversationID)
}

// ClearMessages wipes a conversation's messages but keeps the thread,
// resetting its lastMessage projection. Administrative operation.
func (s *Service) ClearMessages(ctx context.Context, conversationID string) error {
	if _, err := s.Store.ConversationByID(ctx, conversationID); err != nil {
		return err
	}
	return s.Store.ClearMessages(ctx, conversationID)
}

func (s *Service) annotateConversation(ctx context.Context, conv *domainchat.Conversation) *ConversationView {
	view := &ConversationView{Conversation: *conv, Participants: make([]identity.Profile, 0, 2)}
	for _, id := range conv.Participants {
		view.Participants = append(view.Participants, s.resolveProfile(ctx, id))
	}
	return view
}

func (s *Service) resolveProfile(ctx context.Context, userID string) identity.Profile {
	if s.Directory == nil {
		return identity.Profile{ID: userID, Name: PlaceholderName}
	}
	profile, err := s.Directory.Profile(ctx, userID)
	if err != nil {
		if s.Logger != nil && !errors.Is(err, identity.ErrProfileNotFound) {
			s.Logger.Debug("profile lookup failed", "user_id", userID, "error", err)
		}
		return identity.Profile{ID: userID, Name: PlaceholderName}
	}
	return profile
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
