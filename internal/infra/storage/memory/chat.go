package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainchat "github.com/sthaarwin/Dental-Smile-sub001/internal/domain/chat"
)

// ChatStore keeps conversations and messages in memory. It backs local
// development and the test suite; production deployments use the Mongo store.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[string]*domainchat.Conversation
	byPair        map[string]string
	messages      map[string]*domainchat.Message
}

// NewChatStore builds an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[string]*domainchat.Conversation),
		byPair:        make(map[string]string),
		messages:      make(map[string]*domainchat.Message),
	}
}

// ConversationByID returns a conversation or ErrConversationNotFound.
func (s *ChatStore) ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

// ConversationByPair resolves the conversation owning the normalized pair key.
func (s *ChatStore) ConversationByPair(ctx context.Context, pairKey string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(s.conversations[id]), nil
}

// InsertConversation stores a new conversation, enforcing pair uniqueness.
func (s *ChatStore) InsertConversation(ctx context.Context, conv *domainchat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conv.PairKey()
	if _, exists := s.byPair[key]; exists {
		return domainchat.ErrConversationExists
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	s.byPair[key] = conv.ID
	return nil
}

// ConversationsForUser returns every conversation the user participates in,
// most recently active first. Hidden filtering belongs to the service layer.
func (s *ChatStore) ConversationsForUser(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domainchat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			result = append(result, *cloneConversation(conv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageTime.After(result[j].LastMessageTime)
	})
	return result, nil
}

// HideForUser inserts userID into the conversation's hiddenFrom set under
// the store lock and returns the updated conversation.
func (s *ChatStore) HideForUser(ctx context.Context, conversationID, userID string) (*domainchat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	if err := conv.Hide(userID); err != nil {
		return nil, err
	}
	return cloneConversation(conv), nil
}

// DeleteConversation removes the conversation and every message in it.
func (s *ChatStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	delete(s.byPair, conv.PairKey())
	delete(s.conversations, conversationID)
	for id, msg := range s.messages {
		if msg.ConversationID == conversationID {
			delete(s.messages, id)
		}
	}
	return nil
}

// ClearMessages removes the conversation's messages and resets its
// lastMessage projection while keeping the thread itself.
func (s *ChatStore) ClearMessages(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	for id, msg := range s.messages {
		if msg.ConversationID == conversationID {
			delete(s.messages, id)
		}
	}
	conv.LastMessage = nil
	return nil
}

// InsertMessage stores a new message.
func (s *ChatStore) InsertMessage(ctx context.Context, msg *domainchat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

// MessageByID returns a message or ErrMessageNotFound.
func (s *ChatStore) MessageByID(ctx context.Context, id string) (*domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, domainchat.ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

// ListMessages returns a page of a conversation's messages, newest first.
func (s *ChatStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domainchat.Message, 0)
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			all = append(all, *cloneMessage(msg))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if offset >= len(all) {
		return []domainchat.Message{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// MarkMessageRead sets isRead/readAt once. The boolean reports whether this
// call performed the transition.
func (s *ChatStore) MarkMessageRead(ctx context.Context, messageID string, at time.Time) (*domainchat.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, false, domainchat.ErrMessageNotFound
	}
	changed := msg.MarkRead(at)
	return cloneMessage(msg), changed, nil
}

// UpdateLastMessage applies the post-send conversation projection: bump the
// lastMessage pointer and activity time, and unhide the receiver.
func (s *ChatStore) UpdateLastMessage(ctx context.Context, conversationID string, msg *domainchat.Message, unhideUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conv.LastMessage = cloneMessage(msg)
	conv.LastMessageTime = msg.Timestamp
	if unhideUserID != "" {
		conv.Unhide(unhideUserID)
	}
	return nil
}

// CountUnread counts messages addressed to userID that remain unread.
func (s *ChatStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, msg := range s.messages {
		if msg.ReceiverID == userID && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

func cloneConversation(conv *domainchat.Conversation) *domainchat.Conversation {
	if conv == nil {
		return nil
	}
	copied := *conv
	copied.HiddenFrom = append([]string(nil), conv.HiddenFrom...)
	copied.LastMessage = cloneMessage(conv.LastMessage)
	return &copied
}

func cloneMessage(msg *domainchat.Message) *domainchat.Message {
	if msg == nil {
		return nil
	}
	copied := *msg
	if msg.ReadAt != nil {
		at := *msg.ReadAt
		copied.ReadAt = &at
	}
	if msg.Attachment != nil {
		att := *msg.Attachment
		copied.Attachment = &att
	}
	return &copied
}
