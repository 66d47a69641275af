package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "github.com/sthaarwin/Dental-Smile-sub001/internal/domain/chat"
)

// ChatStore persists conversations and messages in MongoDB.
type ChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewChatStore builds a store over the chat collections.
func NewChatStore(db *mongo.Database) *ChatStore {
	return &ChatStore{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// EnsureIndexes creates the indexes the store relies on: the unique
// normalized pair key closing the get-or-create race, and the lookup paths
// for listing and unread counting.
func (s *ChatStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_time", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	return err
}

// ConversationByID returns a conversation or ErrConversationNotFound.
func (s *ChatStore) ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toEntity(), nil
}

// ConversationByPair resolves the conversation for a normalized pair key.
func (s *ChatStore) ConversationByPair(ctx context.Context, pairKey string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"pair_key": pairKey}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toEntity(), nil
}

// InsertConversation stores a new conversation. The unique pair_key index
// turns concurrent first contacts into ErrConversationExists for the loser.
func (s *ChatStore) InsertConversation(ctx context.Context, conv *domainchat.Conversation) error {
	_, err := s.conversations.InsertOne(ctx, newConversationDocument(conv))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrConversationExists
		}
		return err
	}
	return nil
}

// ConversationsForUser returns the user's conversations, most recently
// active first.
func (s *ChatStore) ConversationsForUser(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_time", Value: -1}})
	cursor, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []domainchat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toEntity())
	}
	return result, cursor.Err()
}

// HideForUser inserts userID into hidden_from with a single $addToSet and
// returns the post-update conversation, so concurrent hides from both
// participants each land and the caller sees the combined set.
func (s *ChatStore) HideForUser(ctx context.Context, conversationID, userID string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$addToSet": bson.M{"hidden_from": userID}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toEntity(), nil
}

// DeleteConversation removes the conversation and all of its messages.
func (s *ChatStore) DeleteConversation(ctx context.Context, conversationID string) error {
	res, err := s.conversations.DeleteOne(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	_, err = s.messages.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

// ClearMessages wipes the conversation's messages and resets lastMessage.
func (s *ChatStore) ClearMessages(ctx context.Context, conversationID string) error {
	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return err
	}
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_message": nil}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

// InsertMessage stores a new message.
func (s *ChatStore) InsertMessage(ctx context.Context, msg *domainchat.Message) error {
	_, err := s.messages.InsertOne(ctx, newMessageDocument(msg))
	return err
}

// MessageByID returns a message or ErrMessageNotFound.
func (s *ChatStore) MessageByID(ctx context.Context, id string) (*domainchat.Message, error) {
	var doc messageDocument
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toEntity(), nil
}

// ListMessages returns one page of a conversation's messages, newest first.
func (s *ChatStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]domainchat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make([]domainchat.Message, 0, limit)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toEntity())
	}
	return result, cursor.Err()
}

// MarkMessageRead sets isRead/readAt exactly once. The boolean reports
// whether this call performed the transition.
func (s *ChatStore) MarkMessageRead(ctx context.Context, messageID string, at time.Time) (*domainchat.Message, bool, error) {
	res, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": messageID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at.UTC().UnixMilli()}})
	if err != nil {
		return nil, false, err
	}
	msg, err := s.MessageByID(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	return msg, res.ModifiedCount > 0, nil
}

// UpdateLastMessage applies the post-send conversation projection and
// unhides the receiver.
func (s *ChatStore) UpdateLastMessage(ctx context.Context, conversationID string, msg *domainchat.Message, unhideUserID string) error {
	update := bson.M{
		"$set": bson.M{
			"last_message":      newMessageDocument(msg),
			"last_message_time": msg.Timestamp.UTC().UnixMilli(),
		},
	}
	if unhideUserID != "" {
		update["$pull"] = bson.M{"hidden_from": unhideUserID}
	}
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

// CountUnread counts messages addressed to userID that remain unread.
func (s *ChatStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	return s.messages.CountDocuments(ctx, bson.M{"receiver_id": userID, "is_read": false})
}

type conversationDocument struct {
	ID              string           `bson:"_id"`
	PairKey         string           `bson:"pair_key"`
	Participants    []string         `bson:"participants"`
	LastMessage     *messageDocument `bson:"last_message,omitempty"`
	LastMessageTime int64            `bson:"last_message_time"`
	HiddenFrom      []string         `bson:"hidden_from"`
	IsActive        bool             `bson:"is_active"`
	CreatedAt       int64            `bson:"created_at"`
}

func newConversationDocument(conv *domainchat.Conversation) conversationDocument {
	hidden := conv.HiddenFrom
	if hidden == nil {
		hidden = []string{}
	}
	return conversationDocument{
		ID:              conv.ID,
		PairKey:         conv.PairKey(),
		Participants:    conv.Participants[:],
		LastMessage:     newMessageDocumentPtr(conv.LastMessage),
		LastMessageTime: conv.LastMessageTime.UTC().UnixMilli(),
		HiddenFrom:      hidden,
		IsActive:        conv.IsActive,
		CreatedAt:       conv.CreatedAt.UTC().UnixMilli(),
	}
}

func (d conversationDocument) toEntity() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:              d.ID,
		LastMessageTime: timestampToTime(d.LastMessageTime),
		HiddenFrom:      append([]string(nil), d.HiddenFrom...),
		IsActive:        d.IsActive,
		CreatedAt:       timestampToTime(d.CreatedAt),
	}
	if len(d.Participants) == 2 {
		conv.Participants = [2]string{d.Participants[0], d.Participants[1]}
	}
	if d.LastMessage != nil {
		conv.LastMessage = d.LastMessage.toEntity()
	}
	return conv
}

type messageDocument struct {
	ID             string              `bson:"_id"`
	ConversationID string              `bson:"conversation_id"`
	SenderID       string              `bson:"sender_id"`
	ReceiverID     string              `bson:"receiver_id"`
	Body           string              `bson:"body"`
	Type           string              `bson:"type"`
	Timestamp      int64               `bson:"timestamp"`
	IsRead         bool                `bson:"is_read"`
	ReadAt         *int64              `bson:"read_at,omitempty"`
	Attachment     *attachmentDocument `bson:"attachment,omitempty"`
}

type attachmentDocument struct {
	URL      string `bson:"url"`
	Name     string `bson:"name,omitempty"`
	MimeType string `bson:"mime_type,omitempty"`
	Size     int64  `bson:"size,omitempty"`
}

func newMessageDocument(msg *domainchat.Message) messageDocument {
	doc := messageDocument{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Body:           msg.Body,
		Type:           string(msg.Type),
		Timestamp:      msg.Timestamp.UTC().UnixMilli(),
		IsRead:         msg.IsRead,
	}
	if msg.ReadAt != nil {
		at := msg.ReadAt.UTC().UnixMilli()
		doc.ReadAt = &at
	}
	if msg.Attachment != nil {
		doc.Attachment = &attachmentDocument{
			URL:      msg.Attachment.URL,
			Name:     msg.Attachment.Name,
			MimeType: msg.Attachment.MimeType,
			Size:     msg.Attachment.Size,
		}
	}
	return doc
}

func newMessageDocumentPtr(msg *domainchat.Message) *messageDocument {
	if msg == nil {
		return nil
	}
	doc := newMessageDocument(msg)
	return &doc
}

func (d messageDocument) toEntity() *domainchat.Message {
	msg := &domainchat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Body:           d.Body,
		Type:           domainchat.MessageType(d.Type),
		Timestamp:      timestampToTime(d.Timestamp),
		IsRead:         d.IsRead,
	}
	if d.ReadAt != nil {
		at := timestampToTime(*d.ReadAt)
		msg.ReadAt = &at
	}
	if d.Attachment != nil {
		msg.Attachment = &domainchat.Attachment{
			URL:      d.Attachment.URL,
			Name:     d.Attachment.Name,
			MimeType: d.Attachment.MimeType,
			Size:     d.Attachment.Size,
		}
	}
	return msg
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
