package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrConversationExists   = errors.New("chat: conversation already exists for participant pair")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrNotParticipant       = errors.New("chat: user is not a participant")
	ErrSameParticipant      = errors.New("chat: conversation requires two distinct participants")
	ErrParticipantRequired  = errors.New("chat: participant id is required")
)

// Conversation is a persisted thread between exactly two participants.
// For any unordered pair of users at most one conversation exists; PairKey
// is the normalized form of the pair enforcing that uniqueness.
type Conversation struct {
	ID              string
	Participants    [2]string
	LastMessage     *Message
	LastMessageTime time.Time
	HiddenFrom      []string
	IsActive        bool
	CreatedAt       time.Time
}

// PairKey returns the canonical identity of an unordered participant pair.
func PairKey(userA, userB string) string {
	a := strings.TrimSpace(userA)
	b := strings.TrimSpace(userB)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// NewParticipantPair validates and normalizes a participant pair.
func NewParticipantPair(userA, userB string) ([2]string, error) {
	a := strings.TrimSpace(userA)
	b := strings.TrimSpace(userB)
	if a == "" || b == "" {
		return [2]string{}, ErrParticipantRequired
	}
	if a == b {
		return [2]string{}, ErrSameParticipant
	}
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}, nil
}

// PairKey returns the canonical key of this conversation's participants.
func (c *Conversation) PairKey() string {
	return PairKey(c.Participants[0], c.Participants[1])
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// OtherParticipant returns the counterpart of userID, or "" when userID is
// not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}

// HiddenFor reports whether userID has soft-hidden the conversation.
func (c *Conversation) HiddenFor(userID string) bool {
	for _, id := range c.HiddenFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// Hide records userID in HiddenFrom. Insertion is idempotent and rejected
// for non-participants.
func (c *Conversation) Hide(userID string) error {
	if !c.HasParticipant(userID) {
		return ErrNotParticipant
	}
	if c.HiddenFor(userID) {
		return nil
	}
	c.HiddenFrom = append(c.HiddenFrom, userID)
	return nil
}

// Unhide removes userID from HiddenFrom if present.
func (c *Conversation) Unhide(userID string) {
	for i, id := range c.HiddenFrom {
		if id == userID {
			c.HiddenFrom = append(c.HiddenFrom[:i], c.HiddenFrom[i+1:]...)
			return
		}
	}
}

// HiddenByAll reports whether every participant has hidden the conversation,
// the state that triggers permanent deletion. Conversations are strictly
// two-party; this deliberately checks both named participants instead of
// comparing set sizes.
func (c *Conversation) HiddenByAll() bool {
	return c.HiddenFor(c.Participants[0]) && c.HiddenFor(c.Participants[1])
}
