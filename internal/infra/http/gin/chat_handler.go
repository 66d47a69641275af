package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	appchat "github.com/sthaarwin/Dental-Smile-sub001/internal/app/chat"
	domainchat "github.com/sthaarwin/Dental-Smile-sub001/internal/domain/chat"
)

// ChatHandler exposes the request-style chat surface consumed by the
// surrounding application.
type ChatHandler struct {
	Service *appchat.Service
	Logger  *slog.Logger
}

type createConversationRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

type participantResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type messageResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	ReceiverID     string     `json:"receiverId"`
	Text           string     `json:"text"`
	Type           string     `json:"type"`
	Timestamp      time.Time  `json:"timestamp"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	SenderName     string     `json:"senderName,omitempty"`
	SenderRole     string     `json:"senderRole,omitempty"`
}

type conversationResponse struct {
	ID              string                `json:"id"`
	Participants    []participantResponse `json:"participants"`
	LastMessage     *messageResponse      `json:"lastMessage"`
	LastMessageTime time.Time             `json:"lastMessageTime"`
	IsActive        bool                  `json:"isActive"`
}

// CreateConversation finds or creates the thread between the caller and the
// given participant.
func (h ChatHandler) CreateConversation(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participantId is required"})
		return
	}
	view, err := h.Service.GetOrCreateConversation(c.Request.Context(), p.ID, req.ParticipantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(view))
}

// ListConversations returns the caller's visible conversations.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	views, err := h.Service.ListConversations(c.Request.Context(), p.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	result := make([]conversationResponse, 0, len(views))
	for i := range views {
		result = append(result, toConversationResponse(&views[i]))
	}
	c.JSON(http.StatusOK, result)
}

// ListMessages returns one page of a conversation's messages, newest first.
func (h ChatHandler) ListMessages(c *gin.Context) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), appchat.DefaultPageSize)
	views, err := h.Service.ListMessages(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	result := make([]messageResponse, 0, len(views))
	for _, view := range views {
		msg := toMessageResponse(&view.Message)
		msg.SenderName = view.SenderName
		msg.SenderRole = view.SenderRole
		result = append(result, *msg)
	}
	c.JSON(http.StatusOK, result)
}

// UnreadCount reports the caller's unread message total.
func (h ChatHandler) UnreadCount(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	count, err := h.Service.UnreadCount(c.Request.Context(), p.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// DeleteConversation hides the conversation for the caller; once both
// participants have hidden it the thread is permanently removed.
func (h ChatHandler) DeleteConversation(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.Service.HideConversation(c.Request.Context(), c.Param("id"), p.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h ChatHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound), errors.Is(err, domainchat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	case errors.Is(err, domainchat.ErrEmptyBody),
		errors.Is(err, domainchat.ErrSameParticipant),
		errors.Is(err, domainchat.ErrParticipantRequired),
		errors.Is(err, domainchat.ErrInvalidMessageType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat request failed", "path", c.FullPath(), "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toConversationResponse(view *appchat.ConversationView) conversationResponse {
	conv := view.Conversation
	resp := conversationResponse{
		ID:              conv.ID,
		Participants:    make([]participantResponse, 0, len(view.Participants)),
		LastMessageTime: conv.LastMessageTime,
		IsActive:        conv.IsActive,
	}
	for _, profile := range view.Participants {
		resp.Participants = append(resp.Participants, participantResponse{ID: profile.ID, Name: profile.Name, Role: profile.Role})
	}
	if conv.LastMessage != nil {
		resp.LastMessage = toMessageResponse(conv.LastMessage)
	}
	return resp
}

func toMessageResponse(msg *domainchat.Message) *messageResponse {
	return &messageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Text:           msg.Body,
		Type:           string(msg.Type),
		Timestamp:      msg.Timestamp,
		IsRead:         msg.IsRead,
		ReadAt:         msg.ReadAt,
	}
}

func parsePositiveInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return def
	}
	return val
}
