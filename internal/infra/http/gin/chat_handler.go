package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"nestly/internal/app/dto"
	appchat "nestly/internal/app/services/chat"
	domainchat "nestly/internal/domain/chat"
	domainlistings "nestly/internal/domain/listings"
	"nestly/internal/infra/storage/s3"
)

// ChatHTTP exposes conversation and message endpoints.
type ChatHTTP interface {
	ListMyConversations(c *gin.Context)
	GetConversation(c *gin.Context)
	CreateConversation(c *gin.Context)
	ArchiveConversation(c *gin.Context)
	StarConversation(c *gin.Context)
	MuteConversation(c *gin.Context)
	UnreadBadge(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	EditMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	StartPropertyInquiry(c *gin.Context)
	UploadAttachment(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat services.
type ChatHandler struct {
	Directory   *appchat.Directory
	Thread      *appchat.Thread
	Listings    domainlistings.Repository
	Attachments s3.AttachmentStore
	Logger      *slog.Logger
}

// ListMyConversations returns the caller's conversation list page.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	page, err := h.Directory.List(c.Request.Context(), p.ID, appchat.ListOptions{
		Type:   domainchat.ConversationType(strings.TrimSpace(c.Query("type"))),
		Status: domainchat.ConversationStatus(strings.TrimSpace(c.Query("status"))),
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  parsePositiveIntStrict(c.Query("limit"), 20),
		Offset: parseNonNegativeInt(c.Query("offset"), 0),
	})
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	collection := dto.ConversationList{
		Items:   make([]dto.Conversation, 0, len(page.Items)),
		Total:   page.Total,
		HasMore: page.HasMore,
	}
	for _, conv := range page.Items {
		collection.Items = append(collection.Items, dto.FromConversation(conv))
	}
	c.JSON(http.StatusOK, collection)
}

// GetConversation fetches one conversation if the caller may see it.
func (h ChatHandler) GetConversation(c *gin.Context) {
	_, conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(*conv))
}

// CreateConversation gets or creates a thread with another user, optionally
// scoped to a property.
func (h ChatHandler) CreateConversation(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		ParticipantID string `json:"participant_id"`
		Type          string `json:"type"`
		Subject       string `json:"subject"`
		PropertyID    string `json:"property_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	if req.ParticipantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required"})
		return
	}
	if req.ParticipantID == p.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start chat with yourself"})
		return
	}
	params := appchat.CreateParams{
		InitiatorID:   p.ID,
		InitiatorName: p.Name,
		InitiatorRole: p.Role,
		Type:          domainchat.ConversationType(req.Type),
		Subject:       req.Subject,
		PropertyID:    strings.TrimSpace(req.PropertyID),
	}
	if params.PropertyID != "" && h.Listings != nil {
		if listing, err := h.Listings.ByID(c.Request.Context(), params.PropertyID); err == nil {
			params.PropertyTitle = listing.Title
		}
	}
	conv, err := h.Directory.GetOrCreate(c.Request.Context(), params, req.ParticipantID)
	if err != nil {
		h.respondChatError(c, err, "create conversation", "user_id", p.ID, "peer_id", req.ParticipantID)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(*conv))
}

// ArchiveConversation moves a thread out of the active list.
func (h ChatHandler) ArchiveConversation(c *gin.Context) {
	_, conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	if err := h.Directory.Archive(c.Request.Context(), conv.ID); err != nil {
		h.respondChatError(c, err, "archive conversation", "conversation_id", conv.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// StarConversation sets the shared starred flag.
func (h ChatHandler) StarConversation(c *gin.Context) {
	h.setFlag(c, func(conversationID string, value bool) (*domainchat.Conversation, error) {
		return h.Directory.ToggleStar(c.Request.Context(), conversationID, value)
	}, "starred")
}

// MuteConversation sets the shared muted flag.
func (h ChatHandler) MuteConversation(c *gin.Context) {
	h.setFlag(c, func(conversationID string, value bool) (*domainchat.Conversation, error) {
		return h.Directory.ToggleMute(c.Request.Context(), conversationID, value)
	}, "muted")
}

func (h ChatHandler) setFlag(c *gin.Context, apply func(string, bool) (*domainchat.Conversation, error), field string) {
	_, conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	var req map[string]bool
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	value, ok := req[field]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " is required"})
		return
	}
	updated, err := apply(conv.ID, value)
	if err != nil {
		h.respondChatError(c, err, "update "+field, "conversation_id", conv.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(*updated))
}

// UnreadBadge returns the caller's total unread count across conversations.
func (h ChatHandler) UnreadBadge(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	total, err := h.Directory.UnreadCountForUser(c.Request.Context(), p.ID)
	if err != nil {
		h.respondChatError(c, err, "unread badge", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": total})
}

// ListMessages returns a conversation's messages in chronological order.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	opts := appchat.ThreadListOptions{
		Limit:  parsePositiveIntStrict(c.Query("limit"), 50),
		Offset: parseNonNegativeInt(c.Query("offset"), 0),
	}
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		opts.Before = before
	}
	messages, err := h.Thread.List(c.Request.Context(), conv.ID, opts)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", conv.ID, "user_id", p.ID)
		return
	}
	collection := dto.ChatMessageList{Items: make([]dto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		collection.Items = append(collection.Items, dto.FromMessage(msg))
	}
	c.JSON(http.StatusOK, collection)
}

// SendMessage posts a message to a conversation.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	var req struct {
		Content        string                  `json:"content"`
		Type           string                  `json:"type"`
		ReplyToID      string                  `json:"reply_to_id"`
		Attachments    []domainchat.Attachment `json:"attachments"`
		IsInternalNote bool                    `json:"is_internal_note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.IsInternalNote && !isAgentRole(p.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "internal notes are agent only"})
		return
	}
	message, err := h.Thread.Send(c.Request.Context(), appchat.SendParams{
		ConversationID:  conv.ID,
		SenderID:        p.ID,
		SenderName:      p.Name,
		SenderRole:      p.Role,
		SenderAvatarURL: p.AvatarURL,
		Content:         req.Content,
		Type:            domainchat.MessageType(req.Type),
		ReplyToID:       strings.TrimSpace(req.ReplyToID),
		Attachments:     req.Attachments,
		IsInternalNote:  req.IsInternalNote,
	})
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conv.ID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.FromMessage(*message))
}

// EditMessage replaces a message's content. Only the author may edit.
func (h ChatHandler) EditMessage(c *gin.Context) {
	p, msg, ok := h.loadMessage(c)
	if !ok {
		return
	}
	if msg.SenderID != p.ID && !p.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the message author"})
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	updated, err := h.Thread.Edit(c.Request.Context(), msg.ID, req.Content)
	if err != nil {
		h.respondChatError(c, err, "edit message", "message_id", msg.ID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromMessage(*updated))
}

// DeleteMessage soft-deletes a message. Only the author may delete.
func (h ChatHandler) DeleteMessage(c *gin.Context) {
	p, msg, ok := h.loadMessage(c)
	if !ok {
		return
	}
	if msg.SenderID != p.ID && !p.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the message author"})
		return
	}
	if err := h.Thread.Delete(c.Request.Context(), msg.ID); err != nil {
		h.respondChatError(c, err, "delete message", "message_id", msg.ID, "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead marks every message from the other side as read and zeroes the
// conversation's unread counter.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, conv, ok := h.loadConversation(c)
	if !ok {
		return
	}
	if err := h.Thread.MarkRead(c.Request.Context(), conv.ID, p.ID); err != nil {
		h.respondChatError(c, err, "mark read", "conversation_id", conv.ID, "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartPropertyInquiry opens (or reuses) a property-scoped conversation with
// the listing's agent and sends the first message.
func (h ChatHandler) StartPropertyInquiry(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	if h.Listings == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	var req struct {
		Message string `json:"message"`
		Subject string `json:"subject"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), listingID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if listing.AgentID == p.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot inquire about your own listing"})
		return
	}
	conv, msg, err := h.Thread.StartPropertyInquiry(c.Request.Context(), appchat.InquiryParams{
		FromID:           p.ID,
		FromName:         p.Name,
		FromRole:         p.Role,
		FromAvatarURL:    p.AvatarURL,
		AgentID:          listing.AgentID,
		PropertyID:       listing.ID,
		PropertyTitle:    listing.Title,
		PropertyImageURL: listing.ImageURL,
		Subject:          strings.TrimSpace(req.Subject),
		Content:          req.Message,
	})
	if err != nil {
		h.respondChatError(c, err, "start property inquiry", "listing_id", listingID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.PropertyInquiry{
		Conversation: dto.FromConversation(*conv),
		Message:      dto.FromMessage(*msg),
	})
}

// UploadAttachment stores a file and returns the reference to embed in a
// later send.
func (h ChatHandler) UploadAttachment(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	if h.Attachments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachments unavailable"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer file.Close()

	attachment, err := h.Attachments.Upload(
		c.Request.Context(),
		fileHeader.Filename,
		file,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
	)
	if err != nil {
		h.respondChatError(c, err, "upload attachment", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

// loadConversation resolves the :id param, enforces not-found and
// participant access, and returns the caller alongside.
func (h ChatHandler) loadConversation(c *gin.Context) (principal, *domainchat.Conversation, bool) {
	p, ok := requireUser(c)
	if !ok {
		return principal{}, nil, false
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return principal{}, nil, false
	}
	conv, err := h.Directory.GetOne(c.Request.Context(), conversationID)
	if err != nil {
		h.respondChatError(c, err, "load conversation", "conversation_id", conversationID, "user_id", p.ID)
		return principal{}, nil, false
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return principal{}, nil, false
	}
	if !p.IsAdmin() && !conv.HasParticipant(p.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return principal{}, nil, false
	}
	return p, conv, true
}

// loadMessage resolves a message id and verifies the caller can see its
// conversation.
func (h ChatHandler) loadMessage(c *gin.Context) (principal, *domainchat.Message, bool) {
	p, ok := requireUser(c)
	if !ok {
		return principal{}, nil, false
	}
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message id is required"})
		return principal{}, nil, false
	}
	msg, err := h.Thread.Get(c.Request.Context(), messageID)
	if err != nil {
		h.respondChatError(c, err, "load message", "message_id", messageID, "user_id", p.ID)
		return principal{}, nil, false
	}
	conv, err := h.Directory.GetOne(c.Request.Context(), msg.ConversationID)
	if err != nil || conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return principal{}, nil, false
	}
	if !p.IsAdmin() && !conv.HasParticipant(p.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return principal{}, nil, false
	}
	return p, msg, true
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound),
		errors.Is(err, domainchat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, appchat.ErrContentRequired),
		errors.Is(err, appchat.ErrConversationRequired),
		errors.Is(err, appchat.ErrSenderRequired),
		errors.Is(err, appchat.ErrInitiatorRequired),
		errors.Is(err, appchat.ErrParticipantRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat unavailable"})
	}
}

func isAgentRole(role domainchat.Role) bool {
	switch role {
	case domainchat.RoleAgent, domainchat.RoleAgency, domainchat.RoleAdmin:
		return true
	}
	return false
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

func parseNonNegativeInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return def
	}
	return value
}

var _ ChatHTTP = (*ChatHandler)(nil)
