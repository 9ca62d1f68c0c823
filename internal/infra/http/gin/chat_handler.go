package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	appchat "sneakmarket/internal/app/chat"
	"sneakmarket/internal/app/dto"
	domainchat "sneakmarket/internal/domain/chat"
)

// ChatHTTP exposes the chat endpoints.
type ChatHTTP interface {
	ListMyConversations(c *gin.Context)
	StreamMyConversations(c *gin.Context)
	CreateConversation(c *gin.Context)
	GetConversation(c *gin.Context)
	MarkRead(c *gin.Context)
	ListMessages(c *gin.Context)
	StreamMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	SendOffer(c *gin.Context)
	SendTrade(c *gin.Context)
	Respond(c *gin.Context)
	UploadAttachment(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat service.
type ChatHandler struct {
	Chat   *appchat.Service
	Logger *slog.Logger
}

// ListMyConversations returns the caller's directory, newest activity first.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversations, err := h.Chat.ListConversations(c.Request.Context(), p.ID)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	collection := dto.ConversationList{Items: make([]dto.Conversation, 0, len(conversations))}
	for _, conv := range conversations {
		collection.Items = append(collection.Items, dto.FromConversation(conv))
	}
	c.JSON(http.StatusOK, collection)
}

// StreamMyConversations streams the caller's directory over SSE: a snapshot
// event per existing thread, then an update per change.
func (h ChatHandler) StreamMyConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	watch, err := h.Chat.WatchDirectory(c.Request.Context(), p.ID)
	if err != nil {
		h.respondChatError(c, err, "watch directory", "user_id", p.ID)
		return
	}
	defer watch.Close()

	writeSSEHeaders(c)
	for _, conv := range watch.Snapshot() {
		c.SSEvent("conversation", dto.FromConversation(conv))
	}
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case conv, open := <-watch.Events():
			if !open {
				return false
			}
			c.SSEvent("conversation", dto.FromConversation(conv))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// CreateConversation opens (or returns) the thread with a counterparty about
// a listing, seeding a greeting when created.
func (h ChatHandler) CreateConversation(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		CounterpartyID string `json:"counterparty_id"`
		ListingID      string `json:"listing_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	conv, err := h.Chat.OpenOrCreateConversation(c.Request.Context(), p.ID, req.CounterpartyID, req.ListingID)
	if err != nil {
		h.respondChatError(c, err, "open conversation", "user_id", p.ID, "counterparty_id", req.CounterpartyID, "listing_id", req.ListingID)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(*conv))
}

// GetConversation returns thread metadata for a participant.
func (h ChatHandler) GetConversation(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conv, err := h.Chat.GetConversation(c.Request.Context(), c.Param("id"), p.ID)
	if err != nil {
		h.respondChatError(c, err, "load conversation", "conversation_id", c.Param("id"), "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(*conv))
}

// MarkRead clears the caller from the thread's unread set.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.Chat.MarkRead(c.Request.Context(), c.Param("id"), p.ID); err != nil {
		h.respondChatError(c, err, "mark read", "conversation_id", c.Param("id"), "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMessages returns the thread history in creation order.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	messages, err := h.Chat.ListMessages(c.Request.Context(), c.Param("id"), p.ID)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", c.Param("id"), "user_id", p.ID)
		return
	}
	collection := dto.ChatMessageList{Items: make([]dto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		collection.Items = append(collection.Items, dto.FromMessage(msg))
	}
	c.JSON(http.StatusOK, collection)
}

// StreamMessages streams a conversation over SSE: the snapshot, then every
// message appended while the client stays connected. Disconnecting tears the
// subscription down.
func (h ChatHandler) StreamMessages(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	sub, err := h.Chat.Subscribe(c.Request.Context(), c.Param("id"), p.ID)
	if err != nil {
		h.respondChatError(c, err, "subscribe", "conversation_id", c.Param("id"), "user_id", p.ID)
		return
	}
	defer sub.Close()

	writeSSEHeaders(c)
	for _, msg := range sub.Snapshot() {
		c.SSEvent("message", dto.FromMessage(msg))
	}
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, open := <-sub.Events():
			if !open {
				return false
			}
			c.SSEvent("message", dto.FromMessage(msg))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// SendMessage posts a text message.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Chat.AppendText(c.Request.Context(), c.Param("id"), p.ID, req.Text)
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", c.Param("id"), "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.FromMessage(*msg))
}

// SendOffer posts a pending monetary offer.
func (h ChatHandler) SendOffer(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		ListingID string  `json:"listing_id"`
		Amount    float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Chat.AppendOffer(c.Request.Context(), c.Param("id"), p.ID, req.ListingID, req.Amount)
	if err != nil {
		h.respondChatError(c, err, "send offer", "conversation_id", c.Param("id"), "user_id", p.ID, "listing_id", req.ListingID)
		return
	}
	c.JSON(http.StatusCreated, dto.FromMessage(*msg))
}

// SendTrade posts a pending trade proposal.
func (h ChatHandler) SendTrade(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		OfferedListingID   string `json:"offered_listing_id"`
		RequestedListingID string `json:"requested_listing_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Chat.AppendTradeProposal(c.Request.Context(), c.Param("id"), p.ID, req.OfferedListingID, req.RequestedListingID)
	if err != nil {
		h.respondChatError(c, err, "send trade", "conversation_id", c.Param("id"), "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.FromMessage(*msg))
}

// Respond resolves a pending offer or trade with accept or reject.
func (h ChatHandler) Respond(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Decision string `json:"decision"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	decision, err := domainchat.ParseDecision(req.Decision)
	if err != nil {
		h.respondChatError(c, err, "respond", "conversation_id", c.Param("id"))
		return
	}
	msg, err := h.Chat.Respond(c.Request.Context(), c.Param("id"), c.Param("messageID"), p.ID, decision)
	if err != nil {
		h.respondChatError(c, err, "respond", "conversation_id", c.Param("id"), "message_id", c.Param("messageID"), "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromMessage(*msg))
}

// UploadAttachment stores a multipart image and appends the image message.
// An upload failure surfaces before anything is written to the stream.
func (h ChatHandler) UploadAttachment(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	url, err := h.Chat.UploadAttachment(c.Request.Context(), c.Param("id"), p.ID, header.Filename, file, contentType)
	if err != nil {
		h.respondChatError(c, err, "upload attachment", "conversation_id", c.Param("id"), "user_id", p.ID, "filename", header.Filename)
		return
	}
	msg, err := h.Chat.AppendImage(c.Request.Context(), c.Param("id"), p.ID, url)
	if err != nil {
		h.respondChatError(c, err, "append image", "conversation_id", c.Param("id"), "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.FromMessage(*msg))
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	switch {
	case errors.Is(err, domainchat.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.TrimPrefix(err.Error(), "chat: ")})
	case errors.Is(err, domainchat.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, domainchat.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "proposal already resolved"})
	case errors.Is(err, domainchat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrUploadFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not upload attachment"})
	case errors.Is(err, domainchat.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func writeSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
}

var _ ChatHTTP = (*ChatHandler)(nil)
