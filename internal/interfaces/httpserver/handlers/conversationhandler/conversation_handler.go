package conversationhandler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-server/internal/domain/conversation"
	"chat-server/internal/interfaces/httpserver/middlewares"
	"chat-server/internal/interfaces/httpserver/requests"
	"chat-server/internal/interfaces/httpserver/responses"
	"chat-server/internal/utils/platformerrors"
)

// ConversationHandler exposes conversation endpoints.
type ConversationHandler struct {
	service *conversation.ConversationService
	log     zerolog.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(service *conversation.ConversationService, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		log:     log.With().Str("component", "conversation-handler").Logger(),
	}
}

// ConversationView is the wire representation of a conversation.
type ConversationView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []MessageView `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// MessageView is the wire representation of a single message.
type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MutationView reports whether a rename or delete touched a row.
type MutationView struct {
	ChatID  string `json:"chat_id"`
	Applied bool   `json:"applied"`
}

// ChatView carries the assistant reply for a completed exchange.
type ChatView struct {
	ChatID string      `json:"chat_id"`
	Reply  MessageView `json:"reply"`
}

func newConversationView(conv *conversation.Conversation) ConversationView {
	messages := make([]MessageView, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, MessageView{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return ConversationView{
		ID:        conv.PublicID,
		Title:     conv.Title,
		Messages:  messages,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

// Create starts a new empty conversation for the authenticated user.
func (h *ConversationHandler) Create(c *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(c)

	conv, err := h.service.Create(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("create conversation failed")
		responses.HandleError(c, err, "failed to create conversation")
		return
	}

	responses.Created(c, newConversationView(conv))
}

// List returns every conversation owned by the authenticated user.
func (h *ConversationHandler) List(c *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(c)

	conversations, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("list conversations failed")
		responses.HandleError(c, err, "failed to list conversations")
		return
	}

	views := make([]ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		views = append(views, newConversationView(conv))
	}

	c.JSON(http.StatusOK, responses.ListResponse[ConversationView]{
		Total: int64(len(views)),
		Data:  views,
	})
}

// Rename changes a conversation title. Renaming a conversation that does not
// exist, or that belongs to another user, acknowledges without applying.
func (h *ConversationHandler) Rename(c *gin.Context) {
	var req requests.RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "chat_id and name are required", "8a41cf0b-6d3e-4f7a-9c25-0b1e8d4a6f93")
		return
	}

	userID, _ := middlewares.UserIDFromContext(c)

	applied, err := h.service.Rename(c.Request.Context(), userID, req.ChatID, req.Name)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", req.ChatID).Msg("rename conversation failed")
		responses.HandleError(c, err, "failed to rename conversation")
		return
	}

	responses.OK(c, MutationView{ChatID: req.ChatID, Applied: applied})
}

// Delete removes a conversation. Deleting a conversation that does not exist,
// or that belongs to another user, acknowledges without applying.
func (h *ConversationHandler) Delete(c *gin.Context) {
	var req requests.DeleteConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "chat_id is required", "2e7b9d1c-4a8f-4e60-b53d-7f0c2a9e5b14")
		return
	}

	userID, _ := middlewares.UserIDFromContext(c)

	applied, err := h.service.Delete(c.Request.Context(), userID, req.ChatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", req.ChatID).Msg("delete conversation failed")
		responses.HandleError(c, err, "failed to delete conversation")
		return
	}

	responses.OK(c, MutationView{ChatID: req.ChatID, Applied: applied})
}

// Chat appends the prompt to the conversation, obtains the assistant reply,
// and returns it. On any failure nothing is persisted and the typed error is
// surfaced with its mapped status code.
func (h *ConversationHandler) Chat(c *gin.Context) {
	var req requests.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "chat_id and prompt are required", "c5d3a8f1-9b2e-4d07-a641-3e8f0c6b2d75")
		return
	}

	userID, _ := middlewares.UserIDFromContext(c)

	reply, err := h.service.AppendAndComplete(c.Request.Context(), userID, req.ChatID, req.Prompt)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", req.ChatID).Msg("chat exchange failed")
		responses.HandleError(c, err, "failed to complete chat exchange")
		return
	}

	responses.OK(c, ChatView{
		ChatID: req.ChatID,
		Reply: MessageView{
			Role:      string(reply.Role),
			Content:   reply.Content,
			Timestamp: reply.Timestamp,
		},
	})
}
