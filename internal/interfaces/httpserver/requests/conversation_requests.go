package requests

// RenameConversationRequest renames an existing conversation.
type RenameConversationRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

// DeleteConversationRequest removes an existing conversation.
type DeleteConversationRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
}

// ChatRequest appends a prompt to a conversation and requests a completion.
type ChatRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
	Prompt string `json:"prompt" binding:"required"`
}
