package conversation

import (
	"context"
	"time"
)

// DefaultTitle is assigned to newly created conversations.
const DefaultTitle = "New Chat"

// MessageRole identifies the author of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one turn in a conversation. The log is append-only; messages are
// never reordered or edited once stored.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation is a named, owned, ordered log of messages.
type Conversation struct {
	ID        uint      `json:"-"`
	PublicID  string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"name"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationFilter narrows repository lookups. Every query path includes
// UserID so one user can never observe another user's records.
type ConversationFilter struct {
	ID       *uint
	PublicID *string
	UserID   *string
}

// ConversationRepository is the persistence boundary for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, conv *Conversation) error
	FindByFilter(ctx context.Context, filter ConversationFilter) ([]*Conversation, error)
	FindByPublicIDAndUserID(ctx context.Context, publicID, userID string) (*Conversation, error)
	// UpdateTitle renames the conversation matching (publicID, userID).
	// Returns false without error when no record matches.
	UpdateTitle(ctx context.Context, publicID, userID, title string) (bool, error)
	// Delete removes the conversation matching (publicID, userID).
	// Returns false without error when no record matches.
	Delete(ctx context.Context, publicID, userID string) (bool, error)
	// ReplaceMessages persists the full message log in a single document
	// update together with the bumped updated-at timestamp.
	ReplaceMessages(ctx context.Context, conv *Conversation) error
	// DeleteEmptyOlderThan removes conversations with no messages whose last
	// update is before the cutoff. Returns the number of rows removed.
	DeleteEmptyOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
