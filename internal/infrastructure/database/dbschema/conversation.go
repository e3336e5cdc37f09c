package dbschema

import (
	"encoding/json"

	"gorm.io/datatypes"

	"chat-server/internal/domain/conversation"
	"chat-server/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(Conversation{})
}

// Conversation stores one conversation per row; the ordered message log lives
// in a single JSONB document so an exchange is persisted with one atomic row
// update.
type Conversation struct {
	BaseModel
	PublicID string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	UserID   string         `gorm:"type:varchar(255);index:idx_conversation_user;not null"`
	Title    string         `gorm:"type:varchar(256);not null"`
	Messages datatypes.JSON `gorm:"type:jsonb;not null"`
}

// NewSchemaConversation converts a domain conversation into a schema instance.
func NewSchemaConversation(conv *conversation.Conversation) (*Conversation, error) {
	messages := conv.Messages
	if messages == nil {
		messages = []conversation.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}

	return &Conversation{
		BaseModel: BaseModel{
			ID:        conv.ID,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		},
		PublicID: conv.PublicID,
		UserID:   conv.UserID,
		Title:    conv.Title,
		Messages: datatypes.JSON(raw),
	}, nil
}

// EtoD converts a schema conversation back to the domain representation.
func (c *Conversation) EtoD() (*conversation.Conversation, error) {
	messages := []conversation.Message{}
	if len(c.Messages) > 0 {
		if err := json.Unmarshal(c.Messages, &messages); err != nil {
			return nil, err
		}
	}

	return &conversation.Conversation{
		ID:        c.ID,
		PublicID:  c.PublicID,
		UserID:    c.UserID,
		Title:     c.Title,
		Messages:  messages,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}
