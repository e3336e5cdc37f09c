package v1

import (
	"github.com/gin-gonic/gin"

	"chat-server/internal/interfaces/httpserver/handlers/conversationhandler"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	conversations *conversationhandler.ConversationHandler
}

func NewRoutes(conversations *conversationhandler.ConversationHandler) *Routes {
	return &Routes{conversations: conversations}
}

// Register attaches all v1 routes under the given group. The caller is
// responsible for applying authentication to the group first.
func (r *Routes) Register(group gin.IRouter) {
	group.POST("/conversations", r.conversations.Create)
	group.GET("/conversations", r.conversations.List)
	group.POST("/conversations/rename", r.conversations.Rename)
	group.POST("/conversations/delete", r.conversations.Delete)
	group.POST("/chat", r.conversations.Chat)
}
