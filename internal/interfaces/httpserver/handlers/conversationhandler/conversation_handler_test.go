package conversationhandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-server/internal/domain/conversation"
	"chat-server/internal/interfaces/httpserver/handlers/conversationhandler"
	"chat-server/internal/utils/platformerrors"
)

// stubRepository serves a single canned conversation.
type stubRepository struct {
	conv *conversation.Conversation
}

func (s *stubRepository) Create(ctx context.Context, conv *conversation.Conversation) error {
	clone := *conv
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = clone.CreatedAt
	s.conv = &clone
	return nil
}

func (s *stubRepository) FindByFilter(ctx context.Context, filter conversation.ConversationFilter) ([]*conversation.Conversation, error) {
	if s.conv == nil || filter.UserID == nil || s.conv.UserID != *filter.UserID {
		return nil, nil
	}
	clone := *s.conv
	return []*conversation.Conversation{&clone}, nil
}

func (s *stubRepository) FindByPublicIDAndUserID(ctx context.Context, publicID, userID string) (*conversation.Conversation, error) {
	if s.conv == nil || s.conv.PublicID != publicID || s.conv.UserID != userID {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "test")
	}
	clone := *s.conv
	return &clone, nil
}

func (s *stubRepository) UpdateTitle(ctx context.Context, publicID, userID, title string) (bool, error) {
	if s.conv == nil || s.conv.PublicID != publicID || s.conv.UserID != userID {
		return false, nil
	}
	s.conv.Title = title
	return true, nil
}

func (s *stubRepository) Delete(ctx context.Context, publicID, userID string) (bool, error) {
	if s.conv == nil || s.conv.PublicID != publicID || s.conv.UserID != userID {
		return false, nil
	}
	s.conv = nil
	return true, nil
}

func (s *stubRepository) ReplaceMessages(ctx context.Context, conv *conversation.Conversation) error {
	s.conv.Messages = conv.Messages
	s.conv.UpdatedAt = time.Now()
	return nil
}

func (s *stubRepository) DeleteEmptyOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type stubGateway struct {
	reply string
	err   error
}

func (s *stubGateway) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

// asUser injects the authenticated subject the way the auth middleware does.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}

func newTestRouter(repo conversation.ConversationRepository, gateway conversation.CompletionGateway, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	service := conversation.NewConversationService(repo, gateway)
	handler := conversationhandler.NewConversationHandler(service, zerolog.Nop())

	engine := gin.New()
	group := engine.Group("/v1", asUser(userID))
	group.POST("/conversations", handler.Create)
	group.GET("/conversations", handler.List)
	group.POST("/conversations/rename", handler.Rename)
	group.POST("/conversations/delete", handler.Delete)
	group.POST("/chat", handler.Chat)
	return engine
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateReturnsNewConversation(t *testing.T) {
	repo := &stubRepository{}
	router := newTestRouter(repo, &stubGateway{}, "user-a")

	rec := postJSON(router, "/v1/conversations", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Messages []any  `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Data.ID == "" {
		t.Fatal("expected a conversation id")
	}
	if resp.Data.Title != conversation.DefaultTitle {
		t.Fatalf("expected title %q, got %q", conversation.DefaultTitle, resp.Data.Title)
	}
	if len(resp.Data.Messages) != 0 {
		t.Fatalf("expected an empty message log, got %d", len(resp.Data.Messages))
	}
}

func TestUnauthenticatedRequestGets401(t *testing.T) {
	repo := &stubRepository{}
	router := newTestRouter(repo, &stubGateway{}, "")

	rec := postJSON(router, "/v1/conversations", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatAgainstMissingConversationGets404(t *testing.T) {
	repo := &stubRepository{}
	router := newTestRouter(repo, &stubGateway{reply: "hi"}, "user-a")

	rec := postJSON(router, "/v1/chat", map[string]string{"chat_id": "conv_missing", "prompt": "hello"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatUpstreamFailureGets502(t *testing.T) {
	repo := &stubRepository{}
	repo.Create(context.Background(), &conversation.Conversation{
		PublicID: "conv_1", UserID: "user-a", Title: conversation.DefaultTitle, Messages: []conversation.Message{},
	})
	gateway := &stubGateway{err: platformerrors.NewError(context.Background(), platformerrors.LayerInfrastructure, platformerrors.ErrorTypeUpstream, "completion request failed", nil, "test")}
	router := newTestRouter(repo, gateway, "user-a")

	rec := postJSON(router, "/v1/chat", map[string]string{"chat_id": "conv_1", "prompt": "hello"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatReturnsAssistantReply(t *testing.T) {
	repo := &stubRepository{}
	repo.Create(context.Background(), &conversation.Conversation{
		PublicID: "conv_1", UserID: "user-a", Title: conversation.DefaultTitle, Messages: []conversation.Message{},
	})
	router := newTestRouter(repo, &stubGateway{reply: "hi there friend"}, "user-a")

	rec := postJSON(router, "/v1/chat", map[string]string{"chat_id": "conv_1", "prompt": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Reply struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"reply"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Data.Reply.Role != "assistant" || resp.Data.Reply.Content != "hi there friend" {
		t.Fatalf("unexpected reply: %+v", resp.Data.Reply)
	}
	if len(repo.conv.Messages) != 2 {
		t.Fatalf("expected both messages persisted, got %d", len(repo.conv.Messages))
	}
}

func TestRenameValidation(t *testing.T) {
	repo := &stubRepository{}
	router := newTestRouter(repo, &stubGateway{}, "user-a")

	rec := postJSON(router, "/v1/conversations/rename", map[string]string{"chat_id": "conv_1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", rec.Code)
	}
}

func TestRenameNoOpStillOK(t *testing.T) {
	repo := &stubRepository{}
	router := newTestRouter(repo, &stubGateway{}, "user-a")

	rec := postJSON(router, "/v1/conversations/rename", map[string]string{"chat_id": "conv_missing", "name": "anything"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a no-op rename, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Applied bool `json:"applied"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Data.Applied {
		t.Fatal("expected applied=false for a missing conversation")
	}
}
