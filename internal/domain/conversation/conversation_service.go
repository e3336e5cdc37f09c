package conversation

import (
	"context"
	"strings"
	"time"

	"chat-server/internal/utils/idgen"
	"chat-server/internal/utils/platformerrors"
)

// CompletionGateway forwards a single prompt to the external completion API
// and returns the assistant reply text. One external call per invocation; no
// retry, no streaming.
type CompletionGateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ConversationService handles business logic for conversations. Every
// operation requires an authenticated user id and refuses to touch the store
// without one.
type ConversationService struct {
	repo    ConversationRepository
	gateway CompletionGateway
}

// NewConversationService creates a new conversation service
func NewConversationService(repo ConversationRepository, gateway CompletionGateway) *ConversationService {
	return &ConversationService{
		repo:    repo,
		gateway: gateway,
	}
}

func requireUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnauthorized, "user not authenticated", nil, "4f6f0f0a-8c3e-4e2b-9a71-5d2c8e1b6a90")
	}
	return nil
}

// Create inserts a new empty conversation owned by userID with the default title.
func (s *ConversationService) Create(ctx context.Context, userID string) (*Conversation, error) {
	if err := requireUser(ctx, userID); err != nil {
		return nil, err
	}

	publicID, err := idgen.GenerateSecureID("conv", 16)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to generate conversation ID")
	}

	conv := &Conversation{
		PublicID: publicID,
		UserID:   userID,
		Title:    DefaultTitle,
		Messages: []Message{},
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create conversation")
	}
	return conv, nil
}

// List fetches all conversations owned by userID. The store does not
// guarantee an order; callers sort by updated-at themselves.
func (s *ConversationService) List(ctx context.Context, userID string) ([]*Conversation, error) {
	if err := requireUser(ctx, userID); err != nil {
		return nil, err
	}

	conversations, err := s.repo.FindByFilter(ctx, ConversationFilter{UserID: &userID})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list conversations")
	}
	return conversations, nil
}

// Rename updates the title of the conversation owned by userID. A missing or
// foreign conversation is a no-op, not an error.
func (s *ConversationService) Rename(ctx context.Context, userID, publicID, title string) (bool, error) {
	if err := requireUser(ctx, userID); err != nil {
		return false, err
	}
	if strings.TrimSpace(title) == "" {
		return false, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "conversation name is required", nil, "9d0a2b7c-1e5f-4b8a-bd36-6c4e8f2a1d59")
	}

	updated, err := s.repo.UpdateTitle(ctx, publicID, userID, title)
	if err != nil {
		return false, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to rename conversation")
	}
	return updated, nil
}

// Delete removes the conversation owned by userID. A missing or foreign
// conversation is a no-op, not an error.
func (s *ConversationService) Delete(ctx context.Context, userID, publicID string) (bool, error) {
	if err := requireUser(ctx, userID); err != nil {
		return false, err
	}

	deleted, err := s.repo.Delete(ctx, publicID, userID)
	if err != nil {
		return false, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete conversation")
	}
	return deleted, nil
}

// AppendAndComplete appends the user prompt to the conversation, obtains the
// assistant reply from the completion gateway, and persists both messages in
// one store write. A gateway failure therefore leaves the stored conversation
// unchanged; the caller is expected to surface the failure unmodified and
// must not retry on the user's behalf.
func (s *ConversationService) AppendAndComplete(ctx context.Context, userID, publicID, prompt string) (*Message, error) {
	if err := requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "prompt is required", nil, "b3c1d8e4-7a2f-4c96-8e0d-1f5a9b3c7e62")
	}

	conv, err := s.repo.FindByPublicIDAndUserID(ctx, publicID, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "conversation not found")
	}

	userMessage := Message{
		Role:      MessageRoleUser,
		Content:   prompt,
		Timestamp: time.Now().UTC(),
	}
	conv.Messages = append(conv.Messages, userMessage)

	reply, err := s.gateway.Complete(ctx, prompt)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "completion gateway call failed")
	}

	assistantMessage := Message{
		Role:      MessageRoleAssistant,
		Content:   reply,
		Timestamp: time.Now().UTC(),
	}
	conv.Messages = append(conv.Messages, assistantMessage)

	if err := s.repo.ReplaceMessages(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to persist exchange")
	}

	return &assistantMessage, nil
}
