package user

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"chat-server/internal/utils/platformerrors"
)

// Identity provider lifecycle event types.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// LifecycleEvent is the provider payload after signature verification.
type LifecycleEvent struct {
	Type    string
	ID      string
	Email   string
	Name    string
	Picture string
}

// SyncService keeps the local user mirror in step with identity provider
// events. It holds no state of its own; each event is an independent sync.
type SyncService struct {
	repo UserRepository
	log  zerolog.Logger
}

func NewSyncService(repo UserRepository, log zerolog.Logger) *SyncService {
	return &SyncService{
		repo: repo,
		log:  log.With().Str("component", "user-sync").Logger(),
	}
}

// Apply processes one lifecycle event. Unknown event types are logged and
// acknowledged so the provider does not redeliver them.
func (s *SyncService) Apply(ctx context.Context, event LifecycleEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "event is missing a user id", nil, "2a8e5c1f-9b4d-4e7a-8c3f-6d1b0a9e5c27")
	}

	switch event.Type {
	case EventUserCreated, EventUserUpdated:
		u := &User{
			ID:      event.ID,
			Email:   event.Email,
			Name:    event.Name,
			Picture: event.Picture,
		}
		if err := s.repo.Upsert(ctx, u); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to sync user record")
		}
		s.log.Info().Str("user_id", event.ID).Str("event", event.Type).Msg("user record synced")
	case EventUserDeleted:
		if err := s.repo.Delete(ctx, event.ID); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete user record")
		}
		s.log.Info().Str("user_id", event.ID).Msg("user record deleted")
	default:
		s.log.Warn().Str("event", event.Type).Msg("unhandled identity event type")
	}
	return nil
}
