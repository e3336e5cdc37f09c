package conversationrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"chat-server/internal/domain/conversation"
	"chat-server/internal/infrastructure/database"
	"chat-server/internal/infrastructure/database/dbschema"
	"chat-server/internal/utils/platformerrors"
)

// ConversationGormRepository persists conversations through the shared
// connection cache; every operation acquires the handle first, so a store
// outage surfaces uniformly and a later call can retry the connection.
type ConversationGormRepository struct {
	cache *database.ConnectionCache
}

var _ conversation.ConversationRepository = (*ConversationGormRepository)(nil)

func NewConversationGormRepository(cache *database.ConnectionCache) conversation.ConversationRepository {
	return &ConversationGormRepository{cache: cache}
}

func (repo *ConversationGormRepository) db(ctx context.Context) (*gorm.DB, error) {
	db, err := repo.cache.Acquire(ctx)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "store connection unavailable", err, "e7c2a9d4-3f18-4b6a-9e05-8c7d1f2b4a63")
	}
	return db.WithContext(ctx), nil
}

// Create implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) Create(ctx context.Context, conv *conversation.Conversation) error {
	db, err := repo.db(ctx)
	if err != nil {
		return err
	}

	model, err := dbschema.NewSchemaConversation(conv)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "failed to encode message log", err, "5b1e8f3a-6c2d-4970-a84e-9d0c3b7f1e25")
	}
	if err := db.Create(model).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create conversation", err, "1f4a7c2e-9b5d-4380-8e6a-0d3c5f8b2a74")
	}

	conv.ID = model.ID
	conv.CreatedAt = model.CreatedAt
	conv.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByFilter implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByFilter(ctx context.Context, filter conversation.ConversationFilter) ([]*conversation.Conversation, error) {
	db, err := repo.db(ctx)
	if err != nil {
		return nil, err
	}

	sql := db.Model(&dbschema.Conversation{})
	if filter.ID != nil {
		sql = sql.Where("id = ?", *filter.ID)
	}
	if filter.PublicID != nil {
		sql = sql.Where("public_id = ?", *filter.PublicID)
	}
	if filter.UserID != nil {
		sql = sql.Where("user_id = ?", *filter.UserID)
	}

	var rows []dbschema.Conversation
	if err := sql.Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find conversations", err, "8d2b5f7a-1c4e-4693-b05d-7e9a3c1f6b48")
	}

	result := make([]*conversation.Conversation, 0, len(rows))
	for i := range rows {
		conv, err := rows[i].EtoD()
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "failed to decode message log", err, "3c6e9a1d-5f2b-4874-9b0e-2a7d4c8f1e36")
		}
		result = append(result, conv)
	}
	return result, nil
}

// FindByPublicIDAndUserID implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByPublicIDAndUserID(ctx context.Context, publicID, userID string) (*conversation.Conversation, error) {
	db, err := repo.db(ctx)
	if err != nil {
		return nil, err
	}

	var row dbschema.Conversation
	err = db.Where("public_id = ? AND user_id = ?", publicID, userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", err, "6a9c2e5f-8b1d-4746-a93c-5e0f7d2b8c19")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find conversation", err, "0e3f6b9c-2d5a-4817-b64f-8c1a9e4d7f52")
	}
	return row.EtoD()
}

// UpdateTitle implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) UpdateTitle(ctx context.Context, publicID, userID, title string) (bool, error) {
	db, err := repo.db(ctx)
	if err != nil {
		return false, err
	}

	res := db.Model(&dbschema.Conversation{}).
		Where("public_id = ? AND user_id = ?", publicID, userID).
		Update("title", title)
	if res.Error != nil {
		return false, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to rename conversation", res.Error, "b5d8f1a3-4e7c-4092-8a5e-1c6b9f3d2e80")
	}
	return res.RowsAffected > 0, nil
}

// Delete implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) Delete(ctx context.Context, publicID, userID string) (bool, error) {
	db, err := repo.db(ctx)
	if err != nil {
		return false, err
	}

	res := db.Where("public_id = ? AND user_id = ?", publicID, userID).Delete(&dbschema.Conversation{})
	if res.Error != nil {
		return false, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete conversation", res.Error, "7f2a5d8b-9c3e-4651-b07a-4d1e8f6c3a95")
	}
	return res.RowsAffected > 0, nil
}

// ReplaceMessages implements conversation.ConversationRepository. The whole
// message document is written in one row update, so either both messages of
// an exchange land in the store or neither does.
func (repo *ConversationGormRepository) ReplaceMessages(ctx context.Context, conv *conversation.Conversation) error {
	db, err := repo.db(ctx)
	if err != nil {
		return err
	}

	model, err := dbschema.NewSchemaConversation(conv)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "failed to encode message log", err, "9c4e7a2f-6b1d-4538-8f3c-0a5d2e9b7c41")
	}

	now := time.Now().UTC()
	res := db.Model(&dbschema.Conversation{}).
		Where("public_id = ? AND user_id = ?", conv.PublicID, conv.UserID).
		Updates(map[string]interface{}{
			"messages":   model.Messages,
			"updated_at": now,
		})
	if res.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to persist message log", res.Error, "2e8b1f5c-7d4a-4906-9c2e-6f3a8d1b5e70")
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "d1a4c7e9-3b6f-4285-a90c-8e5f2d7b4c16")
	}
	conv.UpdatedAt = now
	return nil
}

// DeleteEmptyOlderThan implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) DeleteEmptyOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := repo.db(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Where("messages = '[]'::jsonb AND updated_at < ?", cutoff).Delete(&dbschema.Conversation{})
	if res.Error != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to prune conversations", res.Error, "a6e3b9d1-5c8f-4724-b16d-9f0c4a7e2d83")
	}
	return res.RowsAffected, nil
}
