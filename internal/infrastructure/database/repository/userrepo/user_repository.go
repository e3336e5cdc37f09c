package userrepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chat-server/internal/domain/user"
	"chat-server/internal/infrastructure/database"
	"chat-server/internal/infrastructure/database/dbschema"
	"chat-server/internal/utils/platformerrors"
)

// UserGormRepository persists identity mirror records.
type UserGormRepository struct {
	cache *database.ConnectionCache
}

var _ user.UserRepository = (*UserGormRepository)(nil)

func NewUserGormRepository(cache *database.ConnectionCache) user.UserRepository {
	return &UserGormRepository{cache: cache}
}

func (repo *UserGormRepository) db(ctx context.Context) (*gorm.DB, error) {
	db, err := repo.cache.Acquire(ctx)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "store connection unavailable", err, "4b8d1f6a-2c9e-4573-8e0b-7a3f5c1d9e62")
	}
	return db.WithContext(ctx), nil
}

// Upsert implements user.UserRepository. Created and updated provider events
// both land here; the external id decides which row is touched.
func (repo *UserGormRepository) Upsert(ctx context.Context, u *user.User) error {
	db, err := repo.db(ctx)
	if err != nil {
		return err
	}

	model := dbschema.NewSchemaUser(u)
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "picture", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to upsert user", err, "8f1c4a7d-6e2b-4950-b38f-5d9a0c3e7b14")
	}
	return nil
}

// Delete implements user.UserRepository. Deleting a user that is already
// absent is not an error; provider deliveries may arrive more than once.
func (repo *UserGormRepository) Delete(ctx context.Context, id string) error {
	db, err := repo.db(ctx)
	if err != nil {
		return err
	}

	if err := db.Where("id = ?", id).Delete(&dbschema.User{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete user", err, "0d7f3b8e-4a1c-4695-8c2a-9e5b6d0f3c74")
	}
	return nil
}
