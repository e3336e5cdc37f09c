package user

import (
	"context"
	"time"
)

// User mirrors an identity-provider account. The external subject id is the
// primary key; records are only ever mutated by provider lifecycle events.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRepository is the persistence boundary for identity mirror records.
type UserRepository interface {
	Upsert(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}
