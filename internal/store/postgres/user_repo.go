package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserDirectory = (*UserRepo)(nil)

func (r *UserRepo) Touch(ctx context.Context, u *domain.User) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			last_seen    = EXCLUDED.last_seen
	`, u.ID, u.Name, u.LastSeen)
	if err != nil {
		return domain.StorageError("upsert user", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, last_seen FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.StorageError("get user", err)
	}
	return u, nil
}
