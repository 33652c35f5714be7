package sqlite

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

// Touch records the identity's current display name and last-seen time.
func (r *UserRepo) Touch(ctx context.Context, u *domain.User) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			last_seen = excluded.last_seen
	`, u.ID, u.Name, toUnix(u.LastSeen)); err != nil {
		return domain.StorageError("upsert user", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var (
		u        domain.User
		lastSeen int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, last_seen FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.StorageError("get user", err)
	}
	u.LastSeen = fromUnix(lastSeen)
	return &u, nil
}
