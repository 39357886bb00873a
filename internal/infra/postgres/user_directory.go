package postgres

import (
	"context"
	"errors"
	"fmt"

	"live-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// UserDirectory reads users written by the account service.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) FindUser(ctx context.Context, userID string) (domain.Identity, error) {
	var (
		name string
		role string
	)
	err := d.pool.QueryRow(ctx, `SELECT name, role FROM users WHERE id=$1`, userID).Scan(&name, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, domain.ErrUserNotFound
		}
		return domain.Identity{}, fmt.Errorf("find user: %w", err)
	}
	return domain.Identity{ID: userID, DisplayName: name, Role: domain.Role(role)}, nil
}

// SaveUser upserts a user; used by seeding and tests.
func (d *UserDirectory) SaveUser(ctx context.Context, user domain.Identity) error {
	_, err := d.pool.Exec(ctx, `INSERT INTO users (id, name, role) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, role=EXCLUDED.role`,
		user.ID, user.DisplayName, string(user.Role))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
