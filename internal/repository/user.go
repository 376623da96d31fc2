package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// UserRepository — доступ к таблице users.
type UserRepository interface {
	// Create создаёт пользователя.
	Create(ctx context.Context, u *model.User) error
	// GetByUID возвращает пользователя по глобальному идентификатору.
	GetByUID(ctx context.Context, uid string) (*model.User, error)
	// GetByID возвращает пользователя по локальному идентификатору.
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (uid, username)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, u.UID, u.Username).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь с таким uid уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByUID(ctx context.Context, uid string) (*model.User, error) {
	return r.get(ctx, `uid = $1`, uid)
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *userRepo) get(ctx context.Context, where string, arg any) (*model.User, error) {
	query := fmt.Sprintf(`
		SELECT id, uid, username, created_at, updated_at
		FROM users
		WHERE %s`, where)

	u := &model.User{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.UID, &u.Username, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
