package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// remoteServerColumns — список столбцов таблицы remote_servers.
const remoteServerColumns = `id, uid, name, url, token_secret, created_at, updated_at`

// RemoteServerRepository — доступ к таблице remote_servers.
type RemoteServerRepository interface {
	// Create регистрирует удалённый сервер.
	Create(ctx context.Context, s *model.RemoteServer) error
	// GetByID возвращает сервер по локальному id.
	GetByID(ctx context.Context, id int64) (*model.RemoteServer, error)
	// GetByUID возвращает сервер по глобальному идентификатору.
	GetByUID(ctx context.Context, uid string) (*model.RemoteServer, error)
}

// remoteServerRepo — реализация RemoteServerRepository.
type remoteServerRepo struct {
	db DBTX
}

// NewRemoteServerRepository создаёт репозиторий удалённых серверов.
func NewRemoteServerRepository(db DBTX) RemoteServerRepository {
	return &remoteServerRepo{db: db}
}

func (r *remoteServerRepo) Create(ctx context.Context, s *model.RemoteServer) error {
	query := `
		INSERT INTO remote_servers (uid, name, url, token_secret)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, s.UID, s.Name, s.URL, s.TokenSecret).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сервер с таким uid уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации удалённого сервера: %w", err)
	}
	return nil
}

func (r *remoteServerRepo) GetByID(ctx context.Context, id int64) (*model.RemoteServer, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *remoteServerRepo) GetByUID(ctx context.Context, uid string) (*model.RemoteServer, error) {
	return r.get(ctx, "uid = $1", uid)
}

func (r *remoteServerRepo) get(ctx context.Context, where string, arg any) (*model.RemoteServer, error) {
	query := fmt.Sprintf(`SELECT %s FROM remote_servers WHERE %s`, remoteServerColumns, where)

	s := &model.RemoteServer{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&s.ID, &s.UID, &s.Name, &s.URL, &s.TokenSecret, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения удалённого сервера: %w", err)
	}
	return s, nil
}
