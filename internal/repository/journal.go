package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// journalColumns — список столбцов таблицы journals для SELECT-запросов.
const journalColumns = `id, uid, user_id, title, remote_server_id, created_at, updated_at`

// JournalRepository — доступ к таблице journals.
type JournalRepository interface {
	// Create создаёт журнал.
	Create(ctx context.Context, j *model.Journal) error
	// GetByID возвращает журнал по локальному id.
	GetByID(ctx context.Context, id int64) (*model.Journal, error)
	// GetByUID возвращает журнал по глобальному идентификатору.
	GetByUID(ctx context.Context, uid string) (*model.Journal, error)
}

// journalRepo — реализация JournalRepository.
type journalRepo struct {
	db DBTX
}

// NewJournalRepository создаёт репозиторий журналов.
func NewJournalRepository(db DBTX) JournalRepository {
	return &journalRepo{db: db}
}

func (r *journalRepo) Create(ctx context.Context, j *model.Journal) error {
	query := `
		INSERT INTO journals (uid, user_id, title, remote_server_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, j.UID, j.UserID, j.Title, j.RemoteServerID).
		Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: журнал с таким uid уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания журнала: %w", err)
	}
	return nil
}

func (r *journalRepo) GetByID(ctx context.Context, id int64) (*model.Journal, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *journalRepo) GetByUID(ctx context.Context, uid string) (*model.Journal, error) {
	return r.get(ctx, "uid = $1", uid)
}

func (r *journalRepo) get(ctx context.Context, where string, arg any) (*model.Journal, error) {
	query := fmt.Sprintf(`SELECT %s FROM journals WHERE %s`, journalColumns, where)

	j := &model.Journal{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&j.ID, &j.UID, &j.UserID, &j.Title, &j.RemoteServerID, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	return j, nil
}
