package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// entryColumns — список столбцов таблицы entries для SELECT-запросов.
const entryColumns = `id, uid, journal_id, user_id, entry_date, title, contents, created_at, updated_at`

// EntryRepository — доступ к таблице entries.
type EntryRepository interface {
	// Create создаёт запись.
	Create(ctx context.Context, e *model.Entry) error
	// GetByUID возвращает запись по глобальному идентификатору.
	GetByUID(ctx context.Context, uid string) (*model.Entry, error)
	// UpsertByUID вставляет или обновляет запись по uid.
	// Метки created_at/updated_at берутся из аргумента (время
	// сервера-источника), а не из now(). Возвращает локальный id.
	UpsertByUID(ctx context.Context, e *model.Entry) error
	// ListSyncCandidates возвращает пакет записей-кандидатов push-синхронизации:
	// записи журнала с id > afterID, изменённые строго до horizon и не
	// отмеченные Synced для данного сервера после этого изменения.
	// Порядок — по возрастанию id, не более limit штук.
	ListSyncCandidates(ctx context.Context, journalID, serverID, afterID int64, horizon time.Time, limit int) ([]*model.Entry, error)
}

// entryRepo — реализация EntryRepository.
type entryRepo struct {
	db DBTX
}

// NewEntryRepository создаёт репозиторий записей.
func NewEntryRepository(db DBTX) EntryRepository {
	return &entryRepo{db: db}
}

func (r *entryRepo) Create(ctx context.Context, e *model.Entry) error {
	query := `
		INSERT INTO entries (uid, journal_id, user_id, entry_date, title, contents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		e.UID, e.JournalID, e.UserID, e.EntryDate, e.Title, e.Contents,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запись с таким uid уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *entryRepo) GetByUID(ctx context.Context, uid string) (*model.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE uid = $1`, entryColumns)

	e := &model.Entry{}
	err := r.db.QueryRow(ctx, query, uid).Scan(
		&e.ID, &e.UID, &e.JournalID, &e.UserID, &e.EntryDate,
		&e.Title, &e.Contents, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return e, nil
}

// UpsertByUID — идемпотентная точка входа приёма синхронизации:
// повторная доставка того же payload перезаписывает те же значения.
func (r *entryRepo) UpsertByUID(ctx context.Context, e *model.Entry) error {
	query := `
		INSERT INTO entries (uid, journal_id, user_id, entry_date, title, contents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (uid) DO UPDATE SET
			entry_date = EXCLUDED.entry_date,
			title = EXCLUDED.title,
			contents = EXCLUDED.contents,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		e.UID, e.JournalID, e.UserID, e.EntryDate, e.Title, e.Contents,
		e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("ошибка upsert записи %s: %w", e.UID, err)
	}
	return nil
}

// ListSyncCandidates — источник пакетов PushOrchestrator-а.
// Горизонт фиксируется один раз на запуск: записи, изменённые во
// время запуска, не попадают в его пакеты и дождутся следующего.
func (r *entryRepo) ListSyncCandidates(ctx context.Context, journalID, serverID, afterID int64, horizon time.Time, limit int) ([]*model.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM entries e
		WHERE e.journal_id = $1
			AND e.id > $2
			AND GREATEST(e.created_at, e.updated_at) < $3
			AND NOT EXISTS (
				SELECT 1 FROM synced_entries se
				WHERE se.entry_id = e.id
					AND se.remote_server_id = $4
					AND se.status = $5
					AND se.synced_at >= GREATEST(e.created_at, e.updated_at)
			)
		ORDER BY e.id
		LIMIT $6`, entryColumns)

	rows, err := r.db.Query(ctx, query,
		journalID, afterID, horizon, serverID, model.SyncStatusSynced.Int16(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки кандидатов синхронизации: %w", err)
	}
	defer rows.Close()

	var result []*model.Entry
	for rows.Next() {
		e := &model.Entry{}
		if err := rows.Scan(
			&e.ID, &e.UID, &e.JournalID, &e.UserID, &e.EntryDate,
			&e.Title, &e.Contents, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования кандидата: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
