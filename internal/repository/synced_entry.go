package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// SyncedEntryRepository — доступ к журналу статусов синхронизации
// (таблица synced_entries).
type SyncedEntryRepository interface {
	// BulkUpsertStatus записывает статус синхронизации для набора записей
	// по одному удалённому серверу. Повторная запись для пары
	// (entry_id, remote_server_id) перезаписывает статус и synced_at.
	// Пустой набор entryIDs — no-op.
	BulkUpsertStatus(ctx context.Context, entryIDs []int64, remoteServerID int64, status model.SyncStatus, syncedAt time.Time) error
	// Get возвращает статус синхронизации записи для сервера.
	Get(ctx context.Context, entryID, remoteServerID int64) (*model.SyncedEntry, error)
}

// syncedEntryRepo — реализация SyncedEntryRepository.
type syncedEntryRepo struct {
	db DBTX
}

// NewSyncedEntryRepository создаёт репозиторий статусов синхронизации.
func NewSyncedEntryRepository(db DBTX) SyncedEntryRepository {
	return &syncedEntryRepo{db: db}
}

func (r *syncedEntryRepo) BulkUpsertStatus(ctx context.Context, entryIDs []int64, remoteServerID int64, status model.SyncStatus, syncedAt time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}

	b := &valuesBuilder{}
	for _, id := range entryIDs {
		b.AddRow(id, remoteServerID, status.Int16(), syncedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO synced_entries (entry_id, remote_server_id, status, synced_at)
		%s
		ON CONFLICT (entry_id, remote_server_id) DO UPDATE SET
			status = EXCLUDED.status,
			synced_at = EXCLUDED.synced_at`, b.Values())

	if _, err := r.db.Exec(ctx, query, b.Args()...); err != nil {
		return fmt.Errorf("ошибка записи статусов синхронизации: %w", err)
	}
	return nil
}

func (r *syncedEntryRepo) Get(ctx context.Context, entryID, remoteServerID int64) (*model.SyncedEntry, error) {
	query := `
		SELECT id, entry_id, remote_server_id, status, synced_at
		FROM synced_entries
		WHERE entry_id = $1 AND remote_server_id = $2`

	se := &model.SyncedEntry{}
	var status int16
	err := r.db.QueryRow(ctx, query, entryID, remoteServerID).Scan(
		&se.ID, &se.EntryID, &se.RemoteServerID, &status, &se.SyncedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения статуса синхронизации: %w", err)
	}

	st, err := model.SyncStatusFromInt16(status)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения статуса синхронизации: %w", err)
	}
	se.Status = st
	return se, nil
}
