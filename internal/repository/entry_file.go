package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// entryFileColumns — список столбцов таблицы entry_files.
const entryFileColumns = `id, uid, entry_id, name, mime_type, mime_subtype, mime_param,
	size, status, storage_path, created_at, updated_at`

// EntryFileRepository — доступ к таблице entry_files.
type EntryFileRepository interface {
	// Create создаёт запись о файле.
	Create(ctx context.Context, f *model.EntryFile) error
	// GetByUID возвращает файл по глобальному идентификатору.
	GetByUID(ctx context.Context, uid string) (*model.EntryFile, error)
	// ListByEntry возвращает все файлы записи (включая requested).
	ListByEntry(ctx context.Context, entryID int64) ([]*model.EntryFile, error)
	// ListReceivedByEntry возвращает только received-файлы записи.
	// Источник гидрации payload: requested-файлы не синхронизируются.
	ListReceivedByEntry(ctx context.Context, entryID int64) ([]*model.EntryFile, error)
	// UpsertByUID вставляет или обновляет метаданные файла по uid.
	// Не трогает status и storage_path существующей строки: содержимое
	// передаётся отдельно, upsert метаданных его не отменяет.
	UpsertByUID(ctx context.Context, f *model.EntryFile) error
	// DeleteNotIn удаляет файлы записи, uid которых нет в uids.
	// Возвращает storage_path удалённых строк — вызывающая сторона
	// обязана пометить их содержимое к удалению с диска.
	DeleteNotIn(ctx context.Context, entryID int64, uids []string) ([]string, error)
	// MarkReceived переводит файл в состояние received и сохраняет
	// путь и размер загруженного содержимого.
	MarkReceived(ctx context.Context, uid, storagePath string, size int64, at time.Time) error
}

// entryFileRepo — реализация EntryFileRepository.
type entryFileRepo struct {
	db DBTX
}

// NewEntryFileRepository создаёт репозиторий файлов.
func NewEntryFileRepository(db DBTX) EntryFileRepository {
	return &entryFileRepo{db: db}
}

func (r *entryFileRepo) Create(ctx context.Context, f *model.EntryFile) error {
	query := `
		INSERT INTO entry_files (uid, entry_id, name, mime_type, mime_subtype, mime_param, size, status, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.UID, f.EntryID, f.Name, f.MimeType, f.MimeSubtype, f.MimeParam,
		f.Size, string(f.Status), f.StoragePath,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким uid уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	return nil
}

func (r *entryFileRepo) GetByUID(ctx context.Context, uid string) (*model.EntryFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM entry_files WHERE uid = $1`, entryFileColumns)

	f, err := scanEntryFile(r.db.QueryRow(ctx, query, uid))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *entryFileRepo) ListByEntry(ctx context.Context, entryID int64) ([]*model.EntryFile, error) {
	return r.list(ctx, `entry_id = $1`, entryID)
}

func (r *entryFileRepo) ListReceivedByEntry(ctx context.Context, entryID int64) ([]*model.EntryFile, error) {
	return r.list(ctx, `entry_id = $1 AND status = 'received'`, entryID)
}

func (r *entryFileRepo) list(ctx context.Context, where string, arg any) ([]*model.EntryFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM entry_files WHERE %s ORDER BY id`, entryFileColumns, where)

	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов записи: %w", err)
	}
	defer rows.Close()

	var result []*model.EntryFile
	for rows.Next() {
		f, err := scanEntryFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *entryFileRepo) UpsertByUID(ctx context.Context, f *model.EntryFile) error {
	query := `
		INSERT INTO entry_files (uid, entry_id, name, mime_type, mime_subtype, mime_param, size, status, storage_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (uid) DO UPDATE SET
			name = EXCLUDED.name,
			mime_type = EXCLUDED.mime_type,
			mime_subtype = EXCLUDED.mime_subtype,
			mime_param = EXCLUDED.mime_param,
			size = EXCLUDED.size,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		f.UID, f.EntryID, f.Name, f.MimeType, f.MimeSubtype, f.MimeParam,
		f.Size, string(f.Status), f.StoragePath, f.CreatedAt, f.UpdatedAt,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("ошибка upsert файла %s: %w", f.UID, err)
	}
	return nil
}

func (r *entryFileRepo) DeleteNotIn(ctx context.Context, entryID int64, uids []string) ([]string, error) {
	query := `
		DELETE FROM entry_files
		WHERE entry_id = $1
			AND uid != ALL($2)
		RETURNING storage_path`

	rows, err := r.db.Query(ctx, query, entryID, uids)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления лишних файлов: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("ошибка сканирования storage_path: %w", err)
		}
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, rows.Err()
}

func (r *entryFileRepo) MarkReceived(ctx context.Context, uid, storagePath string, size int64, at time.Time) error {
	query := `
		UPDATE entry_files
		SET status = 'received', storage_path = $2, size = $3, updated_at = $4
		WHERE uid = $1`

	tag, err := r.db.Exec(ctx, query, uid, storagePath, size, at)
	if err != nil {
		return fmt.Errorf("ошибка перевода файла в received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows для scanEntryFile.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntryFile сканирует строку entry_files в модель.
func scanEntryFile(row rowScanner) (*model.EntryFile, error) {
	f := &model.EntryFile{}
	var status string
	err := row.Scan(
		&f.ID, &f.UID, &f.EntryID, &f.Name, &f.MimeType, &f.MimeSubtype, &f.MimeParam,
		&f.Size, &status, &f.StoragePath, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Status = model.FileStatus(status)
	return f, nil
}
