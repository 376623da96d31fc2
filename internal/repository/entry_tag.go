package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// EntryTagRepository — доступ к таблице entry_tags.
type EntryTagRepository interface {
	// ListByEntry возвращает все теги записи в порядке ключа.
	ListByEntry(ctx context.Context, entryID int64) ([]*model.EntryTag, error)
	// BulkUpsert вставляет или обновляет теги по ключу (entry, key)
	// одним multi-row запросом. Пустой список — no-op.
	BulkUpsert(ctx context.Context, tags []*model.EntryTag) error
	// DeleteKeysNotIn удаляет теги записи, ключей которых нет в keys.
	// Пустой keys удаляет все теги записи. Возвращает число удалённых.
	DeleteKeysNotIn(ctx context.Context, entryID int64, keys []string) (int, error)
}

// entryTagRepo — реализация EntryTagRepository.
type entryTagRepo struct {
	db DBTX
}

// NewEntryTagRepository создаёт репозиторий тегов.
func NewEntryTagRepository(db DBTX) EntryTagRepository {
	return &entryTagRepo{db: db}
}

func (r *entryTagRepo) ListByEntry(ctx context.Context, entryID int64) ([]*model.EntryTag, error) {
	query := `
		SELECT id, entry_id, tag_key, tag_value, created_at, updated_at
		FROM entry_tags
		WHERE entry_id = $1
		ORDER BY tag_key`

	rows, err := r.db.Query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тегов записи: %w", err)
	}
	defer rows.Close()

	var result []*model.EntryTag
	for rows.Next() {
		t := &model.EntryTag{}
		if err := rows.Scan(&t.ID, &t.EntryID, &t.Key, &t.Value, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования тега: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *entryTagRepo) BulkUpsert(ctx context.Context, tags []*model.EntryTag) error {
	if len(tags) == 0 {
		return nil
	}

	b := &valuesBuilder{}
	for _, t := range tags {
		b.AddRow(t.EntryID, t.Key, t.Value, t.CreatedAt, t.UpdatedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO entry_tags (entry_id, tag_key, tag_value, created_at, updated_at)
		%s
		ON CONFLICT (entry_id, tag_key) DO UPDATE SET
			tag_value = EXCLUDED.tag_value,
			updated_at = EXCLUDED.updated_at`, b.Values())

	if _, err := r.db.Exec(ctx, query, b.Args()...); err != nil {
		return fmt.Errorf("ошибка bulk upsert тегов: %w", err)
	}
	return nil
}

func (r *entryTagRepo) DeleteKeysNotIn(ctx context.Context, entryID int64, keys []string) (int, error) {
	query := `
		DELETE FROM entry_tags
		WHERE entry_id = $1
			AND tag_key != ALL($2)`

	tag, err := r.db.Exec(ctx, query, entryID, keys)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления лишних тегов: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
