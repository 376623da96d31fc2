package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// CustomFieldValueWithUID — значение поля вместе с глобальным
// идентификатором определения. Используется при гидрации payload:
// на провод уходит uid поля, а не локальный id.
type CustomFieldValueWithUID struct {
	model.CustomFieldEntry
	// FieldUID — uid определения поля
	FieldUID string
}

// CustomFieldRepository — доступ к таблицам custom_fields и custom_field_entries.
type CustomFieldRepository interface {
	// CreateField создаёт определение поля.
	CreateField(ctx context.Context, f *model.CustomField) error
	// ResolveFieldsByUID возвращает определения полей журнала по их uid.
	// Ключ результата — uid; отсутствующие uid просто не попадают в map.
	ResolveFieldsByUID(ctx context.Context, journalID int64, uids []string) (map[string]*model.CustomField, error)
	// ListValuesByEntry возвращает значения полей записи вместе с uid определений.
	ListValuesByEntry(ctx context.Context, entryID int64) ([]*CustomFieldValueWithUID, error)
	// BulkUpsertValues вставляет или обновляет значения по ключу
	// (entry, custom_field) одним multi-row запросом. Пустой список — no-op.
	BulkUpsertValues(ctx context.Context, values []*model.CustomFieldEntry) error
	// DeleteValuesNotIn удаляет значения полей записи, id определений
	// которых нет в fieldIDs. Возвращает число удалённых.
	DeleteValuesNotIn(ctx context.Context, entryID int64, fieldIDs []int64) (int, error)
}

// customFieldRepo — реализация CustomFieldRepository.
type customFieldRepo struct {
	db DBTX
}

// NewCustomFieldRepository создаёт репозиторий пользовательских полей.
func NewCustomFieldRepository(db DBTX) CustomFieldRepository {
	return &customFieldRepo{db: db}
}

func (r *customFieldRepo) CreateField(ctx context.Context, f *model.CustomField) error {
	query := `
		INSERT INTO custom_fields (uid, journal_id, name, field_type, number_min, number_max)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.UID, f.JournalID, f.Name, string(f.Type), f.NumberMin, f.NumberMax,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: поле с таким uid уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользовательского поля: %w", err)
	}
	return nil
}

func (r *customFieldRepo) ResolveFieldsByUID(ctx context.Context, journalID int64, uids []string) (map[string]*model.CustomField, error) {
	result := make(map[string]*model.CustomField, len(uids))
	if len(uids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, uid, journal_id, name, field_type, number_min, number_max, created_at, updated_at
		FROM custom_fields
		WHERE journal_id = $1 AND uid = ANY($2)`

	rows, err := r.db.Query(ctx, query, journalID, uids)
	if err != nil {
		return nil, fmt.Errorf("ошибка резолвинга полей по uid: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f := &model.CustomField{}
		var fieldType string
		if err := rows.Scan(
			&f.ID, &f.UID, &f.JournalID, &f.Name, &fieldType,
			&f.NumberMin, &f.NumberMax, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования поля: %w", err)
		}
		f.Type = model.CustomFieldType(fieldType)
		result[f.UID] = f
	}
	return result, rows.Err()
}

func (r *customFieldRepo) ListValuesByEntry(ctx context.Context, entryID int64) ([]*CustomFieldValueWithUID, error) {
	query := `
		SELECT cfe.id, cfe.entry_id, cfe.custom_field_id,
			cfe.value_text, cfe.value_number, cfe.value_boolean, cfe.value_date,
			cfe.created_at, cfe.updated_at, cf.uid
		FROM custom_field_entries cfe
		JOIN custom_fields cf ON cf.id = cfe.custom_field_id
		WHERE cfe.entry_id = $1
		ORDER BY cfe.custom_field_id`

	rows, err := r.db.Query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения значений полей записи: %w", err)
	}
	defer rows.Close()

	var result []*CustomFieldValueWithUID
	for rows.Next() {
		v := &CustomFieldValueWithUID{}
		if err := rows.Scan(
			&v.ID, &v.EntryID, &v.CustomFieldID,
			&v.Value.Text, &v.Value.Number, &v.Value.Boolean, &v.Value.Date,
			&v.CreatedAt, &v.UpdatedAt, &v.FieldUID,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования значения поля: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *customFieldRepo) BulkUpsertValues(ctx context.Context, values []*model.CustomFieldEntry) error {
	if len(values) == 0 {
		return nil
	}

	b := &valuesBuilder{}
	for _, v := range values {
		b.AddRow(v.EntryID, v.CustomFieldID,
			v.Value.Text, v.Value.Number, v.Value.Boolean, v.Value.Date,
			v.CreatedAt, v.UpdatedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO custom_field_entries
			(entry_id, custom_field_id, value_text, value_number, value_boolean, value_date, created_at, updated_at)
		%s
		ON CONFLICT (entry_id, custom_field_id) DO UPDATE SET
			value_text = EXCLUDED.value_text,
			value_number = EXCLUDED.value_number,
			value_boolean = EXCLUDED.value_boolean,
			value_date = EXCLUDED.value_date,
			updated_at = EXCLUDED.updated_at`, b.Values())

	if _, err := r.db.Exec(ctx, query, b.Args()...); err != nil {
		return fmt.Errorf("ошибка bulk upsert значений полей: %w", err)
	}
	return nil
}

func (r *customFieldRepo) DeleteValuesNotIn(ctx context.Context, entryID int64, fieldIDs []int64) (int, error) {
	query := `
		DELETE FROM custom_field_entries
		WHERE entry_id = $1
			AND custom_field_id != ALL($2)`

	tag, err := r.db.Exec(ctx, query, entryID, fieldIDs)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления лишних значений полей: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
