// Пакет wire — формат передачи записей между серверами.
// Payload содержит только UID-идентификаторы; локальные числовые id
// никогда не попадают на провод. Содержимое файлов передаётся
// отдельным запросом, в payload — только метаданные.
package wire

import (
	"fmt"
	"time"
)

// EntrySyncPayload — одна запись журнала в форме для передачи между
// серверами вместе с полными наборами тегов, значений
// пользовательских полей и метаданных файлов.
type EntrySyncPayload struct {
	// UID — глобальный идентификатор записи
	UID string `json:"uid"`
	// JournalUID — глобальный идентификатор журнала
	JournalUID string `json:"journal_uid"`
	// UserUID — глобальный идентификатор автора
	UserUID string `json:"user_uid"`
	// Date — дата записи (YYYY-MM-DD)
	Date string `json:"date"`
	// Title — заголовок
	Title string `json:"title"`
	// Contents — текст записи
	Contents string `json:"contents"`
	// CreatedAt — время создания на сервере-источнике
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего обновления на сервере-источнике
	UpdatedAt time.Time `json:"updated_at"`
	// Tags — полный набор тегов записи
	Tags []EntryTagSync `json:"tags"`
	// CustomFields — полный набор значений пользовательских полей
	CustomFields []EntryCustomFieldSync `json:"custom_fields"`
	// Files — полный набор метаданных received-файлов
	Files []EntryFileSync `json:"files"`
}

// EntryTagSync — тег записи на проводе.
type EntryTagSync struct {
	// Key — ключ тега, уникален в пределах записи
	Key string `json:"key"`
	// Value — необязательное значение
	Value *string `json:"value,omitempty"`
	// CreatedAt — время создания на сервере-источнике
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryCustomFieldSync — значение пользовательского поля на проводе.
// Заполнен ровно один из вариантов значения.
type EntryCustomFieldSync struct {
	// CustomFieldUID — глобальный идентификатор определения поля
	CustomFieldUID string `json:"custom_field_uid"`
	// TextValue — значение text-поля
	TextValue *string `json:"text_value,omitempty"`
	// NumberValue — значение number-поля
	NumberValue *float64 `json:"number_value,omitempty"`
	// BooleanValue — значение boolean-поля
	BooleanValue *bool `json:"boolean_value,omitempty"`
	// DateValue — значение date-поля (YYYY-MM-DD)
	DateValue *string `json:"date_value,omitempty"`
	// CreatedAt — время создания на сервере-источнике
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryFileSync — метаданные файлового вложения на проводе.
// Передаются только received-файлы; requested-файлы в payload —
// нарушение протокола.
type EntryFileSync struct {
	// UID — глобальный идентификатор файла
	UID string `json:"uid"`
	// Name — имя файла (опционально)
	Name *string `json:"name,omitempty"`
	// MimeType — основной MIME-тип
	MimeType string `json:"mime_type"`
	// MimeSubtype — MIME-подтип
	MimeSubtype string `json:"mime_subtype"`
	// MimeParam — параметр MIME-типа (опционально)
	MimeParam *string `json:"mime_param,omitempty"`
	// Size — размер содержимого в байтах
	Size int64 `json:"size"`
	// CreatedAt — время создания на сервере-источнике
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updated_at"`
}

// DateLayout — формат дат записи и date-полей на проводе.
const DateLayout = "2006-01-02"

// Validate проверяет структурные инварианты payload до какой-либо
// записи в БД: обязательные UID, валидная дата, уникальность ключей
// тегов и UID пользовательских полей, уникальность UID файлов.
func (p *EntrySyncPayload) Validate() error {
	if p.UID == "" {
		return fmt.Errorf("payload без uid записи")
	}
	if p.JournalUID == "" {
		return fmt.Errorf("запись %s: отсутствует journal_uid", p.UID)
	}
	if p.UserUID == "" {
		return fmt.Errorf("запись %s: отсутствует user_uid", p.UID)
	}
	if _, err := time.Parse(DateLayout, p.Date); err != nil {
		return fmt.Errorf("запись %s: некорректная дата %q: %w", p.UID, p.Date, err)
	}

	tagKeys := make(map[string]bool, len(p.Tags))
	for _, tag := range p.Tags {
		if tag.Key == "" {
			return fmt.Errorf("запись %s: тег с пустым ключом", p.UID)
		}
		if tagKeys[tag.Key] {
			return fmt.Errorf("запись %s: дублирующийся ключ тега %q", p.UID, tag.Key)
		}
		tagKeys[tag.Key] = true
	}

	// UID пользовательского поля встречается не более одного раза —
	// дубликат считается ошибкой протокола
	fieldUIDs := make(map[string]bool, len(p.CustomFields))
	for _, cf := range p.CustomFields {
		if cf.CustomFieldUID == "" {
			return fmt.Errorf("запись %s: значение поля без custom_field_uid", p.UID)
		}
		if fieldUIDs[cf.CustomFieldUID] {
			return fmt.Errorf("запись %s: дублирующийся uid пользовательского поля %s", p.UID, cf.CustomFieldUID)
		}
		fieldUIDs[cf.CustomFieldUID] = true
		if cf.DateValue != nil {
			if _, err := time.Parse(DateLayout, *cf.DateValue); err != nil {
				return fmt.Errorf("запись %s: некорректное date-значение %q поля %s: %w",
					p.UID, *cf.DateValue, cf.CustomFieldUID, err)
			}
		}
	}

	fileUIDs := make(map[string]bool, len(p.Files))
	for _, f := range p.Files {
		if f.UID == "" {
			return fmt.Errorf("запись %s: файл без uid", p.UID)
		}
		if fileUIDs[f.UID] {
			return fmt.Errorf("запись %s: дублирующийся uid файла %s", p.UID, f.UID)
		}
		fileUIDs[f.UID] = true
		if f.MimeType == "" || f.MimeSubtype == "" {
			return fmt.Errorf("запись %s: файл %s без MIME-типа", p.UID, f.UID)
		}
		if f.Size < 0 {
			return fmt.Errorf("запись %s: файл %s с отрицательным размером", p.UID, f.UID)
		}
	}

	return nil
}
