package model

import (
	"errors"
	"fmt"
	"time"
)

// CustomFieldType — тип значения пользовательского поля журнала.
type CustomFieldType string

const (
	// CustomFieldTypeText — произвольная строка.
	CustomFieldTypeText CustomFieldType = "text"
	// CustomFieldTypeNumber — число с плавающей точкой,
	// опционально ограниченное NumberMin/NumberMax.
	CustomFieldTypeNumber CustomFieldType = "number"
	// CustomFieldTypeBoolean — логическое значение.
	CustomFieldTypeBoolean CustomFieldType = "boolean"
	// CustomFieldTypeDate — дата без времени.
	CustomFieldTypeDate CustomFieldType = "date"
)

// ErrValueTypeMismatch — значение не соответствует типу поля.
var ErrValueTypeMismatch = errors.New("значение не соответствует типу поля")

// ErrValueOutOfRange — числовое значение вне диапазона поля.
var ErrValueOutOfRange = errors.New("значение вне допустимого диапазона поля")

// CustomField — определение пользовательского поля журнала.
type CustomField struct {
	// ID — локальный числовой идентификатор
	ID int64
	// UID — стабильный глобальный идентификатор поля
	UID string
	// JournalID — журнал, которому принадлежит поле
	JournalID int64
	// Name — имя поля
	Name string
	// Type — тип значения
	Type CustomFieldType
	// NumberMin — минимум для number-полей (nil — не ограничен)
	NumberMin *float64
	// NumberMax — максимум для number-полей (nil — не ограничен)
	NumberMax *float64
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// CustomFieldValue — типизированное значение поля.
// Заполнено ровно одно из полей-вариантов, соответствующее типу
// определения поля.
type CustomFieldValue struct {
	// Text — значение для полей типа text
	Text *string
	// Number — значение для полей типа number
	Number *float64
	// Boolean — значение для полей типа boolean
	Boolean *bool
	// Date — значение для полей типа date
	Date *time.Time
}

// CustomFieldEntry — значение пользовательского поля у записи.
// Пара (entry, custom_field) уникальна.
type CustomFieldEntry struct {
	// ID — локальный числовой идентификатор
	ID int64
	// EntryID — запись-владелец
	EntryID int64
	// CustomFieldID — определение поля
	CustomFieldID int64
	// Value — типизированное значение
	Value CustomFieldValue
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// ValidateValue проверяет значение против определения поля.
// Применяется одинаково при локальном создании значения и при
// приёме записи от удалённого сервера.
func (f *CustomField) ValidateValue(v CustomFieldValue) error {
	switch f.Type {
	case CustomFieldTypeText:
		if v.Text == nil || v.Number != nil || v.Boolean != nil || v.Date != nil {
			return fmt.Errorf("%w: поле %q имеет тип text", ErrValueTypeMismatch, f.Name)
		}
	case CustomFieldTypeNumber:
		if v.Number == nil || v.Text != nil || v.Boolean != nil || v.Date != nil {
			return fmt.Errorf("%w: поле %q имеет тип number", ErrValueTypeMismatch, f.Name)
		}
		if f.NumberMin != nil && *v.Number < *f.NumberMin {
			return fmt.Errorf("%w: %g меньше минимума %g поля %q", ErrValueOutOfRange, *v.Number, *f.NumberMin, f.Name)
		}
		if f.NumberMax != nil && *v.Number > *f.NumberMax {
			return fmt.Errorf("%w: %g больше максимума %g поля %q", ErrValueOutOfRange, *v.Number, *f.NumberMax, f.Name)
		}
	case CustomFieldTypeBoolean:
		if v.Boolean == nil || v.Text != nil || v.Number != nil || v.Date != nil {
			return fmt.Errorf("%w: поле %q имеет тип boolean", ErrValueTypeMismatch, f.Name)
		}
	case CustomFieldTypeDate:
		if v.Date == nil || v.Text != nil || v.Number != nil || v.Boolean != nil {
			return fmt.Errorf("%w: поле %q имеет тип date", ErrValueTypeMismatch, f.Name)
		}
	default:
		return fmt.Errorf("неизвестный тип поля %q", f.Type)
	}
	return nil
}
