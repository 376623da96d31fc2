package model

import (
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string       { return &s }
func numPtr(f float64) *float64     { return &f }
func boolPtr(b bool) *bool          { return &b }
func datePtr(t time.Time) *time.Time { return &t }

func TestValidateValue_Text(t *testing.T) {
	f := &CustomField{Name: "mood", Type: CustomFieldTypeText}

	if err := f.ValidateValue(CustomFieldValue{Text: strPtr("отлично")}); err != nil {
		t.Errorf("корректное text-значение отклонено: %v", err)
	}
	if err := f.ValidateValue(CustomFieldValue{Number: numPtr(1)}); !errors.Is(err, ErrValueTypeMismatch) {
		t.Errorf("number-значение для text-поля: ожидается ErrValueTypeMismatch, получено %v", err)
	}
	// Два заполненных варианта одновременно — тоже несоответствие типа
	if err := f.ValidateValue(CustomFieldValue{Text: strPtr("x"), Boolean: boolPtr(true)}); !errors.Is(err, ErrValueTypeMismatch) {
		t.Errorf("двойное значение: ожидается ErrValueTypeMismatch, получено %v", err)
	}
}

func TestValidateValue_NumberRange(t *testing.T) {
	f := &CustomField{
		Name: "sleep_hours", Type: CustomFieldTypeNumber,
		NumberMin: numPtr(0), NumberMax: numPtr(24),
	}

	if err := f.ValidateValue(CustomFieldValue{Number: numPtr(7.5)}); err != nil {
		t.Errorf("значение в диапазоне отклонено: %v", err)
	}
	if err := f.ValidateValue(CustomFieldValue{Number: numPtr(-1)}); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("значение ниже минимума: ожидается ErrValueOutOfRange, получено %v", err)
	}
	if err := f.ValidateValue(CustomFieldValue{Number: numPtr(25)}); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("значение выше максимума: ожидается ErrValueOutOfRange, получено %v", err)
	}

	// Границы включительны
	if err := f.ValidateValue(CustomFieldValue{Number: numPtr(0)}); err != nil {
		t.Errorf("граничное значение 0 отклонено: %v", err)
	}
	if err := f.ValidateValue(CustomFieldValue{Number: numPtr(24)}); err != nil {
		t.Errorf("граничное значение 24 отклонено: %v", err)
	}
}

func TestValidateValue_BooleanAndDate(t *testing.T) {
	fb := &CustomField{Name: "exercised", Type: CustomFieldTypeBoolean}
	if err := fb.ValidateValue(CustomFieldValue{Boolean: boolPtr(false)}); err != nil {
		t.Errorf("boolean-значение отклонено: %v", err)
	}
	if err := fb.ValidateValue(CustomFieldValue{Text: strPtr("false")}); !errors.Is(err, ErrValueTypeMismatch) {
		t.Errorf("text для boolean-поля: ожидается ErrValueTypeMismatch, получено %v", err)
	}

	fd := &CustomField{Name: "deadline", Type: CustomFieldTypeDate}
	if err := fd.ValidateValue(CustomFieldValue{Date: datePtr(time.Now())}); err != nil {
		t.Errorf("date-значение отклонено: %v", err)
	}
	if err := fd.ValidateValue(CustomFieldValue{}); !errors.Is(err, ErrValueTypeMismatch) {
		t.Errorf("пустое значение для date-поля: ожидается ErrValueTypeMismatch, получено %v", err)
	}
}
