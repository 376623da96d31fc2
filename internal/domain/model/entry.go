package model

import "time"

// Entry — датированная запись журнала.
type Entry struct {
	// ID — локальный числовой идентификатор
	ID int64
	// UID — стабильный глобальный идентификатор записи
	UID string
	// JournalID — журнал, которому принадлежит запись
	JournalID int64
	// UserID — автор записи
	UserID int64
	// EntryDate — дата, к которой относится запись
	EntryDate time.Time
	// Title — заголовок
	Title string
	// Contents — текст записи
	Contents string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// EntryTag — тег записи. Ключ уникален в пределах записи.
type EntryTag struct {
	// ID — локальный числовой идентификатор
	ID int64
	// EntryID — запись-владелец
	EntryID int64
	// Key — ключ тега, уникален для записи
	Key string
	// Value — необязательное значение тега
	Value *string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
