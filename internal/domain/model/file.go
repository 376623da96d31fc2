package model

import "time"

// FileStatus — состояние файлового вложения.
type FileStatus string

const (
	// FileStatusRequested — метаданные созданы, содержимое ещё не загружено.
	// Такие файлы никогда не участвуют в синхронизации.
	FileStatusRequested FileStatus = "requested"
	// FileStatusReceived — содержимое загружено и доступно на диске.
	FileStatusReceived FileStatus = "received"
)

// EntryFile — файловое вложение записи. Содержимое хранится на диске
// (internal/filestore) и передаётся между серверами отдельно от
// метаданных.
type EntryFile struct {
	// ID — локальный числовой идентификатор
	ID int64
	// UID — стабильный глобальный идентификатор файла
	UID string
	// EntryID — запись-владелец
	EntryID int64
	// Name — имя файла (опционально)
	Name *string
	// MimeType — основной MIME-тип (например, image)
	MimeType string
	// MimeSubtype — MIME-подтип (например, png)
	MimeSubtype string
	// MimeParam — параметр MIME-типа (опционально, например charset=utf-8)
	MimeParam *string
	// Size — размер содержимого в байтах
	Size int64
	// Status — requested или received
	Status FileStatus
	// StoragePath — относительный путь содержимого в DataDir;
	// пустой, пока содержимое не загружено
	StoragePath string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsReceived сообщает, загружено ли содержимое файла.
func (f *EntryFile) IsReceived() bool {
	return f.Status == FileStatusReceived
}
