// Пакет model — доменные модели Sync Module.
// Числовые id локальны для сервера и никогда не передаются между
// серверами; кросс-серверная идентичность — только UID.
package model

import "time"

// User — автор журнальных записей.
type User struct {
	// ID — локальный числовой идентификатор
	ID int64
	// UID — стабильный глобальный идентификатор
	UID string
	// Username — имя пользователя
	Username string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Journal — журнал, контейнер записей.
type Journal struct {
	// ID — локальный числовой идентификатор
	ID int64
	// UID — стабильный глобальный идентификатор
	UID string
	// UserID — владелец журнала
	UserID int64
	// Title — название журнала
	Title string
	// RemoteServerID — сервер-источник; nil означает локальный журнал
	RemoteServerID *int64
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsLocal сообщает, принадлежит ли журнал этому серверу.
// Только локальные журналы могут быть источником push-синхронизации.
func (j *Journal) IsLocal() bool {
	return j.RemoteServerID == nil
}
