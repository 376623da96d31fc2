package model

import "time"

// RemoteServer — удалённый сервер-получатель синхронизации.
// Регистрация серверов и обмен секретами выполняются администратором
// заранее; Sync Module полагается на уже установленный канал доверия.
type RemoteServer struct {
	// ID — локальный числовой идентификатор
	ID int64
	// UID — стабильный глобальный идентификатор сервера
	UID string
	// Name — отображаемое имя сервера
	Name string
	// URL — базовый URL API удалённого сервера
	URL string
	// TokenSecret — общий секрет канала синхронизации (HS256)
	TokenSecret string
	// CreatedAt — время регистрации
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
