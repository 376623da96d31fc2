package model

import (
	"fmt"
	"time"
)

// SyncStatus — итог доставки записи на удалённый сервер.
// В БД хранится как smallint; преобразование в обе стороны явное
// и закрытое (неизвестные значения — ошибка, не дефолт).
type SyncStatus int16

const (
	// SyncStatusSynced — сервер принял запись.
	SyncStatusSynced SyncStatus = 1
	// SyncStatusFailed — доставка не удалась; запись останется
	// кандидатом следующего запуска.
	SyncStatusFailed SyncStatus = 2
)

// Int16 возвращает хранимое представление статуса.
func (s SyncStatus) Int16() int16 {
	return int16(s)
}

// String возвращает человекочитаемое имя статуса.
func (s SyncStatus) String() string {
	switch s {
	case SyncStatusSynced:
		return "synced"
	case SyncStatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int16(s))
	}
}

// SyncStatusFromInt16 восстанавливает статус из хранимого представления.
func SyncStatusFromInt16(v int16) (SyncStatus, error) {
	switch SyncStatus(v) {
	case SyncStatusSynced, SyncStatusFailed:
		return SyncStatus(v), nil
	default:
		return 0, fmt.Errorf("неизвестное значение sync-статуса: %d", v)
	}
}

// SyncedEntry — строка бухгалтерии синхронизации: итог последней
// попытки доставки записи на конкретный сервер. Пара
// (entry, remote_server) уникальна, строки только upsert-ятся.
type SyncedEntry struct {
	// ID — локальный числовой идентификатор
	ID int64
	// EntryID — запись
	EntryID int64
	// RemoteServerID — сервер-получатель
	RemoteServerID int64
	// Status — итог последней попытки
	Status SyncStatus
	// SyncedAt — метка времени попытки (sync_date запуска)
	SyncedAt time.Time
}

// SyncRunResult — сводка одного запуска push-синхронизации.
type SyncRunResult struct {
	// JournalID — журнал-источник
	JournalID int64
	// RemoteServerID — сервер-получатель
	RemoteServerID int64
	// Batches — количество обработанных пакетов
	Batches int
	// Synced — записей доставлено
	Synced int
	// Failed — записей с ошибкой доставки
	Failed int
	// Aborted — запуск прерван ошибкой пакета (зафиксированные
	// пакеты сохранены)
	Aborted bool
	// StartedAt — время начала запуска (оно же sync_date)
	StartedAt time.Time
	// CompletedAt — время завершения
	CompletedAt time.Time
}
