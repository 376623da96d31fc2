package filestore

import (
	"log/slog"
)

// TxOps — двухфазная координация дисковых операций с транзакцией БД.
// Запись на диск необратима средствами БД, поэтому порядок строгий:
// содержимое пишется до коммита (и удаляется при откате), а удаление
// выполняется только после успешного коммита.
//
// Использование: создать TxOps рядом с транзакцией, регистрировать
// операции по ходу работы, после tx.Commit вызвать Commit, при любой
// ошибке — Rollback. TxOps не потокобезопасен: один экземпляр
// обслуживает одну транзакцию.
type TxOps struct {
	fs     *FileStore
	logger *slog.Logger

	// created — пути, записанные в рамках транзакции;
	// при откате их содержимое удаляется
	created []string
	// removals — пути, содержимое которых удаляется после коммита
	removals []string
}

// NewTxOps создаёт координатор дисковых операций одной транзакции.
func NewTxOps(fs *FileStore, logger *slog.Logger) *TxOps {
	return &TxOps{fs: fs, logger: logger}
}

// TrackCreated регистрирует записанный на диск путь.
// При Rollback содержимое будет удалено.
func (t *TxOps) TrackCreated(storagePath string) {
	t.created = append(t.created, storagePath)
}

// MarkRemoval регистрирует путь к удалению после коммита.
// До Commit содержимое остаётся на диске нетронутым.
func (t *TxOps) MarkRemoval(storagePaths ...string) {
	t.removals = append(t.removals, storagePaths...)
}

// Commit выполняет отложенные удаления. Вызывается строго после
// успешного коммита транзакции БД. Ошибка удаления не фатальна:
// строка в БД уже удалена, осиротевший файл только занимает место.
func (t *TxOps) Commit() {
	for _, path := range t.removals {
		if err := t.fs.DeleteFile(path); err != nil {
			t.logger.Warn("Не удалось удалить содержимое файла после коммита",
				"storage_path", path, "error", err)
		}
	}
	t.created = nil
	t.removals = nil
}

// Rollback удаляет содержимое, записанное в рамках транзакции,
// и отбрасывает отложенные удаления. Вызывается при откате
// транзакции БД.
func (t *TxOps) Rollback() {
	for _, path := range t.created {
		if err := t.fs.DeleteFile(path); err != nil {
			t.logger.Warn("Не удалось удалить содержимое файла при откате",
				"storage_path", path, "error", err)
		}
	}
	t.created = nil
	t.removals = nil
}
