// sync.go — HTTP handlers синхронизации Sync Module.
// Запуск push-синхронизации журнала, приём записей и содержимого
// файлов от удалённых серверов.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gojournal/sync-module/internal/api/errors"
	"github.com/bigkaa/gojournal/sync-module/internal/api/middleware"
	"github.com/bigkaa/gojournal/sync-module/internal/domain/wire"
	"github.com/bigkaa/gojournal/sync-module/internal/service"
)

// maxPayloadSize — предельный размер JSON-тела записи (10 MB).
const maxPayloadSize = 10 << 20

// TriggerSync обрабатывает POST /api/v1/journals/{journalID}/sync/{serverID}.
// Ставит push-синхронизацию журнала на удалённый сервер в фон.
// Вызывающий передаётся в заголовке X-User-UID, запуск разрешён
// только владельцу журнала.
func (h *APIHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	journalID, err := strconv.ParseInt(chi.URLParam(r, "journalID"), 10, 64)
	if err != nil {
		apierrors.ValidationError(w, "Параметр journalID должен быть целым числом")
		return
	}

	serverID, err := strconv.ParseInt(chi.URLParam(r, "serverID"), 10, 64)
	if err != nil {
		apierrors.ValidationError(w, "Параметр serverID должен быть целым числом")
		return
	}

	userUID := r.Header.Get("X-User-UID")
	if userUID == "" {
		apierrors.ValidationError(w, "Заголовок X-User-UID обязателен")
		return
	}

	outcome, err := h.entrySync.QueueSync(r.Context(), journalID, serverID, userUID)
	if err != nil {
		h.logger.Error("Ошибка постановки синхронизации в очередь",
			slog.Int64("journal_id", journalID),
			slog.Int64("server_id", serverID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка запуска синхронизации")
		return
	}

	switch outcome {
	case service.QueueOutcomeQueued:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":     "queued",
			"journal_id": journalID,
			"server_id":  serverID,
			"queued_at":  time.Now().UTC().Format(time.RFC3339),
		})
	case service.QueueOutcomeJournalNotFound:
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeJournalNotFound,
			fmt.Sprintf("Журнал %d не найден", journalID))
	case service.QueueOutcomeRemoteServerNotFound:
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeServerNotFound,
			fmt.Sprintf("Удалённый сервер %d не найден", serverID))
	case service.QueueOutcomeNotLocalJournal:
		apierrors.WriteError(w, http.StatusForbidden, apierrors.CodeNotLocalJournal,
			"Журнал получен с другого сервера, push запрещён")
	case service.QueueOutcomePermissionDenied:
		apierrors.Forbidden(w, "Синхронизацию может запускать только владелец журнала")
	default:
		apierrors.InternalError(w, "Неизвестный итог постановки в очередь")
	}
}

// ReceiveEntry обрабатывает POST /api/v1/sync/entries.
// Принимает запись от удалённого сервера и выверяет локальное состояние.
func (h *APIHandler) ReceiveEntry(w http.ResponseWriter, r *http.Request) {
	var payload wire.EntrySyncPayload
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err := decoder.Decode(&payload); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Невалидный JSON: %s", err.Error()))
		return
	}

	result, err := h.receive.ReceiveEntry(r.Context(), &payload)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка приёма записи",
			slog.String("entry_uid", payload.UID),
			slog.String("peer", middleware.PeerFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка приёма записи")
		return
	}

	switch result.Outcome {
	case service.ReceiveOutcomeSynced:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "synced",
			"entry_uid": payload.UID,
		})
	case service.ReceiveOutcomeJournalNotFound:
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeJournalNotFound,
			fmt.Sprintf("Журнал %s не найден", payload.JournalUID))
	case service.ReceiveOutcomeUserNotFound:
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeUserNotFound,
			fmt.Sprintf("Пользователь %s не найден", payload.UserUID))
	case service.ReceiveOutcomeCustomFieldNotFound:
		apierrors.WriteErrorUIDs(w, http.StatusUnprocessableEntity, apierrors.CodeCustomFieldNotFound,
			"Часть пользовательских полей не определена в журнале", result.UIDs)
	case service.ReceiveOutcomeCustomFieldInvalid:
		apierrors.WriteErrorUIDs(w, http.StatusUnprocessableEntity, apierrors.CodeCustomFieldInvalid,
			"Значения пользовательских полей не проходят валидацию", result.UIDs)
	case service.ReceiveOutcomeFileNotFound:
		apierrors.WriteErrorUIDs(w, http.StatusUnprocessableEntity, apierrors.CodeFileNotFound,
			"Часть файлов привязана к другим записям", result.UIDs)
	default:
		apierrors.InternalError(w, "Неизвестный итог приёма")
	}
}

// ReceiveFileContent обрабатывает PUT /api/v1/sync/files/{fileUID}/content.
// Принимает содержимое ранее анонсированного файла и помечает его
// полученным.
func (h *APIHandler) ReceiveFileContent(w http.ResponseWriter, r *http.Request) {
	fileUID := chi.URLParam(r, "fileUID")
	if fileUID == "" {
		apierrors.ValidationError(w, "Параметр fileUID обязателен")
		return
	}

	file, err := h.receive.ReceiveFileContent(r.Context(), fileUID, r.Body)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeFileNotFound,
				fmt.Sprintf("Файл %s не найден", fileUID))
			return
		}
		h.logger.Error("Ошибка приёма содержимого файла",
			slog.String("file_uid", fileUID),
			slog.String("peer", middleware.PeerFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка приёма содержимого файла")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "received",
		"file_uid": file.UID,
		"size":     file.Size,
	})
}
