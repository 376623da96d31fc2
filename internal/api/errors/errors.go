// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "...", "uids": [...]}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeJournalNotFound     = "JOURNAL_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeServerNotFound      = "REMOTE_SERVER_NOT_FOUND"
	CodeNotLocalJournal     = "NOT_LOCAL_JOURNAL"
	CodeCustomFieldNotFound = "CUSTOM_FIELD_NOT_FOUND"
	CodeCustomFieldInvalid  = "CUSTOM_FIELD_INVALID"
	CodeFileNotFound        = "FILE_NOT_FOUND"
	CodeInternalError       = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки. UIDs перечисляет проблемные сущности
// для ошибок выверки (поля, файлы).
type errorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	UIDs    []string `json:"uids,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteErrorUIDs(w, statusCode, code, message, nil)
}

// WriteErrorUIDs записывает ответ ошибки с перечнем проблемных uid.
func WriteErrorUIDs(w http.ResponseWriter, statusCode int, code, message string, uids []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
			UIDs:    uids,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
