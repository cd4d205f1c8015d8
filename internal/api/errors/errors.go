// Пакет errors — JSON-ответы с ошибками Student Registry:
// {"error": {"code": "...", "message": "..."}}.
//
// Отказ проверки загружаемого файла сюда не относится: форма загрузки
// получает {"success": false, "error": "..."} от обработчика.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Коды ошибок API.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeDraftNotFound   = "DRAFT_NOT_FOUND"
	CodeStudentNotFound = "STUDENT_NOT_FOUND"
	CodeUploadTooLarge  = "UPLOAD_TOO_LARGE"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Response — тело ответа с ошибкой.
type Response struct {
	Error Detail `json:"error"`
}

// Detail — код и текст ошибки.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write записывает ответ с ошибкой.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: Detail{Code: code, Message: message}})
}

// InvalidRequest — 400: тело или форма запроса не разбираются.
func InvalidRequest(w http.ResponseWriter, message string) {
	Write(w, http.StatusBadRequest, CodeInvalidRequest, message)
}

// DraftNotFound — 404: черновика нет, он истёк или уже отправлен.
func DraftNotFound(w http.ResponseWriter) {
	Write(w, http.StatusNotFound, CodeDraftNotFound, "Черновик регистрации не найден или истёк")
}

// StudentNotFound — 404 для студенческого ID.
func StudentNotFound(w http.ResponseWriter, studentID string) {
	Write(w, http.StatusNotFound, CodeStudentNotFound, fmt.Sprintf("Студент %s не найден", studentID))
}

// UploadTooLarge — 413: тело загрузки больше limit байт.
func UploadTooLarge(w http.ResponseWriter, limit int64) {
	Write(w, http.StatusRequestEntityTooLarge, CodeUploadTooLarge,
		"Размер запроса превышает "+formatLimit(limit))
}

// Internal — 500. Подробности пишутся в лог, клиенту уходит message.
func Internal(w http.ResponseWriter, message string) {
	Write(w, http.StatusInternalServerError, CodeInternalError, message)
}

func formatLimit(limit int64) string {
	const mb = 1024 * 1024
	if limit >= mb && limit%mb == 0 {
		return fmt.Sprintf("%d МБ", limit/mb)
	}
	return fmt.Sprintf("%d байт", limit)
}
