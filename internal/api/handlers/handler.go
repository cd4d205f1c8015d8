// Пакет handlers — HTTP-обработчики Student Registry.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// multipartMemory — часть multipart-тела, хранимая в памяти; остальное во временных файлах.
const multipartMemory = 8 << 20

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errBodyTooLarge — тело запроса превысило лимит MaxBytesReader.
var errBodyTooLarge = errors.New("тело запроса превышает лимит")

// parseUpload ограничивает тело запроса maxBytes и разбирает multipart-форму.
// Возвращает файл из поля "file"; вызывающий закрывает его.
func parseUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, errBodyTooLarge
		}
		return nil, nil, fmt.Errorf("ошибка разбора multipart: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, errors.New("файл не передан")
		}
		return nil, nil, fmt.Errorf("поле file: %w", err)
	}
	return file, header, nil
}

// closeUpload закрывает файл и удаляет временные файлы multipart-формы.
func closeUpload(r *http.Request, file io.Closer) {
	if file != nil {
		_ = file.Close()
	}
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
