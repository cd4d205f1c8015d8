// Пакет media — классы медиафайлов профиля и правила их приёма.
// Проверка выполняется только по расширению имени файла и размеру,
// содержимое файла не анализируется.
package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrRejected — файл не прошёл проверку.
var ErrRejected = errors.New("файл отклонён")

// Class — класс медиафайла: изображение или видео.
type Class string

const (
	ClassImage Class = "image"
	ClassVideo Class = "video"
)

// ParseClass разбирает класс без учёта регистра.
func ParseClass(raw string) (Class, bool) {
	switch Class(strings.ToLower(strings.TrimSpace(raw))) {
	case ClassImage:
		return ClassImage, true
	case ClassVideo:
		return ClassVideo, true
	}
	return "", false
}

// Policy — ограничения для класса.
type Policy struct {
	// Label — название класса в сообщениях об ошибках
	Label string
	// SubDir — подкаталог в uploads/
	SubDir string
	// MaxBytes — максимальный размер файла
	MaxBytes int64
	// Extensions — допустимые расширения в нижнем регистре, с точкой
	Extensions []string
}

const (
	ImageMaxBytes int64 = 5 * 1024 * 1024
	VideoMaxBytes int64 = 100 * 1024 * 1024
)

var policies = map[Class]Policy{
	ClassImage: {
		Label:      "Изображение",
		SubDir:     "images",
		MaxBytes:   ImageMaxBytes,
		Extensions: []string{".jpeg", ".jpg", ".png"},
	},
	ClassVideo: {
		Label:      "Видео",
		SubDir:     "videos",
		MaxBytes:   VideoMaxBytes,
		Extensions: []string{".mp4", ".mov", ".mkv", ".avi", ".wmv"},
	},
}

// PolicyFor возвращает ограничения класса.
func PolicyFor(c Class) (Policy, bool) {
	p, ok := policies[c]
	return p, ok
}

// Classes возвращает все классы в фиксированном порядке.
func Classes() []Class {
	return []Class{ClassImage, ClassVideo}
}

// SubDir возвращает подкаталог класса ("images" / "videos").
func (c Class) SubDir() string {
	return policies[c].SubDir
}

// Allows сообщает, допускает ли класс расширение файла name.
func (c Class) Allows(name string) bool {
	p, ok := policies[c]
	if !ok {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range p.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Validate проверяет объявленное имя файла и размер для класса.
// Возвращает nil или ошибку, оборачивающую ErrRejected, с причиной отказа.
func Validate(name string, size int64, class Class) error {
	p, ok := policies[class]
	if !ok {
		return fmt.Errorf("%w: неизвестный тип файла %q", ErrRejected, class)
	}

	if size <= 0 || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s отсутствует или пуст", ErrRejected, p.Label)
	}

	if size > p.MaxBytes {
		return fmt.Errorf("%w: %s должно быть не больше %d МБ", ErrRejected, p.Label, p.MaxBytes/(1024*1024))
	}

	if !class.Allows(name) {
		return fmt.Errorf("%w: %s должно иметь одно из расширений: %s",
			ErrRejected, p.Label, strings.Join(p.Extensions, ", "))
	}

	return nil
}
