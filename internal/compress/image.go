// Пакет compress — сжатие сохранённых медиафайлов на месте.
//
// Каждый компрессор пишет результат во временный соседний файл
// temp_<uuid><ext> и атомарно заменяет им оригинал. При любой ошибке
// временный файл удаляется, оригинал остаётся нетронутым.
package compress

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// ImageCompressor уменьшает изображение до заданных границ и перекодирует
// его в исходный формат.
type ImageCompressor struct {
	MaxWidth  int
	MaxHeight int
	// JPEGQuality — качество JPEG (1-100); PNG всегда с максимальным сжатием
	JPEGQuality int
}

// Compress сжимает изображение по пути fullPath.
// Размеры только уменьшаются с сохранением пропорций.
func (c *ImageCompressor) Compress(ctx context.Context, fullPath string) error {
	format, err := imaging.FormatFromFilename(fullPath)
	if err != nil {
		return fmt.Errorf("неподдерживаемый формат %s: %w", filepath.Ext(fullPath), err)
	}
	if format != imaging.JPEG && format != imaging.PNG {
		return fmt.Errorf("неподдерживаемый формат %s", filepath.Ext(fullPath))
	}

	img, err := imaging.Open(fullPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("ошибка декодирования изображения: %w", err)
	}

	// Fit не увеличивает изображения меньше границ
	resized := imaging.Fit(img, c.MaxWidth, c.MaxHeight, imaging.Lanczos)

	if err := ctx.Err(); err != nil {
		return err
	}

	tmpPath := tempSibling(fullPath)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	opts := []imaging.EncodeOption{imaging.PNGCompressionLevel(png.BestCompression)}
	if format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(c.JPEGQuality))
	}
	if err := imaging.Encode(f, resized, format, opts...); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка кодирования изображения: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return replace(tmpPath, fullPath)
}

// tempSibling возвращает имя временного файла рядом с оригиналом.
func tempSibling(fullPath string) string {
	dir := filepath.Dir(fullPath)
	ext := filepath.Ext(fullPath)
	return filepath.Join(dir, "temp_"+strings.ReplaceAll(uuid.NewString(), "-", "")+ext)
}

// replace атомарно заменяет оригинал временным файлом.
func replace(tmpPath, fullPath string) error {
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка замены оригинала: %w", err)
	}
	return nil
}
