package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrFFmpegNotFound — ffmpeg не найден ни по явному пути, ни в PATH.
var ErrFFmpegNotFound = errors.New("ffmpeg не найден")

var (
	commandContext = exec.CommandContext
	lookPath       = exec.LookPath
)

// LocateFFmpeg возвращает путь к ffmpeg: явно заданный, если файл существует,
// иначе найденный в PATH.
func LocateFFmpeg(configured string) (string, error) {
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && !info.IsDir() {
			return configured, nil
		}
	}
	found, err := lookPath("ffmpeg")
	if err != nil {
		return "", ErrFFmpegNotFound
	}
	return found, nil
}

// VideoCompressor перекодирует видеопоток через ffmpeg (libx264),
// аудиопоток копируется без изменений.
type VideoCompressor struct {
	// FFmpegPath — явный путь к ffmpeg (пусто — поиск в PATH)
	FFmpegPath string
	// CRF — фактор качества libx264 (0-51)
	CRF int
}

// Compress сжимает видео по пути fullPath.
// Возвращает ErrFFmpegNotFound, если ffmpeg недоступен.
func (c *VideoCompressor) Compress(ctx context.Context, fullPath string) error {
	bin, err := LocateFFmpeg(c.FFmpegPath)
	if err != nil {
		return err
	}

	tmpPath := tempSibling(fullPath)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", fullPath,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(c.CRF),
		"-c:a", "copy",
		"-y", tmpPath,
	}

	cmd := commandContext(ctx, bin, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}

	if info, err := os.Stat(tmpPath); err != nil || info.Size() == 0 {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg не создал выходной файл")
	}

	return replace(tmpPath, fullPath)
}
