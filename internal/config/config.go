// Пакет config — загрузка и валидация конфигурации Student Registry
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Student Registry.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений в пуле
	DBMaxConns int32

	// --- Медиафайлы и черновики ---

	// Корень файлового хранилища: <ContentRoot>/uploads/{images|videos}/...
	ContentRoot string
	// Время жизни неактивного черновика регистрации в минутах
	DraftExpiryMinutes int
	// Интервал периодической очистки просроченных черновиков
	SweepInterval time.Duration
	// Ограничение размера тела запроса загрузки файла
	UploadMaxBytes int64

	// --- Сжатие ---

	ImageMaxWidth  int
	ImageMaxHeight int
	// Качество JPEG при перекодировании (1-100)
	JPEGQuality int
	// CRF для libx264 (0-51, меньше — лучше качество)
	VideoCRF int
	// Явный путь к ffmpeg (опционально, иначе поиск в PATH)
	FFmpegPath string

	// --- Регистрация ---

	// Длина временного пароля (минимум 8)
	PasswordLength int

	// --- SMTP ---

	// Хост SMTP (пусто — отправка писем отключена)
	SMTPHost      string
	SMTPPort      int
	SMTPEnableSSL bool
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string

	// --- Кэш списка студентов ---

	ListCacheSize int
	ListCacheTTL  time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:gocyclo // линейная последовательность проверок
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SR_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("SR_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("SR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SR_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("SR_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SR_HTTP_READ_TIMEOUT: %w", err)
	}
	// Запись большого видео по медленному каналу — поэтому запас
	cfg.HTTPWriteTimeout, err = getEnvDuration("SR_HTTP_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SR_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("SR_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SR_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("SR_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SR_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SR_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("SR_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("SR_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("SR_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("SR_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	maxConns, err := getEnvInt("SR_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("SR_DB_MAX_CONNS: %w", err)
	}
	// Регистрация держит транзакцию, очистка — свой запрос
	if maxConns < 2 || maxConns > 1000 {
		return nil, fmt.Errorf("SR_DB_MAX_CONNS: значение %d вне допустимого диапазона 2-1000", maxConns)
	}
	cfg.DBMaxConns = int32(maxConns)

	// --- Медиафайлы и черновики ---

	cfg.ContentRoot = getEnvDefault("SR_CONTENT_ROOT", "./data")

	// SR_DRAFT_EXPIRY_MINUTES — время жизни черновика (по умолчанию 30)
	cfg.DraftExpiryMinutes, err = getEnvInt("SR_DRAFT_EXPIRY_MINUTES", 30)
	if err != nil {
		return nil, fmt.Errorf("SR_DRAFT_EXPIRY_MINUTES: %w", err)
	}
	if cfg.DraftExpiryMinutes < 1 {
		return nil, fmt.Errorf("SR_DRAFT_EXPIRY_MINUTES: значение %d должно быть положительным", cfg.DraftExpiryMinutes)
	}

	cfg.SweepInterval, err = getEnvDuration("SR_SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SR_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SR_SWEEP_INTERVAL: значение должно быть положительным")
	}

	// SR_UPLOAD_MAX_BYTES — 110 MiB: видео 100 MiB + изображение 5 MiB + поля формы
	cfg.UploadMaxBytes, err = getEnvInt64("SR_UPLOAD_MAX_BYTES", 110*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SR_UPLOAD_MAX_BYTES: %w", err)
	}
	if cfg.UploadMaxBytes <= 0 {
		return nil, fmt.Errorf("SR_UPLOAD_MAX_BYTES: значение должно быть положительным")
	}

	// --- Сжатие ---

	cfg.ImageMaxWidth, err = getEnvInt("SR_IMAGE_MAX_WIDTH", 1920)
	if err != nil {
		return nil, fmt.Errorf("SR_IMAGE_MAX_WIDTH: %w", err)
	}
	cfg.ImageMaxHeight, err = getEnvInt("SR_IMAGE_MAX_HEIGHT", 1080)
	if err != nil {
		return nil, fmt.Errorf("SR_IMAGE_MAX_HEIGHT: %w", err)
	}
	if cfg.ImageMaxWidth < 1 || cfg.ImageMaxHeight < 1 {
		return nil, fmt.Errorf("SR_IMAGE_MAX_WIDTH/SR_IMAGE_MAX_HEIGHT: размеры должны быть положительными")
	}

	cfg.JPEGQuality, err = getEnvInt("SR_JPEG_QUALITY", 85)
	if err != nil {
		return nil, fmt.Errorf("SR_JPEG_QUALITY: %w", err)
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("SR_JPEG_QUALITY: значение %d вне допустимого диапазона 1-100", cfg.JPEGQuality)
	}

	cfg.VideoCRF, err = getEnvInt("SR_VIDEO_CRF", 23)
	if err != nil {
		return nil, fmt.Errorf("SR_VIDEO_CRF: %w", err)
	}
	if cfg.VideoCRF < 0 || cfg.VideoCRF > 51 {
		return nil, fmt.Errorf("SR_VIDEO_CRF: значение %d вне допустимого диапазона 0-51", cfg.VideoCRF)
	}

	cfg.FFmpegPath = strings.TrimSpace(getEnvDefault("SR_FFMPEG_PATH", ""))

	// --- Регистрация ---

	cfg.PasswordLength, err = getEnvInt("SR_PASSWORD_LENGTH", 12)
	if err != nil {
		return nil, fmt.Errorf("SR_PASSWORD_LENGTH: %w", err)
	}
	if cfg.PasswordLength < 8 {
		return nil, fmt.Errorf("SR_PASSWORD_LENGTH: значение %d меньше минимального 8", cfg.PasswordLength)
	}

	// --- SMTP ---

	cfg.SMTPHost = getEnvDefault("SR_SMTP_HOST", "")
	cfg.SMTPPort, err = getEnvInt("SR_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("SR_SMTP_PORT: %w", err)
	}
	cfg.SMTPEnableSSL, err = getEnvBool("SR_SMTP_ENABLE_SSL", true)
	if err != nil {
		return nil, fmt.Errorf("SR_SMTP_ENABLE_SSL: %w", err)
	}
	cfg.SMTPUsername = getEnvDefault("SR_SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvDefault("SR_SMTP_PASSWORD", "")
	cfg.SMTPFromName = getEnvDefault("SR_SMTP_FROM_NAME", "Student Portal")
	cfg.SMTPFromEmail = getEnvDefault("SR_SMTP_FROM_EMAIL", cfg.SMTPUsername)
	if cfg.SMTPHost != "" && cfg.SMTPFromEmail == "" {
		return nil, fmt.Errorf("SR_SMTP_FROM_EMAIL: обязателен, если задан SR_SMTP_HOST")
	}

	// --- Кэш списка студентов ---

	cfg.ListCacheSize, err = getEnvInt("SR_LIST_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("SR_LIST_CACHE_SIZE: %w", err)
	}
	if cfg.ListCacheSize < 1 {
		return nil, fmt.Errorf("SR_LIST_CACHE_SIZE: значение %d должно быть положительным", cfg.ListCacheSize)
	}
	cfg.ListCacheTTL, err = getEnvDuration("SR_LIST_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SR_LIST_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SR_DEPHEALTH_GROUP", "student-registry")
	cfg.DephealthCheckInterval, err = getEnvDuration("SR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SR_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SR_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля — для меток topologymetrics.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// DraftExpiry возвращает время жизни черновика как time.Duration.
func (c *Config) DraftExpiry() time.Duration {
	return time.Duration(c.DraftExpiryMinutes) * time.Minute
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
