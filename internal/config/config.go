// Пакет config — загрузка и валидация конфигурации CentralAuth
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

// Config содержит все параметры конфигурации CentralAuth.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения HTTP-запроса
	ReadTimeout time.Duration
	// Таймаут записи HTTP-ответа
	WriteTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	IdleTimeout time.Duration

	// --- PostgreSQL (primary) ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Применять миграции схемы при старте
	DBMigrateOnStart bool

	// --- PostgreSQL (replica) ---

	// Хост реплики (пусто — чтения идут в primary)
	ReplicaHost string
	// Порт реплики
	ReplicaPort int

	// --- Каталог ---

	// Идентификатор обслуживаемого сайта
	SiteID string
	// Размер страницы каталога по умолчанию
	DirectoryDefaultLimit int
	// Максимальный размер страницы каталога
	DirectoryMaxLimit int
	// Ёмкость кэша принадлежности сайта к наборам
	WikisetCacheSize int
	// Время жизни записи кэша наборов
	WikisetCacheTTL time.Duration

	// --- Миграция ---

	// Количество обработанных имён между ожиданиями реплик
	MigrateBatchSize int
	// Допустимое отставание реплики
	ReplicaMaxLag time.Duration
	// Максимальное время ожидания догоняющей реплики
	ReplicaWaitTimeout time.Duration

	// --- Зависимости ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Группа сервиса в topologymetrics
	DephealthGroup string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CA_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("CA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CA_LOG_LEVEL: %w", err)
	}

	// CA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// CA_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.ReadTimeout, err = getEnvDuration("CA_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_READ_TIMEOUT: %w", err)
	}

	// CA_WRITE_TIMEOUT — таймаут записи (по умолчанию 60s)
	cfg.WriteTimeout, err = getEnvDuration("CA_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_WRITE_TIMEOUT: %w", err)
	}

	// CA_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.IdleTimeout, err = getEnvDuration("CA_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL (primary) ---

	// CA_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("CA_DB_HOST")
	if err != nil {
		return nil, err
	}

	// CA_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_PORT: %w", err)
	}

	// CA_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("CA_DB_NAME")
	if err != nil {
		return nil, err
	}

	// CA_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("CA_DB_USER")
	if err != nil {
		return nil, err
	}

	// CA_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("CA_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// CA_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// CA_DB_MIGRATE_ON_START — применять миграции при старте (по умолчанию true)
	cfg.DBMigrateOnStart, err = getEnvBool("CA_DB_MIGRATE_ON_START", true)
	if err != nil {
		return nil, fmt.Errorf("CA_DB_MIGRATE_ON_START: %w", err)
	}

	// --- PostgreSQL (replica) ---

	// CA_REPLICA_HOST — хост реплики (опционально)
	cfg.ReplicaHost = getEnvDefault("CA_REPLICA_HOST", "")

	// CA_REPLICA_PORT — порт реплики (по умолчанию как у primary)
	cfg.ReplicaPort, err = getEnvInt("CA_REPLICA_PORT", cfg.DBPort)
	if err != nil {
		return nil, fmt.Errorf("CA_REPLICA_PORT: %w", err)
	}

	// --- Каталог ---

	// CA_SITE_ID — обслуживаемый сайт (обязателен только для HTTP-сервера)
	cfg.SiteID = getEnvDefault("CA_SITE_ID", "")

	// CA_DIRECTORY_DEFAULT_LIMIT — размер страницы (по умолчанию 50)
	cfg.DirectoryDefaultLimit, err = getEnvInt("CA_DIRECTORY_DEFAULT_LIMIT", 50)
	if err != nil {
		return nil, fmt.Errorf("CA_DIRECTORY_DEFAULT_LIMIT: %w", err)
	}

	// CA_DIRECTORY_MAX_LIMIT — максимальный размер страницы (по умолчанию 500)
	cfg.DirectoryMaxLimit, err = getEnvInt("CA_DIRECTORY_MAX_LIMIT", 500)
	if err != nil {
		return nil, fmt.Errorf("CA_DIRECTORY_MAX_LIMIT: %w", err)
	}
	if cfg.DirectoryDefaultLimit < 1 || cfg.DirectoryDefaultLimit > cfg.DirectoryMaxLimit {
		return nil, fmt.Errorf("CA_DIRECTORY_DEFAULT_LIMIT: значение %d вне допустимого диапазона 1-%d",
			cfg.DirectoryDefaultLimit, cfg.DirectoryMaxLimit)
	}

	// CA_WIKISET_CACHE_SIZE — ёмкость кэша (по умолчанию 10000)
	cfg.WikisetCacheSize, err = getEnvInt("CA_WIKISET_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("CA_WIKISET_CACHE_SIZE: %w", err)
	}
	if cfg.WikisetCacheSize < 1 {
		return nil, fmt.Errorf("CA_WIKISET_CACHE_SIZE: значение %d должно быть положительным", cfg.WikisetCacheSize)
	}

	// CA_WIKISET_CACHE_TTL — время жизни записи (по умолчанию 5m)
	cfg.WikisetCacheTTL, err = getEnvDuration("CA_WIKISET_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CA_WIKISET_CACHE_TTL: %w", err)
	}

	// --- Миграция ---

	// CA_MIGRATE_BATCH_SIZE — размер пакета (по умолчанию 1000)
	cfg.MigrateBatchSize, err = getEnvInt("CA_MIGRATE_BATCH_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CA_MIGRATE_BATCH_SIZE: %w", err)
	}
	if cfg.MigrateBatchSize < 1 {
		return nil, fmt.Errorf("CA_MIGRATE_BATCH_SIZE: значение %d должно быть положительным", cfg.MigrateBatchSize)
	}

	// CA_REPLICA_MAX_LAG — допустимое отставание реплики (по умолчанию 5s)
	cfg.ReplicaMaxLag, err = getEnvDuration("CA_REPLICA_MAX_LAG", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_REPLICA_MAX_LAG: %w", err)
	}

	// CA_REPLICA_WAIT_TIMEOUT — максимальное ожидание реплики (по умолчанию 5m)
	cfg.ReplicaWaitTimeout, err = getEnvDuration("CA_REPLICA_WAIT_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CA_REPLICA_WAIT_TIMEOUT: %w", err)
	}

	// --- Зависимости ---

	// CA_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// CA_DEPHEALTH_GROUP — группа сервиса (по умолчанию centralauth)
	cfg.DephealthGroup = getEnvDefault("CA_DEPHEALTH_GROUP", "centralauth")

	// --- Graceful shutdown ---

	// CA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к primary PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// ReplicaDSN возвращает строку подключения к реплике.
// Без CA_REPLICA_HOST совпадает с DatabaseDSN.
func (c *Config) ReplicaDSN() string {
	if c.ReplicaHost == "" {
		return c.DatabaseDSN()
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.ReplicaHost, c.ReplicaPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL primary PostgreSQL без учётных данных
// (для лейблов метрик зависимостей).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// ReplicaURL возвращает URL реплики без учётных данных.
func (c *Config) ReplicaURL() string {
	if c.ReplicaHost == "" {
		return c.DatabaseURL()
	}
	return fmt.Sprintf("postgres://%s:%d/%s", c.ReplicaHost, c.ReplicaPort, c.DBName)
}

// HasReplica сообщает, настроена ли отдельная реплика.
func (c *Config) HasReplica() bool {
	return c.ReplicaHost != ""
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

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
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
