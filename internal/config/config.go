// Пакет config — загрузка и валидация конфигурации Auth Module
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

// Config содержит все параметры конфигурации Auth Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения HTTP-запроса
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-ответа
	HTTPWriteTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

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

	// --- Секреты ---

	// Секрет уровня приложения (state, CSRF)
	AppSecret string
	// Секрет подписи session-токенов (отдельный от AppSecret)
	JWTSecret string
	// Время жизни session-токена
	TokenLifetime time.Duration

	// --- Google OIDC ---

	// Client ID зарегистрированного OAuth2-клиента Google
	GoogleClientID string
	// Client Secret
	GoogleClientSecret string
	// URL discovery-документа провайдера
	GoogleDiscoveryURL string
	// TTL кэша discovery-документа
	DiscoveryCacheTTL time.Duration
	// Таймаут HTTP-запросов к провайдеру (discovery, token, userinfo, JWKS)
	IDPTimeout time.Duration

	// --- URLs ---

	// Базовый URL фронтенда (redirect после callback)
	FrontendURL string
	// Базовый URL бэкенда (формирование callback URI)
	BackendURL string

	// --- Мониторинг зависимостей ---

	// Имя группы topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

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

	// AU_PORT — порт HTTP-сервера (по умолчанию 5000)
	cfg.Port, err = getEnvInt("AU_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("AU_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AU_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// AU_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AU_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AU_LOG_LEVEL: %w", err)
	}

	// AU_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AU_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AU_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// AU_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("AU_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AU_HTTP_READ_TIMEOUT: %w", err)
	}

	// AU_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 60s)
	cfg.HTTPWriteTimeout, err = getEnvDuration("AU_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AU_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// AU_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("AU_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AU_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// AU_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("AU_DB_HOST")
	if err != nil {
		return nil, err
	}

	// AU_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AU_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AU_DB_PORT: %w", err)
	}

	// AU_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("AU_DB_NAME")
	if err != nil {
		return nil, err
	}

	// AU_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("AU_DB_USER")
	if err != nil {
		return nil, err
	}

	// AU_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("AU_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// AU_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AU_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AU_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Секреты ---

	// AU_APP_SECRET — обязательный
	cfg.AppSecret, err = getEnvRequired("AU_APP_SECRET")
	if err != nil {
		return nil, err
	}

	// AU_JWT_SECRET — обязательный, должен отличаться от AppSecret
	cfg.JWTSecret, err = getEnvRequired("AU_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == cfg.AppSecret {
		return nil, fmt.Errorf("AU_JWT_SECRET: должен отличаться от AU_APP_SECRET")
	}

	// AU_TOKEN_LIFETIME_HOURS — время жизни токена в часах (по умолчанию 24)
	lifetimeHours, err := getEnvInt("AU_TOKEN_LIFETIME_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("AU_TOKEN_LIFETIME_HOURS: %w", err)
	}
	if lifetimeHours < 1 || lifetimeHours > 720 {
		return nil, fmt.Errorf("AU_TOKEN_LIFETIME_HOURS: значение %d вне допустимого диапазона 1-720", lifetimeHours)
	}
	cfg.TokenLifetime = time.Duration(lifetimeHours) * time.Hour

	// --- Google OIDC ---

	// AU_GOOGLE_CLIENT_ID — обязательный
	cfg.GoogleClientID, err = getEnvRequired("AU_GOOGLE_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// AU_GOOGLE_CLIENT_SECRET — обязательный
	cfg.GoogleClientSecret, err = getEnvRequired("AU_GOOGLE_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// AU_GOOGLE_DISCOVERY_URL — discovery-документ Google (по умолчанию well-known)
	cfg.GoogleDiscoveryURL = getEnvDefault("AU_GOOGLE_DISCOVERY_URL",
		"https://accounts.google.com/.well-known/openid-configuration")

	// AU_DISCOVERY_CACHE_TTL — TTL кэша discovery-документа (по умолчанию 1h)
	cfg.DiscoveryCacheTTL, err = getEnvDuration("AU_DISCOVERY_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AU_DISCOVERY_CACHE_TTL: %w", err)
	}

	// AU_IDP_TIMEOUT — таймаут запросов к провайдеру (по умолчанию 10s)
	cfg.IDPTimeout, err = getEnvDuration("AU_IDP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AU_IDP_TIMEOUT: %w", err)
	}

	// --- URLs ---

	// AU_FRONTEND_URL — базовый URL фронтенда (по умолчанию dev-сервер Vite)
	cfg.FrontendURL = strings.TrimRight(getEnvDefault("AU_FRONTEND_URL", "http://localhost:5173"), "/")

	// AU_BACKEND_URL — базовый URL бэкенда (по умолчанию локальный)
	cfg.BackendURL = strings.TrimRight(getEnvDefault("AU_BACKEND_URL", "http://localhost:5000"), "/")

	// --- Мониторинг зависимостей ---

	// AU_DEPHEALTH_GROUP — имя группы topologymetrics (по умолчанию reportstore)
	cfg.DephealthGroup = getEnvDefault("AU_DEPHEALTH_GROUP", "reportstore")

	// AU_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AU_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AU_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// AU_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AU_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AU_SHUTDOWN_TIMEOUT: %w", err)
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

// DatabaseURL возвращает URL подключения к PostgreSQL (для topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// GoogleRedirectURI возвращает callback URI для authorization code flow.
func (c *Config) GoogleRedirectURI() string {
	return c.BackendURL + "/api/auth/google/callback"
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
