// Пакет config — загрузка и валидация конфигурации Quarantine Module
// из переменных окружения QR_* и необязательного YAML-файла.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "QR"

// Config содержит все параметры конфигурации Quarantine Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Предел пула соединений; 0 — воркеры сканирования плюс запас для API
	DBMaxConns int
	// Время жизни соединения пула
	DBMaxConnLifetime time.Duration
	// Таймаут установки соединения и стартового ping
	DBConnectTimeout time.Duration

	// --- Хранилище ---

	// Каталог данных карантина (staging, sanitized, held, approved)
	DataDir string
	// Максимальный размер тела запроса загрузки
	MaxUploadSize int64
	// Файл чёрного списка SHA-256 (опционально)
	BlacklistPath string
	// Каталог, внутри которого разрешено сканирование по пути
	// (POST /scans/path); пусто — сканирование по пути выключено
	ScanRoot string
	// Каталог правил YARA (*.yar, *.yara) для сведений о сигнатурах
	YARARulesDir string

	// --- Антивирус ---

	// Unix-сокет демона clamd
	ClamdSocket string
	// Таймаут обмена с clamd
	ClamdTimeout time.Duration

	// --- Конвейер ---

	// Число файлов одного задания, сканируемых параллельно
	ScanWorkers int
	// Повторный запуск незавершённых заданий при старте
	RecoverOnStart bool

	// --- Кэш сводок заданий ---

	JobCacheSize int
	JobCacheTTL  time.Duration

	// --- topologymetrics ---

	DephealthCheckInterval time.Duration
	DephealthGroup         string

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// defaults — значения по умолчанию (ключи без префикса).
var defaults = map[string]any{
	"port":                     8020,
	"log_level":                "info",
	"log_format":               "json",
	"db_port":                  5432,
	"db_ssl_mode":              "disable",
	"db_max_conns":             0,
	"db_max_conn_lifetime":     "1h",
	"db_connect_timeout":       "5s",
	"data_dir":                 "/var/lib/quarantine",
	"max_upload_size":          int64(1 << 30),
	"blacklist_path":           "",
	"scan_root":                "",
	"yara_rules_dir":           "",
	"clamd_socket":             "/var/run/clamav/clamd.ctl",
	"clamd_timeout":            "60s",
	"scan_workers":             4,
	"recover_on_start":         true,
	"job_cache_size":           1024,
	"job_cache_ttl":            "10m",
	"dephealth_check_interval": "15s",
	"dephealth_group":          "quarantine",
	"shutdown_timeout":         "10s",
}

// Load загружает конфигурацию. Значения берутся из переменных окружения
// QR_*, затем из файла configFile (если задан), затем из значений по умолчанию.
// Параметры PostgreSQL проверяются отдельно через ValidateDatabase.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port = v.GetInt("port")
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("QR_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("QR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = v.GetString("log_format")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("QR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost = v.GetString("db_host")
	cfg.DBPort = v.GetInt("db_port")
	cfg.DBName = v.GetString("db_name")
	cfg.DBUser = v.GetString("db_user")
	cfg.DBPassword = v.GetString("db_password")
	if cfg.DBPort < 1 || cfg.DBPort > 65535 {
		return nil, fmt.Errorf("QR_DB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.DBPort)
	}

	cfg.DBSSLMode = v.GetString("db_ssl_mode")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("QR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	cfg.DBMaxConns = v.GetInt("db_max_conns")
	if cfg.DBMaxConns < 0 || cfg.DBMaxConns > 1000 {
		return nil, fmt.Errorf("QR_DB_MAX_CONNS: значение %d вне допустимого диапазона 0-1000", cfg.DBMaxConns)
	}
	if cfg.DBMaxConnLifetime, err = getDuration(v, "db_max_conn_lifetime"); err != nil {
		return nil, err
	}
	if cfg.DBConnectTimeout, err = getDuration(v, "db_connect_timeout"); err != nil {
		return nil, err
	}

	// --- Хранилище ---

	cfg.DataDir = v.GetString("data_dir")
	if cfg.DataDir == "" {
		return nil, errors.New("QR_DATA_DIR: значение не может быть пустым")
	}
	cfg.MaxUploadSize = v.GetInt64("max_upload_size")
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("QR_MAX_UPLOAD_SIZE: значение %d должно быть положительным", cfg.MaxUploadSize)
	}
	cfg.BlacklistPath = v.GetString("blacklist_path")
	cfg.ScanRoot = v.GetString("scan_root")
	cfg.YARARulesDir = v.GetString("yara_rules_dir")

	// --- Антивирус ---

	cfg.ClamdSocket = v.GetString("clamd_socket")
	if cfg.ClamdTimeout, err = getDuration(v, "clamd_timeout"); err != nil {
		return nil, err
	}

	// --- Конвейер ---

	cfg.ScanWorkers = v.GetInt("scan_workers")
	if cfg.ScanWorkers < 1 || cfg.ScanWorkers > 64 {
		return nil, fmt.Errorf("QR_SCAN_WORKERS: значение %d вне допустимого диапазона 1-64", cfg.ScanWorkers)
	}
	cfg.RecoverOnStart = v.GetBool("recover_on_start")

	// --- Кэш ---

	cfg.JobCacheSize = v.GetInt("job_cache_size")
	if cfg.JobCacheSize < 1 {
		return nil, fmt.Errorf("QR_JOB_CACHE_SIZE: значение %d должно быть положительным", cfg.JobCacheSize)
	}
	if cfg.JobCacheTTL, err = getDuration(v, "job_cache_ttl"); err != nil {
		return nil, err
	}

	// --- topologymetrics ---

	if cfg.DephealthCheckInterval, err = getDuration(v, "dephealth_check_interval"); err != nil {
		return nil, err
	}
	cfg.DephealthGroup = v.GetString("dephealth_group")

	if cfg.ShutdownTimeout, err = getDuration(v, "shutdown_timeout"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateDatabase проверяет обязательные параметры PostgreSQL.
// Нужна командам, работающим с базой (serve, migrate).
func (c *Config) ValidateDatabase() error {
	required := []struct {
		env, val string
	}{
		{"QR_DB_HOST", c.DBHost},
		{"QR_DB_NAME", c.DBName},
		{"QR_DB_USER", c.DBUser},
		{"QR_DB_PASSWORD", c.DBPassword},
	}
	var errs []error
	for _, r := range required {
		if r.val == "" {
			errs = append(errs, fmt.Errorf("%s: обязательная переменная окружения не задана", r.env))
		}
	}
	return errors.Join(errs...)
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL базы для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL для topologymetrics (без пароля).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

// getDuration разбирает длительность в формате Go.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("QR_%s: некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)",
			strings.ToUpper(key), raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("QR_%s: длительность должна быть положительной", strings.ToUpper(key))
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
