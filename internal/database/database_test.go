package database

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/quarantine-module/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("quarantine_test"),
		postgres.WithUsername("quarantine"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("QR_DB_HOST", host)
	t.Setenv("QR_DB_PORT", port.Port())
	t.Setenv("QR_DB_NAME", "quarantine_test")
	t.Setenv("QR_DB_USER", "quarantine")
	t.Setenv("QR_DB_PASSWORD", "test-password")
	t.Setenv("QR_DB_SSL_MODE", "disable")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestPoolConfig(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			DBHost: "db", DBPort: 5432, DBName: "quarantine", DBUser: "q", DBPassword: "p", DBSSLMode: "disable",
			ScanWorkers:       4,
			DBMaxConnLifetime: time.Hour,
			DBConnectTimeout:  5 * time.Second,
		}
	}

	tests := []struct {
		name     string
		modify   func(c *config.Config)
		wantMax  int32
		wantMin  int32
		wantIdle time.Duration
	}{
		{"размер из числа воркеров", func(*config.Config) {}, 4 + reservedConns, 2, 30 * time.Minute},
		{"явный предел", func(c *config.Config) { c.DBMaxConns = 20 }, 20, 2, 30 * time.Minute},
		{"минимум не больше максимума", func(c *config.Config) { c.DBMaxConns = 1 }, 1, 1, 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(cfg)
			poolCfg, err := PoolConfig(cfg)
			if err != nil {
				t.Fatalf("PoolConfig() вернул ошибку: %v", err)
			}
			if poolCfg.MaxConns != tt.wantMax {
				t.Errorf("MaxConns = %d, хотели %d", poolCfg.MaxConns, tt.wantMax)
			}
			if poolCfg.MinConns != tt.wantMin {
				t.Errorf("MinConns = %d, хотели %d", poolCfg.MinConns, tt.wantMin)
			}
			if poolCfg.MaxConnIdleTime != tt.wantIdle {
				t.Errorf("MaxConnIdleTime = %s, хотели %s", poolCfg.MaxConnIdleTime, tt.wantIdle)
			}
			if poolCfg.ConnConfig.ConnectTimeout != 5*time.Second {
				t.Errorf("ConnectTimeout = %s, хотели 5s", poolCfg.ConnConfig.ConnectTimeout)
			}
			if got := poolCfg.ConnConfig.RuntimeParams["application_name"]; got != "quarantine-module" {
				t.Errorf("application_name = %q", got)
			}
		})
	}
}

func TestPoolUsage(t *testing.T) {
	if got := poolUsage(3, 10); got != "подключение активно, занято 3 из 10 соединений" {
		t.Errorf("poolUsage() = %q", got)
	}
}

// TestConnect проверяет подключение к PostgreSQL через pgxpool.
func TestConnect(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()

	pool, err := Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pool.Ping() вернул ошибку: %v", err)
	}
}

// TestMigrate проверяет применение миграций и ограничения схемы.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение — без ошибки (ErrNoChange)
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"quarantine_jobs", "quarantine_files", "quarantine_audit", "quarantine_config"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	// CHECK-ограничение статуса задания
	_, err = pool.Exec(ctx,
		`INSERT INTO quarantine_jobs (id, status) VALUES (gen_random_uuid(), 'exploded')`)
	if err == nil {
		t.Error("недопустимый статус задания должен отклоняться")
	}
}

// TestReadinessChecker проверяет ReadinessChecker.
func TestReadinessChecker(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()

	pool, err := Connect(ctx, cfg, testLogger())
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	status, msg := NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали status = %q", status, msg, "ok")
	}
}
