package repository

import (
	"context"
	"fmt"
	"strings"
)

// ConfigRepository — плоское хранилище настроек ключ/значение (quarantine_config).
type ConfigRepository interface {
	// GetByPrefix возвращает настройки с префиксом prefix; префикс из ключей убирается.
	GetByPrefix(ctx context.Context, prefix string) (map[string]string, error)
	// Upsert записывает значение ключа.
	Upsert(ctx context.Context, key, value string) error
}

type configRepo struct {
	db DBTX
}

// NewConfigRepository создаёт репозиторий настроек.
func NewConfigRepository(db DBTX) ConfigRepository {
	return &configRepo{db: db}
}

func (r *configRepo) GetByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	query := `
		SELECT key, value FROM quarantine_config
		WHERE starts_with(key, $1)`

	rows, err := r.db.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("ошибка сканирования настройки: %w", err)
		}
		result[strings.TrimPrefix(key, prefix)] = value
	}
	return result, rows.Err()
}

func (r *configRepo) Upsert(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO quarantine_config (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()`

	if _, err := r.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("ошибка сохранения настройки %s: %w", key, err)
	}
	return nil
}
