// config.go — настройки сканирования поверх внешнего хранилища ключ/значение.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// ConfigService читает и обновляет настройки сканирования.
type ConfigService struct {
	store  ConfigStore
	logger *slog.Logger
}

// NewConfigService создаёт сервис настроек.
func NewConfigService(store ConfigStore, logger *slog.Logger) *ConfigService {
	return &ConfigService{
		store:  store,
		logger: logger.With(slog.String("component", "scan_config")),
	}
}

// Get возвращает текущие настройки. Отсутствующие ключи получают значения
// по умолчанию; некорректные сохранённые значения тоже заменяются
// значениями по умолчанию с предупреждением в журнале.
func (s *ConfigService) Get(ctx context.Context) (model.ScanConfig, error) {
	values, err := s.store.LoadConfig(ctx, model.ConfigKeyPrefix)
	if err != nil {
		return model.ScanConfig{}, fmt.Errorf("ошибка чтения настроек: %w", err)
	}
	cfg, err := model.FromMap(values)
	if err != nil {
		s.logger.Warn("Некорректные сохранённые настройки, используются значения по умолчанию",
			slog.String("error", err.Error()),
		)
	}
	return cfg, nil
}

// Update применяет частичное обновление и сохраняет изменённые ключи.
// Неизвестные ключи и null игнорируются.
func (s *ConfigService) Update(ctx context.Context, patch map[string]any) (model.ScanConfig, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return model.ScanConfig{}, err
	}

	next, changed, err := current.Apply(patch)
	if err != nil {
		if errors.Is(err, model.ErrInvalidConfig) {
			return model.ScanConfig{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return model.ScanConfig{}, err
	}
	if len(changed) == 0 {
		return next, nil
	}

	all := next.ToMap()
	values := make(map[string]string, len(changed))
	for _, key := range changed {
		values[key] = all[key]
	}
	if err := s.store.SaveConfig(ctx, model.ConfigKeyPrefix, values); err != nil {
		return model.ScanConfig{}, fmt.Errorf("ошибка сохранения настроек: %w", err)
	}

	s.logger.Info("Настройки сканирования обновлены",
		slog.Any("keys", changed),
		slog.String("fingerprint", next.Fingerprint()),
	)
	return next, nil
}
