// Пакет integrity — этап проверки целостности файла: размер, сигнатура
// содержимого против расширения, структура формата и zip-бомбы.
package integrity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// Stage — этап file_integrity.
type Stage struct {
	logger *slog.Logger
}

// New создаёт этап проверки целостности.
func New(logger *slog.Logger) *Stage {
	return &Stage{
		logger: logger.With(slog.String("component", "stage_file_integrity")),
	}
}

// Name возвращает имя этапа.
func (s *Stage) Name() string {
	return stage.NameFileIntegrity
}

// Scan выполняет проверки. Этап не пройден, если есть находка high и выше.
func (s *Stage) Scan(ctx context.Context, path, originalFilename string, cfg model.ScanConfig) (stage.Result, error) {
	size, err := statSize(path)
	if err != nil {
		return stage.Result{}, fmt.Errorf("stat %s: %w", path, err)
	}
	ext := stage.Extension(originalFilename)

	var findings []model.Finding

	// 1. Размер
	if size > cfg.MaxFileSize {
		findings = append(findings, stage.Finding(stage.NameFileIntegrity, model.SeverityHigh,
			"file_too_large",
			fmt.Sprintf("Размер файла (%d байт) превышает максимум (%d байт)", size, cfg.MaxFileSize),
			map[string]any{"file_size": size, "max_size": cfg.MaxFileSize},
		))
	}

	// 2. MIME по сигнатуре
	findings = append(findings, s.checkMIME(path, ext)...)

	if err := ctx.Err(); err != nil {
		return stage.Result{}, err
	}

	// 3. Структура формата
	formatFindings, err := validateFormat(path, ext, size)
	if err != nil {
		s.logger.Warn("Ошибка проверки формата",
			slog.String("filename", originalFilename),
			slog.String("error", err.Error()),
		)
		formatFindings = []model.Finding{stage.Finding(stage.NameFileIntegrity, model.SeverityMedium,
			"format_validation_error",
			fmt.Sprintf("Ошибка проверки формата %s: %v", ext, err), nil)}
	}
	findings = append(findings, formatFindings...)

	// 4. Zip-бомбы
	findings = append(findings, checkArchiveBomb(path, ext, size, cfg)...)

	return stage.PassedBelow(findings, model.SeverityHigh), nil
}

// DetectMIME возвращает MIME-тип содержимого файла (пусто при ошибке).
func DetectMIME(path string) string {
	m, err := detectMIME(path)
	if err != nil {
		return ""
	}
	return m.String()
}

func (s *Stage) checkMIME(path, ext string) []model.Finding {
	detected, err := detectMIME(path)
	if err != nil {
		return []model.Finding{stage.Finding(stage.NameFileIntegrity, model.SeverityMedium,
			"mime_detection_failed",
			fmt.Sprintf("Не удалось определить MIME-тип: %v", err), nil)}
	}

	allowed, ok := extensionMIME[ext]
	if !ok || mimeAllowed(detected, allowed) {
		return nil
	}

	return []model.Finding{stage.Finding(stage.NameFileIntegrity, model.SeverityHigh,
		"mime_mismatch",
		fmt.Sprintf("Несовпадение MIME-типа: для расширения %q ожидался один из %v, обнаружен %q",
			ext, allowed, detected.String()),
		map[string]any{"extension": ext, "expected": allowed, "detected": detected.String()},
	)}
}
