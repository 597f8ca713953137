// Пакет malware — этап антивирусной проверки.
// Сигнатурная проверка делегируется внешнему демону (clamd), дополнительно
// SHA-256 рабочей копии сверяется с чёрным списком хешей.
package malware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bigkaa/goartstore/quarantine-module/internal/clamd"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// Scanner — контракт антивирусного демона.
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) (clamd.Verdict, error)
}

// HashList — набор заведомо вредоносных хешей.
type HashList interface {
	Contains(sha256Hex string) bool
}

// Stage — этап malware_scan.
type Stage struct {
	scanner   Scanner
	blacklist HashList
	logger    *slog.Logger
}

// New создаёт этап. scanner и blacklist могут быть nil:
// без сканера файл получает находку о недоступности, без списка
// проверка хешей пропускается.
func New(scanner Scanner, blacklist HashList, logger *slog.Logger) *Stage {
	return &Stage{
		scanner:   scanner,
		blacklist: blacklist,
		logger:    logger.With(slog.String("component", "stage_malware_scan")),
	}
}

// Name возвращает имя этапа.
func (s *Stage) Name() string {
	return stage.NameMalwareScan
}

// Scan проверяет файл. Недоступность демона никогда не считается
// чистым результатом: она отражается находкой medium.
func (s *Stage) Scan(ctx context.Context, path, originalFilename string, cfg model.ScanConfig) (stage.Result, error) {
	if !cfg.MalwareScanEnabled {
		return stage.Result{Passed: true}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return stage.Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var findings []model.Finding

	if s.blacklist != nil {
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return stage.Result{}, fmt.Errorf("хеширование %s: %w", path, err)
		}
		sum := hex.EncodeToString(h.Sum(nil))
		if s.blacklist.Contains(sum) {
			findings = append(findings, stage.Finding(stage.NameMalwareScan, model.SeverityCritical,
				"hash_blacklisted",
				"SHA-256 файла найден в чёрном списке",
				map[string]any{"sha256": sum},
			))
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return stage.Result{}, fmt.Errorf("seek %s: %w", path, err)
		}
	}

	findings = append(findings, s.scanWithDaemon(ctx, f, originalFilename)...)
	return stage.PassedBelow(findings, model.SeverityHigh), nil
}

func (s *Stage) scanWithDaemon(ctx context.Context, r io.Reader, originalFilename string) []model.Finding {
	if s.scanner == nil {
		return []model.Finding{unavailable("антивирусный демон не настроен")}
	}

	verdict, err := s.scanner.Scan(ctx, r)
	if err != nil {
		s.logger.Warn("Ошибка антивирусной проверки",
			slog.String("filename", originalFilename),
			slog.String("error", err.Error()),
		)
		return []model.Finding{stage.Finding(stage.NameMalwareScan, model.SeverityMedium,
			"malware_scan_error",
			fmt.Sprintf("Ошибка антивирусной проверки: %v", err), nil)}
	}

	switch verdict.Status {
	case clamd.StatusClean:
		return nil
	case clamd.StatusInfected:
		s.logger.Warn("Обнаружена угроза",
			slog.String("filename", originalFilename),
			slog.String("threat", verdict.Threat),
		)
		return []model.Finding{stage.Finding(stage.NameMalwareScan, model.SeverityCritical,
			"malware_detected",
			fmt.Sprintf("Обнаружена угроза: %s", verdict.Threat),
			map[string]any{"threat": verdict.Threat})}
	default:
		return []model.Finding{unavailable(verdict.Message)}
	}
}

func unavailable(reason string) model.Finding {
	return stage.Finding(stage.NameMalwareScan, model.SeverityMedium,
		"malware_scanner_unavailable",
		"Антивирусная проверка не выполнена: демон недоступен",
		map[string]any{"reason": reason})
}
