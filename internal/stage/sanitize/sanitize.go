// Пакет sanitize — этап очистки содержимого.
//
// Для PDF, документов Office и изображений создаётся очищенная копия,
// которая становится рабочим путём для следующих этапов и артефактом
// для последующего одобрения. Остальные форматы не изменяются.
package sanitize

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// Workspace выделяет пути для очищенных копий.
type Workspace interface {
	SanitizedPath(originalFilename string) (string, error)
}

// Stage — этап sanitization.
type Stage struct {
	workspace Workspace
	logger    *slog.Logger
}

// New создаёт этап очистки.
func New(workspace Workspace, logger *slog.Logger) *Stage {
	return &Stage{
		workspace: workspace,
		logger:    logger.With(slog.String("component", "stage_sanitization")),
	}
}

// Name возвращает имя этапа.
func (s *Stage) Name() string {
	return stage.NameSanitization
}

// sanitizer — очистка одного формата. Возвращает true, если копия по dst создана.
type sanitizer func(src, dst, ext string) (bool, []model.Finding, error)

// Scan очищает файл. Находки носят информационный характер;
// этап не пройден только при критической находке.
func (s *Stage) Scan(ctx context.Context, path, originalFilename string, cfg model.ScanConfig) (stage.Result, error) {
	ext := stage.Extension(originalFilename)

	var fn sanitizer
	switch ext {
	case ".pdf":
		fn = sanitizePDF
	case ".docx", ".xlsx", ".pptx":
		fn = sanitizeOffice
	case ".png", ".jpg", ".jpeg", ".gif":
		fn = sanitizeImage
	case ".webp":
		fn = sanitizeWebP
	default:
		return stage.Result{Passed: true}, nil
	}

	if err := ctx.Err(); err != nil {
		return stage.Result{}, err
	}

	dst, err := s.workspace.SanitizedPath(originalFilename)
	if err != nil {
		return stage.Result{}, fmt.Errorf("путь очищенной копии: %w", err)
	}

	written, findings, err := fn(path, dst, ext)
	if err != nil {
		_ = os.Remove(dst)
		s.logger.Warn("Ошибка очистки",
			slog.String("filename", originalFilename),
			slog.String("error", err.Error()),
		)
		findings = append(findings, stage.Finding(stage.NameSanitization, model.SeverityMedium,
			errorCode(ext),
			fmt.Sprintf("Ошибка очистки %s: %v", ext, err), nil))
		return stage.PassedBelow(findings, model.SeverityCritical), nil
	}

	res := stage.PassedBelow(findings, model.SeverityCritical)
	if written {
		res.SanitizedPath = dst
	} else {
		_ = os.Remove(dst)
	}
	return res, nil
}

// errorCode — код ошибки очистки по расширению.
func errorCode(ext string) string {
	switch ext {
	case ".pdf":
		return "pdf_sanitization_error"
	case ".docx":
		return "docx_sanitization_error"
	case ".xlsx":
		return "xlsx_sanitization_error"
	case ".pptx":
		return "pptx_sanitization_error"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return "image_sanitization_error"
	default:
		return "sanitization_error"
	}
}

func sanitizeFinding(sev model.Severity, code, message string, details map[string]any) model.Finding {
	return stage.Finding(stage.NameSanitization, sev, code, message, details)
}
