// Пакет stage — контракт этапа сканирования и общие вспомогательные функции.
//
// Этап получает путь к текущей рабочей копии файла, исходное имя файла
// и настройки сканирования. Входные байты считаются враждебными:
// любой разбор ограничен по размеру, вложенности и числу итераций.
package stage

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// Имена этапов в порядке выполнения.
const (
	NameFileIntegrity = "file_integrity"
	NameMalwareScan   = "malware_scan"
	NameSanitization  = "sanitization"
	NameAISafety      = "ai_safety"
)

// Result — результат одного этапа.
type Result struct {
	// Passed — этап не нашёл блокирующих проблем
	Passed bool
	// Findings — находки этапа
	Findings []model.Finding
	// SanitizedPath — путь к очищенной копии; становится рабочим путём
	// для следующих этапов. Пусто, если копия не создавалась.
	SanitizedPath string
}

// Stage — один этап конвейера карантина.
type Stage interface {
	Name() string
	Scan(ctx context.Context, path, originalFilename string, cfg model.ScanConfig) (Result, error)
}

// Finding — конструктор находки этапа.
func Finding(stageName string, sev model.Severity, code, message string, details map[string]any) model.Finding {
	return model.Finding{
		Stage:    stageName,
		Severity: sev,
		Code:     code,
		Message:  message,
		Details:  details,
	}
}

// PassedBelow возвращает Result, который пройден, если нет находок
// с уровнем не ниже threshold.
func PassedBelow(findings []model.Finding, threshold model.Severity) Result {
	return Result{
		Passed:   !model.AnyAtLeast(findings, threshold),
		Findings: findings,
	}
}

// Extension возвращает расширение имени файла в нижнем регистре.
// Двойное расширение .tar.gz распознаётся целиком.
func Extension(filename string) string {
	lower := Basename(filename)
	if strings.HasSuffix(lower, ".tar.gz") {
		return ".tar.gz"
	}
	return filepath.Ext(lower)
}

// Basename возвращает имя файла без каталогов в нижнем регистре.
func Basename(filename string) string {
	// Имена из загрузок могут содержать обратные слэши.
	name := strings.ReplaceAll(filename, "\\", "/")
	return strings.ToLower(filepath.Base(name))
}
