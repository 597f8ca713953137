// Пакет aisafety — этап проверок, специфичных для ИИ: обучающие данные,
// файлы моделей и текст.
package aisafety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/goartstore/quarantine-module/internal/checker"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// Kind — вид файла для маршрутизации проверок.
type Kind int

const (
	KindOther Kind = iota
	KindTraining
	KindModel
	KindText
)

// String возвращает имя вида.
func (k Kind) String() string {
	switch k {
	case KindTraining:
		return "training"
	case KindModel:
		return "model"
	case KindText:
		return "text"
	default:
		return "other"
	}
}

var (
	modelExtensions = map[string]bool{
		".safetensors": true, ".gguf": true, ".pkl": true, ".pickle": true,
		".bin": true, ".pt": true, ".pth": true, ".ckpt": true,
	}
	textExtensions = map[string]bool{".txt": true, ".csv": true, ".json": true, ".md": true}
)

// Classify определяет вид файла по расширению и имени.
// config.json считается конфигурацией модели, а не текстом.
func Classify(originalFilename string) Kind {
	ext := stage.Extension(originalFilename)
	switch {
	case ext == ".jsonl":
		return KindTraining
	case modelExtensions[ext], stage.Basename(originalFilename) == "config.json":
		return KindModel
	case textExtensions[ext]:
		return KindText
	default:
		return KindOther
	}
}

// Stage — этап ai_safety.
type Stage struct {
	pii    *checker.PIIScanner
	logger *slog.Logger
}

// New создаёт этап. ner может быть nil: тогда при включённом NER
// добавляется находка pii_ner_unavailable.
func New(ner checker.EntityRecognizer, logger *slog.Logger) *Stage {
	return &Stage{
		pii:    checker.NewPIIScanner(ner),
		logger: logger.With(slog.String("component", "stage_ai_safety")),
	}
}

// Name возвращает имя этапа.
func (s *Stage) Name() string {
	return stage.NameAISafety
}

// check — одна проверка с именем для журнала и находки об ошибке.
type check struct {
	name string
	run  func() ([]model.Finding, error)
}

// Scan запускает проверки по виду файла. Ошибка отдельной проверки
// становится находкой ai_safety_error, остальные проверки выполняются.
func (s *Stage) Scan(ctx context.Context, path, originalFilename string, cfg model.ScanConfig) (stage.Result, error) {
	if !cfg.AISafetyEnabled {
		return stage.Result{Passed: true}, nil
	}

	var findings []model.Finding
	for _, c := range s.plan(ctx, path, originalFilename, cfg) {
		if err := ctx.Err(); err != nil {
			return stage.Result{}, err
		}
		got, err := c.run()
		if err != nil {
			s.logger.Warn("Ошибка проверки ai_safety",
				slog.String("check", c.name),
				slog.String("filename", originalFilename),
				slog.String("error", err.Error()),
			)
			findings = append(findings, stage.Finding(stage.NameAISafety, model.SeverityMedium, "ai_safety_error",
				fmt.Sprintf("Ошибка проверки %s: %v", c.name, err),
				map[string]any{"check": c.name}))
			continue
		}
		findings = append(findings, got...)
	}

	return stage.Result{Passed: passed(findings, cfg), Findings: findings}, nil
}

// plan составляет список проверок для файла.
func (s *Stage) plan(ctx context.Context, path, filename string, cfg model.ScanConfig) []check {
	// Записи и строки текста читаются один раз на файл.
	var (
		records    []checker.Record
		recordsErr error
		loaded     bool
		lines      []string
		linesErr   error
		linesRead  bool
	)
	loadRecords := func() ([]checker.Record, error) {
		if !loaded {
			records, recordsErr = checker.LoadRecords(path, checker.MaxSample)
			loaded = true
		}
		return records, recordsErr
	}
	loadLines := func() ([]string, error) {
		if !linesRead {
			lines, linesErr = checker.TextLines(path, filename)
			linesRead = true
		}
		return lines, linesErr
	}

	injection := check{"injection", func() ([]model.Finding, error) {
		l, err := loadLines()
		if err != nil {
			return nil, err
		}
		return checker.DetectInjection(l), nil
	}}
	pii := check{"pii", func() ([]model.Finding, error) {
		l, err := loadLines()
		if err != nil {
			return nil, err
		}
		return s.pii.Scan(ctx, l, cfg.NEREnabled), nil
	}}

	var plan []check
	switch Classify(filename) {
	case KindTraining:
		plan = append(plan,
			check{"training_validator", func() ([]model.Finding, error) {
				return checker.ValidateTraining(path)
			}},
			check{"training_analyzer", func() ([]model.Finding, error) {
				r, err := loadRecords()
				if err != nil {
					return nil, err
				}
				return checker.AnalyzeTraining(r), nil
			}},
			check{"poisoning", func() ([]model.Finding, error) {
				r, err := loadRecords()
				if err != nil {
					return nil, err
				}
				return checker.AnalyzePoisoning(r), nil
			}},
		)
		if cfg.InjectionDetectionEnabled {
			plan = append(plan, injection)
		}
		if cfg.PIIEnabled {
			plan = append(plan, pii)
		}
	case KindModel:
		if cfg.ModelHashVerification {
			plan = append(plan, check{"model_validator", func() ([]model.Finding, error) {
				return checker.ValidateModel(path, filename)
			}})
		}
	case KindText:
		if cfg.PIIEnabled {
			plan = append(plan, pii)
		}
		if cfg.InjectionDetectionEnabled {
			plan = append(plan, injection)
		}
	}
	return plan
}

// passed — этап не пройден при находке high и выше, а в режиме
// pii_action=block также при находке pii_* уровня medium и выше.
func passed(findings []model.Finding, cfg model.ScanConfig) bool {
	if model.AnyAtLeast(findings, model.SeverityHigh) {
		return false
	}
	if cfg.PIIAction != model.PIIActionBlock {
		return true
	}
	for _, f := range findings {
		if strings.HasPrefix(f.Code, "pii_") && f.Severity.AtLeast(model.SeverityMedium) {
			return false
		}
	}
	return true
}
