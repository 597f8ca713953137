package checker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// Параметры поиска PII.
const (
	// maxSampleLocations — сколько номеров строк сохраняется в находке
	maxSampleLocations = 5
	// nerChunkSize — размер фрагмента текста для NER, байт
	nerChunkSize = 100_000
)

// Метки сущностей NER.
const (
	EntityPerson   = "PERSON"
	EntityLocation = "GPE"
)

// Entity — именованная сущность.
type Entity struct {
	Text  string
	Label string
}

// EntityRecognizer — внешний распознаватель именованных сущностей.
type EntityRecognizer interface {
	Entities(ctx context.Context, text string) ([]Entity, error)
}

type piiPattern struct {
	code     string
	message  string
	severity model.Severity
	re       *regexp.Regexp
	validate func(match string) bool
}

var piiPatterns = []piiPattern{
	{
		code: "pii_ssn", message: "Номер социального страхования", severity: model.SeverityHigh,
		re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		code: "pii_credit_card", message: "Номер банковской карты", severity: model.SeverityHigh,
		re:       regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		validate: LuhnValid,
	},
	{
		code: "pii_phone", message: "Номер телефона", severity: model.SeverityMedium,
		re: regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	},
	{
		code: "pii_email", message: "Адрес электронной почты", severity: model.SeverityMedium,
		re: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	},
	{
		code: "pii_mrn", message: "Номер медицинской карты", severity: model.SeverityHigh,
		re: regexp.MustCompile(`(?i)\bMRN[:\s#]*\d{6,10}\b`),
	},
	{
		code: "pii_dob", message: "Дата рождения", severity: model.SeverityMedium,
		re: regexp.MustCompile(`(?i)\b(?:DOB|Date of Birth|Born)[:\s]*\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`),
	},
}

// LuhnValid проверяет контрольную сумму номера карты (13–19 цифр).
func LuhnValid(number string) bool {
	var digits []int
	for _, c := range number {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := digits[len(digits)-1-i]
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// PIIScanner ищет персональные данные регулярными выражениями
// и, при включённом NER, внешним распознавателем.
type PIIScanner struct {
	ner EntityRecognizer
}

// NewPIIScanner создаёт сканер. ner может быть nil.
func NewPIIScanner(ner EntityRecognizer) *PIIScanner {
	return &PIIScanner{ner: ner}
}

// Scan возвращает по одной находке на тип PII с числом совпадений
// и номерами первых строк.
func (s *PIIScanner) Scan(ctx context.Context, lines []string, nerEnabled bool) []model.Finding {
	if len(lines) == 0 {
		return nil
	}

	var findings []model.Finding
	for _, p := range piiPatterns {
		count := 0
		var samples []int
		for i, line := range lines {
			matches := p.re.FindAllString(line, -1)
			if p.validate != nil {
				valid := matches[:0]
				for _, m := range matches {
					if p.validate(m) {
						valid = append(valid, m)
					}
				}
				matches = valid
			}
			if len(matches) == 0 {
				continue
			}
			count += len(matches)
			if len(samples) < maxSampleLocations {
				samples = append(samples, i+1)
			}
		}
		if count > 0 {
			findings = append(findings, aiFinding(p.severity, p.code,
				fmt.Sprintf("%s: %d совпадений", p.message, count),
				map[string]any{"count": count, "sample_locations": samples}))
		}
	}

	if nerEnabled {
		findings = append(findings, s.scanEntities(ctx, lines)...)
	}
	return findings
}

func (s *PIIScanner) scanEntities(ctx context.Context, lines []string) []model.Finding {
	if s.ner == nil {
		return []model.Finding{aiFinding(model.SeverityLow, "pii_ner_unavailable",
			"Распознаватель именованных сущностей недоступен", nil)}
	}

	persons, locations := 0, 0
	for _, chunk := range chunkText(strings.Join(lines, "\n"), nerChunkSize) {
		if err := ctx.Err(); err != nil {
			return []model.Finding{nerFailed(err)}
		}
		entities, err := s.ner.Entities(ctx, chunk)
		if err != nil {
			return []model.Finding{nerFailed(err)}
		}
		for _, e := range entities {
			switch e.Label {
			case EntityPerson:
				persons++
			case EntityLocation:
				locations++
			}
		}
	}

	var findings []model.Finding
	if persons > 0 {
		findings = append(findings, aiFinding(model.SeverityMedium, "pii_person_name",
			fmt.Sprintf("Имена людей (NER): %d совпадений", persons),
			map[string]any{"count": persons}))
	}
	if locations > 0 {
		findings = append(findings, aiFinding(model.SeverityMedium, "pii_address",
			fmt.Sprintf("Географические объекты и адреса (NER): %d совпадений", locations),
			map[string]any{"count": locations}))
	}
	return findings
}

func nerFailed(err error) model.Finding {
	return aiFinding(model.SeverityLow, "pii_ner_unavailable",
		"Ошибка распознавания именованных сущностей: "+err.Error(), nil)
}

// chunkText режет текст на фрагменты не длиннее size байт по границам символов.
func chunkText(text string, size int) []string {
	var chunks []string
	for len(text) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
