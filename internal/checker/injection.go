package checker

import (
	"fmt"
	"regexp"

	"golang.org/x/text/unicode/norm"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

type injectionPattern struct {
	code    string
	message string
	re      *regexp.Regexp
}

// injectionPatterns — семейства prompt injection. Текст перед сопоставлением
// приводится к NFKC, поэтому полноширинные и стилизованные буквы
// совпадают с обычными.
var injectionPatterns = []injectionPattern{
	{
		code:    "injection_override",
		message: "Попытка переопределить инструкции",
		re: regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior|above)\s+instructions` +
			`|disregard\s+your\s+instructions|forget\s+everything\s+above|override\s+your\s+programming`),
	},
	{
		code:    "injection_role_hijack",
		message: "Попытка подмены роли",
		re: regexp.MustCompile(`(?i)you\s+are\s+now\s+a|act\s+as\s+if\s+you\s+are|pretend\s+to\s+be` +
			`|switch\s+to|new\s+persona`),
	},
	{
		code:    "injection_prompt_extraction",
		message: "Попытка извлечь системный промпт",
		re: regexp.MustCompile(`(?i)show\s+me\s+your\s+system\s+prompt|what\s+are\s+your\s+instructions` +
			`|repeat\s+your\s+initial\s+prompt|display\s+your\s+rules|reveal\s+your\s+prompt`),
	},
	{
		code:    "injection_delimiter",
		message: "Внедрение разделителей",
		re:      regexp.MustCompile("(?i)```(?:system|assistant)\\b|<(?:system|assistant)\\b[^>]*>"),
	},
	{
		code:    "injection_template",
		message: "Внедрение токенов шаблона чата",
		re: regexp.MustCompile(`(?i)\[INST\]|\[/INST\]|<\|im_start\|>|<\|im_end\|>|<<SYS>>|<</SYS>>` +
			`|<\|system\|>|<\|user\|>|<\|assistant\|>`),
	},
	{
		code:    "injection_jailbreak",
		message: "Известный шаблон jailbreak",
		re: regexp.MustCompile(`(?i)\bDAN\b|Do\s+Anything\s+Now|developer\s+mode|jailbreak` +
			`|bypass\s+safety|ignore\s+safety`),
	},
}

// DetectInjection считает строки с совпадениями по каждому семейству.
// Важность зависит от общей плотности совпадений в файле.
func DetectInjection(lines []string) []model.Finding {
	if len(lines) == 0 {
		return nil
	}

	counts := make([]int, len(injectionPatterns))
	totalHits := 0
	for _, line := range lines {
		normalized := norm.NFKC.String(line)
		for i, p := range injectionPatterns {
			if p.re.MatchString(normalized) {
				counts[i]++
				totalHits++
			}
		}
	}

	sev := injectionSeverity(totalHits, len(lines))
	var findings []model.Finding
	for i, p := range injectionPatterns {
		if counts[i] == 0 {
			continue
		}
		findings = append(findings, aiFinding(sev, p.code,
			fmt.Sprintf("%s: %d совпадений в %d строках", p.message, counts[i], len(lines)),
			map[string]any{"count": counts[i], "total_lines": len(lines)}))
	}
	return findings
}

func injectionSeverity(totalHits, totalLines int) model.Severity {
	density := float64(totalHits) / float64(totalLines)
	switch {
	case density > 0.20:
		return model.SeverityCritical
	case density > 0.05, totalHits > 5:
		return model.SeverityHigh
	case totalHits >= 3:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
