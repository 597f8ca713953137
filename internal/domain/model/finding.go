package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity — уровень серьёзности находки.
// Значения упорядочены: none < low < medium < high < critical.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank — порядковый номер уровня для сравнения.
var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank возвращает порядковый номер уровня (неизвестный уровень = 0).
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast проверяет, что уровень не ниже other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity преобразует строку в Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(s))
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("недопустимый уровень серьёзности: %q", s)
	}
	return sev, nil
}

// AllSeverities — все уровни в порядке возрастания.
func AllSeverities() []Severity {
	return []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Finding — одно наблюдение этапа или проверяющего модуля.
type Finding struct {
	Stage    string         `json:"stage"`
	Severity Severity       `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// MaxSeverity возвращает максимальный уровень среди находок.
// Для пустого списка — none.
func MaxSeverity(findings []Finding) Severity {
	top := SeverityNone
	for _, f := range findings {
		if f.Severity.Rank() > top.Rank() {
			top = f.Severity
		}
	}
	return top
}

// AnyAtLeast проверяет, есть ли находка с уровнем не ниже threshold.
func AnyAtLeast(findings []Finding, threshold Severity) bool {
	for _, f := range findings {
		if f.Severity.AtLeast(threshold) {
			return true
		}
	}
	return false
}

// MarshalFindings сериализует список находок для хранения в JSONB.
// nil превращается в пустой массив.
func MarshalFindings(findings []Finding) ([]byte, error) {
	if findings == nil {
		findings = []Finding{}
	}
	return json.Marshal(findings)
}

// UnmarshalFindings разбирает JSONB-массив находок.
func UnmarshalFindings(data []byte) ([]Finding, error) {
	if len(data) == 0 {
		return []Finding{}, nil
	}
	var findings []Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("ошибка разбора находок: %w", err)
	}
	if findings == nil {
		findings = []Finding{}
	}
	return findings, nil
}
