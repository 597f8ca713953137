package checker

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// maxFindingsPerCode — находок одного кода сверх этого числа не выводится,
// вместо них добавляется сводная находка {code}_summary.
const maxFindingsPerCode = 10

var validRoles = map[string]bool{"system": true, "user": true, "assistant": true}

// cappedFindings накапливает находки с ограничением на код.
type cappedFindings struct {
	items  []model.Finding
	counts map[string]int
	order  []string
}

func (c *cappedFindings) add(f model.Finding) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	if c.counts[f.Code] == 0 {
		c.order = append(c.order, f.Code)
	}
	c.counts[f.Code]++
	if c.counts[f.Code] <= maxFindingsPerCode {
		c.items = append(c.items, f)
	}
}

func (c *cappedFindings) result() []model.Finding {
	out := c.items
	for _, code := range c.order {
		total := c.counts[code]
		if total <= maxFindingsPerCode {
			continue
		}
		out = append(out, aiFinding(model.SeverityLow, code+"_summary",
			fmt.Sprintf("Всего %d находок %s (показаны первые %d)", total, code, maxFindingsPerCode),
			map[string]any{"total": total, "shown": maxFindingsPerCode}))
	}
	return out
}

// ValidateTraining проверяет структуру JSONL с обучающими данными.
// Формат определяется по первой корректной записи-объекту.
func ValidateTraining(path string) ([]model.Finding, error) {
	format, err := detectFileFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatUnknown {
		return []model.Finding{aiFinding(model.SeverityMedium, "training_unknown_format",
			"Не удалось определить формат обучающих данных по первой корректной строке", nil)}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var acc cappedFindings
	lineNo := 0
	sc := newScanner(f)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			acc.add(aiFinding(model.SeverityMedium, "training_invalid_json",
				fmt.Sprintf("Строка %d: некорректный JSON: %v", lineNo, err),
				map[string]any{"line": lineNo}))
			continue
		}
		rec, ok := v.(map[string]any)
		if !ok {
			acc.add(aiFinding(model.SeverityMedium, "training_invalid_json",
				fmt.Sprintf("Строка %d не является JSON-объектом", lineNo),
				map[string]any{"line": lineNo}))
			continue
		}

		for _, finding := range validateRecord(Record(rec), lineNo, format) {
			acc.add(finding)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("чтение %s: %w", path, err)
	}
	return acc.result(), nil
}

// detectFileFormat — формат первой корректной записи-объекта.
// Первый корректный JSON, не являющийся объектом, не определяет формат.
func detectFileFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	sc := newScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		rec, ok := v.(map[string]any)
		if !ok {
			continue
		}
		return DetectFormat(Record(rec)), nil
	}
	if err := sc.Err(); err != nil {
		return FormatUnknown, fmt.Errorf("чтение %s: %w", path, err)
	}
	return FormatUnknown, nil
}

func validateRecord(r Record, lineNo int, format Format) []model.Finding {
	switch format {
	case FormatChat:
		return validateChat(r, lineNo)
	case FormatCompletion:
		return validateFields(r, lineNo, "prompt", "completion")
	case FormatInstruction:
		return validateFields(r, lineNo, "instruction")
	case FormatText:
		return validateFields(r, lineNo, "text")
	default:
		return nil
	}
}

func validateChat(r Record, lineNo int) []model.Finding {
	list, ok := r["messages"].([]any)
	if !ok {
		return []model.Finding{aiFinding(model.SeverityMedium, "training_invalid_messages",
			fmt.Sprintf("Строка %d: поле messages не является списком", lineNo),
			map[string]any{"line": lineNo})}
	}

	var findings []model.Finding
	for i, item := range list {
		msg, ok := item.(map[string]any)
		if !ok {
			findings = append(findings, aiFinding(model.SeverityMedium, "training_missing_field",
				fmt.Sprintf("Строка %d, сообщение %d: не является объектом", lineNo, i),
				map[string]any{"line": lineNo, "message_index": i}))
			continue
		}

		role, hasRole := msg["role"]
		content, hasContent := msg["content"]
		if !hasRole || role == nil || !hasContent || content == nil {
			findings = append(findings, aiFinding(model.SeverityMedium, "training_missing_field",
				fmt.Sprintf("Строка %d, сообщение %d: нет role или content", lineNo, i),
				map[string]any{"line": lineNo, "message_index": i}))
			continue
		}

		if s, _ := role.(string); !validRoles[s] {
			findings = append(findings, aiFinding(model.SeverityMedium, "training_invalid_role",
				fmt.Sprintf("Строка %d, сообщение %d: недопустимая роль %v", lineNo, i, role),
				map[string]any{"line": lineNo, "role": role}))
		}
		if s, ok := content.(string); ok && strings.TrimSpace(s) == "" {
			findings = append(findings, aiFinding(model.SeverityLow, "training_empty_content",
				fmt.Sprintf("Строка %d, сообщение %d: пустое содержимое", lineNo, i),
				map[string]any{"line": lineNo, "message_index": i}))
		}
	}
	return findings
}

// validateFields проверяет наличие и непустоту обязательных полей.
func validateFields(r Record, lineNo int, fields ...string) []model.Finding {
	var findings []model.Finding
	for _, field := range fields {
		if !has(r, field) {
			findings = append(findings, aiFinding(model.SeverityMedium, "training_missing_field",
				fmt.Sprintf("Строка %d: нет поля %s", lineNo, field),
				map[string]any{"line": lineNo, "field": field}))
		}
	}
	for _, field := range fields {
		if s, ok := r[field].(string); ok && strings.TrimSpace(s) == "" {
			findings = append(findings, aiFinding(model.SeverityLow, "training_empty_content",
				fmt.Sprintf("Строка %d: пустое поле %s", lineNo, field),
				map[string]any{"line": lineNo, "field": field}))
		}
	}
	return findings
}
