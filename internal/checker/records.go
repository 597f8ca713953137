// Пакет checker — проверки этапа ai_safety: структура и качество обучающих
// данных, признаки отравления, prompt injection, персональные данные и
// файлы моделей.
//
// Все проверки читают файл с ограничениями: выборка записей, максимальная
// длина строки и число строк текста.
package checker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// Лимиты чтения.
const (
	// MaxSample — число записей JSONL, загружаемых для анализа
	MaxSample = 10_000
	// maxLineSize — максимальная длина одной строки файла
	maxLineSize = 16 << 20
	// maxTextLines — максимальное число строк текста для построчных проверок
	maxTextLines = 1_000_000
)

// Format — формат обучающей записи.
type Format string

const (
	FormatChat        Format = "chat"
	FormatCompletion  Format = "completion"
	FormatInstruction Format = "instruction"
	FormatText        Format = "text"
	FormatUnknown     Format = "unknown"
)

// Record — одна запись JSONL.
type Record map[string]any

// DetectFormat определяет формат по набору полей записи.
func DetectFormat(r Record) Format {
	if msgs, ok := r["messages"]; ok {
		if _, isList := msgs.([]any); isList {
			return FormatChat
		}
	}
	_, hasPrompt := r["prompt"]
	_, hasCompletion := r["completion"]
	switch {
	case hasPrompt && hasCompletion:
		return FormatCompletion
	case has(r, "instruction"):
		return FormatInstruction
	case has(r, "text"):
		return FormatText
	default:
		return FormatUnknown
	}
}

func has(r Record, key string) bool {
	_, ok := r[key]
	return ok
}

// newScanner создаёт построчный сканер с увеличенным буфером.
func newScanner(f *os.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}

// LoadRecords загружает до limit JSON-объектов из JSONL.
// Пустые строки, некорректный JSON и не-объекты пропускаются.
func LoadRecords(path string, limit int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	sc := newScanner(f)
	for len(records) < limit && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec == nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("чтение %s: %w", path, err)
	}
	return records, nil
}

// Content склеивает текстовое содержимое записи для статистики.
func Content(r Record, f Format) string {
	switch f {
	case FormatChat:
		var parts []string
		for _, m := range messages(r) {
			if c, ok := m["content"].(string); ok {
				parts = append(parts, c)
			}
		}
		return strings.Join(parts, " ")
	case FormatCompletion:
		return asText(r["prompt"]) + " " + asText(r["completion"])
	case FormatInstruction:
		parts := []string{asText(r["instruction"])}
		if v, ok := r["input"]; ok {
			parts = append(parts, asText(v))
		}
		if v, ok := r["output"]; ok {
			parts = append(parts, asText(v))
		}
		return strings.Join(parts, " ")
	case FormatText:
		return asText(r["text"])
	default:
		b, _ := json.Marshal(r)
		return string(b)
	}
}

// Input — входная часть пары вход/выход; false, если её нет.
func Input(r Record, f Format) (string, bool) {
	switch f {
	case FormatCompletion:
		return stringField(r, "prompt")
	case FormatInstruction:
		return stringField(r, "instruction")
	case FormatChat:
		for _, m := range messages(r) {
			if m["role"] == "user" {
				s, ok := m["content"].(string)
				return s, ok
			}
		}
	}
	return "", false
}

// Output — выходная часть пары; для чата это последний ответ ассистента.
func Output(r Record, f Format) (string, bool) {
	switch f {
	case FormatCompletion:
		return stringField(r, "completion")
	case FormatInstruction:
		return stringField(r, "output")
	case FormatChat:
		msgs := messages(r)
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i]["role"] == "assistant" {
				s, ok := msgs[i]["content"].(string)
				return s, ok
			}
		}
	}
	return "", false
}

// stringField возвращает строковое поле; отсутствующее считается пустым,
// нестроковое — отсутствующим.
func stringField(r Record, key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		if key == "prompt" || key == "completion" {
			return "", true
		}
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func messages(r Record) []map[string]any {
	list, _ := r["messages"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// TextLines возвращает строки текста для построчных проверок.
// Для JSONL это все строковые значения каждой записи (некорректные
// строки берутся как есть), для остальных файлов — непустые строки.
func TextLines(path, originalFilename string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	jsonl := stage.Extension(originalFilename) == ".jsonl"
	var lines []string
	sc := newScanner(f)
	for len(lines) < maxTextLines && sc.Scan() {
		line := strings.TrimSpace(strings.ToValidUTF8(sc.Text(), "\uFFFD"))
		if line == "" {
			continue
		}
		if !jsonl {
			lines = append(lines, line)
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			lines = append(lines, line)
			continue
		}
		lines = collectStrings(v, lines)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("чтение %s: %w", path, err)
	}
	return lines, nil
}

// collectStrings рекурсивно собирает строковые значения JSON.
func collectStrings(v any, out []string) []string {
	switch t := v.(type) {
	case string:
		out = append(out, t)
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			out = collectStrings(t[k], out)
		}
	case []any:
		for _, item := range t {
			out = collectStrings(item, out)
		}
	}
	return out
}

func aiFinding(sev model.Severity, code, message string, details map[string]any) model.Finding {
	return stage.Finding(stage.NameAISafety, sev, code, message, details)
}
