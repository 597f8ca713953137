package integrity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/format/safetensors"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// Лимиты проверки форматов.
const (
	// jsonlCheckLines — число непустых строк JSONL, проверяемых синтаксически
	jsonlCheckLines = 100
	// maxLineSize — максимальная длина строки JSONL
	maxLineSize = 16 << 20
	// maxTextDocSize — YAML/TOML крупнее этого размера не разбираются целиком
	maxTextDocSize = 16 << 20
	// maxYAMLDocuments — максимум документов в одном YAML-потоке
	maxYAMLDocuments = 1000
	// pdfTailSize — размер хвоста PDF, в котором ищется %%EOF
	pdfTailSize = 1024
)

// validateFormat выполняет проверку структуры по расширению.
func validateFormat(path, ext string, size int64) ([]model.Finding, error) {
	switch ext {
	case ".pdf":
		return validatePDF(path, size)
	case ".docx", ".xlsx", ".pptx":
		return validateOfficeZip(path, ext), nil
	case ".json":
		return validateJSON(path)
	case ".jsonl":
		return validateJSONL(path)
	case ".safetensors":
		return validateSafetensors(path, size)
	case ".yaml", ".yml":
		return validateYAML(path, size)
	case ".toml":
		return validateTOML(path, size)
	case ".gz", ".tar.gz":
		return validateGzip(path)
	default:
		return nil, nil
	}
}

func integrityFinding(sev model.Severity, code, message string, details map[string]any) model.Finding {
	return stage.Finding(stage.NameFileIntegrity, sev, code, message, details)
}

func validatePDF(path string, size int64) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 5)
	n, _ := io.ReadFull(f, head)
	if n < 4 || !bytes.HasPrefix(head[:n], []byte("%PDF")) {
		return []model.Finding{integrityFinding(model.SeverityHigh, "invalid_pdf_header",
			"Файл не начинается с сигнатуры %PDF", nil)}, nil
	}

	tailLen := int64(pdfTailSize)
	if size < tailLen {
		tailLen = size
	}
	tail := make([]byte, tailLen)
	if _, err := f.ReadAt(tail, size-tailLen); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return []model.Finding{integrityFinding(model.SeverityMedium, "pdf_parse_error",
			"Структура PDF повреждена: маркер %%EOF не найден", nil)}, nil
	}
	return nil, nil
}

func validateOfficeZip(path, ext string) []model.Finding {
	code := fmt.Sprintf("invalid_%s_structure", strings.TrimPrefix(ext, "."))
	upper := strings.ToUpper(strings.TrimPrefix(ext, "."))

	zr, err := zip.OpenReader(path)
	if err != nil {
		return []model.Finding{integrityFinding(model.SeverityHigh, code,
			fmt.Sprintf("Файл %s не является корректным ZIP-архивом: %v", upper, err), nil)}
	}
	defer zr.Close()

	for i, f := range zr.File {
		if i >= maxMembersPerLayer {
			break
		}
		if f.Name == "[Content_Types].xml" {
			return nil
		}
	}
	return []model.Finding{integrityFinding(model.SeverityHigh, code,
		fmt.Sprintf("В архиве %s отсутствует [Content_Types].xml", upper), nil)}
}

// validateJSON проверяет синтаксис потоково, не строя дерево значений.
func validateJSON(path string) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	invalid := func(err error) []model.Finding {
		return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_json",
			fmt.Sprintf("Некорректный JSON: %v", err), nil)}
	}

	br := bufio.NewReader(f)
	dec := json.NewDecoder(br)
	depth := 0
	values := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return invalid(err), nil
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			values++
			if values > 1 {
				return invalid(errors.New("лишние данные после значения верхнего уровня")), nil
			}
		}
	}
	if values == 0 {
		return invalid(errors.New("пустой документ")), nil
	}
	return nil, nil
}

func validateJSONL(path string) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	checked := 0
	lineNo := 0
	for checked < jsonlCheckLines && sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		checked++
		if !utf8.Valid(line) {
			return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_jsonl_encoding",
				fmt.Sprintf("Строка %d не является корректным UTF-8", lineNo),
				map[string]any{"line": lineNo})}, nil
		}
		if !json.Valid(line) {
			return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_jsonl_line",
				fmt.Sprintf("Некорректный JSON в строке %d", lineNo),
				map[string]any{"line": lineNo})}, nil
		}
	}
	if err := sc.Err(); err != nil {
		return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_jsonl_line",
			fmt.Sprintf("Ошибка чтения после строки %d: %v", lineNo, err),
			map[string]any{"line": lineNo + 1})}, nil
	}
	return nil, nil
}

func validateSafetensors(path string, size int64) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := safetensors.ReadHeader(f, size, 0)
	switch {
	case errors.Is(err, safetensors.ErrTooSmall):
		return []model.Finding{integrityFinding(model.SeverityHigh, "invalid_safetensors",
			"Файл слишком мал для формата safetensors", map[string]any{"file_size": size})}, nil
	case errors.Is(err, safetensors.ErrHeaderLength), errors.Is(err, safetensors.ErrHeaderEncoding):
		return []model.Finding{integrityFinding(model.SeverityHigh, "invalid_safetensors_header",
			fmt.Sprintf("Некорректный заголовок safetensors: %v", err), nil)}, nil
	case err != nil:
		return nil, err
	}

	var findings []model.Finding
	for key := range h.Metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "pickle") || strings.Contains(lower, "exec") {
			findings = append(findings, integrityFinding(model.SeverityCritical, "safetensors_suspicious_metadata",
				fmt.Sprintf("Подозрительный ключ метаданных safetensors: %q", key),
				map[string]any{"key": key}))
		}
	}
	return findings, nil
}

func validateYAML(path string, size int64) ([]model.Finding, error) {
	if size > maxTextDocSize {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	for i := 0; i < maxYAMLDocuments; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_yaml",
				fmt.Sprintf("Некорректный YAML: %v", err), nil)}, nil
		}
	}
	return nil, nil
}

func validateTOML(path string, size int64) ([]model.Finding, error) {
	if size > maxTextDocSize {
		return nil, nil
	}
	var doc map[string]any
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_toml",
				fmt.Sprintf("Некорректный TOML (строка %d): %s", perr.Position.Line, perr.Message), nil)}, nil
		}
		return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_toml",
			fmt.Sprintf("Некорректный TOML: %v", err), nil)}, nil
	}
	return nil, nil
}

// validateGzip проверяет только заголовок gzip, не распаковывая поток.
func validateGzip(path string) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return []model.Finding{integrityFinding(model.SeverityMedium, "invalid_gzip",
			fmt.Sprintf("Некорректный заголовок gzip: %v", err), nil)}, nil
	}
	_ = zr.Close()
	return nil, nil
}
