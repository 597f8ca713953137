package sanitize

import (
	"bytes"
	"errors"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// maxPDFSize — PDF крупнее не очищаются (читаются целиком в память).
const maxPDFSize = 256 << 20

// maxObjStmSize — предел распакованного потока объектов.
const maxObjStmSize = 64 << 20

// pdfFilterNames — имена фильтров потоков PDF (полные и сокращённые).
var pdfFilterNames = map[string]bool{
	"FlateDecode": true, "Fl": true,
	"ASCIIHexDecode": true, "AHx": true,
	"ASCII85Decode": true, "A85": true,
	"LZWDecode": true, "LZW": true,
	"RunLengthDecode": true, "RL": true,
	"CCITTFaxDecode": true, "CCF": true,
	"DCTDecode": true, "DCT": true,
	"JBIG2Decode": true, "JPXDecode": true, "Crypt": true,
}

// pdfCategory — категория активного содержимого PDF.
type pdfCategory int

const (
	pdfJS pdfCategory = iota
	pdfActions
	pdfEmbedded
)

// pdfActiveNames — имена словарей, включающие активное содержимое.
var pdfActiveNames = map[string]pdfCategory{
	"JavaScript":    pdfJS,
	"JS":            pdfJS,
	"OpenAction":    pdfActions,
	"AA":            pdfActions,
	"Launch":        pdfActions,
	"SubmitForm":    pdfActions,
	"EmbeddedFiles": pdfEmbedded,
	"EmbeddedFile":  pdfEmbedded,
}

// sanitizePDF обезвреживает активные имена PDF заменой регистра букв.
// Длина файла и смещения xref сохраняются, а читатели PDF перестают
// распознавать словари (имена в PDF регистрозависимы).
// Имена с #-экранированием переписать без изменения длины нельзя,
// они отражаются находкой high.
func sanitizePDF(src, dst, _ string) (bool, []model.Finding, error) {
	st, err := os.Stat(src)
	if err != nil {
		return false, nil, err
	}
	if st.Size() > maxPDFSize {
		return false, []model.Finding{sanitizeFinding(model.SeverityLow, "pdf_sanitization_skipped",
			"PDF слишком велик для очистки", map[string]any{"file_size": st.Size(), "max_size": maxPDFSize})}, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return false, nil, err
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return false, nil, errors.New("отсутствует сигнатура %PDF")
	}

	counts := map[pdfCategory]int{}
	var obfuscated []string
	var streamed objStmReport

	for i := 0; i < len(data); i++ {
		// Содержимое потоков (сжатые данные, изображения) не изменяется.
		// Потоки объектов (/Type /ObjStm) распаковываются и проверяются.
		if data[i] == 's' && isStreamStart(data, i) {
			end := bytes.Index(data[i:], []byte("endstream"))
			if end < 0 {
				break
			}
			streamed.inspect(data, i, i+end)
			i += end + len("endstream") - 1
			continue
		}
		if data[i] != '/' {
			continue
		}
		start := i + 1
		end := start
		for end < len(data) && !isPDFDelimiter(data[end]) {
			end++
		}
		raw := data[start:end]
		i = end - 1
		if len(raw) == 0 {
			continue
		}

		if bytes.IndexByte(raw, '#') >= 0 {
			if decoded, ok := decodePDFName(raw); ok {
				if _, active := pdfActiveNames[decoded]; active {
					obfuscated = append(obfuscated, decoded)
				}
			}
			continue
		}

		cat, ok := pdfActiveNames[string(raw)]
		if !ok {
			continue
		}
		flipCase(raw)
		counts[cat]++
	}

	var findings []model.Finding
	if n := counts[pdfJS]; n > 0 {
		findings = append(findings, sanitizeFinding(model.SeverityMedium, "pdf_js_removed",
			"Из PDF удалён JavaScript", map[string]any{"count": n}))
	}
	if n := counts[pdfActions]; n > 0 {
		findings = append(findings, sanitizeFinding(model.SeverityMedium, "pdf_actions_removed",
			"Из PDF удалены автоматические действия", map[string]any{"count": n}))
	}
	if n := counts[pdfEmbedded]; n > 0 {
		findings = append(findings, sanitizeFinding(model.SeverityMedium, "pdf_embedded_files_removed",
			"Из PDF удалены вложенные файлы", map[string]any{"count": n}))
	}
	if len(obfuscated) > 0 {
		findings = append(findings, sanitizeFinding(model.SeverityHigh, "pdf_obfuscated_names",
			"PDF содержит экранированные имена активного содержимого", map[string]any{"names": obfuscated}))
	}
	findings = append(findings, streamed.findings()...)

	if len(counts) == 0 {
		return false, findings, nil
	}
	if err := os.WriteFile(dst, data, 0o640); err != nil {
		return false, findings, err
	}
	return true, findings, nil
}

// objStmReport — активное содержимое внутри сжатых потоков объектов.
// Переписать сжатый поток без сдвига смещений xref нельзя, поэтому
// такие имена не обезвреживаются, а отражаются находкой high.
type objStmReport struct {
	names      []string
	streams    int
	unreadable int
}

// inspect проверяет поток, ключевое слово stream которого начинается
// с позиции start, а endstream — с позиции end.
func (r *objStmReport) inspect(data []byte, start, end int) {
	dictStart := bytes.LastIndex(data[:start], []byte("obj"))
	if dictStart < 0 {
		return
	}
	dict := pdfNames(data[dictStart:start])
	if !slices.Contains(dict, "ObjStm") {
		return
	}

	body := data[start+len("stream") : end]
	body = bytes.TrimPrefix(body, []byte("\r"))
	body = bytes.TrimPrefix(body, []byte("\n"))

	var filters []string
	for _, name := range dict {
		if pdfFilterNames[name] {
			filters = append(filters, name)
		}
	}
	switch {
	case len(filters) == 0:
	case len(filters) == 1 && (filters[0] == "FlateDecode" || filters[0] == "Fl"):
		inflated, err := inflate(body)
		if err != nil {
			r.unreadable++
			return
		}
		body = inflated
	default:
		r.unreadable++
		return
	}

	found := false
	for _, name := range pdfNames(body) {
		if _, active := pdfActiveNames[name]; active {
			found = true
			if !slices.Contains(r.names, name) {
				r.names = append(r.names, name)
			}
		}
	}
	if found {
		r.streams++
	}
}

func (r *objStmReport) findings() []model.Finding {
	var out []model.Finding
	if len(r.names) > 0 {
		slices.Sort(r.names)
		out = append(out, sanitizeFinding(model.SeverityHigh, "pdf_objstm_active_content",
			"Сжатый поток объектов PDF содержит активное содержимое",
			map[string]any{"names": r.names, "streams": r.streams}))
	}
	if r.unreadable > 0 {
		out = append(out, sanitizeFinding(model.SeverityHigh, "pdf_objstm_unreadable",
			"Поток объектов PDF не удалось распаковать для проверки",
			map[string]any{"streams": r.unreadable}))
	}
	return out
}

// inflate распаковывает FlateDecode-поток с ограничением размера.
// Усечённый поток допускается, если из него что-то прочитано.
func inflate(body []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxObjStmSize))
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return out, nil
}

// pdfNames возвращает имена PDF из фрагмента с раскрытым #-экранированием.
func pdfNames(data []byte) []string {
	var names []string
	for i := 0; i < len(data); i++ {
		if data[i] != '/' {
			continue
		}
		end := i + 1
		for end < len(data) && !isPDFDelimiter(data[end]) {
			end++
		}
		if raw := data[i+1 : end]; len(raw) > 0 {
			if decoded, ok := decodePDFName(raw); ok {
				names = append(names, decoded)
			}
		}
		i = end - 1
	}
	return names
}

// isStreamStart — ключевое слово stream, за которым следует перевод строки.
func isStreamStart(data []byte, i int) bool {
	const kw = "stream"
	if !bytes.HasPrefix(data[i:], []byte(kw)) {
		return false
	}
	if i > 0 && !isPDFDelimiter(data[i-1]) {
		return false
	}
	next := i + len(kw)
	return next < len(data) && (data[next] == '\r' || data[next] == '\n')
}

// isPDFDelimiter — пробельные символы и разделители PDF.
func isPDFDelimiter(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ',
		'(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return false
	}
}

// decodePDFName раскрывает #xx-последовательности имени.
func decodePDFName(raw []byte) (string, bool) {
	var out []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] != '#' {
			out = append(out, raw[i])
			continue
		}
		if i+2 >= len(raw) {
			return "", false
		}
		v, err := strconv.ParseUint(string(raw[i+1:i+3]), 16, 8)
		if err != nil {
			return "", false
		}
		out = append(out, byte(v))
		i += 2
	}
	return string(out), true
}

// flipCase меняет регистр ASCII-букв на месте.
func flipCase(b []byte) {
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case c >= 'A' && c <= 'Z':
			b[i] = c - 'A' + 'a'
		}
	}
}
