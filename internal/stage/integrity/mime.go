package integrity

import (
	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// extensionMIME — допустимые MIME-типы по расширению.
// Расширения вне таблицы MIME-проверку не проходят (проверка пропускается).
var extensionMIME = map[string][]string{
	".pdf":         {"application/pdf"},
	".docx":        {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".xlsx":        {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
	".pptx":        {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"},
	".doc":         {"application/msword", "application/x-ole-storage", octetStream},
	".xls":         {"application/vnd.ms-excel", "application/x-ole-storage", octetStream},
	".json":        {"application/json", "text/plain", "text/x-json"},
	".jsonl":       {"application/json", "text/plain", "application/x-ndjson"},
	".txt":         {"text/plain"},
	".csv":         {"text/plain", "text/csv", "application/csv"},
	".png":         {"image/png"},
	".jpg":         {"image/jpeg"},
	".jpeg":        {"image/jpeg"},
	".gif":         {"image/gif"},
	".webp":        {"image/webp"},
	".svg":         {"image/svg+xml", "text/plain", "text/xml"},
	".safetensors": {octetStream},
	".gguf":        {octetStream},
	".zip":         {"application/zip"},
	".tar":         {"application/x-tar"},
	".gz":          {"application/gzip", "application/x-gzip"},
	".tar.gz":      {"application/gzip", "application/x-gzip"},
	".yaml":        {"text/plain", "text/x-yaml", "application/x-yaml"},
	".yml":         {"text/plain", "text/x-yaml", "application/x-yaml"},
	".toml":        {"text/plain", "application/toml"},
	".md":          {"text/plain", "text/markdown"},
	".py":          {"text/plain", "text/x-python", "text/x-script.python"},
}

// detectMIME определяет MIME-тип по сигнатуре содержимого.
func detectMIME(path string) (*mimetype.MIME, error) {
	return mimetype.DetectFile(path)
}

// mimeAllowed проверяет, совместим ли обнаруженный тип с допустимыми.
// Учитываются родительские типы (docx → zip, csv → text/plain),
// но корневой application/octet-stream принимается только если он
// обнаружен непосредственно.
func mimeAllowed(detected *mimetype.MIME, allowed []string) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m != detected && m.Is(octetStream) {
			break
		}
		for _, a := range allowed {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}
