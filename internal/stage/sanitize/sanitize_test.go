package sanitize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/webp"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// tempWorkspace выдаёт пути очищенных копий во временном каталоге.
type tempWorkspace struct {
	dir string
}

func (w tempWorkspace) SanitizedPath(name string) (string, error) {
	return filepath.Join(w.dir, "sanitized_"+filepath.Base(name)), nil
}

func newStage(t *testing.T) *Stage {
	t.Helper()
	return New(tempWorkspace{dir: t.TempDir()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func codes(findings []model.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Code)
	}
	return out
}

func hasCode(findings []model.Finding, code string) bool {
	for _, f := range findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestScan_PassThrough(t *testing.T) {
	st := newStage(t)
	path := writeTemp(t, "notes.txt", []byte("hello"))

	res, err := st.Scan(context.Background(), path, "notes.txt", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Passed || res.SanitizedPath != "" || len(res.Findings) != 0 {
		t.Errorf("текст не должен изменяться: %+v", res)
	}
}

func TestScan_PDF(t *testing.T) {
	pdf := "%PDF-1.7\n1 0 obj\n<< /Type /Catalog /OpenAction 2 0 R /Names << /JavaScript 3 0 R >> >>\nendobj\n" +
		"4 0 obj\n<< /Length 8 >>\nstream\n/JS junk\nendstream\nendobj\n%%EOF\n"
	st := newStage(t)
	path := writeTemp(t, "doc.pdf", []byte(pdf))

	res, err := st.Scan(context.Background(), path, "doc.pdf", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Passed {
		t.Error("очистка PDF не должна блокировать файл")
	}
	if res.SanitizedPath == "" {
		t.Fatal("ожидалась очищенная копия")
	}
	for _, code := range []string{"pdf_js_removed", "pdf_actions_removed"} {
		if !hasCode(res.Findings, code) {
			t.Errorf("нет находки %s в %v", code, codes(res.Findings))
		}
	}

	out, err := os.ReadFile(res.SanitizedPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(out) != len(pdf) {
		t.Errorf("длина изменилась: %d, хотели %d", len(out), len(pdf))
	}
	if bytes.Contains(out, []byte("/JavaScript")) || bytes.Contains(out, []byte("/OpenAction")) {
		t.Error("активные имена остались в копии")
	}
	if !bytes.Contains(out, []byte("stream\n/JS junk\nendstream")) {
		t.Error("содержимое потока не должно изменяться")
	}
}

func TestScan_PDFObfuscatedNames(t *testing.T) {
	pdf := "%PDF-1.4\n<< /J#61vaScript 1 0 R >>\n%%EOF\n"
	st := newStage(t)
	path := writeTemp(t, "o.pdf", []byte(pdf))

	res, err := st.Scan(context.Background(), path, "o.pdf", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !hasCode(res.Findings, "pdf_obfuscated_names") {
		t.Errorf("ожидалась pdf_obfuscated_names, получено %v", codes(res.Findings))
	}
	if res.SanitizedPath != "" {
		t.Error("без замен копия не создаётся")
	}
}

// objectStreamPDF собирает PDF с одним потоком объектов /Type /ObjStm.
func objectStreamPDF(t *testing.T, dict string, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	buf.WriteString("5 0 obj\n<< /Type /ObjStm /N 1 /First 4 " + dict + " >>\nstream\n")
	buf.Write(body)
	buf.WriteString("\nendstream\nendobj\n%%EOF\n")
	return buf.Bytes()
}

func TestScan_PDFObjectStream(t *testing.T) {
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write([]byte("1 0 << /Type /Catalog /OpenAction 2 0 R /Names << /J#53 3 0 R >> >>")); err != nil {
		t.Fatalf("zlib: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib: %v", err)
	}

	tests := []struct {
		name     string
		dict     string
		body     []byte
		wantCode string
		wantNone bool
	}{
		{name: "flate с активными именами", dict: "/Filter /FlateDecode", body: z.Bytes(), wantCode: "pdf_objstm_active_content"},
		{name: "без фильтра", dict: "", body: []byte("1 0 << /Launch 2 0 R >>"), wantCode: "pdf_objstm_active_content"},
		{name: "неподдерживаемый фильтр", dict: "/Filter /ASCIIHexDecode", body: []byte("3c3c3e3e>"), wantCode: "pdf_objstm_unreadable"},
		{name: "битый flate", dict: "/Filter /FlateDecode", body: []byte("not zlib"), wantCode: "pdf_objstm_unreadable"},
		{name: "безопасный поток", dict: "", body: []byte("1 0 << /Type /Page >>"), wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStage(t)
			path := writeTemp(t, "objstm.pdf", objectStreamPDF(t, tt.dict, tt.body))

			res, err := st.Scan(context.Background(), path, "objstm.pdf", model.DefaultScanConfig())
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if tt.wantNone {
				if len(res.Findings) != 0 {
					t.Errorf("находок быть не должно, получено %v", codes(res.Findings))
				}
				return
			}
			var found *model.Finding
			for i := range res.Findings {
				if res.Findings[i].Code == tt.wantCode {
					found = &res.Findings[i]
				}
			}
			if found == nil {
				t.Fatalf("ожидалась %s, получено %v", tt.wantCode, codes(res.Findings))
			}
			if found.Severity != model.SeverityHigh {
				t.Errorf("Severity = %s, хотели high", found.Severity)
			}
			if res.SanitizedPath != "" {
				t.Error("сжатые потоки не переписываются, копия не создаётся")
			}
		})
	}

	// Имена из сжатого потока перечислены в деталях находки.
	st := newStage(t)
	path := writeTemp(t, "objstm.pdf", objectStreamPDF(t, "/Filter /FlateDecode", z.Bytes()))
	res, err := st.Scan(context.Background(), path, "objstm.pdf", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, f := range res.Findings {
		if f.Code != "pdf_objstm_active_content" {
			continue
		}
		names, _ := f.Details["names"].([]string)
		if strings.Join(names, ",") != "JS,OpenAction" {
			t.Errorf("names = %v, хотели [JS OpenAction]", names)
		}
	}
}

func TestScan_PDFBroken(t *testing.T) {
	st := newStage(t)
	path := writeTemp(t, "bad.pdf", []byte("not a pdf"))

	res, err := st.Scan(context.Background(), path, "bad.pdf", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !hasCode(res.Findings, "pdf_sanitization_error") {
		t.Errorf("ожидалась pdf_sanitization_error, получено %v", codes(res.Findings))
	}
	if res.SanitizedPath != "" {
		t.Error("при ошибке копия не возвращается")
	}
}

func buildZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestScan_OfficeMacros(t *testing.T) {
	data := buildZip(t, map[string]string{
		"[Content_Types].xml":       "<Types/>",
		"word/document.xml":         "<w:document/>",
		"word/vbaProject.bin":       "macro",
		"word/activeX/activeX1.xml": "<ax/>",
	})
	st := newStage(t)
	path := writeTemp(t, "m.docm.docx", data)

	res, err := st.Scan(context.Background(), path, "report.docx", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Findings) != 1 || res.Findings[0].Code != "docx_macros_removed" {
		t.Fatalf("находки = %v", codes(res.Findings))
	}
	if res.Findings[0].Severity != model.SeverityHigh {
		t.Errorf("severity = %s, хотели high", res.Findings[0].Severity)
	}
	if !res.Passed {
		t.Error("high-находка не блокирует этап")
	}

	zr, err := zip.OpenReader(res.SanitizedPath)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	joined := strings.ToLower(strings.Join(names, ","))
	if strings.Contains(joined, "vbaproject") || strings.Contains(joined, "activex") {
		t.Errorf("макросы остались: %v", names)
	}
	if !strings.Contains(joined, "word/document.xml") {
		t.Errorf("основная часть потеряна: %v", names)
	}
}

func TestScan_OfficeWithoutMacros(t *testing.T) {
	data := buildZip(t, map[string]string{"xl/workbook.xml": "<workbook/>"})
	st := newStage(t)
	path := writeTemp(t, "clean.xlsx", data)

	res, err := st.Scan(context.Background(), path, "clean.xlsx", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Passed || res.SanitizedPath != "" || len(res.Findings) != 0 {
		t.Errorf("чистый документ не изменяется: %+v", res)
	}
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 100, A: 255})
		}
	}
	return img
}

func TestScan_PNGReencoded(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	st := newStage(t)
	path := writeTemp(t, "pic.png", buf.Bytes())

	res, err := st.Scan(context.Background(), path, "pic.png", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.SanitizedPath == "" {
		t.Fatal("ожидалась перекодированная копия")
	}
	if hasCode(res.Findings, "image_exif_stripped") {
		t.Error("метаданных не было")
	}
	if !hasCode(res.Findings, "image_reencoded") {
		t.Errorf("ожидалась image_reencoded, получено %v", codes(res.Findings))
	}
}

func TestScan_JPEGWithExif(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	raw := buf.Bytes()
	// APP1 с EXIF сразу после SOI.
	payload := []byte("Exif\x00\x00MM\x00\x2a")
	app1 := []byte{0xFF, 0xE1, 0, byte(len(payload) + 2)}
	app1 = append(app1, payload...)
	withExif := append(append(append([]byte{}, raw[:2]...), app1...), raw[2:]...)

	st := newStage(t)
	path := writeTemp(t, "photo.jpg", withExif)

	res, err := st.Scan(context.Background(), path, "photo.jpg", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !hasCode(res.Findings, "image_exif_stripped") {
		t.Errorf("ожидалась image_exif_stripped, получено %v", codes(res.Findings))
	}
	out, err := os.ReadFile(res.SanitizedPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(out, []byte("Exif\x00\x00")) {
		t.Error("EXIF остался в копии")
	}
}

func TestScan_ImageBroken(t *testing.T) {
	st := newStage(t)
	path := writeTemp(t, "x.png", []byte("\x89PNG garbage"))

	res, err := st.Scan(context.Background(), path, "x.png", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !hasCode(res.Findings, "image_sanitization_error") {
		t.Errorf("ожидалась image_sanitization_error, получено %v", codes(res.Findings))
	}
	if !res.Passed {
		t.Error("ошибка очистки не блокирует этап")
	}
}

// losslessPixel — VP8L-поток изображения 1x1 без контейнера.
func losslessPixel(t *testing.T) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString("UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA==")
	if err != nil {
		t.Fatal(err)
	}
	return raw[12:]
}

func riffChunk(fourcc string, data []byte) []byte {
	out := append([]byte(fourcc), binary.LittleEndian.AppendUint32(nil, uint32(len(data)))...)
	out = append(out, data...)
	if len(data)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func webpFile(chunks ...[]byte) []byte {
	body := bytes.Join(chunks, nil)
	out := append([]byte("RIFF"), binary.LittleEndian.AppendUint32(nil, uint32(4+len(body)))...)
	out = append(out, "WEBP"...)
	return append(out, body...)
}

func TestScan_WebPMetadataStripped(t *testing.T) {
	// VP8X: флаги EXIF|XMP, холст 1x1.
	vp8x := []byte{vp8xFlagEXIF | vp8xFlagXMP, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	data := webpFile(
		riffChunk("VP8X", vp8x),
		losslessPixel(t),
		riffChunk("EXIF", []byte("Exif\x00\x00GPS 55.75N 37.61E")),
		riffChunk("XMP ", []byte("<x:xmpmeta/>")),
		riffChunk("ZZZZ", []byte("payload")),
	)
	data = append(data, "appended after RIFF"...)

	st := newStage(t)
	path := writeTemp(t, "photo.webp", data)
	res, err := st.Scan(context.Background(), path, "photo.webp", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.SanitizedPath == "" {
		t.Fatalf("ожидалась очищенная копия, находки %v", codes(res.Findings))
	}
	if !hasCode(res.Findings, "image_exif_stripped") {
		t.Errorf("ожидалась image_exif_stripped, получено %v", codes(res.Findings))
	}

	out, err := os.ReadFile(res.SanitizedPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, marker := range []string{"EXIF", "XMP ", "ZZZZ", "GPS", "appended"} {
		if bytes.Contains(out, []byte(marker)) {
			t.Errorf("в копии остался %q", marker)
		}
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); int(got) != len(out)-8 {
		t.Errorf("размер RIFF = %d, хотели %d", got, len(out)-8)
	}
	if flags := out[20]; flags&(vp8xFlagEXIF|vp8xFlagXMP) != 0 {
		t.Errorf("флаги VP8X = %#x, EXIF и XMP должны быть сброшены", flags)
	}
	if _, err := webp.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("копия не декодируется: %v", err)
	}
}

func TestScan_WebPPlain(t *testing.T) {
	st := newStage(t)
	path := writeTemp(t, "plain.webp", webpFile(losslessPixel(t)))
	res, err := st.Scan(context.Background(), path, "plain.webp", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if hasCode(res.Findings, "image_exif_stripped") {
		t.Errorf("метаданных не было, получено %v", codes(res.Findings))
	}
	if !hasCode(res.Findings, "image_reencoded") || res.SanitizedPath == "" {
		t.Errorf("ожидалась пересобранная копия, получено %v", codes(res.Findings))
	}
}

func TestScan_WebPBroken(t *testing.T) {
	st := newStage(t)
	path := writeTemp(t, "bad.webp", webpFile(riffChunk("VP8L", []byte("not a bitstream"))))
	res, err := st.Scan(context.Background(), path, "bad.webp", model.DefaultScanConfig())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !hasCode(res.Findings, "image_sanitization_error") {
		t.Errorf("ожидалась image_sanitization_error, получено %v", codes(res.Findings))
	}
	if res.SanitizedPath != "" {
		t.Error("при ошибке копия не возвращается")
	}
}

func TestIsMacroPart(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"word/vbaProject.bin", true},
		{"xl/activeX/activeX1.bin", true},
		{"ppt/embeddings/oleObject1.bin", true},
		{"word/vbaData.xml", false},
		{"customUI/vba_stuff.bin", true},
		{"word/document.xml", false},
	}
	for _, tt := range tests {
		if got := isMacroPart(tt.name); got != tt.want {
			t.Errorf("isMacroPart(%q) = %v, хотели %v", tt.name, got, tt.want)
		}
	}
}
