package sanitize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/image/webp"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// maxWebPSize — WebP крупнее не очищаются.
const maxWebPSize = 64 << 20

// Флаги VP8X, которые сбрасываются вместе с удалёнными чанками.
const (
	vp8xFlagEXIF = 0x08
	vp8xFlagXMP  = 0x04
)

// webpKeptChunks — чанки изображения и анимации; остальные удаляются.
var webpKeptChunks = map[string]bool{
	"VP8 ": true, "VP8L": true, "VP8X": true, "ALPH": true,
	"ANIM": true, "ANMF": true, "ICCP": true,
}

var errWebPContainer = errors.New("некорректный контейнер RIFF/WEBP")

// sanitizeWebP проверяет, что изображение декодируется, и пересобирает
// контейнер RIFF без EXIF, XMP и неизвестных чанков. Пиксельные данные
// не перекодируются: кодировщика WebP в x/image нет.
func sanitizeWebP(src, dst, _ string) (bool, []model.Finding, error) {
	in, err := os.Open(src)
	if err != nil {
		return false, nil, err
	}
	defer in.Close()

	data, err := io.ReadAll(io.LimitReader(in, maxWebPSize+1))
	if err != nil {
		return false, nil, err
	}
	if len(data) > maxWebPSize {
		return false, nil, fmt.Errorf("%w: больше %d байт", errImageTooLarge, maxWebPSize)
	}

	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false, nil, fmt.Errorf("заголовок WebP: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return false, nil, fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}
	if _, err := webp.Decode(bytes.NewReader(data)); err != nil {
		return false, nil, fmt.Errorf("декодирование WebP: %w", err)
	}

	out, stripped, err := rebuildWebP(data)
	if err != nil {
		return false, nil, err
	}
	if err := os.WriteFile(dst, out, 0o640); err != nil {
		return false, nil, err
	}

	var findings []model.Finding
	if len(stripped) > 0 {
		findings = append(findings, sanitizeFinding(model.SeverityLow, "image_exif_stripped",
			"Из изображения удалены EXIF и другие метаданные", map[string]any{"chunks": stripped}))
	}
	findings = append(findings, sanitizeFinding(model.SeverityNone, "image_reencoded",
		"Контейнер WebP пересобран (удалены встроенные данные)", nil))
	return true, findings, nil
}

// rebuildWebP копирует допустимые чанки в новый контейнер и исправляет
// размер RIFF. Данные после заявленного конца RIFF отбрасываются.
func rebuildWebP(data []byte) ([]byte, []string, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, nil, errWebPContainer
	}
	end := 8 + int(binary.LittleEndian.Uint32(data[4:8]))
	if end > len(data) || end < 12 {
		return nil, nil, errWebPContainer
	}

	var body bytes.Buffer
	var stripped []string
	vp8xFlags := -1 // смещение байта флагов VP8X в body
	for pos := 12; pos < end; {
		if pos+8 > end {
			return nil, nil, errWebPContainer
		}
		fourcc := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		if pos+8+size > end {
			return nil, nil, errWebPContainer
		}
		next := min(pos+8+size+size&1, end)

		if !webpKeptChunks[fourcc] {
			stripped = append(stripped, fourcc)
			pos = next
			continue
		}
		if fourcc == "VP8X" && size >= 1 {
			vp8xFlags = body.Len() + 8
		}
		body.Write(data[pos : pos+8+size])
		if size&1 == 1 {
			body.WriteByte(0)
		}
		pos = next
	}
	if end < len(data) {
		stripped = append(stripped, "trailing")
	}

	chunks := body.Bytes()
	if vp8xFlags >= 0 {
		chunks[vp8xFlags] &^= vp8xFlagEXIF | vp8xFlagXMP
	}

	out := make([]byte, 0, 12+len(chunks))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(4+len(chunks)))
	out = append(out, "WEBP"...)
	out = append(out, chunks...)
	return out, stripped, nil
}
