package sanitize

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// maxImagePixels — изображения с большим числом пикселей не декодируются.
const maxImagePixels = 100_000_000

// metadataProbe — объём начала файла, в котором ищутся метаданные.
const metadataProbe = 256 << 10

// errImageTooLarge — заявленные размеры изображения превышают лимит.
var errImageTooLarge = errors.New("размеры изображения превышают лимит")

// sanitizeImage декодирует и заново кодирует изображение, отбрасывая
// метаданные и всё, что не является пикселями.
func sanitizeImage(src, dst, ext string) (bool, []model.Finding, error) {
	in, err := os.Open(src)
	if err != nil {
		return false, nil, err
	}
	defer in.Close()

	head := make([]byte, metadataProbe)
	n, err := io.ReadFull(in, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, nil, err
	}
	head = head[:n]
	hadMetadata := hasImageMetadata(head, ext)

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return false, nil, err
	}
	cfg, _, err := image.DecodeConfig(bufio.NewReader(in))
	if err != nil {
		return false, nil, fmt.Errorf("заголовок изображения: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return false, nil, fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return false, nil, err
	}

	var buf bytes.Buffer
	switch ext {
	case ".gif":
		g, err := gif.DecodeAll(bufio.NewReader(in))
		if err != nil {
			return false, nil, fmt.Errorf("декодирование GIF: %w", err)
		}
		if err := gif.EncodeAll(&buf, g); err != nil {
			return false, nil, err
		}
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bufio.NewReader(in))
		if err != nil {
			return false, nil, fmt.Errorf("декодирование JPEG: %w", err)
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
			return false, nil, err
		}
	default:
		img, err := png.Decode(bufio.NewReader(in))
		if err != nil {
			return false, nil, fmt.Errorf("декодирование PNG: %w", err)
		}
		if err := png.Encode(&buf, img); err != nil {
			return false, nil, err
		}
	}

	if err := os.WriteFile(dst, buf.Bytes(), 0o640); err != nil {
		return false, nil, err
	}

	var findings []model.Finding
	if hadMetadata {
		findings = append(findings, sanitizeFinding(model.SeverityLow, "image_exif_stripped",
			"Из изображения удалены EXIF и другие метаданные", nil))
	}
	findings = append(findings, sanitizeFinding(model.SeverityNone, "image_reencoded",
		"Изображение перекодировано (удалены встроенные данные)", nil))
	return true, findings, nil
}

// hasImageMetadata ищет признаки метаданных в начале файла.
func hasImageMetadata(head []byte, ext string) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return bytes.Contains(head, []byte("Exif\x00\x00")) ||
			bytes.Contains(head, []byte("http://ns.adobe.com/xap/1.0/"))
	case ".png":
		return pngHasMetadata(head)
	case ".gif":
		// Расширение комментария GIF.
		return bytes.Contains(head, []byte{0x21, 0xFE})
	default:
		return false
	}
}

// pngHasMetadata проходит по чанкам PNG в пределах head.
func pngHasMetadata(head []byte) bool {
	const sigLen = 8
	if len(head) < sigLen {
		return false
	}
	pos := sigLen
	for pos+8 <= len(head) {
		length := int(binary.BigEndian.Uint32(head[pos : pos+4]))
		kind := string(head[pos+4 : pos+8])
		switch kind {
		case "eXIf", "tEXt", "iTXt", "zTXt":
			return true
		case "IEND":
			return false
		}
		if length < 0 || length > len(head) {
			return false
		}
		pos += 12 + length
	}
	return false
}
