// Пакет gguf — проверка заголовка файлов GGUF.
// Читаются только первые 8 байт: магия "GGUF" и версия (little-endian uint32).
package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic — сигнатура формата.
const Magic = "GGUF"

// Поддерживаемый диапазон версий.
const (
	MinVersion = 1
	MaxVersion = 3
)

var (
	// ErrBadMagic — файл не начинается с "GGUF" или слишком короткий.
	ErrBadMagic = errors.New("gguf: неверная сигнатура")
	// ErrUnsupportedVersion — версия вне поддерживаемого диапазона.
	ErrUnsupportedVersion = errors.New("gguf: неподдерживаемая версия")
)

// Header — заголовок GGUF.
type Header struct {
	Version uint32
}

// ReadHeader читает сигнатуру и версию.
// При неподдерживаемой версии возвращает заголовок вместе с ErrUnsupportedVersion.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, fmt.Errorf("%w: файл короче заголовка", ErrBadMagic)
		}
		return Header{}, fmt.Errorf("gguf: чтение заголовка: %w", err)
	}
	if string(buf[:4]) != Magic {
		return Header{}, fmt.Errorf("%w: %q", ErrBadMagic, buf[:4])
	}

	h := Header{Version: binary.LittleEndian.Uint32(buf[4:8])}
	if h.Version < MinVersion || h.Version > MaxVersion {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}
