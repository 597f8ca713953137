// Пакет safetensors — ограниченный разбор заголовка файлов safetensors.
//
// Формат: первые 8 байт — длина заголовка L (little-endian uint64),
// затем L байт JSON в UTF-8, затем данные тензоров.
// Длина заголовка проверяется до чтения, поэтому чтение за пределами
// файла невозможно.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"unicode/utf8"
)

// MaxHeaderSize — максимальный размер заголовка (100 MiB).
const MaxHeaderSize = 100 << 20

// MetadataKey — служебный ключ метаданных в заголовке.
const MetadataKey = "__metadata__"

// Ошибки разбора.
var (
	// ErrTooSmall — файл короче 8 байт префикса длины.
	ErrTooSmall = errors.New("safetensors: файл слишком мал для заголовка")
	// ErrHeaderLength — заявленная длина заголовка превышает остаток файла или лимит.
	ErrHeaderLength = errors.New("safetensors: некорректная длина заголовка")
	// ErrHeaderEncoding — заголовок не является UTF-8 JSON-объектом.
	ErrHeaderEncoding = errors.New("safetensors: заголовок не является корректным JSON")
)

// TensorInfo — описание одного тензора.
type TensorInfo struct {
	DType       string  `json:"dtype"`
	Shape       []int64 `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Header — разобранный заголовок.
type Header struct {
	// Length — длина JSON-заголовка в байтах
	Length uint64
	// Metadata — ключи и значения __metadata__ (значения в исходном JSON)
	Metadata map[string]json.RawMessage
	// Tensors — тензоры; записи, не являющиеся объектами, пропускаются.
	// DType заполняется и для записей с некорректными shape/data_offsets.
	Tensors map[string]TensorInfo
	// Malformed — имена тензоров-объектов, чьи поля не разбираются
	// (отсортированы)
	Malformed []string
}

// ReadHeader читает и разбирает заголовок из r размером size байт.
// maxHeader ограничивает длину заголовка; 0 означает MaxHeaderSize.
func ReadHeader(r io.ReaderAt, size int64, maxHeader uint64) (*Header, error) {
	if maxHeader == 0 {
		maxHeader = MaxHeaderSize
	}
	if size < 8 {
		return nil, ErrTooSmall
	}

	var prefix [8]byte
	if _, err := r.ReadAt(prefix[:], 0); err != nil {
		return nil, fmt.Errorf("safetensors: чтение префикса: %w", err)
	}
	length := binary.LittleEndian.Uint64(prefix[:])

	remaining := uint64(size - 8)
	if length > remaining {
		return nil, fmt.Errorf("%w: %d байт заявлено, в файле осталось %d", ErrHeaderLength, length, remaining)
	}
	if length > maxHeader {
		return nil, fmt.Errorf("%w: %d байт превышает лимит %d", ErrHeaderLength, length, maxHeader)
	}

	buf := make([]byte, length)
	if n, err := r.ReadAt(buf, 8); uint64(n) < length {
		return nil, fmt.Errorf("safetensors: чтение заголовка: %w", err)
	}
	if !utf8.Valid(buf) {
		return nil, fmt.Errorf("%w: недопустимая последовательность UTF-8", ErrHeaderEncoding)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeaderEncoding, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: заголовок не является объектом", ErrHeaderEncoding)
	}

	h := &Header{
		Length:   length,
		Metadata: map[string]json.RawMessage{},
		Tensors:  make(map[string]TensorInfo, len(raw)),
	}
	for key, val := range raw {
		if key == MetadataKey {
			// Метаданные, не являющиеся объектом, игнорируются.
			_ = json.Unmarshal(val, &h.Metadata)
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(val, &fields); err != nil || fields == nil {
			continue
		}
		var ti TensorInfo
		if err := json.Unmarshal(val, &ti); err != nil {
			// dtype проверяется независимо от остальных полей.
			ti = TensorInfo{}
			_ = json.Unmarshal(fields["dtype"], &ti.DType)
			h.Malformed = append(h.Malformed, key)
		}
		h.Tensors[key] = ti
	}
	slices.Sort(h.Malformed)
	return h, nil
}

// AllowedDTypes — допустимые типы элементов тензоров.
var AllowedDTypes = map[string]bool{
	"F16": true, "BF16": true, "F32": true, "F64": true,
	"I8": true, "I16": true, "I32": true, "I64": true,
	"U8": true, "U16": true, "U32": true, "U64": true,
	"BOOL": true,
}
