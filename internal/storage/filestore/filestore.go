// Пакет filestore — файлы карантина на диске.
//
// Раскладка каталога данных:
//
//	staging/{job}/{file}_{name}  — принятые загрузки
//	sanitized/{uuid}_{name}      — очищенные копии
//	held/{file}_{name}           — копии задержанных файлов для проверки
//	approved/{file}_{attempt}_{name} — постоянное хранилище одобренных файлов
//
// Запись всегда идёт в уникальный временный файл с fsync и атомарным rename.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Подкаталоги каталога данных.
const (
	DirStaging   = "staging"
	DirSanitized = "sanitized"
	DirHeld      = "held"
	DirApproved  = "approved"
)

// maxNameLen — максимальная длина безопасного имени без расширения.
const maxNameLen = 100

var (
	// ErrTooLarge — загрузка превысила лимит размера.
	ErrTooLarge = errors.New("размер файла превышает лимит")
	// ErrOutsideDataDir — путь вне каталога данных.
	ErrOutsideDataDir = errors.New("путь вне каталога данных")
)

// FileStore — файлы карантина на диске.
type FileStore struct {
	// dataDir — корневой каталог (QR_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения загрузки.
type SaveResult struct {
	// Path — абсолютный путь файла
	Path string
	// Size — размер в байтах
	Size int64
	// SHA256 — хеш содержимого в hex
	SHA256 string
}

// New создаёт FileStore и подкаталоги.
func New(dataDir string) (*FileStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить путь %s: %w", dataDir, err)
	}
	for _, sub := range []string{DirStaging, DirSanitized, DirHeld, DirApproved} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию %s: %w", sub, err)
		}
	}
	return &FileStore{dataDir: abs}, nil
}

// DataDir возвращает корневой каталог.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// Stage записывает загрузку в staging/{job}/{file}_{name} с подсчётом SHA-256.
// maxSize > 0 ограничивает размер: при превышении возвращается ErrTooLarge
// и частичный файл удаляется.
func (fs *FileStore) Stage(jobID, fileID uuid.UUID, r io.Reader, originalFilename string, maxSize int64) (*SaveResult, error) {
	dir := filepath.Join(fs.dataDir, DirStaging, jobID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории задания: %w", err)
	}
	dst := filepath.Join(dir, fileID.String()+"_"+SafeName(originalFilename))

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	size, sum, err := writeAtomic(dst, src)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && size > maxSize {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, maxSize)
	}
	return &SaveResult{Path: dst, Size: size, SHA256: sum}, nil
}

// SanitizedPath выделяет путь для очищенной копии.
func (fs *FileStore) SanitizedPath(originalFilename string) (string, error) {
	return filepath.Join(fs.dataDir, DirSanitized, uuid.NewString()+"_"+SafeName(originalFilename)), nil
}

// Hold копирует артефакт задержанного файла в held/.
func (fs *FileStore) Hold(fileID uuid.UUID, src, originalFilename string) (string, error) {
	return fs.copyInto(DirHeld, fileID.String(), src, originalFilename)
}

// Promote копирует одобренный артефакт в постоянное хранилище approved/.
// Каждый вызов пишет в собственный путь: параллельные попытки одобрения
// одного файла не затирают и не удаляют копии друг друга.
func (fs *FileStore) Promote(fileID uuid.UUID, src, originalFilename string) (string, error) {
	attempt := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fs.copyInto(DirApproved, fileID.String()+"_"+attempt, src, originalFilename)
}

func (fs *FileStore) copyInto(sub, prefix string, src, originalFilename string) (string, error) {
	if err := fs.checkInside(src); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(fs.dataDir, sub, prefix+"_"+SafeName(originalFilename))
	if _, _, err := writeAtomic(dst, in); err != nil {
		return "", err
	}
	return dst, nil
}

// Remove удаляет файлы. Пустые пути и отсутствующие файлы пропускаются,
// пути вне каталога данных не удаляются.
func (fs *FileStore) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := fs.checkInside(p); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("ошибка удаления файла %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// RemoveJob удаляет каталог staging задания.
func (fs *FileStore) RemoveJob(jobID uuid.UUID) error {
	dir := filepath.Join(fs.dataDir, DirStaging, jobID.String())
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("ошибка удаления директории задания %s: %w", jobID, err)
	}
	return nil
}

// Exists проверяет существование файла.
func (fs *FileStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CheckReady проверяет доступность подкаталогов для readiness probe.
func (fs *FileStore) CheckReady() (status string, message string) {
	for _, sub := range []string{DirStaging, DirSanitized, DirHeld, DirApproved} {
		st, err := os.Stat(filepath.Join(fs.dataDir, sub))
		if err != nil {
			return "fail", err.Error()
		}
		if !st.IsDir() {
			return "fail", sub + " не является каталогом"
		}
	}
	return "ok", ""
}

// checkInside проверяет, что path лежит внутри каталога данных.
func (fs *FileStore) checkInside(path string) error {
	rel, err := filepath.Rel(fs.dataDir, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideDataDir, path)
	}
	return nil
}

// ComputeChecksum вычисляет SHA-256 файла.
func ComputeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// writeAtomic пишет r в dst через уникальный временный файл в том же
// каталоге: запись + SHA-256, fsync, атомарный rename. При ошибке
// временный файл удаляется.
func writeAtomic(dst string, r io.Reader) (int64, string, error) {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()
	if err := f.Chmod(0o640); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка установки прав: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// SafeName делает из исходного имени безопасное имя файла: без каталогов,
// только буквы, цифры, дефис и подчёркивание, расширение сохраняется.
func SafeName(originalFilename string) string {
	base := filepath.Base(strings.ReplaceAll(originalFilename, "\\", "/"))
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	name = sanitize(name)
	if r := []rune(name); len(r) > maxNameLen {
		name = string(r[:maxNameLen])
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name
	}
	return name + "." + strings.ToLower(sanitize(ext))
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}
