package sanitize

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// maxOfficeOutput — максимальный суммарный объём распакованных частей
// при пересборке документа.
const maxOfficeOutput = 512 << 20

// errOfficeTooLarge — пересборка превысила лимит объёма.
var errOfficeTooLarge = errors.New("распакованный объём документа превышает лимит")

// isMacroPart — части с макросами VBA, ActiveX и OLE-объектами.
func isMacroPart(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "vbaproject") ||
		strings.Contains(lower, "activex") ||
		strings.Contains(lower, "oleobject") ||
		(strings.HasSuffix(lower, ".bin") && strings.Contains(lower, "vba"))
}

// sanitizeOffice пересобирает ZIP-контейнер Office без частей с макросами.
// Без макросов копия не создаётся.
func sanitizeOffice(src, dst, ext string) (bool, []model.Finding, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return false, nil, fmt.Errorf("открытие архива: %w", err)
	}
	defer zr.Close()

	var removed []string
	for _, f := range zr.File {
		if isMacroPart(f.Name) {
			removed = append(removed, f.Name)
		}
	}
	if len(removed) == 0 {
		return false, nil, nil
	}

	if err := rebuildZip(&zr.Reader, dst); err != nil {
		return false, nil, err
	}

	kind := strings.TrimPrefix(ext, ".")
	return true, []model.Finding{sanitizeFinding(model.SeverityHigh, kind+"_macros_removed",
		fmt.Sprintf("Из %s удалены макросы VBA / ActiveX / OLE-объекты", strings.ToUpper(kind)),
		map[string]any{"removed_parts": removed})}, nil
}

func rebuildZip(zr *zip.Reader, dst string) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	budget := int64(maxOfficeOutput)

	for _, f := range zr.File {
		if isMacroPart(f.Name) {
			continue
		}
		hdr := f.FileHeader
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     hdr.Name,
			Method:   zip.Deflate,
			Modified: hdr.Modified,
			Comment:  "",
		})
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("чтение части %s: %w", f.Name, err)
		}
		n, err := io.Copy(w, io.LimitReader(rc, budget+1))
		rc.Close()
		if err != nil {
			return fmt.Errorf("копирование части %s: %w", f.Name, err)
		}
		budget -= n
		if budget < 0 {
			return errOfficeTooLarge
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	return out.Sync()
}
