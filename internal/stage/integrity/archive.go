package integrity

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// Лимиты разбора вложенных архивов.
const (
	// nestedReadCap — максимум байт, читаемых из одного вложенного архива
	nestedReadCap = 50 << 20
	// nestedTotalCap — суммарный бюджет чтения вложенных архивов на файл
	nestedTotalCap = 256 << 20
	// maxMembersPerLayer — максимум элементов, просматриваемых на одном уровне
	maxMembersPerLayer = 1024
)

// zipFamily — расширения, для которых выполняется проверка на zip-бомбу.
var zipFamily = map[string]bool{
	".zip": true, ".docx": true, ".xlsx": true, ".pptx": true,
}

// checkArchiveBomb проверяет степень сжатия и глубину вложенности ZIP.
func checkArchiveBomb(path, ext string, size int64, cfg model.ScanConfig) []model.Finding {
	if !zipFamily[ext] || size <= 0 {
		return nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		// Структурные ошибки уже отражены проверкой формата.
		return nil
	}
	defer zr.Close()

	var findings []model.Finding

	var total uint64
	for _, f := range zr.File {
		if math.MaxUint64-total < f.UncompressedSize64 {
			total = math.MaxUint64
			break
		}
		total += f.UncompressedSize64
	}

	ratio := float64(total) / float64(size)
	if ratio > cfg.MaxCompressionRatio {
		findings = append(findings, stage.Finding(stage.NameFileIntegrity, model.SeverityCritical,
			"archive_bomb_ratio",
			fmt.Sprintf("Степень сжатия (%.1f:1) превышает максимум (%.0f:1), возможна zip-бомба", ratio, cfg.MaxCompressionRatio),
			map[string]any{"ratio": math.Round(ratio*10) / 10, "max_ratio": cfg.MaxCompressionRatio},
		))
	}

	if ext == ".zip" && hasNestedZip(&zr.Reader) {
		w := &depthWalker{maxDepth: cfg.MaxArchiveDepth, budget: nestedTotalCap}
		depth := w.walk(&zr.Reader, 1)
		if depth > cfg.MaxArchiveDepth {
			findings = append(findings, stage.Finding(stage.NameFileIntegrity, model.SeverityCritical,
				"archive_bomb_depth",
				fmt.Sprintf("Глубина вложенности архива (%d) превышает максимум (%d), возможна zip-бомба", depth, cfg.MaxArchiveDepth),
				map[string]any{"depth": depth, "max_depth": cfg.MaxArchiveDepth},
			))
		}
	}

	return findings
}

// depthWalker рекурсивно открывает вложенные *.zip.
// Каждый уровень читается не более чем на nestedReadCap байт независимо от
// заявленного размера, общий объём ограничен budget.
type depthWalker struct {
	maxDepth int
	budget   int64
}

// walk возвращает максимальную обнаруженную глубину.
// Рекурсия прекращается, как только глубина превысила maxDepth.
func (w *depthWalker) walk(zr *zip.Reader, depth int) int {
	if depth > w.maxDepth {
		return depth
	}

	found := depth
	for i, f := range zr.File {
		if i >= maxMembersPerLayer || w.budget <= 0 {
			break
		}
		if !isZipName(f.Name) {
			continue
		}

		inner, ok := w.readNested(f)
		if !ok {
			continue
		}
		if d := w.walk(inner, depth+1); d > found {
			found = d
		}
		if found > w.maxDepth {
			break
		}
	}
	return found
}

// readNested читает вложенный архив в память с ограничением размера.
// Нечитаемые или повреждённые вложения пропускаются.
func (w *depthWalker) readNested(f *zip.File) (*zip.Reader, bool) {
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()

	limit := int64(nestedReadCap)
	if w.budget < limit {
		limit = w.budget
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit))
	w.budget -= int64(len(data))
	if err != nil && len(data) == 0 {
		return nil, false
	}

	inner, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false
	}
	return inner, true
}

func hasNestedZip(zr *zip.Reader) bool {
	for i, f := range zr.File {
		if i >= maxMembersPerLayer {
			break
		}
		if isZipName(f.Name) {
			return true
		}
	}
	return false
}

func isZipName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// statSize — размер файла на диске.
func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
