// Пакет yararules — сведения о каталоге правил YARA для раздела
// сигнатур: число файлов и правил, версия набора и его свежесть.
// Правила не компилируются, объявления считаются по тексту.
package yararules

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/blacklist"
)

// VersionFile — необязательный файл с версией набора правил.
const VersionFile = "VERSION"

// ruleDecl — объявление правила с необязательными модификаторами.
var ruleDecl = regexp.MustCompile(`^(?:(?:private|global)\s+)*rule\s+([A-Za-z_][A-Za-z0-9_]*)`)

// Info — состояние набора правил YARA.
type Info struct {
	Available   bool       `json:"available"`
	Dir         string     `json:"dir"`
	FileCount   int        `json:"file_count"`
	RuleCount   int        `json:"rule_count"`
	Version     string     `json:"version,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Freshness   string     `json:"freshness"`
	Error       string     `json:"error,omitempty"`
}

// Inspect читает каталог dir. Версия берётся из файла VERSION,
// иначе — дата самого нового файла правил.
func Inspect(dir string, now time.Time) Info {
	info := Info{Dir: dir, Freshness: blacklist.FreshnessMissing}
	if dir == "" {
		info.Error = "каталог правил не настроен"
		return info
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			info.Error = err.Error()
		} else {
			info.Error = "каталог правил не найден"
		}
		return info
	}

	var newest time.Time
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.Type().IsRegular() || (ext != ".yar" && ext != ".yara") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		n, err := countRules(path)
		if err != nil {
			info.Error = fmt.Sprintf("%s: %v", e.Name(), err)
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info.FileCount++
		info.RuleCount += n
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	if info.FileCount == 0 {
		if info.Error == "" {
			info.Error = "нет файлов .yar/.yara"
		}
		return info
	}

	info.Available = true
	info.LastUpdated = &newest
	info.Freshness = blacklist.ClassifyAge(now.Sub(newest))
	info.Version = newest.UTC().Format("2006.01.02")
	if raw, err := os.ReadFile(filepath.Join(dir, VersionFile)); err == nil {
		if v := strings.TrimSpace(string(raw)); v != "" {
			info.Version = v
		}
	}
	return info
}

// countRules считает объявления rule в файле, пропуская комментарии.
func countRules(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n := 0
	inComment := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if inComment {
			end := strings.Index(line, "*/")
			if end < 0 {
				continue
			}
			line = strings.TrimSpace(line[end+2:])
			inComment = false
		}
		if strings.HasPrefix(line, "/*") {
			if !strings.Contains(line[2:], "*/") {
				inComment = true
			}
			continue
		}
		if ruleDecl.MatchString(line) {
			n++
		}
	}
	return n, sc.Err()
}
