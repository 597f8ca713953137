// Пакет blacklist — чёрный список SHA-256 заведомо вредоносных файлов.
//
// Формат файла: {"hashes": ["<sha256 hex>", ...]}.
// Список перечитывается при изменении mtime файла.
package blacklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Пороги свежести списка.
const (
	freshAge = 24 * time.Hour
	staleAge = 7 * 24 * time.Hour
)

// Статусы свежести.
const (
	FreshnessFresh    = "fresh"
	FreshnessStale    = "stale"
	FreshnessOutdated = "outdated"
	FreshnessMissing  = "missing"
)

// fileFormat — структура JSON-файла.
type fileFormat struct {
	Hashes []string `json:"hashes"`
}

// Info — сведения о состоянии списка.
type Info struct {
	Available   bool       `json:"available"`
	Path        string     `json:"path"`
	HashCount   int        `json:"hash_count"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Freshness   string     `json:"freshness"`
}

// Blacklist — потокобезопасный набор хешей.
type Blacklist struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	hashes  map[string]struct{}
	modTime time.Time
	now     func() time.Time
}

// New создаёт список для файла path. Файл читается лениво.
func New(path string, logger *slog.Logger) *Blacklist {
	return &Blacklist{
		path:   path,
		logger: logger.With(slog.String("component", "blacklist")),
		hashes: map[string]struct{}{},
		now:    time.Now,
	}
}

// Contains проверяет хеш по списку (регистр не важен).
func (b *Blacklist) Contains(sha256Hex string) bool {
	b.refresh()

	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.hashes[strings.ToLower(strings.TrimSpace(sha256Hex))]
	return ok
}

// Count возвращает число хешей.
func (b *Blacklist) Count() int {
	b.refresh()

	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hashes)
}

// Info возвращает сведения о списке и его свежести.
func (b *Blacklist) Info() Info {
	b.refresh()

	b.mu.RLock()
	defer b.mu.RUnlock()

	info := Info{Path: b.path, HashCount: len(b.hashes), Freshness: FreshnessMissing}
	if b.modTime.IsZero() {
		return info
	}
	mt := b.modTime
	info.Available = true
	info.LastUpdated = &mt
	info.Freshness = ClassifyAge(b.now().Sub(mt))
	return info
}

// Reload принудительно перечитывает файл.
func (b *Blacklist) Reload() error {
	st, err := os.Stat(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			b.mu.Lock()
			b.hashes = map[string]struct{}{}
			b.modTime = time.Time{}
			b.mu.Unlock()
			return nil
		}
		return fmt.Errorf("stat %s: %w", b.path, err)
	}
	return b.load(st.ModTime())
}

// refresh перечитывает файл, если изменился его mtime.
func (b *Blacklist) refresh() {
	st, err := os.Stat(b.path)
	if err != nil {
		return
	}
	b.mu.RLock()
	same := st.ModTime().Equal(b.modTime)
	b.mu.RUnlock()
	if same {
		return
	}
	if err := b.load(st.ModTime()); err != nil {
		b.logger.Warn("Ошибка загрузки чёрного списка хешей",
			slog.String("path", b.path),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Blacklist) load(modTime time.Time) error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("чтение %s: %w", b.path, err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("разбор %s: %w", b.path, err)
	}

	hashes := make(map[string]struct{}, len(ff.Hashes))
	for _, h := range ff.Hashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hashes[h] = struct{}{}
		}
	}

	b.mu.Lock()
	b.hashes = hashes
	b.modTime = modTime
	b.mu.Unlock()

	b.logger.Info("Чёрный список хешей загружен", slog.Int("count", len(hashes)))
	return nil
}

// ClassifyAge классифицирует возраст источника сигнатур по свежести.
func ClassifyAge(age time.Duration) string {
	switch {
	case age < freshAge:
		return FreshnessFresh
	case age < staleAge:
		return FreshnessStale
	default:
		return FreshnessOutdated
	}
}
