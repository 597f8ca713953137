package blacklist

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestBlacklist(t *testing.T, content string) (*Blacklist, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blacklist.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return New(path, slog.New(slog.NewTextHandler(io.Discard, nil))), path
}

func TestContains(t *testing.T) {
	bl, _ := newTestBlacklist(t, `{"hashes":["ABCDEF01", " deadbeef ", ""]}`)

	if !bl.Contains("abcdef01") {
		t.Error("хеш в другом регистре должен находиться")
	}
	if !bl.Contains("DEADBEEF") {
		t.Error("хеш с пробелами должен нормализоваться")
	}
	if bl.Contains("00000000") {
		t.Error("отсутствующий хеш не должен находиться")
	}
	if bl.Count() != 2 {
		t.Errorf("Count() = %d, хотели 2", bl.Count())
	}
}

func TestReloadOnChange(t *testing.T) {
	bl, path := newTestBlacklist(t, `{"hashes":["aa"]}`)
	if !bl.Contains("aa") {
		t.Fatal("исходный хеш не найден")
	}

	if err := os.WriteFile(path, []byte(`{"hashes":["bb"]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Гарантируем изменение mtime даже на ФС с грубым разрешением.
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if bl.Contains("aa") || !bl.Contains("bb") {
		t.Error("список должен перечитаться после изменения файла")
	}
}

func TestInfo(t *testing.T) {
	bl, _ := newTestBlacklist(t, "")
	if info := bl.Info(); info.Available || info.Freshness != FreshnessMissing {
		t.Errorf("отсутствующий файл: %+v", info)
	}

	bl, path := newTestBlacklist(t, `{"hashes":["aa","bb"]}`)
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	info := bl.Info()
	if !info.Available || info.HashCount != 2 {
		t.Errorf("Info() = %+v", info)
	}
	if info.Freshness != FreshnessStale {
		t.Errorf("Freshness = %q, хотели stale", info.Freshness)
	}
}

func TestFreshness(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{time.Hour, FreshnessFresh},
		{23 * time.Hour, FreshnessFresh},
		{24 * time.Hour, FreshnessStale},
		{167 * time.Hour, FreshnessStale},
		{168 * time.Hour, FreshnessOutdated},
	}
	for _, tt := range tests {
		if got := ClassifyAge(tt.age); got != tt.want {
			t.Errorf("ClassifyAge(%v) = %q, хотели %q", tt.age, got, tt.want)
		}
	}
}
