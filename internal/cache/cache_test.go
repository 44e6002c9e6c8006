package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type payload struct {
	Hash   string   `json:"hash"`
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

func countEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	n := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == entryExt {
			n++
		}
	}
	return n
}

func TestCache_PutGet(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	key := "test-key"
	value := payload{Hash: "abc", Text: "The project owner is Alice.", Images: []string{"iVBOR"}}

	var got payload
	if c.Get(key, &got) {
		t.Error("Expected cache miss before put")
	}

	if err := c.Put(key, value); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	if !c.Get(key, &got) {
		t.Fatal("Expected cache hit after put")
	}
	if got.Text != value.Text || got.Hash != value.Hash || len(got.Images) != 1 {
		t.Errorf("Got = %+v, want %+v", got, value)
	}
}

func TestCache_Compressed(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	text := strings.Repeat("repetitive document text ", 4000)
	if err := c.Put("big", payload{Text: text}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.TotalBytes >= int64(len(text)) {
		t.Errorf("TotalBytes = %d, want less than %d", stats.TotalBytes, len(text))
	}

	raw, err := os.ReadFile(c.entryPath("big"))
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if strings.Contains(string(raw), "repetitive document text repetitive") {
		t.Error("entry should not be stored as plain JSON")
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 1) // 1 second TTL
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	key := "expire-test"
	if err := c.Put(key, "data"); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	var s string
	if !c.Get(key, &s) {
		t.Error("Expected cache hit before expiration")
	}

	time.Sleep(1100 * time.Millisecond)

	stats, _ := c.GetStats()
	if stats.Expired != 1 {
		t.Errorf("Expired = %d, want 1", stats.Expired)
	}
	if c.Get(key, &s) {
		t.Error("Expected cache miss after TTL expiration")
	}
	if n := countEntries(t, dir); n != 0 {
		t.Errorf("expired entry should be removed on read, %d left", n)
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(false, "", 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Enabled() {
		t.Error("Cache should be disabled")
	}

	if err := c.Put("key", "value"); err != nil {
		t.Errorf("Put on disabled cache should not error: %v", err)
	}
	var s string
	if c.Get("key", &s) {
		t.Error("Get on disabled cache should always miss")
	}
	if n, err := c.Clear(); err != nil || n != 0 {
		t.Errorf("Clear on disabled cache = %d, %v", n, err)
	}
}

func TestCache_CorruptEntryMisses(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := os.WriteFile(c.entryPath("k"), []byte("not lz4"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	var s string
	if c.Get("k", &s) {
		t.Error("corrupt entry should miss")
	}
}

func TestCache_Clear(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		if err := c.Put(key, "data"); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}
	if n := countEntries(t, dir); n != 5 {
		t.Fatalf("Expected 5 cache entries, got %d", n)
	}

	removed, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if removed != 5 {
		t.Errorf("removed = %d, want 5", removed)
	}
	if n := countEntries(t, dir); n != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", n)
	}
}

func TestCache_GetStats(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}

	c.Put("key1", "value1")
	c.Put("key2", "value2")

	stats, err = c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.TotalBytes <= 0 {
		t.Error("TotalBytes should be > 0")
	}
	if stats.Dir != dir {
		t.Errorf("Dir = %q, want %q", stats.Dir, dir)
	}
	if !strings.HasSuffix(stats.Size(), "B") {
		t.Errorf("Size() = %q, want a byte count", stats.Size())
	}
}

func TestHashKey(t *testing.T) {
	h1 := HashKey("test")
	h2 := HashKey("test")
	h3 := HashKey("other")

	if h1 != h2 {
		t.Error("Same input should produce same hash")
	}
	if h1 == h3 {
		t.Error("Different input should produce different hash")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length = %d, want 64", len(h1))
	}
}

func TestBuildCacheKey(t *testing.T) {
	mtime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	k1 := BuildCacheKey("/docs/a.pdf", 100, mtime, "text")
	k2 := BuildCacheKey("/docs/a.pdf", 100, mtime, "text")

	if k1 != k2 {
		t.Error("Same inputs should produce same cache key")
	}
	for name, k := range map[string]string{
		"mode":  BuildCacheKey("/docs/a.pdf", 100, mtime, "image"),
		"size":  BuildCacheKey("/docs/a.pdf", 101, mtime, "text"),
		"mtime": BuildCacheKey("/docs/a.pdf", 100, mtime.Add(time.Second), "text"),
		"path":  BuildCacheKey("/docs/b.pdf", 100, mtime, "text"),
	} {
		if k == k1 {
			t.Errorf("different %s should produce different cache key", name)
		}
	}
}
