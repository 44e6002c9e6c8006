package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.md", "a.txt", "c.bin", "d.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	explicit := filepath.Join(dir, "c.bin")
	got, err := Files([]string{dir, explicit, filepath.Join(dir, "a.txt")})
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.md"),
		explicit,
		filepath.Join(dir, "d.pdf"),
	}
	assert.Equal(t, want, got)
}

func TestFiles_Missing(t *testing.T) {
	_, err := Files([]string{filepath.Join(t.TempDir(), "missing.txt")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcher_Debounces(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "spec.md")
	require.NoError(t, os.WriteFile(doc, []byte("v1"), 0o644))

	calls := make(chan []string, 4)
	w := New([]string{dir}, func(_ context.Context, files []string) error {
		calls <- files
		return nil
	}, WithDebounce(100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(doc, []byte{'v', byte('2' + i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte("x"), 0o644))

	select {
	case files := <-calls:
		assert.Equal(t, []string{doc}, files)
	case <-time.After(5 * time.Second):
		t.Fatal("change handler not called")
	}

	select {
	case files := <-calls:
		t.Errorf("unexpected second call with %v", files)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_MissingPath(t *testing.T) {
	w := New([]string{filepath.Join(t.TempDir(), "gone")}, func(context.Context, []string) error { return nil })
	assert.Error(t, w.Run(context.Background()))
}

func TestNew_DiscardsLogsByDefault(t *testing.T) {
	w := New([]string{t.TempDir()}, func(context.Context, []string) error { return nil })
	assert.False(t, w.logger.Enabled(context.Background(), slog.LevelError))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	w = New(nil, nil, WithLogger(logger))
	assert.Same(t, logger, w.logger)
}
