package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Provider != "anthropic" {
		t.Errorf("Default provider = %q, want %q", cfg.Provider, "anthropic")
	}
	if cfg.Format != "text" {
		t.Errorf("Default format = %q, want %q", cfg.Format, "text")
	}
	if cfg.Review.Mode != "auto" {
		t.Errorf("Default review.mode = %q, want %q", cfg.Review.Mode, "auto")
	}
	if cfg.Review.MaxChecklistsPerCategory != 10 {
		t.Errorf("Default maxChecklistsPerCategory = %d, want 10", cfg.Review.MaxChecklistsPerCategory)
	}
	if cfg.Review.MaxReadinessIterations != 3 {
		t.Errorf("Default maxReadinessIterations = %d, want 3", cfg.Review.MaxReadinessIterations)
	}
	if cfg.Extract.MaxImageDimension != 1568 {
		t.Errorf("Default maxImageDimension = %d, want 1568", cfg.Extract.MaxImageDimension)
	}
	if !cfg.Privacy.RedactSecrets {
		t.Error("Default redactSecrets should be true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOCREVIEW_PROVIDER", "openai")
	t.Setenv("DOCREVIEW_MODEL", "gpt-4o")
	t.Setenv("DOCREVIEW_FORMAT", "json")
	t.Setenv("DOCREVIEW_REVIEW_MODE", "large")
	t.Setenv("DOCREVIEW_CACHE_ENABLED", "false")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want %q", cfg.Provider, "openai")
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Model = %q, want %q", cfg.Model, "gpt-4o")
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want %q", cfg.Format, "json")
	}
	if cfg.Review.Mode != "large" {
		t.Errorf("Review.Mode = %q, want %q", cfg.Review.Mode, "large")
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be false from env")
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("provider: openai\nmodel: from-file\nreview:\n  mode: small\n  maxCategories: 4\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("DOCREVIEW_MODEL", "from-env")

	cfg, err := Load(path, map[string]string{"provider": "gemini", "format": ""})
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Provider, "flag beats file")
	assert.Equal(t, "from-env", cfg.Model, "env beats file")
	assert.Equal(t, "small", cfg.Review.Mode)
	assert.Equal(t, 4, cfg.Review.MaxCategories)
	assert.Equal(t, 10, cfg.Review.MaxChecklistsPerCategory, "defaults fill gaps")
	assert.Equal(t, "text", cfg.Format, "empty override ignored")
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Load("", map[string]string{"review.mode": "huge"})
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Load error = %v, want ErrInvalidMode", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed\n"), 0o644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Provider = "vertex"
	cfg.Vertex.Project = "my-project"
	cfg.Review.EvaluationLabels = []Label{
		{Label: "A", Description: "meets"},
		{Label: "B", Description: "does not meet"},
	}
	require.NoError(t, Save(path, cfg))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "vertex", got.Provider)
	assert.Equal(t, "my-project", got.Vertex.Project)
	assert.Equal(t, cfg.Review.EvaluationLabels, got.Review.EvaluationLabels)
	assert.Equal(t, cfg.Privacy.RedactPaths, got.Privacy.RedactPaths)
}

func TestSetField(t *testing.T) {
	cfg := Default()

	tests := []struct {
		key   string
		value string
	}{
		{"provider", "openai"},
		{"model", "gpt-4o"},
		{"format", "json"},
		{"review.mode", "large"},
		{"review.maxCategories", "3"},
		{"review.maxChecklistsPerCategory", "7"},
		{"cache.enabled", "false"},
		{"cache.ttlSeconds", "60"},
		{"privacy.redactPaths", "a.txt,b/*.md"},
		{"log.json", "true"},
	}

	for _, tt := range tests {
		if err := SetField(&cfg, tt.key, tt.value); err != nil {
			t.Errorf("SetField(%q, %q) error: %v", tt.key, tt.value, err)
		}
	}

	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want %q", cfg.Provider, "openai")
	}
	if cfg.Review.MaxCategories != 3 {
		t.Errorf("MaxCategories = %d, want 3", cfg.Review.MaxCategories)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be false")
	}
	assert.Equal(t, []string{"a.txt", "b/*.md"}, cfg.Privacy.RedactPaths)
	assert.True(t, cfg.Log.JSON)
}

func TestSetField_Errors(t *testing.T) {
	cfg := Default()
	tests := []struct {
		key   string
		value string
	}{
		{"nonexistent", "value"},
		{"review.maxCategories", "many"},
		{"cache.enabled", "perhaps"},
	}
	for _, tt := range tests {
		if err := SetField(&cfg, tt.key, tt.value); err == nil {
			t.Errorf("SetField(%q, %q) should fail", tt.key, tt.value)
		}
	}
}

func TestSetField_AllKeys(t *testing.T) {
	for _, k := range Keys() {
		cfg := Default()
		value := "1"
		switch k {
		case "cache.enabled", "privacy.redactSecrets", "log.json", "telemetry.otlpInsecure":
			value = "true"
		}
		if err := SetField(&cfg, k, value); err != nil {
			t.Errorf("SetField(%q) error: %v", k, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want error
	}{
		{"ok", func(*Config) {}, nil},
		{"provider", func(c *Config) { c.Provider = "bard" }, ErrInvalidProvider},
		{"mode", func(c *Config) { c.Review.Mode = "medium" }, ErrInvalidMode},
		{"format", func(c *Config) { c.Format = "sarif" }, ErrInvalidFormat},
		{"limit", func(c *Config) { c.Review.MaxCategories = 0 }, ErrInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := ConfigDir()
	require.NoError(t, err)
	if dir != filepath.Join("/tmp/xdg", "docreview") {
		t.Errorf("ConfigDir = %q, want /tmp/xdg/docreview", dir)
	}

	p, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", "docreview", "config.yaml"), p)
}

func TestDatabasePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	cfg := Default()
	p, err := cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", "docreview", "docreview.db"), p)

	cfg.DBPath = "/data/runs.db"
	p, err = cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/data/runs.db", p)
}
