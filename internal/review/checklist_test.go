package review

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseChecklists(t *testing.T) {
	data := []byte(`name: Design review
checklists:
  - The purpose is stated
  - content: Owners are named
  - "  "
`)
	got, err := ParseChecklists(data)
	if err != nil {
		t.Fatalf("ParseChecklists error: %v", err)
	}
	want := []string{"The purpose is stated", "Owners are named"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseChecklists = %q, want %q", got, want)
	}
}

func TestParseChecklists_JSON(t *testing.T) {
	got, err := ParseChecklists([]byte(`{"checklists":[{"content":"a"},"b"]}`))
	if err != nil {
		t.Fatalf("ParseChecklists error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ParseChecklists = %q", got)
	}
}

func TestParseChecklists_Empty(t *testing.T) {
	if _, err := ParseChecklists([]byte("checklists: []\n")); err == nil {
		t.Error("expected error for empty checklist file")
	}
}

func TestLoadChecklistFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.yaml")
	if err := os.WriteFile(path, []byte("checklists:\n  - one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadChecklistFile(path)
	if err != nil {
		t.Fatalf("LoadChecklistFile error: %v", err)
	}
	if len(got) != 1 || got[0] != "one" {
		t.Errorf("LoadChecklistFile = %q, want [one]", got)
	}

	if _, err := LoadChecklistFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
