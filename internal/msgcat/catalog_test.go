package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedErrorTexts(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := c.ErrorText("invalid_round_index", map[string]any{"Round": 3})
	if !strings.Contains(got, "Round 3") {
		t.Fatalf("unexpected text %q", got)
	}
	// missing template data falls back to the generic text
	if got := c.ErrorText("invalid_round_index", nil); got != c.ErrorText("internal", nil) {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := c.ErrorText("no_such_code", nil); got == "" || got == "no_such_code" {
		t.Fatalf("unknown code should use the generic text, got %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("error:\n  not_authorized: \"Organizers only.\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.ErrorText("not_authorized", nil); got != "Organizers only." {
		t.Fatalf("override not applied: %q", got)
	}
}

func TestOverrideDirRejectsDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("error:\n  internal: \"x\"\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestNilCatalogReturnsCode(t *testing.T) {
	var c *Catalog
	if got := c.ErrorText("internal", nil); got != "internal" {
		t.Fatalf("got %q", got)
	}
}
