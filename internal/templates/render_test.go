package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedFragments(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	html, err := r.Render("empty-state", map[string]string{"Title": "No files", "Message": "<b>upload</b>"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "No files") || strings.Contains(html, "<b>") {
		t.Fatalf("empty-state = %q", html)
	}
	if _, err := r.Render("missing", nil); err == nil {
		t.Fatal("expected error for unknown fragment")
	}
}

func TestOverrideAndReload(t *testing.T) {
	dir := t.TempDir()
	write := func(body string) {
		if err := os.WriteFile(filepath.Join(dir, "empty-state.html"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(`{{define "empty-state"}}v1 {{.Title}}{{end}}`)
	r, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if html, _ := r.Render("empty-state", map[string]string{"Title": "x"}); html != "v1 x" {
		t.Fatalf("got %q", html)
	}

	write(`{{define "empty-state"}}v2 {{.Title}}{{end}}`)
	if err := r.Reload(dir); err != nil {
		t.Fatal(err)
	}
	if html, _ := r.Render("empty-state", map[string]string{"Title": "x"}); html != "v2 x" {
		t.Fatalf("after reload got %q", html)
	}
}

func TestDict(t *testing.T) {
	dict := funcMap["dict"].(func(...any) map[string]any)
	if m := dict("a", 1, "b", "two"); m["a"] != 1 || m["b"] != "two" {
		t.Fatalf("dict = %v", m)
	}
	if dict("odd") != nil {
		t.Fatal("odd argument count should return nil")
	}
}
