package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"my solution.PNG":    "my_solution.PNG",
		"../../etc/passwd":   "etc_passwd",
		`C:\Users\ada\x.jpg`: "C_Users_ada_x.jpg",
		"  spaced   out.png": "spaced_out.png",
		"résumé.png":         "rsum.png",
		"con.txt":            "_con.txt",
		"...":                "",
		"":                   "",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoinKeyRejectsTraversal(t *testing.T) {
	if _, ok := JoinKey("solutions", "../secrets"); ok {
		t.Fatalf("expected traversal to be rejected")
	}
	key, ok := JoinKey("solutions/", "7", "work.png")
	if !ok || key != "solutions/7/work.png" {
		t.Fatalf("unexpected key %q ok=%v", key, ok)
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	s, err := NewLocalStorage(root)
	if err != nil {
		t.Fatalf("new storage failed: %v", err)
	}
	ctx := context.Background()

	location, err := s.PutObject(ctx, "solutions/7/work.png", strings.NewReader("png-bytes"), 9, "image/png")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if location != filepath.ToSlash(filepath.Join(root, "solutions", "7", "work.png")) {
		t.Fatalf("unexpected location %q", location)
	}
	if _, err := os.Stat(location); err != nil {
		t.Fatalf("file missing: %v", err)
	}

	rc, err := s.GetObject(ctx, "solutions/7/work.png")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := s.RemoveObject(ctx, "solutions/7/work.png"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := s.GetObject(ctx, "solutions/7/work.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLocalStorageRejectsEscapingKey(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage failed: %v", err)
	}
	if _, err := s.PutObject(context.Background(), "../outside.png", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatalf("expected error for escaping key")
	}
}
