package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempVault(t *testing.T, ignore ...string) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, NewIgnoreList(ignore))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "out.md")
	if err := WriteAtomic(target, []byte("v1")); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if err := WriteAtomic(target, []byte("v2")); err != nil {
		t.Fatalf("WriteAtomic overwrite: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil || string(got) != "v2" {
		t.Fatalf("content = %q, %v", got, err)
	}
	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover entries: %v", entries)
	}
}

func TestListIncludesAllExtensions(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("b"))
	_ = s.Write("readme.txt", []byte("plain text"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("len = %d, want 3", len(items))
	}
	byPath := make(map[string]FileMeta)
	for _, m := range items {
		byPath[m.Path] = m
	}
	if m := byPath["readme.txt"]; m.Name != "readme" || m.Extension != "txt" {
		t.Errorf("meta = %+v", m)
	}
	if byPath["a.md"].Checksum == "" {
		t.Error("checksum missing")
	}
}

func TestListHonorsIgnorePatterns(t *testing.T) {
	s := tempVault(t, "**/.*", "**/node_modules/**", "*.log")
	_ = s.Write("keep.md", []byte("keep"))
	_ = s.Write("node_modules/pkg/index.js", []byte("x"))
	_ = s.Write("debug.log", []byte("x"))
	_ = s.Write(".obsidian/workspace", []byte("x"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "keep.md" {
		t.Errorf("items = %+v, want just keep.md", items)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if _, err := s.Abs(p); err == nil {
			t.Errorf("expected error for abs of %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	// Verify that if we read during a write the old content is intact
	// (the rename is atomic on POSIX).
	s := tempVault(t)
	original := []byte("original content")
	_ = s.Write("atomic.md", original)

	// Overwrite with new content.
	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.root, ".morph-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/morph-does-not-exist-"+t.Name(), nil)
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "morph-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name(), nil)
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestIgnoreListBaseNameMatching(t *testing.T) {
	il := NewIgnoreList([]string{".DS_Store", "**/dist/**"})
	cases := map[string]bool{
		"a/b/.DS_Store":  true,
		".DS_Store":      true,
		"dist/bundle.js": true,
		"a/dist/x.js":    true,
		"a/b/note.md":    false,
	}
	for rel, want := range cases {
		if got := il.Match(rel); got != want {
			t.Errorf("Match(%q) = %v, want %v", rel, got, want)
		}
	}
}
