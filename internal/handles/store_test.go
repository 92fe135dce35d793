package handles

import (
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "morph-handles-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := testStore(t)
	if err := s.Put("v1", "v1:/a.md", "/tmp/vault/a.md"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	h, err := s.Get("v1", "v1:/a.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h == nil || h.Path != "/tmp/vault/a.md" {
		t.Errorf("handle = %+v, want path /tmp/vault/a.md", h)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := testStore(t)
	h, err := s.Get("v1", "v1:/missing.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h != nil {
		t.Errorf("expected nil handle for missing key, got %+v", h)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s := testStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Put("v1", "v1:/a.md", "/new/path/a.md"); err != nil {
			t.Fatalf("Put #%d: %v", i, err)
		}
	}
	hs, err := s.ListForVault("v1")
	if err != nil {
		t.Fatalf("ListForVault: %v", err)
	}
	if len(hs) != 1 {
		t.Fatalf("expected 1 grant after repeated Put, got %d", len(hs))
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	s := testStore(t)
	if err := s.Delete("v1", "v1:/never.md"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestDeleteAllForVault(t *testing.T) {
	s := testStore(t)
	_ = s.Put("v1", "v1:/a.md", "/tmp/a.md")
	_ = s.Put("v1", "v1:/b.md", "/tmp/b.md")
	_ = s.Put("v2", "v2:/c.md", "/tmp/c.md")

	if err := s.DeleteAllForVault("v1"); err != nil {
		t.Fatalf("DeleteAllForVault: %v", err)
	}
	hs, _ := s.ListForVault("v1")
	if len(hs) != 0 {
		t.Errorf("expected v1 grants gone, got %d", len(hs))
	}
	hs, _ = s.ListForVault("v2")
	if len(hs) != 1 {
		t.Errorf("expected v2 grants untouched, got %d", len(hs))
	}
}

func TestHandleReadWrite(t *testing.T) {
	dir := t.TempDir()
	h := &Handle{VaultID: "v1", FileID: "v1:/essay.md", Path: filepath.Join(dir, "essay.md")}

	if err := h.WriteFile([]byte("# Draft\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := h.ReadFile()
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "# Draft\n" {
		t.Errorf("content = %q", data)
	}
	if _, err := h.Stat(); err != nil {
		t.Errorf("Stat: %v", err)
	}
}
