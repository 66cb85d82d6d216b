package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dreamware/tpckv/internal/kvmessage"
)

func TestStoreOpenEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if keys := s.List(); len(keys) != 0 {
		t.Errorf("expected empty store, got %v", keys)
	}
	if _, err := s.Get("missing"); err != kvmessage.ErrNoKey {
		t.Errorf("Get on empty store = %v, want ErrNoKey", err)
	}
}

func TestStorePutGet(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Put("k1", "v1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v1" {
		t.Errorf("Get = %q, want %q", got, "v1")
	}
}

func TestStoreOverwrite(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put("k", "v1")
	s.Put("k", "v2")
	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v2" {
		t.Errorf("Get after overwrite = %q, want %q", got, "v2")
	}
}

func TestStoreDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put("k", "v")
	if err := s.Del("k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get("k"); err != kvmessage.ErrNoKey {
		t.Errorf("Get after delete = %v, want ErrNoKey", err)
	}
}

func TestStoreDeleteMissingIsNotAnError(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Del("never-existed"); err != nil {
		t.Errorf("Del of missing key should be a no-op, got %v", err)
	}
}

func TestStorePutCheckValidation(t *testing.T) {
	s, _ := Open(t.TempDir())

	tests := []struct {
		name    string
		key     string
		val     string
		wantErr error
	}{
		{name: "empty key", key: "", val: "v", wantErr: kvmessage.ErrKeyLen},
		{name: "key too long", key: string(make([]byte, kvmessage.MaxKeyLen+1)), val: "v", wantErr: kvmessage.ErrKeyLen},
		{name: "value too long", key: "k", val: string(make([]byte, kvmessage.MaxValLen+1)), wantErr: kvmessage.ErrValLen},
		{name: "valid", key: "k", val: "v", wantErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.PutCheck(tt.key, tt.val); err != tt.wantErr {
				t.Errorf("PutCheck = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoreDelCheck(t *testing.T) {
	s, _ := Open(t.TempDir())
	s.Put("present", "v")

	if err := s.DelCheck("present"); err != nil {
		t.Errorf("DelCheck on present key = %v, want nil", err)
	}
	if err := s.DelCheck("absent"); err != kvmessage.ErrNoKey {
		t.Errorf("DelCheck on absent key = %v, want ErrNoKey", err)
	}
	if err := s.DelCheck(""); err != kvmessage.ErrKeyLen {
		t.Errorf("DelCheck on empty key = %v, want ErrKeyLen", err)
	}
}

// TestStoreRecoversFromDirectory verifies that a fresh Store opened on a
// directory populated by a previous Store instance recovers every entry
// purely from the on-disk layout.
func TestStoreRecoversFromDirectory(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1.Put("a", "1")
	s1.Put("b", "2")
	s1.Del("b")
	s1.Put("c", "3")

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, err := s2.Get("a"); err != nil || v != "1" {
		t.Errorf("recovered a = (%q, %v), want (1, nil)", v, err)
	}
	if _, err := s2.Get("b"); err != kvmessage.ErrNoKey {
		t.Errorf("recovered b should be absent, got err=%v", err)
	}
	if v, err := s2.Get("c"); err != nil || v != "3" {
		t.Errorf("recovered c = (%q, %v), want (3, nil)", v, err)
	}
}

// TestStoreIgnoresTornEntry verifies recovery skips a truncated file left
// behind by a crash mid-write, rather than failing to open.
func TestStoreIgnoresTornEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put("good", "value")

	// Simulate a crash mid-write: a canonical-looking file with a
	// declared key length longer than the bytes actually present.
	torn := filename(dir, "torn-key")
	if err := os.WriteFile(torn, []byte{0, 0, 0, 99, 'x'}, 0o644); err != nil {
		t.Fatalf("write torn file: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen with torn entry: %v", err)
	}
	if v, err := s2.Get("good"); err != nil || v != "value" {
		t.Errorf("good entry should survive torn sibling, got (%q, %v)", v, err)
	}
	keys := s2.List()
	if len(keys) != 1 {
		t.Errorf("expected torn entry to be skipped, got keys %v", keys)
	}
}

func TestFilenameIsContentAddressed(t *testing.T) {
	dir := t.TempDir()
	a := filename(dir, "same-key")
	b := filename(dir, "same-key")
	if a != b {
		t.Errorf("filename should be deterministic: %s != %s", a, b)
	}
	if filepath.Dir(a) != dir {
		t.Errorf("filename should live under the store directory")
	}
}
