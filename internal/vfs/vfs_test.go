package vfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"

	"github.com/Faultbox/dfworld/pkg/bsa"
)

type memSource struct {
	name     string
	files    map[string]string
	closeErr error
	closed   bool
}

func (m *memSource) Name() string { return m.name }

func (m *memSource) Open(name string) ([]byte, error) {
	if s, ok := m.files[name]; ok {
		return []byte(s), nil
	}
	return nil, ErrNotFound
}

func (m *memSource) Close() error {
	m.closed = true
	return m.closeErr
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeZstd(t *testing.T, path string, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, buf.Bytes())
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "N0000000.RDB"), []byte("plain"))
	writeFile(t, filepath.Join(root, "sub", "Lower.rdb"), []byte("nested"))
	writeZstd(t, filepath.Join(root, "S0000001.RDB.zst"), []byte("compressed block"))

	src := NewDirSource(root)
	tests := []struct {
		name string
		want string
	}{
		{"N0000000.RDB", "plain"},
		{"n0000000.rdb", "plain"},
		{"SUB/LOWER.RDB", "nested"},
		{`sub\lower.rdb`, "nested"},
		{"S0000001.RDB", "compressed block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Open(tt.name)
			if err != nil {
				t.Fatalf("Open() error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Open() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := src.Open("MISSING.RDB"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}

	want := []string{"N0000000.RDB", "S0000001.RDB", "sub/Lower.rdb"}
	if got := src.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestDirSourceMissingRoot(t *testing.T) {
	src := NewDirSource(filepath.Join(t.TempDir(), "nope"))
	if _, err := src.Open("A"); err == nil {
		t.Error("Open() on a missing root should fail")
	}
}

func TestManagerPriorityAndCache(t *testing.T) {
	low := &memSource{name: "low", files: map[string]string{"A": "low-a", "B": "low-b"}}
	high := &memSource{name: "high", files: map[string]string{"A": "high-a"}}

	m := NewManager(nil)
	m.AddSource(low)
	m.AddSource(high)

	got, err := m.Load("A")
	if err != nil || string(got) != "high-a" {
		t.Errorf("Load(A) = %q, %v", got, err)
	}
	got, err = m.Load("B")
	if err != nil || string(got) != "low-b" {
		t.Errorf("Load(B) = %q, %v", got, err)
	}

	delete(high.files, "A")
	if got, _ := m.Load("a"); string(got) != "high-a" {
		t.Errorf("cached Load(a) = %q", got)
	}
	if hits, misses := m.cache.Stats(); hits != 1 || misses != 2 {
		t.Errorf("Stats() = %d hits, %d misses", hits, misses)
	}

	if _, err := m.Load("C"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(C) error = %v", err)
	}
}

func TestManagerCloseCombinesErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &memSource{name: "a", closeErr: errA}
	b := &memSource{name: "b", closeErr: errB}
	c := &memSource{name: "c"}

	m := NewManager(nil)
	m.AddSource(a)
	m.AddSource(b)
	m.AddSource(c)

	err := m.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Close() error = %v", err)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("Close() combined %d errors, want 2", n)
	}
	if !a.closed || !b.closed || !c.closed {
		t.Error("not every source was closed")
	}
	if _, err := m.Load("A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Close() error = %v", err)
	}
}

func TestManagerAddPath(t *testing.T) {
	root := t.TempDir()
	var archive bytes.Buffer
	if err := bsa.Write(&archive, []bsa.File{
		{Name: "N0000000.RDB", Data: []byte("from bsa")},
		{Name: "W0000002.RDB", Data: []byte("only bsa")},
	}); err != nil {
		t.Fatal(err)
	}
	bsaPath := filepath.Join(root, "BLOCKS.BSA")
	writeFile(t, bsaPath, archive.Bytes())
	override := filepath.Join(root, "override")
	writeFile(t, filepath.Join(override, "N0000000.RDB"), []byte("from dir"))

	m := NewManager(nil)
	defer m.Close()
	if err := m.AddPath(bsaPath); err != nil {
		t.Fatalf("AddPath(bsa) error: %v", err)
	}
	if err := m.AddPath(override); err != nil {
		t.Fatalf("AddPath(dir) error: %v", err)
	}
	if err := m.AddPath(filepath.Join(root, "missing")); err == nil {
		t.Error("AddPath() on a missing path should fail")
	}

	if got, _ := m.Load("N0000000.RDB"); string(got) != "from dir" {
		t.Errorf("Load(N) = %q", got)
	}
	if got, _ := m.Open("W0000002.RDB"); string(got) != "only bsa" {
		t.Errorf("Open(W) = %q", got)
	}
	want := []string{"N0000000.RDB", "W0000002.RDB"}
	if got := m.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestManagerAddPathRejectsBadArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BAD.BSA")
	writeFile(t, path, []byte{1})
	m := NewManager(nil)
	if err := m.AddPath(path); !errors.Is(err, bsa.ErrInvalidBSA) {
		t.Errorf("AddPath() error = %v, want ErrInvalidBSA", err)
	}
}
