package vfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/Faultbox/dfworld/pkg/encoding"
)

// zstdSuffix marks loose files stored compressed.
const zstdSuffix = ".zst"

// DirSource reads loose files from a directory tree. Names match without
// regard to case, and NAME.zst is used when NAME itself is absent.
type DirSource struct {
	root string

	once  sync.Once
	index map[string]string // normalized name -> path relative to root
	err   error
}

// NewDirSource returns a source over root. The tree is scanned on first use.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Name implements Source.
func (d *DirSource) Name() string {
	return d.root
}

func (d *DirSource) scan() {
	d.index = make(map[string]string)
	d.err = filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		d.index[encoding.NormalizePath(filepath.ToSlash(rel))] = rel
		return nil
	})
}

// Open implements Source.
func (d *DirSource) Open(name string) ([]byte, error) {
	d.once.Do(d.scan)
	if d.err != nil {
		return nil, fmt.Errorf("scanning %s: %w", d.root, d.err)
	}

	key := encoding.NormalizePath(name)
	if rel, ok := d.index[key]; ok {
		return os.ReadFile(filepath.Join(d.root, rel))
	}
	if rel, ok := d.index[key+strings.ToUpper(zstdSuffix)]; ok {
		return readZstd(filepath.Join(d.root, rel))
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, d.root)
}

// List implements Lister. Compressed files are listed under their plain name.
func (d *DirSource) List() []string {
	d.once.Do(d.scan)
	seen := make(map[string]bool)
	var out []string
	for _, rel := range d.index {
		name := filepath.ToSlash(rel)
		if strings.EqualFold(filepath.Ext(name), zstdSuffix) {
			name = name[:len(name)-len(zstdSuffix)]
		}
		key := encoding.NormalizePath(name)
		if !seen[key] {
			seen[key] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Close implements Source.
func (d *DirSource) Close() error {
	return nil
}

func readZstd(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader for %s: %w", path, err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return data, nil
}
