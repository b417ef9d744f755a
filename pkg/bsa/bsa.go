// Package bsa provides reading functionality for Daggerfall BSA archives.
package bsa

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/Faultbox/dfworld/pkg/encoding"
)

// BSA errors.
var (
	ErrInvalidBSA   = errors.New("invalid BSA archive")
	ErrFileNotFound = errors.New("file not found in BSA archive")
)

// Directory record types.
const (
	TypeNameRecord   uint16 = 0x0100 // 12 byte names, e.g. BLOCKS.BSA
	TypeNumberRecord uint16 = 0x0200 // numeric ids, e.g. ARCH3D.BSA
)

const (
	headerSize       = 4
	nameRecordSize   = 18
	numberRecordSize = 8
)

// Header contains the BSA file header.
type Header struct {
	RecordCount int16
	Type        uint16
}

// Entry represents a file entry in the archive.
type Entry struct {
	Name   string
	Size   uint32
	Offset int64
}

type nameRecord struct {
	Name    [12]byte
	Unknown uint16
	Size    uint32
}

type numberRecord struct {
	ID      uint16
	Unknown uint16
	Size    uint32
}

// Archive represents an opened BSA archive.
type Archive struct {
	r        io.ReaderAt
	closer   io.Closer
	name     string
	header   Header
	entries  []*Entry
	fileList map[string]*Entry
}

// Open opens a BSA archive for reading.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	archive, err := NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, err
	}
	archive.closer = file
	archive.name = path
	return archive, nil
}

// NewReader reads the directory of an archive held in r.
func NewReader(r io.ReaderAt, size int64) (*Archive, error) {
	a := &Archive{r: r, name: "bsa", fileList: make(map[string]*Entry)}
	if err := a.readHeader(size); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if err := a.readDirectory(size); err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return a, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Name returns the path the archive was opened from.
func (a *Archive) Name() string {
	return a.name
}

// Header returns the archive header.
func (a *Archive) Header() Header {
	return a.header
}

func (a *Archive) recordSize() int64 {
	if a.header.Type == TypeNumberRecord {
		return numberRecordSize
	}
	return nameRecordSize
}

func (a *Archive) readHeader(size int64) error {
	if size < headerSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidBSA, size)
	}
	sr := io.NewSectionReader(a.r, 0, headerSize)
	if err := binary.Read(sr, binary.LittleEndian, &a.header); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBSA, err)
	}
	if a.header.RecordCount < 0 {
		return fmt.Errorf("%w: record count %d", ErrInvalidBSA, a.header.RecordCount)
	}
	if a.header.Type != TypeNameRecord && a.header.Type != TypeNumberRecord {
		return fmt.Errorf("%w: directory type 0x%04x", ErrInvalidBSA, a.header.Type)
	}
	return nil
}

func (a *Archive) readDirectory(size int64) error {
	count := int64(a.header.RecordCount)
	dirSize := count * a.recordSize()
	dirOffset := size - dirSize
	if dirOffset < headerSize {
		return fmt.Errorf("%w: directory of %d records does not fit", ErrInvalidBSA, count)
	}

	dir := make([]byte, dirSize)
	if dirSize > 0 {
		if _, err := a.r.ReadAt(dir, dirOffset); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBSA, err)
		}
	}
	br := bytes.NewReader(dir)

	offset := int64(headerSize)
	a.entries = make([]*Entry, 0, count)
	for i := int64(0); i < count; i++ {
		entry := &Entry{Offset: offset}
		if a.header.Type == TypeNumberRecord {
			var rec numberRecord
			if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
				return fmt.Errorf("%w: record %d", ErrInvalidBSA, i)
			}
			entry.Name = strconv.Itoa(int(rec.ID))
			entry.Size = rec.Size
		} else {
			var rec nameRecord
			if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
				return fmt.Errorf("%w: record %d", ErrInvalidBSA, i)
			}
			entry.Name = encoding.FixedStringToUTF8(rec.Name[:])
			entry.Size = rec.Size
		}

		offset += int64(entry.Size)
		if offset > dirOffset {
			return fmt.Errorf("%w: %s overruns the directory", ErrInvalidBSA, entry.Name)
		}
		a.entries = append(a.entries, entry)
		a.fileList[encoding.NormalizePath(entry.Name)] = entry
	}
	return nil
}

// List returns all file names in directory order.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		result = append(result, e.Name)
	}
	return result
}

// Entries returns the directory entries in directory order.
func (a *Archive) Entries() []Entry {
	result := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		result = append(result, *e)
	}
	return result
}

// Contains checks if a file exists. Lookup ignores case.
func (a *Archive) Contains(name string) bool {
	_, ok := a.fileList[encoding.NormalizePath(name)]
	return ok
}

// Read reads a file from the archive.
func (a *Archive) Read(name string) ([]byte, error) {
	entry, ok := a.fileList[encoding.NormalizePath(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	data := make([]byte, entry.Size)
	if len(data) == 0 {
		return data, nil
	}
	if _, err := a.r.ReadAt(data, entry.Offset); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Open is Read under the name vfs sources use.
func (a *Archive) Open(name string) ([]byte, error) {
	return a.Read(name)
}

// File is one member of an archive to be written.
type File struct {
	Name string
	Data []byte
}

// Write encodes files as a name-record archive. Names are sorted so the
// output does not depend on the input order.
func Write(w io.Writer, files []File) error {
	if len(files) > 1<<15-1 {
		return fmt.Errorf("%w: %d files", ErrInvalidBSA, len(files))
	}
	for _, f := range files {
		if len(f.Name) > 12 {
			return fmt.Errorf("%w: name %q longer than 12 bytes", ErrInvalidBSA, f.Name)
		}
	}
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	hdr := Header{RecordCount: int16(len(sorted)), Type: TypeNameRecord}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for _, f := range sorted {
		if _, err := w.Write(f.Data); err != nil {
			return err
		}
	}
	for _, f := range sorted {
		var rec nameRecord
		copy(rec.Name[:], encoding.UTF8ToFixedString(f.Name, 12))
		rec.Size = uint32(len(f.Data))
		if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
			return err
		}
	}
	return nil
}
