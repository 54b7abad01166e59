// Package fsys provides the read-only filesystem interfaces shared by the
// image formats, and the extent plumbing used to read file data in place.
package fsys

import (
	"cmp"
	"errors"
	"io"
	"io/fs"
	"slices"
)

var errNegativeOffset = errors.New("fsys: negative offset")

// Extent represents a mapping from logical file offset to physical image offset
type Extent struct {
	Logical  int64 // Offset within the file
	Physical int64 // Offset within the image
	Length   int64 // Length of this extent
}

// FS represents a read-only filesystem that can be opened from a disk image.
// It embeds io/fs.FS and adds image-specific functionality.
type FS interface {
	fs.FS
	fs.ReadDirFS
	fs.StatFS

	// Type returns the filesystem type name (e.g., "RomFS", "RomFS (IVFC)")
	Type() string

	// Close releases any resources held by the filesystem
	Close() error
}

// ExtentMapper is an optional interface for filesystems that can report
// the physical location of file data within the image
type ExtentMapper interface {
	// FileExtents returns the list of extents that map a file's logical
	// offsets to physical offsets in the image. Returns error if path
	// doesn't exist or is a directory.
	FileExtents(path string) ([]Extent, error)
}

// ExtentReaderAt reads a file's data in place through its extents.
// Offsets not covered by any extent read as zeros.
type ExtentReaderAt struct {
	r       io.ReaderAt
	extents []Extent // sorted by Logical
	size    int64
}

// NewExtentReaderAt returns a reader of size bytes mapped onto r by extents.
// When r is itself an ExtentReaderAt the two mappings are composed, so
// reads go straight to the innermost reader.
func NewExtentReaderAt(r io.ReaderAt, extents []Extent, size int64) *ExtentReaderAt {
	sorted := slices.Clone(extents)
	slices.SortFunc(sorted, func(a, b Extent) int { return cmp.Compare(a.Logical, b.Logical) })

	if inner, ok := r.(*ExtentReaderAt); ok {
		return &ExtentReaderAt{r: inner.r, extents: ComposeExtents(sorted, inner.extents), size: size}
	}
	return &ExtentReaderAt{r: r, extents: sorted, size: size}
}

// ComposeExtents maps outer, whose Physical offsets address the logical
// space of inner, through inner. Parts of outer that land in a gap of
// inner are dropped.
//
// If outer maps [0,100) to [1000,1100) and inner maps [1000,1100) to
// [5000,5100), the result maps [0,100) to [5000,5100).
func ComposeExtents(outer, inner []Extent) []Extent {
	var out []Extent
	for _, o := range outer {
		logical, at, end := o.Logical, o.Physical, o.Physical+o.Length
		for at < end {
			i, ok := covering(inner, at)
			if !ok {
				next, ok := nextStart(inner, at)
				if !ok {
					break
				}
				skip := min(next, end) - at
				logical += skip
				at += skip
				continue
			}
			n := min(end, i.Logical+i.Length) - at
			out = append(out, Extent{Logical: logical, Physical: i.Physical + at - i.Logical, Length: n})
			logical += n
			at += n
		}
	}
	return out
}

// covering returns the extent holding logical offset off.
func covering(extents []Extent, off int64) (Extent, bool) {
	for _, e := range extents {
		if off >= e.Logical && off < e.Logical+e.Length {
			return e, true
		}
	}
	return Extent{}, false
}

// nextStart returns the lowest extent start above off.
func nextStart(extents []Extent, off int64) (int64, bool) {
	next, found := int64(0), false
	for _, e := range extents {
		if e.Logical > off && (!found || e.Logical < next) {
			next, found = e.Logical, true
		}
	}
	return next, found
}

// Size returns the logical size of the file
func (e *ExtentReaderAt) Size() int64 { return e.size }

// Extents returns the flattened extent list backing the reader.
func (e *ExtentReaderAt) Extents() []Extent { return e.extents }

// BaseReader returns the reader the extents point into.
func (e *ExtentReaderAt) BaseReader() io.ReaderAt { return e.r }

// ReadAt implements io.ReaderAt. A read cut short by the end of the file
// returns the bytes available and io.EOF.
func (e *ExtentReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= e.size {
		return 0, io.EOF
	}
	var eof error
	if rem := e.size - off; int64(len(p)) > rem {
		p, eof = p[:rem], io.EOF
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		ext, ok := covering(e.extents, pos)
		if !ok {
			next, found := nextStart(e.extents, pos)
			if !found {
				next = e.size
			}
			z := int(min(next-pos, int64(len(p)-n)))
			clear(p[n : n+z])
			n += z
			continue
		}
		want := int(min(ext.Logical+ext.Length-pos, int64(len(p)-n)))
		got, err := e.r.ReadAt(p[n:n+want], ext.Physical+pos-ext.Logical)
		n += got
		if err != nil && err != io.EOF {
			return n, err
		}
		if got < want {
			return n, io.EOF
		}
	}
	return n, eof
}

// FileInfo provides extended file information
type FileInfo interface {
	fs.FileInfo

	// Inode returns the inode number (0 for filesystems without inodes)
	Inode() uint64
}
