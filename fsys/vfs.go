package fsys

import (
	"fmt"
	"io"
	"io/fs"
	"iter"
)

var (
	// ErrNotDir is returned when a file handle is used where a directory is needed
	ErrNotDir = fmt.Errorf("not a directory: %w", fs.ErrInvalid)
	// ErrIsDir is returned when a directory handle is opened as a file
	ErrIsDir = fmt.Errorf("is a directory: %w", fs.ErrInvalid)
)

// Kind tells directories and files apart in a Handle
type Kind uint8

const (
	KindDir Kind = iota
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Handle identifies an entry of a VFS. Offset is the entry's position in
// its metadata table and is stable for the lifetime of the image.
type Handle struct {
	Kind   Kind
	Offset uint32
}

// IsDir reports whether the handle refers to a directory
func (h Handle) IsDir() bool { return h.Kind == KindDir }

// Ino returns an inode number derived from the handle. Directories and
// files live in separate tables, so files get the upper half of the space.
// The root directory is inode 1.
func (h Handle) Ino() uint64 {
	ino := uint64(h.Offset) + 1
	if h.Kind == KindFile {
		ino |= 1 << 32
	}
	return ino
}

// DirEntry is one element of a directory listing
type DirEntry struct {
	Name   string
	Handle Handle
}

// Stat describes an entry. Size is only meaningful for files.
type Stat struct {
	Kind Kind
	Name string
	Size int64
}

// File is a randomly accessible, independently seekable view of file data
type File interface {
	io.ReaderAt
	io.ReadSeeker

	// Size returns the length of the file in bytes
	Size() int64
}

// VFS is the handle-based capability interface of a read-only image.
// Listing order is the image's own order and is stable across calls.
type VFS interface {
	// Root returns the handle of the root directory
	Root() Handle

	// Lookup finds a single named child of dir
	Lookup(dir Handle, name string) (Handle, error)

	// Resolve walks path components from the root. Intermediate
	// components must be directories; the last may be either kind.
	Resolve(path []string) (Handle, error)

	// ResolveDir is Resolve for callers that only accept a directory
	ResolveDir(path []string) (Handle, error)

	// List yields the children of dir. The sequence is lazy and may be
	// ranged over any number of times.
	List(dir Handle) iter.Seq2[DirEntry, error]

	// Stat describes the entry behind h
	Stat(h Handle) (Stat, error)

	// OpenFile returns a new view of a file's data
	OpenFile(h Handle) (File, error)
}
