// Package source provides the byte sources images are decoded from.
package source

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Source is a random access byte source of known length
type Source interface {
	io.ReaderAt
	io.Closer

	// Size returns the length of the source in bytes
	Size() int64
}

// Options selects how a file is opened
type Options struct {
	// Mmap maps the file into memory instead of issuing a read per request.
	// It is ignored where mapping is not supported.
	Mmap bool

	// Serialize funnels all reads through a single lock, for readers that
	// are not safe for concurrent ReadAt.
	Serialize bool
}

// Open opens the file at path as a Source
func Open(path string, opts Options) (Source, error) {
	var (
		src Source
		err error
	)
	if opts.Mmap {
		src, err = Map(path)
	} else {
		src, err = OpenFile(path)
	}
	if err != nil {
		return nil, err
	}
	if opts.Serialize {
		src = Serialize(src)
	}
	return src, nil
}

// File is a Source backed by an *os.File
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens path for reading
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening image")
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "stat image")
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, errors.Errorf("%s is a directory", path)
	}
	return &File{f: f, size: st.Size()}, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }
func (f *File) Size() int64                              { return f.size }
func (f *File) Close() error                             { return f.f.Close() }

// Bytes is a Source over an in-memory image
type Bytes []byte

func (b Bytes) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b Bytes) Size() int64  { return int64(len(b)) }
func (b Bytes) Close() error { return nil }

type serialized struct {
	mu  sync.Mutex
	src Source
}

// Serialize wraps src so that at most one ReadAt runs at a time
func Serialize(src Source) Source {
	return &serialized{src: src}
}

func (s *serialized) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.ReadAt(p, off)
}

func (s *serialized) Size() int64  { return s.src.Size() }
func (s *serialized) Close() error { return s.src.Close() }
