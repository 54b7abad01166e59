//go:build linux || darwin

package source

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Mapped is a Source backed by a read-only shared mapping of a file
type Mapped struct {
	data []byte
}

// Map maps the file at path into memory. Empty files are not mapped.
func Map(path string) (*Mapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening image")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat image")
	}
	if st.IsDir() {
		return nil, errors.Errorf("%s is a directory", path)
	}
	if st.Size() == 0 {
		return &Mapped{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	// metadata lookups jump between tables
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return &Mapped{data: data}, nil
}

func (m *Mapped) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mapped) Size() int64 { return int64(len(m.data)) }

// Close unmaps the file. The Source must not be used afterwards.
func (m *Mapped) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return errors.Wrap(err, "munmap")
}
