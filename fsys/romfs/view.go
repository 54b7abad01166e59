package romfs

import (
	"errors"
	"io"
	"io/fs"

	"github.com/lvdlvd/romfs/fsys"
)

var errNegativePosition = errors.New("romfs: negative position")

// View reads one file's bytes out of the data region. Reads are clipped to
// the file; a read that comes up short because the file ends returns io.EOF
// along with the bytes it got. Each View has its own position, so views of
// the same file can be used from different goroutines.
type View struct {
	r   *fsys.ExtentReaderAt
	pos int64
}

var _ fsys.File = (*View)(nil)

func newView(r io.ReaderAt, ext fsys.Extent) *View {
	return &View{r: fsys.NewExtentReaderAt(r, []fsys.Extent{ext}, ext.Length)}
}

// Size returns the file length
func (v *View) Size() int64 { return v.r.Size() }

// ReadAt implements io.ReaderAt
func (v *View) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativePosition
	}
	return v.r.ReadAt(p, off)
}

// Read implements io.Reader
func (v *View) Read(p []byte) (int, error) {
	n, err := v.r.ReadAt(p, v.pos)
	v.pos += int64(n)
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker. Seeking past the end is allowed; reads there
// return io.EOF.
func (v *View) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = v.pos + offset
	case io.SeekEnd:
		pos = v.r.Size() + offset
	default:
		return v.pos, fs.ErrInvalid
	}
	if pos < 0 {
		return v.pos, errNegativePosition
	}
	v.pos = pos
	return pos, nil
}
