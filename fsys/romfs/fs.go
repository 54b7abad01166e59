package romfs

import (
	"bytes"
	"io"
	"io/fs"
	"iter"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/lvdlvd/romfs/fsys"
)

var ivfcMagic = []byte{'I', 'V', 'F', 'C', 0x00, 0x00, 0x01, 0x00}

// FS implements fsys.FS over a RomFS image
type FS struct {
	vfs *VFS
	typ string
}

var (
	_ fsys.FS           = (*FS)(nil)
	_ fsys.ExtentMapper = (*FS)(nil)
)

// Open decodes the RomFS image at the start of r
func Open(r io.ReaderAt, size int64, opts ...Option) (*FS, error) {
	img, err := Decode(r, size, opts...)
	if err != nil {
		return nil, err
	}
	v, err := NewVFS(img, opts...)
	if err != nil {
		return nil, err
	}
	return &FS{vfs: v, typ: "RomFS"}, nil
}

// OpenIVFC decodes the RomFS image inside an IVFC container. The hash
// levels are skipped, not verified.
func OpenIVFC(r io.ReaderAt, size int64, opts ...Option) (*FS, error) {
	magic := make([]byte, len(ivfcMagic))
	if size < int64(len(magic)) {
		return nil, truncated(TableHeader, 0, "source is %d bytes, IVFC header needs %d", size, len(magic))
	}
	if err := readFull(r, magic, 0, TableHeader); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, ivfcMagic) {
		return nil, malformed(TableHeader, 0, "IVFC magic % x, want % x", magic, ivfcMagic)
	}
	if size < IVFCLevel3Offset {
		return nil, truncated(TableHeader, IVFCLevel3Offset, "source of %#x bytes ends before level 3", size)
	}

	length := size - IVFCLevel3Offset
	level3 := fsys.NewExtentReaderAt(r, []fsys.Extent{{Logical: 0, Physical: IVFCLevel3Offset, Length: length}}, length)
	f, err := Open(level3, length, opts...)
	if err != nil {
		return nil, err
	}
	f.typ = "RomFS (IVFC)"
	return f, nil
}

func (f *FS) Type() string { return f.typ }
func (f *FS) Close() error { return nil }

// BaseReader returns the reader file extents are relative to
func (f *FS) BaseReader() io.ReaderAt { return f.vfs.img.r }

// VFS returns the handle-based view of the image
func (f *FS) VFS() *VFS { return f.vfs }

func split(name string) []string {
	if name == "." {
		return nil
	}
	return strings.Split(name, "/")
}

func (f *FS) lookup(op, name string) (fsys.Handle, error) {
	if !fs.ValidPath(name) {
		return fsys.Handle{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	h, err := f.vfs.Resolve(split(name))
	if err != nil {
		return fsys.Handle{}, &fs.PathError{Op: op, Path: name, Err: err}
	}
	return h, nil
}

func (f *FS) info(h fsys.Handle, name string) (*fileInfo, error) {
	st, err := f.vfs.Stat(h)
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: name, handle: h, size: st.Size}, nil
}

// FileExtents returns the single extent holding a file's data
func (f *FS) FileExtents(name string) ([]fsys.Extent, error) {
	h, err := f.lookup("extents", name)
	if err != nil {
		return nil, err
	}
	ext, err := f.vfs.Extent(h)
	if err != nil {
		return nil, &fs.PathError{Op: "extents", Path: name, Err: err}
	}
	return []fsys.Extent{ext}, nil
}

// fs.FS implementation

func (f *FS) Open(name string) (fs.File, error) {
	h, err := f.lookup("open", name)
	if err != nil {
		return nil, err
	}
	info, err := f.info(h, path.Base(name))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if h.IsDir() {
		return &romfsDir{fs: f, info: info}, nil
	}

	view, err := f.vfs.OpenView(h)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &romfsFile{View: view, info: info}, nil
}

// ReadDir returns the entries of a directory sorted by name, as fs.ReadDirFS
// requires. Opening the directory and calling ReadDir on it gives the order
// of the image instead.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	h, err := f.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if !h.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotDir}
	}

	var entries []fs.DirEntry
	for e, err := range f.vfs.List(h) {
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
		entries = append(entries, &romfsDirEntry{fs: f, entry: e})
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries, nil
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	h, err := f.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	info, err := f.info(h, path.Base(name))
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return info, nil
}

// romfsFile implements fs.File for regular files. The embedded View also
// makes it an io.ReaderAt and io.Seeker.
type romfsFile struct {
	*View
	info *fileInfo
}

func (f *romfsFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *romfsFile) Close() error               { return nil }

// romfsDir implements fs.ReadDirFile. Entries are pulled from the image
// as ReadDir asks for them.
type romfsDir struct {
	fs   *FS
	info *fileInfo
	next func() (fsys.DirEntry, error, bool)
	stop func()
	done bool
}

func (d *romfsDir) Stat() (fs.FileInfo, error) { return d.info, nil }

func (d *romfsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: ErrIsDir}
}

func (d *romfsDir) Close() error {
	d.finish()
	return nil
}

// finish releases the pull iterator once the listing is exhausted
func (d *romfsDir) finish() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	d.done = true
}

func (d *romfsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.next == nil && !d.done {
		d.next, d.stop = iter.Pull2(d.fs.vfs.List(d.info.handle))
	}

	var entries []fs.DirEntry
	for !d.done && (n <= 0 || len(entries) < n) {
		e, err, ok := d.next()
		if !ok {
			d.finish()
			break
		}
		if err != nil {
			d.finish()
			return entries, &fs.PathError{Op: "readdir", Path: d.info.name, Err: err}
		}
		entries = append(entries, &romfsDirEntry{fs: d.fs, entry: e})
	}

	if n > 0 && len(entries) == 0 {
		return nil, io.EOF
	}
	return entries, nil
}

// romfsDirEntry implements fs.DirEntry
type romfsDirEntry struct {
	fs    *FS
	entry fsys.DirEntry
}

func (e *romfsDirEntry) Name() string { return e.entry.Name }
func (e *romfsDirEntry) IsDir() bool  { return e.entry.Handle.IsDir() }
func (e *romfsDirEntry) Type() fs.FileMode {
	if e.IsDir() {
		return fs.ModeDir
	}
	return 0
}
func (e *romfsDirEntry) Info() (fs.FileInfo, error) {
	return e.fs.info(e.entry.Handle, e.entry.Name)
}

// fileInfo implements fsys.FileInfo. RomFS keeps no timestamps.
type fileInfo struct {
	name   string
	handle fsys.Handle
	size   int64
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.size }
func (i *fileInfo) ModTime() time.Time { return time.Time{} }
func (i *fileInfo) IsDir() bool        { return i.handle.IsDir() }
func (i *fileInfo) Sys() any           { return nil }
func (i *fileInfo) Inode() uint64      { return i.handle.Ino() }

func (i *fileInfo) Mode() fs.FileMode {
	mode := fs.FileMode(0444)
	if i.IsDir() {
		mode |= fs.ModeDir | 0111
	}
	return mode
}
