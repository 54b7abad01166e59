package romfs

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/rs/zerolog"

	"github.com/lvdlvd/romfs/fsys"
)

var (
	ErrNotDir = fsys.ErrNotDir
	ErrIsDir  = fsys.ErrIsDir
)

// VFS resolves paths, lists directories and opens files of a decoded image.
// It holds no mutable state apart from an optional cache of decoded
// directory records, and is safe for concurrent use.
type VFS struct {
	img   *Image
	cache *arc.ARCCache[uint32, DirEntry]
	log   zerolog.Logger
}

var _ fsys.VFS = (*VFS)(nil)

// NewVFS builds the virtual filesystem over img
func NewVFS(img *Image, opts ...Option) (*VFS, error) {
	o := newOptions(opts)
	v := &VFS{img: img, log: o.log}
	if o.cacheSize > 0 {
		cache, err := arc.NewARC[uint32, DirEntry](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("romfs: creating directory cache: %w", err)
		}
		v.cache = cache
		v.log.Debug().Int("entries", o.cacheSize).Msg("directory cache enabled")
	}
	return v, nil
}

// Image returns the decoded image behind the VFS
func (v *VFS) Image() *Image { return v.img }

func dirHandle(off uint32) fsys.Handle  { return fsys.Handle{Kind: fsys.KindDir, Offset: off} }
func fileHandle(off uint32) fsys.Handle { return fsys.Handle{Kind: fsys.KindFile, Offset: off} }

func (v *VFS) dir(off uint32) (DirEntry, error) {
	if v.cache != nil {
		if d, ok := v.cache.Get(off); ok {
			return d, nil
		}
	}
	d, err := v.img.Dir(off)
	if err != nil {
		return DirEntry{}, err
	}
	if v.cache != nil {
		v.cache.Add(off, d)
	}
	return d, nil
}

// Root returns the handle of the root directory
func (v *VFS) Root() fsys.Handle { return dirHandle(0) }

// Lookup finds the child of dir called name, trying directories first
func (v *VFS) Lookup(dir fsys.Handle, name string) (fsys.Handle, error) {
	if !dir.IsDir() {
		return fsys.Handle{}, ErrNotDir
	}
	off, err := v.img.LookupDir(dir.Offset, name)
	if err == nil {
		return dirHandle(off), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fsys.Handle{}, err
	}
	off, err = v.img.LookupFile(dir.Offset, name)
	if err != nil {
		return fsys.Handle{}, err
	}
	return fileHandle(off), nil
}

// Resolve walks path from the root. The last component may name a file.
func (v *VFS) Resolve(path []string) (fsys.Handle, error) {
	return v.resolve(path, true)
}

// ResolveDir walks path from the root and requires it to end at a directory
func (v *VFS) ResolveDir(path []string) (fsys.Handle, error) {
	return v.resolve(path, false)
}

func (v *VFS) resolve(path []string, acceptFile bool) (fsys.Handle, error) {
	h := v.Root()
	for i, name := range path {
		off, err := v.img.LookupDir(h.Offset, name)
		if err == nil {
			h = dirHandle(off)
			continue
		}
		if !errors.Is(err, ErrNotFound) || !acceptFile || i != len(path)-1 {
			return fsys.Handle{}, err
		}
		off, err = v.img.LookupFile(h.Offset, name)
		if err != nil {
			return fsys.Handle{}, err
		}
		h = fileHandle(off)
	}
	return h, nil
}

// List yields the files of dir followed by its subdirectories, each in
// the order of their sibling chain in the image.
func (v *VFS) List(dir fsys.Handle) iter.Seq2[fsys.DirEntry, error] {
	return func(yield func(fsys.DirEntry, error) bool) {
		if !dir.IsDir() {
			yield(fsys.DirEntry{}, ErrNotDir)
			return
		}
		d, err := v.dir(dir.Offset)
		if err != nil {
			yield(fsys.DirEntry{}, err)
			return
		}

		bound := v.img.fileBound()
		for off, n := d.FirstFile, 0; off != Sentinel; n++ {
			if n >= bound {
				yield(fsys.DirEntry{}, malformed(TableFileMeta, int64(off), "file sibling chain of directory %#x does not terminate", dir.Offset))
				return
			}
			f, err := v.img.File(off)
			if err != nil {
				yield(fsys.DirEntry{}, err)
				return
			}
			name, err := f.Name()
			if err != nil {
				yield(fsys.DirEntry{}, err)
				return
			}
			if !yield(fsys.DirEntry{Name: name, Handle: fileHandle(off)}, nil) {
				return
			}
			off = f.NextSibling
		}

		bound = v.img.dirBound()
		for off, n := d.FirstDir, 0; off != Sentinel; n++ {
			if n >= bound {
				yield(fsys.DirEntry{}, malformed(TableDirMeta, int64(off), "directory sibling chain of directory %#x does not terminate", dir.Offset))
				return
			}
			// a subdirectory must point back at dir, and the root is
			// nobody's child; together these keep the tree acyclic
			if off == 0 {
				yield(fsys.DirEntry{}, malformed(TableDirMeta, int64(dir.Offset), "directory lists the root as a subdirectory"))
				return
			}
			sub, err := v.dir(off)
			if err != nil {
				yield(fsys.DirEntry{}, err)
				return
			}
			if sub.Parent != dir.Offset {
				yield(fsys.DirEntry{}, malformed(TableDirMeta, int64(off), "subdirectory of %#x names %#x as its parent", dir.Offset, sub.Parent))
				return
			}
			name, err := sub.Name()
			if err != nil {
				yield(fsys.DirEntry{}, err)
				return
			}
			if !yield(fsys.DirEntry{Name: name, Handle: dirHandle(off)}, nil) {
				return
			}
			off = sub.NextSibling
		}
	}
}

// Stat describes the entry behind h
func (v *VFS) Stat(h fsys.Handle) (fsys.Stat, error) {
	if h.IsDir() {
		d, err := v.dir(h.Offset)
		if err != nil {
			return fsys.Stat{}, err
		}
		name, err := d.Name()
		if err != nil {
			return fsys.Stat{}, err
		}
		return fsys.Stat{Kind: fsys.KindDir, Name: name}, nil
	}
	f, err := v.img.File(h.Offset)
	if err != nil {
		return fsys.Stat{}, err
	}
	if f.DataSize > math.MaxInt64 {
		return fsys.Stat{}, malformed(TableFileMeta, int64(h.Offset), "data size %#x out of range", f.DataSize)
	}
	name, err := f.Name()
	if err != nil {
		return fsys.Stat{}, err
	}
	return fsys.Stat{Kind: fsys.KindFile, Name: name, Size: int64(f.DataSize)}, nil
}

// Extent returns where the data of the file behind h lives in the source
func (v *VFS) Extent(h fsys.Handle) (fsys.Extent, error) {
	if h.IsDir() {
		return fsys.Extent{}, ErrIsDir
	}
	f, err := v.img.File(h.Offset)
	if err != nil {
		return fsys.Extent{}, err
	}
	data := v.img.data
	if f.DataOffset > data.Length || f.DataSize > data.Length-f.DataOffset {
		return fsys.Extent{}, truncated(TableData, int64(h.Offset), "file data [%#x,+%#x) runs past the data region of %#x bytes", f.DataOffset, f.DataSize, data.Length)
	}
	return fsys.Extent{
		Logical:  0,
		Physical: int64(data.Offset + f.DataOffset),
		Length:   int64(f.DataSize),
	}, nil
}

// OpenFile returns a new view of the file behind h
func (v *VFS) OpenFile(h fsys.Handle) (fsys.File, error) {
	view, err := v.OpenView(h)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// OpenView is OpenFile returning the concrete view
func (v *VFS) OpenView(h fsys.Handle) (*View, error) {
	ext, err := v.Extent(h)
	if err != nil {
		return nil, err
	}
	return newView(v.img.r, ext), nil
}
