package cmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/lvdlvd/romfs/fsys"
	"github.com/lvdlvd/romfs/fsys/romfs"
)

// Summary counts the entries of an image
type Summary struct {
	Dirs  int
	Files int
	Bytes int64
}

// Summarize walks every directory of v. A directory reached twice means
// the tree loops back on itself and fails the walk.
func Summarize(v fsys.VFS) (Summary, error) {
	var s Summary
	seen := map[fsys.Handle]bool{}
	pending := []fsys.Handle{v.Root()}
	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if seen[dir] {
			return s, errors.Wrapf(romfs.ErrMalformed, "directory %#x reached twice", dir.Offset)
		}
		seen[dir] = true
		s.Dirs++

		for e, err := range v.List(dir) {
			if err != nil {
				return s, err
			}
			if e.Handle.IsDir() {
				pending = append(pending, e.Handle)
				continue
			}
			st, err := v.Stat(e.Handle)
			if err != nil {
				return s, err
			}
			s.Files++
			s.Bytes += st.Size
		}
	}
	return s, nil
}

// Info prints the image layout and entry counts
func Info(f *romfs.FS, out io.Writer) error {
	img := f.VFS().Image()
	hdr := img.Header()

	fmt.Fprintf(out, "Filesystem type: %s\n", f.Type())
	fmt.Fprintf(out, "Image size:      %d\n", img.Size())
	fmt.Fprintf(out, "Header length:   %#x\n", hdr.HeaderLen)
	region := func(name string, r romfs.Region) {
		fmt.Fprintf(out, "%-16s %#010x +%#x\n", name+":", r.Offset, r.Length)
	}
	region("Dir hash", hdr.DirHash)
	region("Dir meta", hdr.DirMeta)
	region("File hash", hdr.FileHash)
	region("File meta", hdr.FileMeta)
	region("Data", img.DataRegion())

	s, err := Summarize(f.VFS())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Directories:     %d\n", s.Dirs)
	fmt.Fprintf(out, "Files:           %d\n", s.Files)
	fmt.Fprintf(out, "File bytes:      %d\n", s.Bytes)
	return nil
}
