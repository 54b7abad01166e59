package cmd

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/pkg/errors"

	"github.com/lvdlvd/romfs/fsys"
)

// Cat copies the contents of a file to the given writer.
// When the filesystem supports extent mapping, it streams directly
// from the underlying image without going through an open file.
func Cat(filesystem fsys.FS, fsPath string, out io.Writer) error {
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.Errorf("%s: is a directory", fsPath)
	}

	return copyFile(filesystem, fsPath, info.Size(), out)
}

func copyFile(filesystem fsys.FS, fsPath string, size int64, out io.Writer) error {
	if r := extentReader(filesystem, fsPath, size); r != nil {
		return streamFromReaderAt(r, size, out)
	}

	file, err := filesystem.Open(fsPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(out, file)
	return errors.Wrapf(err, "copying %s", fsPath)
}

// extentReader returns a reader over the file's extents, or nil when the
// filesystem cannot map them. Its extents are relative to the outermost
// reader, so they are offsets into the image file.
func extentReader(filesystem fsys.FS, fsPath string, size int64) *fsys.ExtentReaderAt {
	em, ok := filesystem.(fsys.ExtentMapper)
	if !ok {
		return nil
	}
	br, ok := filesystem.(interface{ BaseReader() io.ReaderAt })
	if !ok {
		return nil
	}
	extents, err := em.FileExtents(fsPath)
	if err != nil || len(extents) == 0 {
		return nil
	}
	return fsys.NewExtentReaderAt(br.BaseReader(), extents, size)
}

// streamFromReaderAt copies data from a ReaderAt to a Writer in chunks
func streamFromReaderAt(r io.ReaderAt, size int64, out io.Writer) error {
	const bufSize = 64 * 1024
	buf := make([]byte, bufSize)
	offset := int64(0)

	for offset < size {
		toRead := min(int64(bufSize), size-offset)

		n, err := r.ReadAt(buf[:toRead], offset)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if offset < size {
		return errors.Errorf("short read: %d of %d bytes", offset, size)
	}
	return nil
}

// Stat shows detailed information about a file or directory.
func Stat(filesystem fsys.FS, fsPath string, out io.Writer) error {
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}

	kind := "regular file"
	if info.IsDir() {
		kind = "directory"
	}
	fmt.Fprintf(out, "  File: %s\n", info.Name())
	fmt.Fprintf(out, "  Type: %s\n", kind)
	fmt.Fprintf(out, "  Size: %d\n", info.Size())
	fmt.Fprintf(out, "  Mode: %s\n", info.Mode())

	if fi, ok := info.(fsys.FileInfo); ok {
		fmt.Fprintf(out, " Inode: %d\n", fi.Inode())
	}

	if !info.IsDir() {
		if r := extentReader(filesystem, fsPath, info.Size()); r != nil {
			for _, e := range r.Extents() {
				fmt.Fprintf(out, "Extent: %#x +%#x\n", e.Physical, e.Length)
			}
		}
	}

	return nil
}
