// Package cmd implements the romfs commands over an opened image.
package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/lvdlvd/romfs/fsys"
)

// LsOptions controls ls behavior
type LsOptions struct {
	Long bool // Long format (-l)
	All  bool // Show dotfiles (-a)
}

// Ls lists the contents of a path in the filesystem.
// If the path is a file, it shows file information.
// If the path is a directory, it lists its contents.
func Ls(filesystem fsys.FS, fsPath string, out io.Writer, opts LsOptions) error {
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return listDirectory(filesystem, fsPath, out, opts)
	}

	return showFileInfo(info, out, opts.Long)
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

func listDirectory(filesystem fsys.FS, dirPath string, out io.Writer, opts LsOptions) error {
	entries, err := fs.ReadDir(filesystem, dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if !opts.All && strings.HasPrefix(name, ".") {
			continue
		}

		if !opts.Long {
			if entry.IsDir() {
				name += "/"
			}
			fmt.Fprintln(out, name)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(out, "%-10s %12s %s\n", "?????????", "?", name)
			continue
		}
		printLongFormat(info, out)
	}

	return nil
}

func showFileInfo(info fs.FileInfo, out io.Writer, long bool) error {
	if long {
		printLongFormat(info, out)
	} else {
		fmt.Fprintln(out, info.Name())
	}
	return nil
}

// printLongFormat prints inode, mode, size and name. RomFS has no
// timestamps, so unlike ls there is no date column.
func printLongFormat(info fs.FileInfo, out io.Writer) {
	var inode string
	if fi, ok := info.(fsys.FileInfo); ok {
		inode = fmt.Sprintf("%10d ", fi.Inode())
	}

	name := info.Name()
	if info.IsDir() {
		name += "/"
	}
	fmt.Fprintf(out, "%s%s %12d %s\n", inode, info.Mode(), info.Size(), name)
}
