package mount

import (
	"syscall"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/lvdlvd/romfs/fsys"
)

const (
	dirMode   = syscall.S_IFDIR | 0555 // dr-xr-xr-x
	fileMode  = syscall.S_IFREG | 0444 // -r--r--r--
	blockSize = 4096
)

func fileAttr(h fsys.Handle, size int64, out *fuse.Attr) fusefs.StableAttr {
	out.Ino = h.Ino()
	out.Size = uint64(size)
	out.Blksize = blockSize
	out.Blocks = (out.Size + 511) / 512
	out.Nlink = 1
	out.Mode = fileMode
	out.Owner = fuse.Owner{Uid: 0, Gid: 0}
	return fusefs.StableAttr{Mode: out.Mode, Ino: out.Ino}
}

func dirAttr(h fsys.Handle, out *fuse.Attr) fusefs.StableAttr {
	out.Ino = h.Ino()
	out.Size = 0
	out.Blksize = blockSize
	out.Nlink = 2
	out.Mode = dirMode
	out.Owner = fuse.Owner{Uid: 0, Gid: 0}
	return fusefs.StableAttr{Mode: out.Mode, Ino: out.Ino}
}

func dirEntry(e fsys.DirEntry) fuse.DirEntry {
	mode := uint32(fileMode)
	if e.Handle.IsDir() {
		mode = dirMode
	}
	return fuse.DirEntry{Name: e.Name, Mode: mode, Ino: e.Handle.Ino()}
}
