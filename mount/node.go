package mount

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"syscall"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"

	"github.com/lvdlvd/romfs/fsys"
)

// node is the state shared by directory and file nodes
type node struct {
	fusefs.Inode
	vfs fsys.VFS
	h   fsys.Handle
	log zerolog.Logger
}

// dirNode is a directory of the image
type dirNode struct {
	node
}

var (
	_ = (fusefs.NodeLookuper)((*dirNode)(nil))
	_ = (fusefs.NodeReaddirer)((*dirNode)(nil))
	_ = (fusefs.NodeGetattrer)((*dirNode)(nil))
)

func (n *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	h, err := n.vfs.Lookup(n.h, name)
	if err != nil {
		return nil, n.errno(err, "lookup")
	}
	if h.IsDir() {
		stable := dirAttr(h, &out.Attr)
		return n.NewInode(ctx, &dirNode{node: node{vfs: n.vfs, h: h, log: n.log}}, stable), 0
	}
	st, err := n.vfs.Stat(h)
	if err != nil {
		return nil, n.errno(err, "stat")
	}
	stable := fileAttr(h, st.Size, &out.Attr)
	return n.NewInode(ctx, &fileNode{node: node{vfs: n.vfs, h: h, log: n.log}}, stable), 0
}

func (n *dirNode) Readdir(ctx context.Context) (fusefs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	for e, err := range n.vfs.List(n.h) {
		if err != nil {
			return nil, n.errno(err, "readdir")
		}
		entries = append(entries, dirEntry(e))
	}
	return fusefs.NewListDirStream(entries), 0
}

func (n *dirNode) Getattr(ctx context.Context, fh fusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	dirAttr(n.h, &out.Attr)
	return 0
}

// fileNode is a regular file of the image
type fileNode struct {
	node
}

var (
	_ = (fusefs.NodeOpener)((*fileNode)(nil))
	_ = (fusefs.NodeGetattrer)((*fileNode)(nil))
)

func (n *fileNode) Open(ctx context.Context, flags uint32) (fusefs.FileHandle, uint32, syscall.Errno) {
	if writable(flags) {
		return nil, 0, syscall.EROFS
	}
	f, err := n.vfs.OpenFile(n.h)
	if err != nil {
		return nil, 0, n.errno(err, "open")
	}
	return &fileHandle{f: f}, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fileNode) Getattr(ctx context.Context, fh fusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := n.vfs.Stat(n.h)
	if err != nil {
		return n.errno(err, "stat")
	}
	fileAttr(n.h, st.Size, &out.Attr)
	return 0
}

// fileHandle reads one open file
type fileHandle struct {
	f fsys.File
}

var _ = (fusefs.FileReader)((*fileHandle)(nil))

func (fh *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := fh.f.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func writable(flags uint32) bool {
	return flags&syscall.O_ACCMODE != syscall.O_RDONLY ||
		flags&(syscall.O_TRUNC|syscall.O_APPEND|syscall.O_CREAT) != 0
}

// errno maps VFS errors to the codes the kernel expects. Anything that is
// not a plain lookup failure means the image is damaged and is logged.
func (n *node) errno(err error, op string) syscall.Errno {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, fsys.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, fsys.ErrIsDir):
		return syscall.EISDIR
	}
	n.log.Warn().Err(err).Str("op", op).Uint64("ino", n.h.Ino()).Msg("image error")
	return syscall.EIO
}
