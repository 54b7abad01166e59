// Package mount serves a read-only VFS through FUSE.
package mount

import (
	"context"
	"os/exec"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/lvdlvd/romfs/fsys"
)

const fusermountBin = "fusermount"

// Options controls a mount
type Options struct {
	AllowOther bool
	Debug      bool
	FSName     string

	// Timeout is how long the kernel may cache entries and attributes.
	// The image never changes, so zero selects a long default.
	Timeout time.Duration

	Log zerolog.Logger
}

// Mount mounts v at mountpoint and returns once the kernel has the mount
func Mount(mountpoint string, v fsys.VFS, opts Options) (*fuse.Server, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Hour
	}
	fsName := opts.FSName
	if fsName == "" {
		fsName = "romfs"
	}

	root := &dirNode{node: node{vfs: v, h: v.Root(), log: opts.Log}}
	rawFS := fusefs.NewNodeFS(root, &fusefs.Options{
		AttrTimeout:  &timeout,
		EntryTimeout: &timeout,
	})
	mountOpts := &fuse.MountOptions{
		AllowOther: opts.AllowOther,
		FsName:     fsName,
		Name:       "romfs",
		Debug:      opts.Debug,
		Options:    []string{"ro"},
	}
	if _, err := exec.LookPath(fusermountBin); err != nil {
		opts.Log.Debug().Err(err).Msgf("%s not installed; trying direct mount", fusermountBin)
		mountOpts.DirectMount = true
	}

	server, err := fuse.NewServer(rawFS, mountpoint, mountOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "mounting at %s", mountpoint)
	}
	go server.Serve()
	if err := server.WaitMount(); err != nil {
		_ = server.Unmount()
		return nil, errors.Wrap(err, "waiting for mount")
	}
	opts.Log.Info().Str("mountpoint", mountpoint).Msg("mounted")
	return server, nil
}

// Serve mounts v and blocks until ctx is done or the filesystem is
// unmounted from outside.
func Serve(ctx context.Context, mountpoint string, v fsys.VFS, opts Options) error {
	server, err := Mount(mountpoint, v, opts)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	opts.Log.Info().Str("mountpoint", mountpoint).Msg("unmounting")
	if err := server.Unmount(); err != nil {
		return errors.Wrapf(err, "unmounting %s", mountpoint)
	}
	<-done
	return nil
}
