package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/lvdlvd/romfs/fsys"
)

// ExtractOptions controls Extract
type ExtractOptions struct {
	Workers int // parallel file copies, at least 1
	Log     zerolog.Logger
}

// Extract writes the tree under fsPath to the host directory dest,
// creating it if needed; a single file is written into dest. Directories
// are created as they are walked and file contents are copied by a pool
// of workers. The first error stops the walk and cancels pending copies.
func Extract(ctx context.Context, filesystem fsys.FS, fsPath, dest string, opts ExtractOptions) (Summary, error) {
	fsPath = normalizePath(fsPath)
	workers := max(opts.Workers, 1)

	var (
		s      Summary
		files  atomic.Int64
		bytes  atomic.Int64
		failed atomic.Bool
	)
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()

	walkErr := fs.WalkDir(filesystem, fsPath, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if failed.Load() {
			// the pool holds the error
			return fs.SkipAll
		}

		rel, err := filepath.Rel(fsPath, name)
		if err != nil {
			return errors.Wrapf(err, "relative path of %s", name)
		}
		if !filepath.IsLocal(rel) && rel != "." {
			return errors.Errorf("%s: refusing to write outside %s", name, dest)
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		if d.IsDir() {
			s.Dirs++
			return errors.Wrapf(os.MkdirAll(target, 0o755), "creating %s", target)
		}

		if rel == "." {
			// fsPath names a single file
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errors.Wrapf(err, "creating %s", dest)
			}
			target = filepath.Join(dest, d.Name())
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := extractFile(filesystem, name, info.Size(), target); err != nil {
				failed.Store(true)
				return err
			}
			files.Add(1)
			bytes.Add(info.Size())
			opts.Log.Debug().Str("path", name).Int64("size", info.Size()).Msg("extracted")
			return nil
		})
		return nil
	})

	poolErr := p.Wait()
	s.Files = int(files.Load())
	s.Bytes = bytes.Load()
	if walkErr != nil {
		return s, walkErr
	}
	return s, poolErr
}

func extractFile(filesystem fsys.FS, name string, size int64, target string) (err error) {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = errors.Wrapf(cerr, "closing %s", target)
		}
	}()
	return copyFile(filesystem, name, size, out)
}
