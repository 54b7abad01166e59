package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lvdlvd/romfs/cmd"
	"github.com/lvdlvd/romfs/config"
	"github.com/lvdlvd/romfs/detect"
	"github.com/lvdlvd/romfs/fsys/romfs"
	"github.com/lvdlvd/romfs/mount"
	"github.com/lvdlvd/romfs/source"
)

// app carries what the persistent flags and config resolve to
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "romfs",
		Short: "Read files from 3DS RomFS images",
		Long: `romfs lists, prints, extracts and mounts the contents of 3DS RomFS
images. Both bare level-3 images and IVFC containers are recognised.
Images are only ever read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			return a.setup(c.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: romfs.yaml in . or "+config.DefaultConfigPath()+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(
		a.newLsCmd(),
		a.newCatCmd(),
		a.newStatCmd(),
		a.newInfoCmd(),
		a.newExtractCmd(),
		a.newMountCmd(),
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = zerolog.LevelDebugValue
	}
	log, err := cfg.Log.Logger(stderr)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// openers decode each detected image type
var openers = map[detect.Type]func(r io.ReaderAt, size int64, opts ...romfs.Option) (*romfs.FS, error){
	detect.RomFS: romfs.Open,
	detect.IVFC:  romfs.OpenIVFC,
}

// image is an opened image and the source behind it
type image struct {
	*romfs.FS
	src source.Source
}

func (img *image) Close() error {
	return img.src.Close()
}

func (a *app) openImage(path string) (*image, error) {
	src, err := source.Open(path, source.Options{
		Mmap:      a.cfg.Source.Mmap,
		Serialize: a.cfg.Source.Serialize,
	})
	if err != nil {
		return nil, err
	}

	typ, err := detect.Detect(src)
	if err != nil {
		_ = src.Close()
		return nil, errors.Wrap(err, "detecting image type")
	}
	open, ok := openers[typ]
	if !ok {
		_ = src.Close()
		return nil, errors.Errorf("%s: not a RomFS image", path)
	}

	f, err := open(src, src.Size(), romfs.WithLogger(a.log), romfs.WithCacheSize(a.cfg.Cache.Entries))
	if err != nil {
		_ = src.Close()
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	a.log.Debug().Str("image", path).Stringer("type", typ).Int64("size", src.Size()).Msg("opened image")
	return &image{FS: f, src: src}, nil
}

// withImage opens args[0] for the duration of fn
func (a *app) withImage(args []string, fn func(img *image) error) error {
	img, err := a.openImage(args[0])
	if err != nil {
		return err
	}
	defer img.Close()
	return fn(img)
}

func (a *app) newLsCmd() *cobra.Command {
	var opts cmd.LsOptions
	c := &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory of the image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			p := "."
			if len(args) > 1 {
				p = args[1]
			}
			return a.withImage(args, func(img *image) error {
				return cmd.Ls(img, p, c.OutOrStdout(), opts)
			})
		},
	}
	c.Flags().BoolVarP(&opts.Long, "long", "l", false, "use long listing format")
	c.Flags().BoolVarP(&opts.All, "all", "a", false, "show dotfiles")
	return c
}

func (a *app) newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Write a file of the image to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return a.withImage(args, func(img *image) error {
				return cmd.Cat(img, args[1], c.OutOrStdout())
			})
		},
	}
}

func (a *app) newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <image> <path>",
		Short: "Describe a file or directory of the image",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return a.withImage(args, func(img *image) error {
				return cmd.Stat(img, args[1], c.OutOrStdout())
			})
		},
	}
}

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Show the image layout and entry counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return a.withImage(args, func(img *image) error {
				return cmd.Info(img.FS, c.OutOrStdout())
			})
		},
	}
}

func (a *app) newExtractCmd() *cobra.Command {
	var workers int
	c := &cobra.Command{
		Use:   "extract <image> <dir> [path]",
		Short: "Copy the image tree, or the part under path, into a host directory",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(c *cobra.Command, args []string) error {
			p := "."
			if len(args) > 2 {
				p = args[2]
			}
			if !c.Flags().Changed("jobs") {
				workers = a.cfg.Extract.Workers
			}
			return a.withImage(args, func(img *image) error {
				s, err := cmd.Extract(contextOf(c), img, p, args[1], cmd.ExtractOptions{
					Workers: workers,
					Log:     a.log,
				})
				a.log.Info().Int("dirs", s.Dirs).Int("files", s.Files).Int64("bytes", s.Bytes).Msg("extracted")
				return err
			})
		},
	}
	c.Flags().IntVarP(&workers, "jobs", "j", 0, "parallel file copies (default from config)")
	return c
}

func (a *app) newMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <image> <mountpoint>",
		Short: "Serve the image read-only through FUSE until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(contextOf(c), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.withImage(args, func(img *image) error {
				return mount.Serve(ctx, args[1], img.VFS(), mount.Options{
					AllowOther: a.cfg.Mount.AllowOther,
					Debug:      a.cfg.Mount.Debug,
					FSName:     a.cfg.Mount.FSName,
					Log:        a.log,
				})
			})
		},
	}
}

func contextOf(c *cobra.Command) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
