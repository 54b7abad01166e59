package romfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Option configures Decode, NewVFS and Open
type Option func(*options)

type options struct {
	log       zerolog.Logger
	cacheSize int
}

// WithLogger sets the logger used for debug output. The default discards.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithCacheSize enables a cache of up to n decoded directory records in
// the VFS. Zero, the default, disables it.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

func newOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Image is a decoded RomFS image. It holds the metadata tables in memory
// and never changes after Decode returns, so it is safe for concurrent use.
type Image struct {
	r    io.ReaderAt
	size int64
	hdr  Header
	data Region

	dirHash  []uint32
	dirMeta  []byte
	fileHash []uint32
	fileMeta []byte

	log zerolog.Logger
}

// Decode reads and validates the header of the image in r, which is size
// bytes long, and loads its metadata tables.
func Decode(r io.ReaderAt, size int64, opts ...Option) (*Image, error) {
	o := newOptions(opts)

	if size < HeaderSize {
		return nil, truncated(TableHeader, 0, "source is %d bytes, header needs %d", size, HeaderSize)
	}
	header := make([]byte, HeaderSize)
	if err := readFull(r, header, 0, TableHeader); err != nil {
		return nil, err
	}

	hdr := parseHeader(header)
	if err := hdr.validate(size); err != nil {
		return nil, err
	}

	img := &Image{
		r:    r,
		size: size,
		hdr:  hdr,
		data: Region{Offset: hdr.DataOffset, Length: uint64(size) - hdr.DataOffset},
		log:  o.log,
	}

	var err error
	if img.dirHash, err = readBuckets(r, hdr.DirHash, TableDirHash); err != nil {
		return nil, err
	}
	if img.dirMeta, err = readTable(r, hdr.DirMeta, TableDirMeta); err != nil {
		return nil, err
	}
	if img.fileHash, err = readBuckets(r, hdr.FileHash, TableFileHash); err != nil {
		return nil, err
	}
	if img.fileMeta, err = readTable(r, hdr.FileMeta, TableFileMeta); err != nil {
		return nil, err
	}

	o.log.Debug().
		Int("dir_buckets", len(img.dirHash)).
		Uint64("dir_meta_len", hdr.DirMeta.Length).
		Int("file_buckets", len(img.fileHash)).
		Uint64("file_meta_len", hdr.FileMeta.Length).
		Uint64("data_offset", img.data.Offset).
		Uint64("data_len", img.data.Length).
		Msg("decoded romfs image")

	return img, nil
}

// Header returns the decoded level-3 header
func (img *Image) Header() Header { return img.hdr }

// DataRegion returns the location of the file data region in the source
func (img *Image) DataRegion() Region { return img.data }

// Size returns the length of the source the image was decoded from
func (img *Image) Size() int64 { return img.size }

// Reader returns the source the image was decoded from
func (img *Image) Reader() io.ReaderAt { return img.r }

// dirBound and fileBound limit chain walks. Records in a table do not
// overlap and are at least a prefix long, so a longer walk must revisit one.
func (img *Image) dirBound() int  { return len(img.dirMeta) / dirPrefixSize }
func (img *Image) fileBound() int { return len(img.fileMeta) / filePrefixSize }

func readFull(r io.ReaderAt, buf []byte, off int64, t Table) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return truncated(t, off, "read %d of %d bytes", n, len(buf))
	}
	return fmt.Errorf("romfs: reading %s at %#x: %w", t, off, err)
}

func readTable(r io.ReaderAt, reg Region, t Table) ([]byte, error) {
	buf := make([]byte, reg.Length)
	if err := readFull(r, buf, int64(reg.Offset), t); err != nil {
		return nil, err
	}
	return buf, nil
}

func readBuckets(r io.ReaderAt, reg Region, t Table) ([]uint32, error) {
	raw, err := readTable(r, reg, t)
	if err != nil {
		return nil, err
	}
	buckets := make([]uint32, len(raw)/4)
	for i := range buckets {
		buckets[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return buckets, nil
}
