package romfs_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/romfs/fsys/romfs"
	"github.com/lvdlvd/romfs/internal/romfstest"
)

func decode(img []byte) (*romfs.Image, error) {
	return romfs.Decode(bytes.NewReader(img), int64(len(img)))
}

func TestDecodeHeader(t *testing.T) {
	img := sample()
	image, err := decode(img.Bytes)
	require.NoError(t, err)

	hdr := image.Header()
	assert.Equal(t, uint32(romfs.HeaderSize), hdr.HeaderLen)
	assert.Equal(t, uint64(img.DirHashOffset), hdr.DirHash.Offset)
	assert.Equal(t, uint64(img.DirMetaOffset), hdr.DirMeta.Offset)
	assert.Equal(t, uint64(img.FileHashOffset), hdr.FileHash.Offset)
	assert.Equal(t, uint64(img.FileMetaOffset), hdr.FileMeta.Offset)
	assert.Equal(t, uint64(img.DataOffset), hdr.DataOffset)

	data := image.DataRegion()
	assert.Equal(t, uint64(img.DataOffset), data.Offset)
	assert.Equal(t, uint64(len(img.Bytes)-img.DataOffset), data.Length)
	assert.Equal(t, uint64(len(img.Bytes)), data.End())
	assert.Equal(t, int64(len(img.Bytes)), image.Size())

	root, err := image.Dir(0)
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	name, err := root.Name()
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, img.Files["a.txt"], root.FirstFile)
	assert.Equal(t, img.Dirs["sub"], root.FirstDir)
	assert.Equal(t, romfs.Sentinel, root.NextSibling)

	f, err := image.File(img.Files["sub/b.bin"])
	require.NoError(t, err)
	name, err = f.Name()
	require.NoError(t, err)
	assert.Equal(t, "b.bin", name)
	assert.Equal(t, img.Dirs["sub"], f.Parent)
	assert.Equal(t, uint64(8), f.DataOffset)
	assert.Equal(t, uint64(16), f.DataSize)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() []byte
		err   error
		table romfs.Table
	}{
		{
			name:  "source shorter than header",
			build: func() []byte { return sample().Bytes[:romfs.HeaderSize-1] },
			err:   romfs.ErrTruncated,
			table: romfs.TableHeader,
		},
		{
			name:  "empty source",
			build: func() []byte { return nil },
			err:   romfs.ErrTruncated,
			table: romfs.TableHeader,
		},
		{
			name: "wrong header length",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderLen, 0x200)
				return img.Bytes
			},
			err:   romfs.ErrMalformed,
			table: romfs.TableHeader,
		},
		{
			name: "tables cut off",
			build: func() []byte {
				img := sample()
				return img.Bytes[:img.FileMetaOffset]
			},
			err:   romfs.ErrTruncated,
			table: romfs.TableFileMeta,
		},
		{
			name: "table offset past end",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderDirMeta, 0x10000)
				return img.Bytes
			},
			err:   romfs.ErrTruncated,
			table: romfs.TableDirMeta,
		},
		{
			name: "table length past end",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderFileHash+4, 0x10000)
				return img.Bytes
			},
			err:   romfs.ErrTruncated,
			table: romfs.TableFileHash,
		},
		{
			name: "data offset past end",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderDataStart, uint32(len(img.Bytes)+0x100))
				return img.Bytes
			},
			err:   romfs.ErrTruncated,
			table: romfs.TableData,
		},
		{
			name: "misaligned table offset",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderDirHash, uint32(img.DirHashOffset+2))
				return img.Bytes
			},
			err:   romfs.ErrMalformed,
			table: romfs.TableDirHash,
		},
		{
			name: "misaligned data offset",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderDataStart, uint32(img.DataOffset+1))
				return img.Bytes
			},
			err:   romfs.ErrMalformed,
			table: romfs.TableData,
		},
		{
			name: "table overlaps header",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderFileMeta, 0x10)
				return img.Bytes
			},
			err:   romfs.ErrMalformed,
			table: romfs.TableFileMeta,
		},
		{
			name: "no room for root",
			build: func() []byte {
				img := sample()
				img.PutUint32(romfstest.HeaderDirMeta+4, 0x14)
				return img.Bytes
			},
			err:   romfs.ErrMalformed,
			table: romfs.TableDirMeta,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.build())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)

			var rerr *romfs.Error
			require.True(t, errors.As(err, &rerr), "got %T", err)
			assert.Equal(t, tt.table, rerr.Table)
		})
	}
}

type failingReader struct{ err error }

func (r failingReader) ReadAt(p []byte, off int64) (int, error) { return 0, r.err }

func TestDecodeReadError(t *testing.T) {
	boom := errors.New("device gone")
	_, err := romfs.Decode(failingReader{boom}, 0x1000)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, romfs.ErrTruncated)
}

func utf16le(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

func TestHash(t *testing.T) {
	known := []struct {
		parent uint32
		name   string
		want   uint32
	}{
		{0, "", 123456789},
		{0, "a", 0xA83ADE09},
		{0, "sub", 0x2EEA0ED6},
		{0, "a.txt", 0x70BC9AF4},
		{0x18, "b.bin", 0xFD3CA6EE},
	}
	for _, k := range known {
		assert.Equal(t, k.want, romfs.Hash(k.parent, utf16le(k.name)), "%#x/%q", k.parent, k.name)
	}

	for _, name := range []string{"readme", "日本", "😀.png", "x"} {
		for _, parent := range []uint32{0, 0x18, 0x3c, 0xFFFFFFF0} {
			assert.Equal(t, romfstest.Hash(parent, name), romfs.Hash(parent, utf16le(name)), "%#x/%q", parent, name)
		}
	}
}

func TestLookupOffsets(t *testing.T) {
	img := sample()
	image, err := decode(img.Bytes)
	require.NoError(t, err)

	off, err := image.LookupDir(0, "sub")
	require.NoError(t, err)
	assert.Equal(t, img.Dirs["sub"], off)

	off, err = image.LookupFile(img.Dirs["sub"], "b.bin")
	require.NoError(t, err)
	assert.Equal(t, img.Files["sub/b.bin"], off)

	// b.bin exists, but not under the root
	_, err = image.LookupFile(0, "b.bin")
	assert.ErrorIs(t, err, romfs.ErrNotFound)

	_, err = image.LookupDir(0, "")
	assert.ErrorIs(t, err, romfs.ErrNotFound)
}
