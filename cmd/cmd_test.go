package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/romfs/fsys"
	"github.com/lvdlvd/romfs/fsys/romfs"
	"github.com/lvdlvd/romfs/internal/romfstest"
)

var bigFile = bytes.Repeat([]byte("0123456789abcdef"), 10000)

func sampleImage() *romfstest.Image {
	return romfstest.NewBuilder().
		AddFile("a.txt", []byte("romfs!\r\n")).
		AddFile(".hidden", []byte("h")).
		AddFile("sub/b.bin", bytes.Repeat([]byte{7}, 16)).
		AddFile("sub/deeper/big", bigFile).
		AddDir("empty").
		Build()
}

func openSample(t *testing.T) *romfs.FS {
	t.Helper()
	img := sampleImage().Bytes
	f, err := romfs.Open(bytes.NewReader(img), int64(len(img)))
	require.NoError(t, err)
	return f
}

func openSampleIVFC(t *testing.T) *romfs.FS {
	t.Helper()
	img := romfstest.WrapIVFC(sampleImage().Bytes)
	f, err := romfs.OpenIVFC(bytes.NewReader(img), int64(len(img)))
	require.NoError(t, err)
	return f
}

// mapFS adapts fstest.MapFS, which cannot map extents
type mapFS struct{ fstest.MapFS }

func (mapFS) Type() string { return "map" }
func (mapFS) Close() error { return nil }

func TestLs(t *testing.T) {
	f := openSample(t)

	var out bytes.Buffer
	require.NoError(t, Ls(f, "/", &out, LsOptions{}))
	assert.Equal(t, "a.txt\nempty/\nsub/\n", out.String())

	out.Reset()
	require.NoError(t, Ls(f, "", &out, LsOptions{All: true}))
	assert.Equal(t, ".hidden\na.txt\nempty/\nsub/\n", out.String())

	out.Reset()
	require.NoError(t, Ls(f, "sub", &out, LsOptions{Long: true}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "-r--r--r--")
	assert.Contains(t, lines[0], " 16 b.bin")
	assert.Contains(t, lines[1], "dr-xr-xr-x")
	assert.True(t, strings.HasSuffix(lines[1], "deeper/"))

	out.Reset()
	require.NoError(t, Ls(f, "/sub/b.bin", &out, LsOptions{}))
	assert.Equal(t, "b.bin\n", out.String())

	assert.Error(t, Ls(f, "nope", &out, LsOptions{}))
}

func TestCat(t *testing.T) {
	for name, f := range map[string]*romfs.FS{
		"bare": openSample(t),
		"ivfc": openSampleIVFC(t),
	} {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, Cat(f, "sub/deeper/big", &out))
			assert.Equal(t, bigFile, out.Bytes())

			out.Reset()
			require.NoError(t, Cat(f, "/a.txt", &out))
			assert.Equal(t, "romfs!\r\n", out.String())

			assert.Error(t, Cat(f, "sub", &out))
			assert.Error(t, Cat(f, "missing", &out))
		})
	}
}

func TestCatWithoutExtents(t *testing.T) {
	f := mapFS{fstest.MapFS{"x/y": {Data: []byte("plain")}}}
	var out bytes.Buffer
	require.NoError(t, Cat(f, "x/y", &out))
	assert.Equal(t, "plain", out.String())
}

type shortReader struct{}

func (shortReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= 4 {
		return 0, io.EOF
	}
	n := copy(p, "abcd"[off:])
	return n, io.EOF
}

func TestStreamShortRead(t *testing.T) {
	var out bytes.Buffer
	err := streamFromReaderAt(shortReader{}, 10, &out)
	assert.Error(t, err)
	assert.Equal(t, "abcd", out.String())
}

func TestStat(t *testing.T) {
	f := openSample(t)
	img := sampleImage()

	var out bytes.Buffer
	require.NoError(t, Stat(f, "sub/b.bin", &out))
	s := out.String()
	assert.Contains(t, s, "File: b.bin")
	assert.Contains(t, s, "Type: regular file")
	assert.Contains(t, s, "Size: 16")
	assert.Contains(t, s, "Inode: ")
	assert.Contains(t, s, "Extent: 0x")

	out.Reset()
	require.NoError(t, Stat(f, "/", &out))
	assert.Contains(t, out.String(), "Type: directory")
	assert.Contains(t, out.String(), "Inode: 1\n")
	assert.NotContains(t, out.String(), "Extent")

	// inside a container the extent is an offset into the container file
	ivfc := openSampleIVFC(t)
	out.Reset()
	require.NoError(t, Stat(ivfc, "a.txt", &out))
	want := romfstest.IVFCLevel3 + img.DataOffset + int(img.Data["a.txt"])
	assert.Contains(t, out.String(), fmt.Sprintf("Extent: %#x +0x8", want))
}

func TestInfo(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Info(openSampleIVFC(t), &out))
	s := out.String()
	assert.Contains(t, s, "Filesystem type: RomFS (IVFC)")
	assert.Contains(t, s, "Header length:   0x28")
	assert.Contains(t, s, "Directories:     4")
	assert.Contains(t, s, "Files:           4")
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(openSample(t).VFS())
	require.NoError(t, err)
	assert.Equal(t, Summary{Dirs: 4, Files: 4, Bytes: int64(8 + 1 + 16 + len(bigFile))}, s)
}

func TestExtract(t *testing.T) {
	f := openSample(t)
	dest := filepath.Join(t.TempDir(), "out")

	s, err := Extract(context.Background(), f, "/", dest, ExtractOptions{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Dirs)
	assert.Equal(t, 4, s.Files)

	got, err := os.ReadFile(filepath.Join(dest, "sub", "deeper", "big"))
	require.NoError(t, err)
	assert.Equal(t, bigFile, got)

	got, err = os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "romfs!\r\n", string(got))

	st, err := os.Stat(filepath.Join(dest, "empty"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestExtractSubtreeAndFile(t *testing.T) {
	f := openSample(t)

	dest := t.TempDir()
	s, err := Extract(context.Background(), f, "sub", dest, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Files)
	_, err = os.Stat(filepath.Join(dest, "b.bin"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "deeper", "big"))
	assert.NoError(t, err)

	dest = filepath.Join(t.TempDir(), "single")
	s, err = Extract(context.Background(), f, "sub/b.bin", dest, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Files)
	got, err := os.ReadFile(filepath.Join(dest, "b.bin"))
	require.NoError(t, err)
	assert.Len(t, got, 16)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, openSample(t), ".", t.TempDir(), ExtractOptions{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

// cyclicImage has a subdirectory that lists the root as its child
func cyclicImage(t *testing.T) *romfs.FS {
	t.Helper()
	img := romfstest.NewBuilder().AddFile("sub/f", []byte("x")).Build()
	img.PutUint32(img.DirRecord("sub")+romfstest.DirFirstDir, 0)
	f, err := romfs.Open(bytes.NewReader(img.Bytes), int64(len(img.Bytes)))
	require.NoError(t, err)
	return f
}

// loopVFS lists its root inside its root
type loopVFS struct{ fsys.VFS }

func (loopVFS) Root() fsys.Handle { return fsys.Handle{Kind: fsys.KindDir} }

func (l loopVFS) List(dir fsys.Handle) iter.Seq2[fsys.DirEntry, error] {
	return func(yield func(fsys.DirEntry, error) bool) {
		yield(fsys.DirEntry{Name: "again", Handle: l.Root()}, nil)
	}
}

func TestWalksStopOnCycles(t *testing.T) {
	f := cyclicImage(t)

	_, err := Summarize(f.VFS())
	assert.ErrorIs(t, err, romfs.ErrMalformed)

	_, err = Summarize(loopVFS{})
	assert.ErrorIs(t, err, romfs.ErrMalformed)

	_, err = Extract(context.Background(), f, ".", t.TempDir(), ExtractOptions{Workers: 2})
	assert.ErrorIs(t, err, romfs.ErrMalformed)

	var out bytes.Buffer
	assert.ErrorIs(t, Info(f, &out), romfs.ErrMalformed)
}

func TestExtractStopsAfterFailedCopy(t *testing.T) {
	dest := t.TempDir()
	// .hidden is the first file walked; a directory in its place fails the copy
	require.NoError(t, os.Mkdir(filepath.Join(dest, ".hidden"), 0o755))

	_, err := Extract(context.Background(), openSample(t), ".", dest, ExtractOptions{Workers: 1})
	assert.ErrorContains(t, err, "creating output file")

	// with one worker the failure is recorded before the walk reaches empty/
	_, err = os.Stat(filepath.Join(dest, "empty"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = os.Stat(filepath.Join(dest, "sub"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
