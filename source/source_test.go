package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func checkReadAt(t *testing.T, src Source, want []byte) {
	t.Helper()
	assert.Equal(t, int64(len(want)), src.Size())

	buf := make([]byte, 4)
	n, err := src.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, want[2:6], buf[:n])

	n, err = src.ReadAt(buf, int64(len(want))-2)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = src.ReadAt(buf, int64(len(want)))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpen(t *testing.T) {
	data := []byte("0123456789abcdef")
	path := writeTemp(t, data)

	tests := []struct {
		name string
		opts Options
	}{
		{"file", Options{}},
		{"mmap", Options{Mmap: true}},
		{"serialized file", Options{Serialize: true}},
		{"serialized mmap", Options{Mmap: true, Serialize: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(path, tt.opts)
			require.NoError(t, err)
			checkReadAt(t, src, data)
			assert.NoError(t, src.Close())
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Open(t.TempDir(), Options{})
	assert.Error(t, err)

	_, err = Open(t.TempDir(), Options{Mmap: true})
	assert.Error(t, err)
}

func TestMapEmpty(t *testing.T) {
	m, err := Map(writeTemp(t, nil))
	require.NoError(t, err)
	assert.Zero(t, m.Size())
	n, err := m.ReadAt(make([]byte, 1), 0)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, m.Close())
}

func TestBytes(t *testing.T) {
	data := []byte("in memory image")
	checkReadAt(t, Bytes(data), data)

	_, err := Bytes(data).ReadAt(make([]byte, 1), -1)
	assert.Error(t, err)
}

func TestSerializeConcurrent(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	src := Serialize(Bytes(data))

	var wg conc.WaitGroup
	for i := range 32 {
		wg.Go(func() {
			buf := make([]byte, 128)
			off := int64(i * 128)
			n, err := src.ReadAt(buf, off)
			assert.NoError(t, err)
			assert.Equal(t, data[off:off+int64(n)], buf[:n])
		})
	}
	wg.Wait()
}
