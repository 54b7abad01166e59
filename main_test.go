package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/romfs/internal/romfstest"
)

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.romfs")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), err
}

func sampleImage() []byte {
	return romfstest.NewBuilder().
		AddFile("a.txt", []byte("romfs!\r\n")).
		AddFile("sub/b.bin", bytes.Repeat([]byte{7}, 16)).
		Build().Bytes
}

func TestCommands(t *testing.T) {
	for name, data := range map[string][]byte{
		"bare": sampleImage(),
		"ivfc": romfstest.WrapIVFC(sampleImage()),
	} {
		t.Run(name, func(t *testing.T) {
			image := writeImage(t, data)

			out, err := run(t, "ls", image)
			require.NoError(t, err)
			assert.Equal(t, "a.txt\nsub/\n", out)

			out, err = run(t, "cat", image, "sub/b.bin")
			require.NoError(t, err)
			assert.Equal(t, string(bytes.Repeat([]byte{7}, 16)), out)

			out, err = run(t, "stat", image, "a.txt")
			require.NoError(t, err)
			assert.Contains(t, out, "Size: 8")

			out, err = run(t, "info", image)
			require.NoError(t, err)
			assert.Contains(t, out, "Files:           2")

			dest := t.TempDir()
			_, err = run(t, "extract", "-j", "2", image, dest)
			require.NoError(t, err)
			got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
			require.NoError(t, err)
			assert.Equal(t, "romfs!\r\n", string(got))
		})
	}
}

func TestCommandErrors(t *testing.T) {
	image := writeImage(t, sampleImage())

	_, err := run(t, "cat", image, "missing")
	assert.Error(t, err)

	_, err = run(t, "ls", writeImage(t, make([]byte, 0x2000)))
	assert.ErrorContains(t, err, "not a RomFS image")

	_, err = run(t, "ls", filepath.Join(t.TempDir(), "missing.romfs"))
	assert.Error(t, err)

	_, err = run(t, "cat", image)
	assert.Error(t, err)

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "ls", image)
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	image := writeImage(t, sampleImage())
	cfg := filepath.Join(t.TempDir(), "romfs.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("source:\n  mmap: false\n  serialize: true\ncache:\n  entries: 0\n"), 0o644))

	out, err := run(t, "--config", cfg, "-v", "ls", "-l", image, "sub")
	require.NoError(t, err)
	assert.Contains(t, out, "b.bin")
}
