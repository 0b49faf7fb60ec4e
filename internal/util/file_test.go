package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.sql")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	sum, size, err := SHA256File(path)

	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestSHA256File_Missing(t *testing.T) {
	_, _, err := SHA256File(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCopyFile_OverwritesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sql")
	dst := filepath.Join(dir, "dst.sql")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("old content"), 0o600))

	n, err := CopyFile(dst, src)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))

	// Source untouched.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestWriteTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")

	err := WriteTo(path, func(f *os.File) error {
		_, err := f.WriteString("data")
		return err
	})

	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestWriteTo_FailureRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")

	err := WriteTo(path, func(f *os.File) error {
		_, _ = f.WriteString("partial")
		return errors.New("download interrupted")
	})

	require.Error(t, err)
	assert.NoFileExists(t, path)
}
