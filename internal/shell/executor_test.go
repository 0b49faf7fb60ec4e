package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultExecutor_CapturesStderr(t *testing.T) {
	executor := &DefaultExecutor{}

	_, err := executor.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'error message' >&2 && exit 1"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sh failed")
	assert.Equal(t, "error message", StderrOf(err))
}

func TestDefaultExecutor_ReturnsStdout(t *testing.T) {
	executor := &DefaultExecutor{}

	out, err := executor.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'pg_dump (PostgreSQL) 16.2'"},
	})

	require.NoError(t, err)
	assert.Equal(t, "pg_dump (PostgreSQL) 16.2\n", string(out))
}

func TestDefaultExecutor_StdoutToFile(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "output.txt")
	executor := &DefaultExecutor{}

	out, err := executor.Run(context.Background(), Command{
		Name:       "sh",
		Args:       []string{"-c", "echo 'success output'"},
		StdoutPath: outputPath,
	})

	require.NoError(t, err)
	assert.Empty(t, out)

	content, readErr := os.ReadFile(outputPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(content), "success output")
}

func TestDefaultExecutor_StdinFromFile(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "input.sql")
	require.NoError(t, os.WriteFile(inputPath, []byte("SELECT 1;"), 0o600))
	executor := &DefaultExecutor{}

	out, err := executor.Run(context.Background(), Command{
		Name:      "cat",
		StdinPath: inputPath,
	})

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", string(out))
}

func TestDefaultExecutor_EnvIsScoped(t *testing.T) {
	executor := &DefaultExecutor{}

	out, err := executor.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "printf %s \"$AFTERCHIVE_SCOPED_TEST\""},
		Env:  []string{"AFTERCHIVE_SCOPED_TEST=secret"},
	})

	require.NoError(t, err)
	assert.Equal(t, "secret", string(out))
	_, set := os.LookupEnv("AFTERCHIVE_SCOPED_TEST")
	assert.False(t, set)
}

func TestDefaultExecutor_MissingInput(t *testing.T) {
	executor := &DefaultExecutor{}

	_, err := executor.Run(context.Background(), Command{
		Name:      "cat",
		StdinPath: filepath.Join(t.TempDir(), "missing.sql"),
	})

	assert.Error(t, err)
}
