package container

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadExitFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exit"), []byte("137\n"), 0o644))

	code, err := readExitFile(dir)
	require.NoError(t, err)
	assert.Equal(t, 137, code)
}

func TestReadExitFileMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := readExitFile(dir)
	assert.Error(t, err)
}

func TestReadExitFileMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exit"), []byte("not-a-number"), 0o644))

	_, err := readExitFile(dir)
	assert.Error(t, err)
}

func TestRuntimeErrorMessageAndUnwrap(t *testing.T) {
	wrapped := errors.New("exit status 1")
	e := &RuntimeError{Argv: []string{"crun", "state", "c1"}, Stderr: "no such container\n", Err: wrapped}

	assert.Contains(t, e.Error(), "crun state c1")
	assert.Contains(t, e.Error(), "no such container")
	assert.ErrorIs(t, e, wrapped)
}
