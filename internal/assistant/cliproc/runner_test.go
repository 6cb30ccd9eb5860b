package cliproc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Invoke_ReturnsTrimmedStdoutAndSetsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	runner := New("sh")

	out, err := runner.Invoke(context.Background(), dir, "-c", "pwd")
	require.NoError(t, err)

	resolved, evalErr := filepath.EvalSymlinks(dir)
	require.NoError(t, evalErr)
	outResolved, evalErr := filepath.EvalSymlinks(out)
	require.NoError(t, evalErr)
	assert.Equal(t, resolved, outResolved)
}

func TestRunner_Invoke_WrapsNonZeroExitWithStderr(t *testing.T) {
	runner := New("sh")

	_, err := runner.Invoke(context.Background(), t.TempDir(), "-c", "echo boom >&2; exit 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunner_Stream_InvokesOnLinePerLine(t *testing.T) {
	runner := New("sh")
	var lines []string

	err := runner.Stream(context.Background(), t.TempDir(), func(line string) {
		lines = append(lines, line)
	}, "-c", "echo one; echo two")

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestRunner_Invoke_UsesPATHLookupBinary(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	runner := New("sh")
	_, err := runner.Invoke(context.Background(), t.TempDir(), "-c", "true")
	assert.NoError(t, err)
}
