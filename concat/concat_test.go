package concat

import (
	"os"
	"os/exec"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteList(t *testing.T) {
	lp := path.Join(t.TempDir(), "segments.txt")

	require.NoError(t, WriteList(lp, []string{"show-1-v1-a1.ts", "show-2-v1-a1.ts"}))

	content, err := os.ReadFile(lp)
	require.NoError(t, err)
	assert.Equal(t, "file 'show-1-v1-a1.ts'\nfile 'show-2-v1-a1.ts'\n", string(content))
}

func TestWriteListEmpty(t *testing.T) {
	lp := path.Join(t.TempDir(), "segments.txt")
	require.NoError(t, WriteList(lp, nil))

	content, err := os.ReadFile(lp)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestWriteListBadPath(t *testing.T) {
	err := WriteList(path.Join(t.TempDir(), "no-such-dir", "segments.txt"), []string{"a.ts"})
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	// any binary that exits 0 when called with --help will do
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no `true' binary around")
	}

	f, err := New(Configure().BinPath(bin))
	require.NoError(t, err)
	assert.NoError(t, f.Check())
}

func TestCheckFailing(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("no `false' binary around")
	}

	f, err := New(Configure().BinPath(bin))
	require.NoError(t, err)

	cerr := f.Check()
	require.Error(t, cerr)
	assert.ErrorIs(t, cerr, ErrFfmpegNotFound)
}

func TestCheckMissingBinary(t *testing.T) {
	f, err := New(Configure().BinPath("/nonexistent/ffmpeg"))
	require.NoError(t, err)
	assert.Error(t, f.Check())
}

func TestConcatExitStatusPropagates(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("no `false' binary around")
	}

	f, err := New(Configure().BinPath(bin))
	require.NoError(t, err)

	cerr := f.Concat("list.txt", "out.mp4")
	require.Error(t, cerr)

	var exitErr *exec.ExitError
	require.ErrorAs(t, cerr, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
}
