package staging

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/fspath"
)

func TestEnvVarNameFormatsDottedPath(t *testing.T) {
	assert.Equal(t, EnvVarName("lib", "build", "dist/lib.so"), "CUENV_INPUT_LIB_BUILD_DIST_LIB_SO")
}

func TestStageSymlinksByDefault(t *testing.T) {
	src := filepath.Join(t.TempDir(), "lib.so")
	assert.NilError(t, os.WriteFile(src, []byte("binary"), 0644))

	dir, err := New(t.TempDir())
	assert.NilError(t, err)
	defer dir.Close()

	staged, err := dir.Stage("lib", "build", "lib.so", fspath.AbsoluteSystemPath(src), Symlink)
	assert.NilError(t, err)
	assert.Equal(t, staged.EnvVar, "CUENV_INPUT_LIB_BUILD_LIB_SO")

	info, err := os.Lstat(staged.Path.ToString())
	assert.NilError(t, err)
	assert.Assert(t, info.Mode()&os.ModeSymlink != 0)
}

func TestStageCopyStrategyDuplicatesContent(t *testing.T) {
	src := filepath.Join(t.TempDir(), "lib.so")
	assert.NilError(t, os.WriteFile(src, []byte("binary"), 0644))

	dir, err := New(t.TempDir())
	assert.NilError(t, err)
	defer dir.Close()

	staged, err := dir.Stage("lib", "build", "lib.so", fspath.AbsoluteSystemPath(src), Copy)
	assert.NilError(t, err)

	info, err := os.Lstat(staged.Path.ToString())
	assert.NilError(t, err)
	assert.Assert(t, info.Mode()&os.ModeSymlink == 0)

	content, err := os.ReadFile(staged.Path.ToString())
	assert.NilError(t, err)
	assert.Equal(t, string(content), "binary")
}

func TestStageMissingSourceFails(t *testing.T) {
	dir, err := New(t.TempDir())
	assert.NilError(t, err)
	defer dir.Close()

	_, err = dir.Stage("lib", "build", "missing.so", fspath.AbsoluteSystemPath(filepath.Join(t.TempDir(), "missing.so")), Symlink)
	assert.ErrorContains(t, err, "does not exist")
}
