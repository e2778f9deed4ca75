package hashengine

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/fspath"
)

func TestHashFileMatchesDigestOfContent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	assert.NilError(t, os.WriteFile(target, []byte("hello"), 0644))

	got, err := HashFile(fspath.AbsoluteSystemPath(target))
	assert.NilError(t, err)
	assert.Equal(t, got, digest.Bytes([]byte("hello")))
}

func TestHashFileRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	link := filepath.Join(dir, "link.txt")
	assert.NilError(t, os.WriteFile(target, []byte("hello"), 0644))
	assert.NilError(t, os.Symlink(target, link))

	_, err := HashFile(fspath.AbsoluteSystemPath(link))
	assert.ErrorContains(t, err, "symlink")
}

func TestMatchFindsGlobbedFiles(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "src"), 0775))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "src", "a.go"), []byte("a"), 0644))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "src", "b.txt"), []byte("b"), 0644))

	matches, err := Match(fspath.AbsoluteSystemPath(dir), []string{"src/*.go"})
	assert.NilError(t, err)
	assert.Equal(t, len(matches), 1)
	assert.Equal(t, matches[0].Base(), "a.go")
}

func TestMatchIgnoresEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	assert.NilError(t, os.MkdirAll(sub, 0775))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "outside.go"), []byte("x"), 0644))

	matches, err := Match(fspath.AbsoluteSystemPath(sub), []string{"../*.go"})
	assert.NilError(t, err)
	assert.Equal(t, len(matches), 0)
}
