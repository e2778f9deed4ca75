package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/fspath"
)

func TestFindModuleRootWalksUpToMarker(t *testing.T) {
	root := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(root, ModuleMarker), 0775))
	nested := filepath.Join(root, "pkg", "sub")
	assert.NilError(t, os.MkdirAll(nested, 0775))

	found, err := FindModuleRoot(fspath.AbsoluteSystemPath(nested))
	assert.NilError(t, err)
	assert.Equal(t, found, fspath.AbsoluteSystemPath(root))
}

func TestFindModuleRootMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := FindModuleRoot(fspath.AbsoluteSystemPath(dir))
	assert.Assert(t, err != nil)
}

func TestDiscoverFindsPackagesByConfigFilePresence(t *testing.T) {
	root := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(root, ModuleMarker), 0775))
	assert.NilError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte(""), 0644))

	pkgA := filepath.Join(root, "services", "api")
	assert.NilError(t, os.MkdirAll(pkgA, 0775))
	assert.NilError(t, os.WriteFile(filepath.Join(pkgA, ConfigFileName), []byte(""), 0644))

	pkgB := filepath.Join(root, "services", "worker")
	assert.NilError(t, os.MkdirAll(pkgB, 0775))
	assert.NilError(t, os.WriteFile(filepath.Join(pkgB, ConfigFileName), []byte(""), 0644))

	noConfig := filepath.Join(root, "scratch")
	assert.NilError(t, os.MkdirAll(noConfig, 0775))

	catalog, err := Discover(fspath.AbsoluteSystemPath(root))
	assert.NilError(t, err)

	assert.Equal(t, len(catalog.Names), 3)
	_, hasRoot := catalog.ByName["//"]
	assert.Assert(t, hasRoot)
	_, hasAPI := catalog.ByName[filepath.Join("services", "api")]
	assert.Assert(t, hasAPI)
	_, hasScratch := catalog.ByName["scratch"]
	assert.Assert(t, !hasScratch)
}
