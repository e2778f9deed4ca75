package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/discovery"
	"github.com/cuenv/cuenv/internal/fspath"
)

// writeTestModule lays out a minimal single-package module on disk: a
// module-root marker, and a package with one leaf task, in the JSON shape
// config.LoadFile decodes (§1: the CUE evaluator itself is out of scope,
// so env.cue fixtures here are plain JSON, matching how the rest of this
// package's runtime code reads them).
func writeTestModule(t *testing.T) fspath.AbsoluteSystemPath {
	t.Helper()
	root := t.TempDir()
	assert.NilError(t, os.Mkdir(filepath.Join(root, discovery.ModuleMarker), 0755))

	pkgDir := filepath.Join(root, "api")
	assert.NilError(t, os.Mkdir(pkgDir, 0755))
	cfg := `{
		"tasks": {
			"build": {"name": "build", "execution": {"command": "echo building"}}
		},
		"task_order": ["build"]
	}`
	assert.NilError(t, os.WriteFile(filepath.Join(pkgDir, discovery.ConfigFileName), []byte(cfg), 0644))

	return fspath.AbsoluteSystemPath(root)
}

func TestFindModuleRootLocatesMarkerFromNestedDir(t *testing.T) {
	root := writeTestModule(t)
	nested := root.Join("api")

	found, err := findModuleRoot(nested)
	assert.NilError(t, err)
	assert.Equal(t, found, root)
}

func TestPackageNameForDirResolvesDiscoveredPackage(t *testing.T) {
	root := writeTestModule(t)
	catalog, err := discoverCatalog(root)
	assert.NilError(t, err)
	assert.Assert(t, len(catalog.Names) > 0)

	name, err := packageNameForDir(root, root.Join("api"))
	assert.NilError(t, err)
	assert.Equal(t, name, "api")
}

func TestDefaultConcurrencyIsPositive(t *testing.T) {
	assert.Assert(t, defaultConcurrency() > 0)
}

func TestLoadPipelineBuildsOneVertexPerLeafTask(t *testing.T) {
	root := writeTestModule(t)
	p, err := loadPipeline(root, "", nil)
	assert.NilError(t, err)
	assert.Equal(t, len(p.tasks), 1)
	_, ok := p.tasks["api::build"]
	assert.Assert(t, ok)
}
