package cmd

import (
	"fmt"
	"runtime"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/discovery"
	"github.com/cuenv/cuenv/internal/fspath"
)

// findModuleRoot walks up from dir to the cue.mod-marked module root.
func findModuleRoot(dir fspath.AbsoluteSystemPath) (fspath.AbsoluteSystemPath, error) {
	return discovery.FindModuleRoot(dir)
}

// discoverCatalog enumerates every package under moduleRoot.
func discoverCatalog(moduleRoot fspath.AbsoluteSystemPath) (*discovery.Catalog, error) {
	return discovery.Discover(moduleRoot)
}

// packageNameForDir resolves dir to the discovery.Package name whose Dir
// matches it exactly, the package a bare (package-local) task reference
// or "task exec" invocation is scoped to.
func packageNameForDir(moduleRoot, dir fspath.AbsoluteSystemPath) (string, error) {
	catalog, err := discoverCatalog(moduleRoot)
	if err != nil {
		return "", err
	}
	for _, name := range catalog.Names {
		if catalog.ByName[name].Dir == dir {
			return name, nil
		}
	}
	return "", fmt.Errorf("cmd: %s is not a discovered package directory", dir)
}

// loadPackageAt loads the config.ParseResult for the package rooted at
// dir, returning dir itself as the working directory a synthesized task
// definition should resolve against.
func loadPackageAt(moduleRoot, dir fspath.AbsoluteSystemPath) (fspath.AbsoluteSystemPath, config.ParseResult, error) {
	cfgPath := dir.Join(discovery.ConfigFileName)
	result, err := config.LoadFile(cfgPath)
	if err != nil {
		return "", config.ParseResult{}, err
	}
	return dir, result, nil
}

// defaultConcurrency is the Executor's concurrency cap before --concurrency
// overrides it.
func defaultConcurrency() int {
	return runtime.NumCPU()
}
