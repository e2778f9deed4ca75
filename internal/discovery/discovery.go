// Package discovery locates the module root and enumerates packages
// within it (§2 "Package Discovery"). A module's root is identified by
// the presence of a config directory named cue.mod (§6 "Persisted state
// layout"); packages are any directory at or below the root that
// contains the fixed per-package config file name. The module-root walk
// is a thin wrapper over fspath.FindUpFrom
// (internal/turbopath/find_up.go in the teacher). Package enumeration
// replaces the teacher's workspace.Catalog (which indexed package.json
// and turbo.json pairs for a JS monorepo) with cuenv's own
// config-file-presence model, since cuenv has no package-manager
// manifest to key off of.
package discovery

import (
	"sort"

	"github.com/karrick/godirwalk"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
)

// ModuleMarker is the directory name whose presence at some ancestor of
// the working directory identifies the module root.
const ModuleMarker = "cue.mod"

// ConfigFileName is the fixed per-package environment file name.
const ConfigFileName = "env.cue"

// ErrNoModuleRoot is returned when no ancestor of the starting directory
// contains ModuleMarker.
var ErrNoModuleRoot = errs.Configurationf("discovery.FindModuleRoot", ModuleMarker, nil)

// FindModuleRoot walks up from dir looking for a cue.mod directory,
// returning the directory that contains it.
func FindModuleRoot(dir fspath.AbsoluteSystemPath) (fspath.AbsoluteSystemPath, error) {
	root, err := fspath.FindUpFrom(ModuleMarker, dir)
	if err != nil {
		return "", errs.IOf("discovery.FindModuleRoot", dir.ToString(), err)
	}
	if root == "" {
		return "", ErrNoModuleRoot
	}
	return root, nil
}

// Package is one package discovered within a module: a name (its path
// relative to the module root, using the platform's path separator, or
// "//" for the module root itself) and the absolute directory containing
// its config file.
type Package struct {
	Name string
	Dir  fspath.AbsoluteSystemPath
}

// Catalog is the set of packages discovered under a module root, indexed
// by name for lookup and retained in sorted order for deterministic
// listing (§6 "task list").
type Catalog struct {
	ByName map[string]Package
	Names  []string
}

// Discover walks the module rooted at root and returns every directory
// containing a ConfigFileName, including root itself if it qualifies.
func Discover(root fspath.AbsoluteSystemPath) (*Catalog, error) {
	catalog := &Catalog{ByName: make(map[string]Package)}

	ignore := loadGitignore(root)

	err := godirwalk.Walk(root.ToString(), &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if de.Name() == ModuleMarker || de.Name() == ".git" || de.Name() == "node_modules" {
				return godirwalk.SkipThis
			}
			dirPath := fspath.AbsoluteSystemPath(osPathname)
			if ignore != nil {
				if rel, relErr := dirPath.RelativeTo(root); relErr == nil && ignore.MatchesPath(string(rel)) {
					return godirwalk.SkipThis
				}
			}
			if !dirPath.Join(ConfigFileName).FileExists() {
				return nil
			}
			rel, relErr := dirPath.RelativeTo(root)
			if relErr != nil {
				return relErr
			}
			name := "//"
			if rel != "." {
				name = string(rel)
			}
			catalog.ByName[name] = Package{Name: name, Dir: dirPath}
			return nil
		},
		ErrorCallback: func(_ string, _ error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, errs.IOf("discovery.Discover", root.ToString(), err)
	}

	catalog.Names = make([]string, 0, len(catalog.ByName))
	for name := range catalog.ByName {
		catalog.Names = append(catalog.Names, name)
	}
	sort.Strings(catalog.Names)

	return catalog, nil
}

// loadGitignore reads root's .gitignore, if any, so Discover's walk skips
// directories the repository itself considers generated or vendored
// (build output, caches), on top of the fixed skip of the module marker,
// .git and node_modules directories. A
// missing .gitignore is not an error: the walk simply has nothing extra
// to skip.
func loadGitignore(root fspath.AbsoluteSystemPath) *gitignore.GitIgnore {
	path := root.Join(".gitignore")
	if !path.FileExists() {
		return nil
	}
	ign, err := gitignore.CompileIgnoreFile(path.ToString())
	if err != nil {
		return nil
	}
	return ign
}
