// Package staging implements Dependency Staging (§4.7): before a task
// whose inputs reference another package's output (pkg:task#output) runs,
// the referenced output is materialised into a per-run, process-owned
// temporary directory and exposed to the consuming task via a
// CUENV_INPUT_<PKG>_<TASK>_<OUTPUT> environment variable. The
// symlink-vs-copy materialisation choice follows internal/fs/copy_file.go's
// CopyOrLinkFile (symlink fast path, fall back to a real copy).
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuenv/cuenv/internal/fspath"
)

// Strategy selects how a staged dependency is materialised.
type Strategy int

const (
	// Symlink creates a symlink to the source (default, fast).
	Symlink Strategy = iota
	// Copy recursively copies the source (isolated, mutation-safe).
	Copy
)

// Staged is one materialised dependency.
type Staged struct {
	EnvVar string
	Path   fspath.AbsoluteSystemPath
}

// Dir is a per-run staging area. Create one with New per run whose tasks
// have cross-package input references; Close removes it.
type Dir struct {
	root fspath.AbsoluteSystemPath
}

// New creates a fresh, process-owned staging directory under base (the
// system temp dir if base is empty).
func New(base string) (*Dir, error) {
	root, err := os.MkdirTemp(base, "cuenv-staging-*")
	if err != nil {
		return nil, fmt.Errorf("staging: creating staging directory: %w", err)
	}
	return &Dir{root: fspath.AbsoluteSystemPath(root)}, nil
}

// Close removes the staging directory and everything under it (§4.7:
// "cleaned on drop").
func (d *Dir) Close() error {
	return os.RemoveAll(d.root.ToString())
}

// EnvVarName builds the CUENV_INPUT_<PKG>_<TASK>_<OUTPUT> variable name
// for one staged dependency: the dotted "pkg.task.output" path,
// upper-cased, with every non-alphanumeric separator collapsed to `_`.
func EnvVarName(pkg, task, output string) string {
	dotted := pkg + "." + task + "." + output
	var b strings.Builder
	for _, r := range strings.ToUpper(dotted) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return "CUENV_INPUT_" + b.String()
}

// Stage materialises source (the absolute path to pkg:task's declared
// output) into the staging directory and returns the environment variable
// that should point a consuming task at it. A missing source is an error
// (§4.7: "missing sources fail before any task starts" — callers are
// expected to call Stage for every cross-package input before executing
// the consuming task, so this surfaces before any process spawns).
func (d *Dir) Stage(pkg, task, output string, source fspath.AbsoluteSystemPath, strategy Strategy) (Staged, error) {
	if !source.FileExists() && !source.DirExists() {
		return Staged{}, fmt.Errorf("staging: source %q for %s:%s#%s does not exist", source, pkg, task, output)
	}

	dest := d.root.Join(pkg, task, filepath.Base(output))
	if err := dest.Dir().MkdirAll(0775); err != nil {
		return Staged{}, fmt.Errorf("staging: preparing destination for %s:%s#%s: %w", pkg, task, output, err)
	}

	var err error
	switch strategy {
	case Copy:
		err = copyPath(source.ToString(), dest.ToString())
	default:
		err = os.Symlink(source.ToString(), dest.ToString())
	}
	if err != nil {
		return Staged{}, fmt.Errorf("staging: materialising %s:%s#%s: %w", pkg, task, output, err)
	}

	return Staged{EnvVar: EnvVarName(pkg, task, output), Path: dest}, nil
}

func copyPath(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(from, to, info.Mode())
	}
	return copyFile(from, to, info.Mode())
}

func copyDir(from, to string, mode os.FileMode) error {
	if err := os.MkdirAll(to, mode.Perm()|0700); err != nil {
		return err
	}
	entries, err := os.ReadDir(from)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(from, entry.Name())
		dstPath := filepath.Join(to, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := copyDir(srcPath, dstPath, info.Mode()); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(from, to string, mode os.FileMode) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
