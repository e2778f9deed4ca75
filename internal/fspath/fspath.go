// Package fspath teaches the Go type system about two kinds of filesystem
// paths used throughout cuenv: AbsoluteSystemPath (rooted at the volume
// root) and RelativeSystemPath (arbitrary, unrooted segments). Distinct
// types keep path-composition mistakes (joining two absolute paths,
// hashing a path that was never verified to be inside the workspace) from
// compiling.
package fspath

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

const dirPermissions = os.ModeDir | 0775

// AbsoluteSystemPath is an absolute, platform-native filesystem path.
type AbsoluteSystemPath string

// RelativeSystemPath is a platform-native path with no fixed root.
type RelativeSystemPath string

// FromUpstream casts a string to an AbsoluteSystemPath without validation.
// Callers must have already confirmed the string is in fact absolute.
func FromUpstream(path string) AbsoluteSystemPath {
	return AbsoluteSystemPath(path)
}

// ToString returns the string form of the path.
func (p AbsoluteSystemPath) ToString() string { return string(p) }

// ToString returns the string form of the path.
func (p RelativeSystemPath) ToString() string { return string(p) }

// Join appends relative segments to an absolute path.
func (p AbsoluteSystemPath) Join(segments ...string) AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Join(append([]string{string(p)}, segments...)...))
}

// Dir returns the parent directory.
func (p AbsoluteSystemPath) Dir() AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Dir(string(p)))
}

// Base returns the last path element.
func (p AbsoluteSystemPath) Base() string { return filepath.Base(string(p)) }

// RelativeTo computes the relative path from base to p.
func (p AbsoluteSystemPath) RelativeTo(base AbsoluteSystemPath) (RelativeSystemPath, error) {
	rel, err := filepath.Rel(string(base), string(p))
	return RelativeSystemPath(rel), err
}

var parentSentinel = ".." + string(filepath.Separator)

// Contains reports whether other is p or a descendant of p. Both paths must
// already be absolute; it does not resolve symlinks.
func (p AbsoluteSystemPath) Contains(other AbsoluteSystemPath) bool {
	rel, err := filepath.Rel(string(p), string(other))
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, parentSentinel)
}

// FileExists reports whether the path exists and is not a directory.
func (p AbsoluteSystemPath) FileExists() bool {
	info, err := os.Lstat(string(p))
	return err == nil && !info.IsDir()
}

// DirExists reports whether the path exists and is a directory.
func (p AbsoluteSystemPath) DirExists() bool {
	info, err := os.Lstat(string(p))
	return err == nil && info.IsDir()
}

// Lstat calls os.Lstat without following a terminal symlink.
func (p AbsoluteSystemPath) Lstat() (os.FileInfo, error) {
	return os.Lstat(string(p))
}

// MkdirAll creates the directory and any missing parents.
func (p AbsoluteSystemPath) MkdirAll(perm os.FileMode) error {
	return os.MkdirAll(string(p), perm)
}

// EnsureDir creates the parent directory of this path if it is missing.
func (p AbsoluteSystemPath) EnsureDir() error {
	dir := filepath.Dir(string(p))
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		info, statErr := os.Lstat(dir)
		if statErr == nil && !info.IsDir() {
			if rmErr := os.Remove(dir); rmErr == nil {
				return os.MkdirAll(dir, dirPermissions)
			}
		}
		return err
	}
	return nil
}

// ReadFile reads the whole file.
func (p AbsoluteSystemPath) ReadFile() ([]byte, error) {
	return ioutil.ReadFile(string(p))
}

// WriteFile writes the whole file.
func (p AbsoluteSystemPath) WriteFile(contents []byte, mode os.FileMode) error {
	return ioutil.WriteFile(string(p), contents, mode)
}

// Open opens the file for reading.
func (p AbsoluteSystemPath) Open() (*os.File, error) {
	return os.Open(string(p))
}

// OpenFile opens the file with explicit flags and mode.
func (p AbsoluteSystemPath) OpenFile(flags int, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(string(p), flags, mode)
}

// Create truncates or creates the file for writing.
func (p AbsoluteSystemPath) Create() (*os.File, error) {
	return os.Create(string(p))
}

// Remove removes the file or empty directory at this path.
func (p AbsoluteSystemPath) Remove() error {
	return os.Remove(string(p))
}

// RemoveAll recursively removes the path.
func (p AbsoluteSystemPath) RemoveAll() error {
	return os.RemoveAll(string(p))
}

// Rename moves the path to dest, which must be on the same volume for this
// to be atomic.
func (p AbsoluteSystemPath) Rename(dest AbsoluteSystemPath) error {
	return os.Rename(string(p), string(dest))
}

// Symlink creates a symlink at p pointing at target.
func (p AbsoluteSystemPath) Symlink(target string) error {
	return os.Symlink(target, string(p))
}
