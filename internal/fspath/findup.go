package fspath

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

type readDirFunc func(string) ([]os.FileInfo, error)

var defaultReadDir readDirFunc = ioutil.ReadDir

func hasEntry(name, dir string, readdir readDirFunc) (bool, error) {
	entries, err := readdir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name() == name {
			return true, nil
		}
	}
	return false, nil
}

func findUpFrom(name, dir string, readdir readDirFunc) (AbsoluteSystemPath, error) {
	for {
		found, err := hasEntry(name, dir, readdir)
		if err != nil {
			return "", err
		}
		if found {
			return AbsoluteSystemPath(dir), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// FindUpFrom walks up the directory tree starting at dir, looking for an
// entry (file or directory) named name. It returns the directory that
// contains the match, or "" if none was found before reaching the
// filesystem root.
func FindUpFrom(name string, dir AbsoluteSystemPath) (AbsoluteSystemPath, error) {
	return findUpFrom(name, string(dir), defaultReadDir)
}
