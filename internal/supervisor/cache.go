package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
)

// CacheDir returns the supervisor's capture cache directory
// (§6 "Persisted state layout": /tmp/<app>-<user>/preload-cache/).
func CacheDir(app string) fspath.AbsoluteSystemPath {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	return fspath.AbsoluteSystemPath(filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s", app, user), "preload-cache"))
}

func capturePath(dir fspath.AbsoluteSystemPath, inputHash string) string {
	return dir.Join(inputHash + ".json").ToString()
}

func latestPath(dir fspath.AbsoluteSystemPath) string {
	return dir.Join("latest_env.json").ToString()
}

// WriteCapture atomically persists a capture, keyed by its input hash, and
// mirrors it to the `latest` pointer for the main process to ingest.
func WriteCapture(dir fspath.AbsoluteSystemPath, capture CapturedEnvironment) error {
	if err := capture.Validate(); err != nil {
		return err
	}
	if err := dir.MkdirAll(0700); err != nil {
		return errs.IOf("create capture cache dir", dir.ToString(), err)
	}
	encoded, err := json.Marshal(capture)
	if err != nil {
		return errs.New(errs.Corruption, "marshal capture", capture.InputHash, errs.HintClearCache, err)
	}
	if err := atomicWrite(capturePath(dir, capture.InputHash), encoded); err != nil {
		return err
	}
	return atomicWrite(latestPath(dir), encoded)
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errs.IOf("create temp capture file", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.IOf("write temp capture file", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.IOf("close temp capture file", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.IOf("rename capture file", path, err)
	}
	return nil
}

// ReadCapture loads the capture keyed by inputHash, if present.
func ReadCapture(dir fspath.AbsoluteSystemPath, inputHash string) (*CapturedEnvironment, error) {
	return readCaptureFile(capturePath(dir, inputHash))
}

// ReadLatest loads the most recently written capture, regardless of hash.
func ReadLatest(dir fspath.AbsoluteSystemPath) (*CapturedEnvironment, error) {
	return readCaptureFile(latestPath(dir))
}

func readCaptureFile(path string) (*CapturedEnvironment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IOf("read capture file", path, err)
	}
	var capture CapturedEnvironment
	if err := json.Unmarshal(data, &capture); err != nil {
		return nil, errs.New(errs.Corruption, "unmarshal capture", path, errs.HintClearCache, err)
	}
	return &capture, nil
}
