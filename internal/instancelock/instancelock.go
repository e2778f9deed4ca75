// Package instancelock implements Instance Lock & Env Mutation (§4.9): a
// single file lock arbitrating between concurrent process instances, and
// a reader-writer-guarded in-process environment map that all mutation
// goes through. The file lock reuses github.com/nightlyone/lockfile
// exactly as internal/daemon/daemon.go's tryAcquirePidfileLock does for
// turbod's pid file.
package instancelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"

	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
)

// Path returns the instance lock's path: $XDG_RUNTIME_DIR/<uid>/<app>.lock
// (§6 "Persisted state layout"), falling back to the system temp dir when
// XDG_RUNTIME_DIR is unset.
func Path(app string) fspath.AbsoluteSystemPath {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, fmt.Sprint(os.Getuid()))
	return fspath.AbsoluteSystemPath(filepath.Join(dir, app+".lock"))
}

// Lock is a single file-lock instance, held exclusively by the process
// that successfully Acquires it.
type Lock struct {
	path fspath.AbsoluteSystemPath
	file lockfile.Lockfile
}

// Acquire creates (if needed) the lock's parent directory, mode 0700, and
// attempts to take the lock. It does not block or retry: callers that
// need to wait for a competing instance to release the lock should retry
// on errs.Concurrency themselves, matching §4.9's "arbitrates between
// concurrent process instances" without specifying a particular backoff.
func Acquire(app string) (*Lock, error) {
	path := Path(app)
	if err := path.Dir().MkdirAll(0700); err != nil {
		return nil, errs.IOf("create instance lock directory", path.Dir().ToString(), err)
	}

	lf, err := lockfile.New(path.ToString())
	if err != nil {
		// lockfile.New only errors on a non-absolute path, which Path never
		// produces; a mismatch here is a bug, not a runtime condition.
		panic(err)
	}
	// lockfile.TryLock succeeds when the lock file already names this
	// process, so a second Acquire from the same process is refused here.
	if owner, oerr := lf.GetOwner(); oerr == nil && owner.Pid == os.Getpid() {
		return nil, errs.New(errs.Concurrency, "acquire instance lock", path.ToString(), errs.HintRetryAfter, lockfile.ErrBusy)
	}
	if err := lf.TryLock(); err != nil {
		return nil, errs.New(errs.Concurrency, "acquire instance lock", path.ToString(), errs.HintRetryAfter, err)
	}

	if err := os.Chmod(path.ToString(), 0600); err != nil && !os.IsNotExist(err) {
		return nil, errs.IOf("chmod instance lock", path.ToString(), err)
	}

	return &Lock{path: path, file: lf}, nil
}

// Release gives up the lock.
func (l *Lock) Release() error {
	if err := l.file.Unlock(); err != nil {
		return errs.New(errs.Concurrency, "release instance lock", l.path.ToString(), errs.HintManual, err)
	}
	return nil
}
