// Package supervisor implements the Environment Supervisor (§4.8): hook
// categorisation, the input-hash keyed capture cache, and the detached
// background preload runner. Hook execution follows the general
// "build the real child, then exec/wait it" shape of
// internal/process/manager.go; the capture-cache file layout mirrors
// internal/daemon/daemon.go's hashed, user-scoped temp-directory
// convention (getDaemonFileRoot/getRepoHash), adapted from a daemon
// socket root to a JSON capture-cache root.
package supervisor

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/hashengine"
)

// Action is the categorisation §4.8's hook table resolves a hook to.
type Action int

const (
	// RunSync executes the hook synchronously with no capture.
	RunSync Action = iota
	// RunSyncCapture executes the hook synchronously and parses its
	// exported variables into the caller's environment.
	RunSyncCapture
	// SpawnBackground defers the hook to a detached supervisor child.
	SpawnBackground
)

// Categorize implements §4.8's hook categorisation table. source=true
// hooks always run synchronously and capture, regardless of preload or
// context ("same" in both table rows for source=true). A preload hook
// with source=false only backgrounds when invoked from shell-hook
// context; outside it, every hook runs synchronously.
func Categorize(h config.Hook, inShellHookContext bool) Action {
	if h.Source {
		return RunSyncCapture
	}
	if h.Preload && inShellHookContext {
		return SpawnBackground
	}
	return RunSync
}

// CapturedEnvironment is the persisted result of running a set of hooks
// (§4.8 "Capture format").
type CapturedEnvironment struct {
	EnvVars   map[string]string `json:"env_vars"`
	InputHash string            `json:"input_hash"`
	Timestamp int64             `json:"timestamp"`
}

const (
	maxCaptureVars  = 1000
	maxCaptureBytes = 10 * 1024 * 1024
)

// Validate enforces §4.8's capture size limits.
func (c CapturedEnvironment) Validate() error {
	if len(c.EnvVars) > maxCaptureVars {
		return errs.New(errs.Capacity, "validate capture", "env_vars", errs.HintManual,
			fmt.Errorf("%d variables exceeds the %d-variable limit", len(c.EnvVars), maxCaptureVars))
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return errs.New(errs.Corruption, "validate capture", "env_vars", errs.HintClearCache, err)
	}
	if len(encoded) > maxCaptureBytes {
		return errs.New(errs.Capacity, "validate capture", "serialised size", errs.HintManual,
			fmt.Errorf("%d bytes exceeds the %d-byte limit", len(encoded), maxCaptureBytes))
	}
	return nil
}

// ComputeInputHash implements §4.8's input hash: a SHA-256 over each
// hook's command, args, working directory, explicit inputs list, and for
// every glob in inputs the set of matching paths together with their
// modification times (seconds since epoch, little-endian).
func ComputeInputHash(workDir fspath.AbsoluteSystemPath, hooks []config.Hook) (string, error) {
	h := sha256.New()
	for _, hook := range hooks {
		h.Write([]byte(hook.Command))
		for _, arg := range hook.Args {
			h.Write([]byte(arg))
		}
		h.Write([]byte(hook.WorkingDirectory))
		for _, pattern := range hook.Inputs {
			h.Write([]byte(pattern))
		}

		matches, err := hashengine.Match(workDir, hook.Inputs)
		if err != nil {
			return "", errs.IOf("match hook inputs", workDir.ToString(), err)
		}
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.ToString()
		}
		sort.Strings(paths)
		for _, p := range paths {
			h.Write([]byte(p))
			info, err := os.Stat(p)
			if err != nil {
				return "", errs.IOf("stat hook input", p, err)
			}
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(info.ModTime().Unix()))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
