// Package sandbox implements the Sandbox Enforcer (§4.6): given a task's
// security restrictions, it prepares a child command so that, once
// spawned, it has no filesystem access outside read_only_paths ∪
// read_write_paths minus deny_paths, and (where the platform allows)
// no outbound network access except to allow-listed hosts. Audit
// logging — recording every path/host admission decision rather than
// enforcing it — is the fallback contract on platforms or kernels
// without the required primitives (§4.6 "Implementation floor").
// AuditLogger/AuditEntry's shape is grounded on the audit log in
// _examples/other_examples' container_sandbox.go ("apex-build-platform"),
// the only retrieved reference with a comparable sandbox audit trail.
package sandbox

import (
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/hashengine"
)

// Restrictions is the resolved, symlink-admitted form of a task's
// config.SecurityPolicy: every path has been realpath-resolved before
// being admitted, so TOCTOU-style symlink swaps cannot widen access
// (§4.6 "Symlink safety").
type Restrictions struct {
	RestrictDisk    bool
	RestrictNetwork bool
	ReadOnlyPaths   []fspath.AbsoluteSystemPath
	ReadWritePaths  []fspath.AbsoluteSystemPath
	DenyPaths       []fspath.AbsoluteSystemPath
	AllowedHosts    []string
}

// Resolve builds Restrictions from a task's security policy. When
// InferFromIO is set, read_only_paths is seeded from inputs and
// read_write_paths from outputs, and restrict_disk is forced on
// (§4.6 "Inference"). workDir anchors relative input/output paths.
func Resolve(policy config.SecurityPolicy, workDir fspath.AbsoluteSystemPath, inputs, outputs []string) (Restrictions, error) {
	readOnly := policy.ReadOnlyPaths
	readWrite := policy.ReadWritePaths
	restrictDisk := policy.RestrictDisk

	if policy.InferFromIO {
		restrictDisk = true
		readOnly = append(append([]string{}, readOnly...), inputs...)
		readWrite = append(append([]string{}, readWrite...), outputs...)
	}

	r := Restrictions{
		RestrictDisk:    restrictDisk,
		RestrictNetwork: policy.RestrictNetwork,
		AllowedHosts:    append([]string{}, policy.AllowedHosts...),
	}

	var err error
	if r.ReadOnlyPaths, err = admitAll(workDir, readOnly); err != nil {
		return Restrictions{}, err
	}
	if r.ReadWritePaths, err = admitAll(workDir, readWrite); err != nil {
		return Restrictions{}, err
	}
	if r.DenyPaths, err = admitAll(workDir, policy.DenyPaths); err != nil {
		return Restrictions{}, err
	}
	return r, nil
}

// admitAll resolves each pattern (a glob rooted at workDir, or a bare path)
// to its real, symlink-free absolute form.
func admitAll(workDir fspath.AbsoluteSystemPath, patterns []string) ([]fspath.AbsoluteSystemPath, error) {
	var out []fspath.AbsoluteSystemPath
	for _, pattern := range patterns {
		matches, err := hashengine.Match(workDir, []string{pattern})
		if err != nil {
			return nil, fmt.Errorf("sandbox: admitting %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			// Not a glob that matched existing files; treat as a literal
			// path to admit (e.g. a not-yet-created output directory).
			resolved, rerr := hashengine.ResolveSymlink(workDir.Join(pattern))
			if rerr != nil {
				resolved = workDir.Join(pattern)
			}
			out = append(out, resolved)
			continue
		}
		for _, m := range matches {
			if resolved, rerr := hashengine.ResolveSymlink(m); rerr == nil {
				m = resolved
			}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Enforcer prepares cmd so that, once started, it is confined to
// restrictions. It returns a cleanup function to run after the process
// exits (releasing any kernel-level ruleset handles) and whether
// enforcement (rather than audit-only logging) is actually active.
type Enforcer interface {
	Apply(cmd *exec.Cmd, restrictions Restrictions, audit *AuditLogger) (cleanup func(), enforced bool, err error)
}

// AuditEntry records one admission decision.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // "fs-read", "fs-write", "network"
	Target    string    `json:"target"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
}
