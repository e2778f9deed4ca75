//go:build !linux
// +build !linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
)

// auditOnlyEnforcer is the non-Linux fallback: every admission decision is
// logged, and the command runs unconfined, matching §4.6's "Implementation
// floor" contract that non-Linux platforms MAY reduce to audit logging.
type auditOnlyEnforcer struct{}

// New returns the platform Enforcer. Only Linux has a real enforcement
// floor in this codebase (Landlock); every other platform is audit-only.
func New() Enforcer { return auditOnlyEnforcer{} }

func (auditOnlyEnforcer) Apply(cmd *exec.Cmd, restrictions Restrictions, audit *AuditLogger) (func(), bool, error) {
	for _, p := range restrictions.ReadOnlyPaths {
		audit.Record(AuditEntry{Kind: "fs-read", Target: string(p), Allowed: true, Reason: "audit-only platform"})
	}
	for _, p := range restrictions.ReadWritePaths {
		audit.Record(AuditEntry{Kind: "fs-write", Target: string(p), Allowed: true, Reason: "audit-only platform"})
	}
	for _, p := range restrictions.DenyPaths {
		audit.Record(AuditEntry{Kind: "fs-read", Target: string(p), Allowed: false, Reason: "deny_paths (audit-only, not enforced)"})
	}
	for _, host := range restrictions.AllowedHosts {
		audit.Record(AuditEntry{Kind: "network", Target: host, Allowed: true, Reason: "audit-only platform"})
	}
	return func() {}, false, nil
}

func applyPlatform(Restrictions) (bool, error) { return false, nil }

func execReplace(path string, args []string) error {
	cmd := exec.Command(path, args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return fmt.Errorf("sandbox: running %s: %w", path, err)
	}
	os.Exit(0)
	return nil
}
