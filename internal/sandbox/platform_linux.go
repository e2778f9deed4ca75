//go:build linux
// +build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cuenv/cuenv/internal/fspath"
)

// Landlock ABI v1 (Linux 5.13+, https://docs.kernel.org/userspace-api/landlock.html).
// golang.org/x/sys/unix at this module's pinned version predates the
// landlock_* syscall wrappers, so the three syscalls are invoked directly
// by number; these numbers are part of the stable Linux syscall ABI and
// identical across the x86-64 and arm64 syscall tables.
const (
	sysLandlockCreateRuleset  = 444
	sysLandlockAddRule        = 445
	sysLandlockRestrictSelf   = 446
	landlockRuleTypePathBeneath = 1

	accessFSExecute    = 1 << 0
	accessFSWriteFile  = 1 << 1
	accessFSReadFile   = 1 << 2
	accessFSReadDir    = 1 << 3
	accessFSRemoveDir  = 1 << 4
	accessFSRemoveFile = 1 << 5
	accessFSMakeChar   = 1 << 6
	accessFSMakeDir    = 1 << 7
	accessFSMakeReg    = 1 << 8
	accessFSMakeSock   = 1 << 9
	accessFSMakeFifo   = 1 << 10
	accessFSMakeBlock  = 1 << 11
	accessFSMakeSym    = 1 << 12

	readOnlyAccess  = accessFSExecute | accessFSReadFile | accessFSReadDir
	readWriteAccess = readOnlyAccess | accessFSWriteFile | accessFSRemoveDir | accessFSRemoveFile |
		accessFSMakeChar | accessFSMakeDir | accessFSMakeReg | accessFSMakeSock | accessFSMakeFifo | accessFSMakeBlock | accessFSMakeSym
)

type rulesetAttr struct {
	handledAccessFS uint64
}

type pathBeneathAttr struct {
	allowedAccess uint64
	parentFd      int32
	_             [4]byte // padding to match the kernel's struct layout
}

// landlockEnforcer applies an ABI-v1 Landlock filesystem ruleset to the
// child via the self-reexec trampoline (see reexec.go). Landlock has no
// network primitive at ABI v1 (TCP support arrived at ABI v4, kernel
// 6.7), so network restriction always falls back to audit-only logging
// here, consistent with §4.6's audit-mode fallback.
type landlockEnforcer struct{}

// New returns the platform Enforcer: Landlock-backed filesystem
// restriction on Linux, audit-only elsewhere.
func New() Enforcer { return landlockEnforcer{} }

func (landlockEnforcer) Apply(cmd *exec.Cmd, restrictions Restrictions, audit *AuditLogger) (func(), bool, error) {
	for _, host := range restrictions.AllowedHosts {
		audit.Record(AuditEntry{Kind: "network", Target: host, Allowed: true, Reason: "landlock has no network primitive at ABI v1; recorded, not enforced"})
	}

	if !restrictions.RestrictDisk {
		return func() {}, false, nil
	}

	if err := rewriteForReexec(cmd, restrictions); err != nil {
		return nil, false, err
	}
	for _, p := range restrictions.ReadOnlyPaths {
		audit.Record(AuditEntry{Kind: "fs-read", Target: string(p), Allowed: true})
	}
	for _, p := range restrictions.ReadWritePaths {
		audit.Record(AuditEntry{Kind: "fs-write", Target: string(p), Allowed: true})
	}
	for _, p := range restrictions.DenyPaths {
		audit.Record(AuditEntry{Kind: "fs-read", Target: string(p), Allowed: false, Reason: "deny_paths"})
	}
	return func() {}, true, nil
}

// applyPlatform restricts the CURRENT process (called from within the
// re-exec trampoline, see RunSandboxed) by creating a Landlock ruleset
// covering restrictions.ReadOnlyPaths/ReadWritePaths (deny_paths are
// realized by simply never admitting them into either list), then
// calling landlock_restrict_self. If the running kernel lacks Landlock
// (ENOSYS) this degrades to a no-op: the audit trail already recorded
// every admission decision, matching the audit-mode contract.
func applyPlatform(restrictions Restrictions) (bool, error) {
	if !restrictions.RestrictDisk {
		return false, nil
	}

	attr := rulesetAttr{handledAccessFS: readWriteAccess}
	rulesetFd, _, errno := syscall.Syscall(sysLandlockCreateRuleset, uintptr(unsafe.Pointer(&attr)), unsafe.Sizeof(attr), 0)
	if errno == syscall.ENOSYS {
		return false, nil
	}
	if errno != 0 {
		return false, fmt.Errorf("landlock_create_ruleset: %w", errno)
	}
	defer syscall.Close(int(rulesetFd))

	denied := make(map[string]bool, len(restrictions.DenyPaths))
	for _, p := range restrictions.DenyPaths {
		denied[string(p)] = true
	}

	addRule := func(path string, access uint64) error {
		if denied[path] {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil // missing path: nothing to admit
		}
		defer f.Close()

		ruleAttr := pathBeneathAttr{allowedAccess: access, parentFd: int32(f.Fd())}
		_, _, errno := syscall.Syscall6(sysLandlockAddRule, rulesetFd, landlockRuleTypePathBeneath, uintptr(unsafe.Pointer(&ruleAttr)), 0, 0, 0)
		if errno != 0 {
			return fmt.Errorf("landlock_add_rule(%s): %w", path, errno)
		}
		return nil
	}

	for _, p := range pathStrings(restrictions.ReadOnlyPaths) {
		if err := addRule(p, readOnlyAccess); err != nil {
			return false, err
		}
	}
	for _, p := range pathStrings(restrictions.ReadWritePaths) {
		if err := addRule(p, readWriteAccess); err != nil {
			return false, err
		}
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return false, fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	if _, _, errno := syscall.Syscall(sysLandlockRestrictSelf, rulesetFd, 0, 0); errno != 0 {
		return false, fmt.Errorf("landlock_restrict_self: %w", errno)
	}
	return true, nil
}

func pathStrings(paths []fspath.AbsoluteSystemPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}

// execReplace replaces the current process image with path/args, the
// final step of the sandboxing trampoline (RunSandboxed never returns on
// success).
func execReplace(path string, args []string) error {
	return syscall.Exec(path, args, os.Environ())
}
