package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// reexecEnvVar carries the JSON-encoded Restrictions to the re-executed
// child (§4.6 "Implementation floor": restricting a specific child of a
// long-lived executor process requires landlock_restrict_self to run in
// that child itself, since the restriction is inherited across exec and
// cannot later be lifted — so the executor re-execs itself into a small
// trampoline that applies the ruleset and then execs the real command).
const reexecEnvVar = "CUENV_SANDBOX_RESTRICTIONS"

// ReexecFlag is the argv[1] cmd/cuenv recognises as "apply sandboxing,
// then exec argv[2:]". A fresh Go process is the only way to call
// landlock_restrict_self without affecting the parent executor.
const ReexecFlag = "__cuenv_sandboxed_exec__"

// rewriteForReexec turns cmd into `self __cuenv_sandboxed_exec__ <original
// argv>`, carrying restrictions via reexecEnvVar, so cmd/cuenv's entry
// point can call RunSandboxed before handing off to the real command.
func rewriteForReexec(cmd *exec.Cmd, restrictions Restrictions) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("sandbox: locating self executable: %w", err)
	}
	encoded, err := json.Marshal(restrictions)
	if err != nil {
		return fmt.Errorf("sandbox: encoding restrictions: %w", err)
	}

	originalArgs := cmd.Args
	originalPath := cmd.Path

	cmd.Path = self
	cmd.Args = append([]string{self, ReexecFlag, originalPath}, originalArgs[1:]...)
	cmd.Env = append(cmd.Env, reexecEnvVar+"="+string(encoded))
	return nil
}

// RunSandboxed is cmd/cuenv's entry point for the ReexecFlag path: it
// reads restrictions from the environment, applies them to the current
// (about-to-be-replaced) process, then execs the real command. It never
// returns on success; on failure it returns an error for the caller to
// report and exit non-zero.
func RunSandboxed(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("sandbox: %s requires a command to exec", ReexecFlag)
	}
	raw := os.Getenv(reexecEnvVar)
	var restrictions Restrictions
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &restrictions); err != nil {
			return fmt.Errorf("sandbox: decoding restrictions: %w", err)
		}
	}
	os.Unsetenv(reexecEnvVar)

	if _, err := applyPlatform(restrictions); err != nil {
		return fmt.Errorf("sandbox: applying restrictions: %w", err)
	}
	return execReplace(args[0], args)
}
