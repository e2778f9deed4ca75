// Command cuenv is the CLI entry point. Its shape is the teacher's own
// cmd/turbo/main.go, minus the cgo/Rust-FFI export surface that codebase
// carries for its JS/Rust embedding story, which cuenv has no equivalent
// of.
package main

import (
	"fmt"
	"os"

	"github.com/cuenv/cuenv/internal/cmd"
	"github.com/cuenv/cuenv/internal/sandbox"
)

const version = "0.0.1"

func main() {
	args := os.Args[1:]

	// The Sandbox Enforcer's landlock_restrict_self call must run in a
	// fresh process about to exec the real command (§4.6); cmd/cuenv
	// recognises that re-exec request before cobra ever sees the
	// arguments, since ReexecFlag's argv shape ("__cuenv_sandboxed_exec__
	// <path> <args...>") isn't a cobra command.
	if len(args) > 0 && args[0] == sandbox.ReexecFlag {
		if err := sandbox.RunSandboxed(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	root := cmd.NewRootCmd(version)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
