package executor

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cuenv/cuenv/internal/process"
	"github.com/cuenv/cuenv/internal/taskbuilder"
)

// spawnResult is the raw outcome of running one task's process, before any
// output-file discovery or hashing.
type spawnResult struct {
	ExitCode   int
	DurationMs int64
	StdoutPath string
	StderrPath string
}

// runProcess executes def's command under a fresh shell, honouring its
// timeout. Process lifecycle (start/wait/kill) is delegated to
// process.Manager, which takes the per-task timeout directly and enforces
// the deadline inside Manager.Exec rather than via a second, overlapping
// context deadline here. A task that exceeds its timeout is force-killed
// at once: no gentler signal is sent first, and process.Manager's
// KillSignal/KillTimeout grace period applies only when the Manager
// itself is closed.
func runProcess(ctx context.Context, def *taskbuilder.TaskDefinition, env []string, manager *process.Manager, logger hclog.Logger) (*spawnResult, error) {
	stdout, err := os.CreateTemp("", "cuenv-stdout-*")
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	stderr, err := os.CreateTemp("", "cuenv-stderr-*")
	if err != nil {
		return nil, err
	}
	defer stderr.Close()

	shell := def.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", def.ExecutionContent)
	cmd.Dir = string(def.WorkingDirectory)
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	timeout := time.Duration(def.TimeoutSeconds) * time.Second

	start := time.Now()
	execErr := manager.Exec(cmd, timeout)
	duration := time.Since(start).Milliseconds()

	exitCode := 0
	switch e := execErr.(type) {
	case nil:
		exitCode = 0
	case *process.ChildExit:
		exitCode = e.ExitCode
	case *process.TimeoutExceeded:
		logger.Warn("task exceeded its timeout", "command", cmd.String(), "timeout", timeout)
		return nil, execErr
	default:
		return nil, execErr
	}

	return &spawnResult{
		ExitCode:   exitCode,
		DurationMs: duration,
		StdoutPath: stdout.Name(),
		StderrPath: stderr.Name(),
	}, nil
}
