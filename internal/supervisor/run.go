package supervisor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
)

// RunAndCapture executes a source hook (§4.8: "parse exported vars") by
// running its command followed by `env` in the same shell invocation, so
// any variables the command exports are visible in the captured output.
// It is also used for plain synchronous (non-capturing) hooks, whose
// captured variables are simply discarded by the caller.
func RunAndCapture(ctx context.Context, hook config.Hook, workDir fspath.AbsoluteSystemPath) (map[string]string, error) {
	script := strings.Join(append([]string{hook.Command}, hook.Args...), " ") + "\nenv"

	dir := workDir.ToString()
	if hook.WorkingDirectory != "" {
		dir = workDir.Join(hook.WorkingDirectory).ToString()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errs.New(errs.TaskFailure, "run hook", hook.Command, errs.HintManual, err)
	}
	return parseEnvOutput(stdout.String()), nil
}

func parseEnvOutput(raw string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[name] = value
	}
	return vars
}

// RunHooks executes every hook (in order) via RunAndCapture, merging
// source hooks' exported variables over whatever preceded them
// (§4.8 row "source=true... parse exported vars"). Non-source hooks run
// for their side effects only.
func RunHooks(ctx context.Context, hooks []config.Hook, workDir fspath.AbsoluteSystemPath) (map[string]string, error) {
	merged := make(map[string]string)
	for _, hook := range hooks {
		vars, err := RunAndCapture(ctx, hook, workDir)
		if err != nil {
			return nil, err
		}
		if hook.Source {
			for k, v := range vars {
				merged[k] = v
			}
		}
	}
	return merged, nil
}
