package supervisor

import (
	"context"
	"time"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/hashicorp/go-hclog"
)

// Notifier pushes a capture-ready event to the main process once the
// background supervisor has written a capture, supplementing the shared
// capture-cache file with an immediate notification (see the
// internal/supervisor/rpc.go CaptureReady RPC).
type Notifier interface {
	NotifyCaptureReady(ctx context.Context, inputHash string) error
}

// RunSupervisor is the `supervisor --hooks <json>` entry point (§6): it
// computes the input hash, short-circuits to the existing capture if one
// is already cached for that hash, otherwise runs every hook and writes a
// fresh capture, then exits. notifier may be nil (the main process simply
// polls/reads the `latest` pointer instead).
func RunSupervisor(ctx context.Context, app string, workDir fspath.AbsoluteSystemPath, hooks []config.Hook, notifier Notifier, logger hclog.Logger) error {
	dir := CacheDir(app)

	inputHash, err := ComputeInputHash(workDir, hooks)
	if err != nil {
		return err
	}

	if cached, err := ReadCapture(dir, inputHash); err != nil {
		return err
	} else if cached != nil {
		logger.Debug("supervisor: reusing cached capture", "input_hash", inputHash)
		return notify(ctx, notifier, inputHash, logger)
	}

	envVars, err := RunHooks(ctx, hooks, workDir)
	if err != nil {
		return err
	}

	capture := CapturedEnvironment{
		EnvVars:   envVars,
		InputHash: inputHash,
		Timestamp: time.Now().Unix(),
	}
	if err := WriteCapture(dir, capture); err != nil {
		return err
	}
	logger.Info("supervisor: wrote capture", "input_hash", inputHash, "vars", len(envVars))

	return notify(ctx, notifier, inputHash, logger)
}

func notify(ctx context.Context, notifier Notifier, inputHash string, logger hclog.Logger) error {
	if notifier == nil {
		return nil
	}
	if err := notifier.NotifyCaptureReady(ctx, inputHash); err != nil {
		logger.Warn("supervisor: capture-ready notification failed, main process will fall back to the latest pointer", "error", err)
	}
	return nil
}
