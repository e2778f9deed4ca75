package supervisor

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/errs"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/hashengine"
)

// Watch re-runs hooks whenever one of their declared input files changes,
// instead of waiting for the next shell prompt to notice a stale
// ComputeInputHash. It supplements §4.8's poll-on-prompt capture model for
// long-lived sessions (editors, dev servers) where nothing re-invokes
// __cuenv_export__ on its own.
//
// onChange is called with the freshly captured variables after every
// re-run; a nil onChange simply keeps the supervisor's own cache current.
func Watch(ctx context.Context, workDir fspath.AbsoluteSystemPath, hooks []config.Hook, onChange func(map[string]string), logger hclog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.New(errs.IO, "start watch", workDir.ToString(), errs.HintManual, err)
	}
	defer watcher.Close()

	watched := map[string]bool{}
	addInputs := func() error {
		for _, hook := range hooks {
			matches, err := hashengine.Match(workDir, hook.Inputs)
			if err != nil {
				return errs.IOf("match hook inputs", workDir.ToString(), err)
			}
			for _, m := range matches {
				p := m.ToString()
				if watched[p] {
					continue
				}
				if err := watcher.Add(p); err != nil {
					logger.Warn("watch: cannot watch path", "path", p, "error", err)
					continue
				}
				watched[p] = true
			}
		}
		return nil
	}
	if err := addInputs(); err != nil {
		return err
	}

	rerun := func() {
		vars, err := RunHooks(ctx, hooks, workDir)
		if err != nil {
			logger.Warn("watch: re-running hooks failed", "error", err)
			return
		}
		if err := addInputs(); err != nil {
			logger.Warn("watch: re-adding inputs failed", "error", err)
		}
		if onChange != nil {
			onChange(vars)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				rerun()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: fsnotify error", "error", err)
		}
	}
}
