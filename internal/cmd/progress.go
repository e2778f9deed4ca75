package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/cuenv/cuenv/internal/executor"
	"github.com/cuenv/cuenv/internal/ui"
)

// combineListeners fans out an Executor's events to every listener in
// order. A nil entry is skipped so callers can pass an optional listener
// (e.g. progressListener's no-op in non-interactive runs) unconditionally.
func combineListeners(listeners ...executor.Listener) executor.Listener {
	return func(ev executor.Event) {
		for _, l := range listeners {
			if l != nil {
				l(ev)
			}
		}
	}
}

// progressListener drives a terminal spinner off the Executor's
// TaskStarted/TaskCompleted/TaskFailed events (§4.5) while "task run"
// executes a graph, so a long build shows liveness instead of sitting
// silent. It is a no-op when stdout isn't a terminal, matching how CI logs
// shouldn't fill with carriage-return spinner frames.
//
// The returned finish func renders the run's final summary and must be
// called exactly once after the graph finishes.
func progressListener(total int) (executor.Listener, func()) {
	if !ui.IsTTY || total == 0 {
		return nil, func() {}
	}

	spin := ui.NewSpinner(os.Stderr)
	var (
		mu              sync.Mutex
		completed, fail int
	)

	label := func() string {
		return fmt.Sprintf("%s (%d failed)", ui.Dim(fmt.Sprintf("running tasks: %d/%d", completed, total)), fail)
	}
	spin.Start(label())

	listener := func(ev executor.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case executor.TaskCompleted:
			completed++
		case executor.TaskFailed:
			completed++
			fail++
		case executor.TaskStarted:
		}
		spin.UpdateLabel(label())
	}

	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		summary := fmt.Sprintf("ran %d/%d task(s)", completed, total)
		if fail > 0 {
			summary = fmt.Sprintf("%s, %d failed", summary, fail)
		}
		spin.Stop(ui.Bold(summary))
	}

	return listener, finish
}
