package cmd

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/executor"
)

func TestCombineListenersFansOutToEveryListener(t *testing.T) {
	var a, b int
	l := combineListeners(
		func(executor.Event) { a++ },
		nil,
		func(executor.Event) { b++ },
	)

	l(executor.Event{Kind: executor.TaskCompleted})
	l(executor.Event{Kind: executor.TaskCompleted})

	assert.Equal(t, a, 2)
	assert.Equal(t, b, 2)
}

func TestProgressListenerIsNoopWithoutATerminal(t *testing.T) {
	// Test binaries never run attached to a tty, so progressListener must
	// degrade to a harmless no-op rather than panic on a nil spinner.
	listener, finish := progressListener(3)
	assert.Assert(t, listener == nil)
	finish()
}

func TestProgressListenerIsNoopForAnEmptyGraph(t *testing.T) {
	listener, finish := progressListener(0)
	assert.Assert(t, listener == nil)
	finish()
}
