package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/fspath"
)

func TestCategorizeSourceHooksAlwaysRunSyncCapture(t *testing.T) {
	h := config.Hook{Source: true, Preload: false}
	assert.Equal(t, Categorize(h, true), RunSyncCapture)
	assert.Equal(t, Categorize(h, false), RunSyncCapture)

	h.Preload = true
	assert.Equal(t, Categorize(h, true), RunSyncCapture)
	assert.Equal(t, Categorize(h, false), RunSyncCapture)
}

func TestCategorizePreloadBackgroundsOnlyInShellHookContext(t *testing.T) {
	h := config.Hook{Source: false, Preload: true}
	assert.Equal(t, Categorize(h, true), SpawnBackground)
	assert.Equal(t, Categorize(h, false), RunSync)
}

func TestCategorizePlainHookAlwaysRunsSync(t *testing.T) {
	h := config.Hook{Source: false, Preload: false}
	assert.Equal(t, Categorize(h, true), RunSync)
	assert.Equal(t, Categorize(h, false), RunSync)
}

func TestComputeInputHashStableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	hooks := []config.Hook{{Command: "echo", Args: []string{"hi"}, Inputs: []string{"*.txt"}}}
	workDir := fspath.AbsoluteSystemPath(dir)

	h1, err := ComputeInputHash(workDir, hooks)
	assert.NilError(t, err)
	h2, err := ComputeInputHash(workDir, hooks)
	assert.NilError(t, err)
	assert.Equal(t, h1, h2)
}

func TestComputeInputHashChangesWithInputMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	assert.NilError(t, os.WriteFile(path, []byte("x"), 0644))

	hooks := []config.Hook{{Command: "echo", Inputs: []string{"*.txt"}}}
	workDir := fspath.AbsoluteSystemPath(dir)

	before, err := ComputeInputHash(workDir, hooks)
	assert.NilError(t, err)

	future := time.Now().Add(2 * time.Hour)
	assert.NilError(t, os.Chtimes(path, future, future))

	after, err := ComputeInputHash(workDir, hooks)
	assert.NilError(t, err)
	assert.Assert(t, before != after)
}

func TestValidateRejectsTooManyVars(t *testing.T) {
	vars := make(map[string]string, maxCaptureVars+1)
	for i := 0; i < maxCaptureVars+1; i++ {
		vars[string(rune('a'+i%26))+string(rune(i))] = "v"
	}
	c := CapturedEnvironment{EnvVars: vars}
	assert.ErrorContains(t, c.Validate(), "exceeds")
}

func TestRunHooksMergesSourcedExports(t *testing.T) {
	dir := t.TempDir()
	hooks := []config.Hook{
		{Command: "export FOO=bar", Source: true},
	}
	vars, err := RunHooks(context.Background(), hooks, fspath.AbsoluteSystemPath(dir))
	assert.NilError(t, err)
	assert.Equal(t, vars["FOO"], "bar")
}

func TestWriteAndReadCaptureRoundTrips(t *testing.T) {
	dir := fspath.AbsoluteSystemPath(t.TempDir())
	capture := CapturedEnvironment{EnvVars: map[string]string{"A": "1"}, InputHash: "abc123", Timestamp: 42}
	assert.NilError(t, WriteCapture(dir, capture))

	got, err := ReadCapture(dir, "abc123")
	assert.NilError(t, err)
	assert.Assert(t, got != nil)
	assert.Equal(t, got.EnvVars["A"], "1")

	latest, err := ReadLatest(dir)
	assert.NilError(t, err)
	assert.Assert(t, latest != nil)
	assert.Equal(t, latest.InputHash, "abc123")
}

func TestReadCaptureMissingReturnsNil(t *testing.T) {
	dir := fspath.AbsoluteSystemPath(t.TempDir())
	got, err := ReadCapture(dir, "doesnotexist")
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
}

func TestWatchRerunsOnInputChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	assert.NilError(t, os.WriteFile(path, []byte("x"), 0644))
	workDir := fspath.AbsoluteSystemPath(dir)

	hooks := []config.Hook{
		{Command: "cat " + path, Source: true, Inputs: []string{"*.txt"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan map[string]string, 1)

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, workDir, hooks, func(vars map[string]string) {
			select {
			case changed <- vars:
			default:
			}
		}, hclog.NewNullLogger())
	}()

	// give the watcher time to register its inputs before mutating them.
	time.Sleep(100 * time.Millisecond)
	assert.NilError(t, os.WriteFile(path, []byte("y"), 0644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Watch to notice the input change")
	}

	cancel()
	assert.NilError(t, <-done)
}
