package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/actioncache"
	"github.com/cuenv/cuenv/internal/cas"
	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/signer"
	"github.com/cuenv/cuenv/internal/taskbuilder"
	"github.com/cuenv/cuenv/internal/taskgraph"
)

func newTestCache(t *testing.T, root fspath.AbsoluteSystemPath) *actioncache.Cache {
	t.Helper()
	blobs, err := cas.New(root.Join("objects"), cas.Opts{})
	assert.NilError(t, err)
	sig, err := signer.LoadOrCreate(root.Join(".signing_key"), signer.Opts{})
	assert.NilError(t, err)
	c, err := actioncache.New(actioncache.Opts{EntriesRoot: root.Join("actions"), Blobs: blobs, Signer: sig})
	assert.NilError(t, err)
	return c
}

func TestExecutorRunsTaskAndCommitsToCache(t *testing.T) {
	root := fspath.AbsoluteSystemPath(t.TempDir())
	workDir := root.Join("work")
	assert.NilError(t, workDir.MkdirAll(0775))

	result := config.ParseResult{
		Tasks: map[string]config.TaskNode{
			"build": {Task: &config.TaskConfig{
				Name:      "build",
				Execution: config.ExecutionMode{Command: "echo built > out.txt"},
				Outputs:   []string{"out.txt"},
			}},
		},
		TaskOrder: []string{"build"},
	}

	reg := taskgraph.NewRegistry()
	reg.AddPackage("app", taskgraph.ExpandPackage("app", result))

	graph, err := BuildGraph(reg)
	assert.NilError(t, err)

	def := taskbuilder.Build(*result.Tasks["build"].Task, map[string]string{}, workDir)
	tasks := map[string]*TaskContext{
		qid("app", "build"): {Def: def, Env: map[string]string{"PATH": os.Getenv("PATH")}},
	}

	cache := newTestCache(t, root)
	exec := New(graph, tasks, Options{Concurrency: 2, Cache: cache})

	var events []Event
	errs := exec.Execute(context.Background(), func(e Event) { events = append(events, e) })
	assert.Equal(t, len(errs), 0)

	content, err := os.ReadFile(filepath.Join(workDir.ToString(), "out.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(content), "built\n")

	var started, completed bool
	for _, e := range events {
		if e.Kind == TaskStarted {
			started = true
		}
		if e.Kind == TaskCompleted {
			completed = true
		}
	}
	assert.Assert(t, started && completed)
}

func TestExecutorAuditModeBypassesCache(t *testing.T) {
	root := fspath.AbsoluteSystemPath(t.TempDir())
	workDir := root.Join("work")
	assert.NilError(t, workDir.MkdirAll(0775))

	result := config.ParseResult{
		Tasks: map[string]config.TaskNode{
			"build": {Task: &config.TaskConfig{
				Name:      "build",
				Execution: config.ExecutionMode{Command: "true"},
			}},
		},
		TaskOrder: []string{"build"},
	}

	reg := taskgraph.NewRegistry()
	reg.AddPackage("app", taskgraph.ExpandPackage("app", result))
	graph, err := BuildGraph(reg)
	assert.NilError(t, err)

	def := taskbuilder.Build(*result.Tasks["build"].Task, map[string]string{}, workDir)
	tasks := map[string]*TaskContext{
		qid("app", "build"): {Def: def, Env: map[string]string{"PATH": os.Getenv("PATH")}},
	}

	exec := New(graph, tasks, Options{Concurrency: 1, Audit: true})
	errs := exec.Execute(context.Background(), nil)
	assert.Equal(t, len(errs), 0)
}
