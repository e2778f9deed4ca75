package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/pyr-sh/dag"

	"github.com/cuenv/cuenv/internal/actioncache"
	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/hashengine"
	"github.com/cuenv/cuenv/internal/process"
	"github.com/cuenv/cuenv/internal/taskbuilder"
)

// EventKind distinguishes the three lifecycle events the Executor publishes
// for each task (§4.5).
type EventKind int

const (
	TaskStarted EventKind = iota
	TaskCompleted
	TaskFailed
)

// Event is published to the configured Listener as each task starts,
// finishes, or fails.
type Event struct {
	Kind   EventKind
	TaskID string
	Result *actioncache.ActionResult
	Err    error
}

// Listener receives Executor lifecycle events. Implementations must not
// block; the Executor publishes synchronously from the task's own
// goroutine.
type Listener func(Event)

// TaskContext is everything the Executor needs to run one task: its
// materialised definition, the process environment to run it under
// (assembled by the caller; internal/cmd uses the process's own
// environment layered with configured variables and CUENV_INPUT_*
// staged-dependency entries), and
// the content digests of its declared input files (used to compute the
// ActionDigest; hashing inputs is the caller's job so ComputeDigest stays a
// pure function, see internal/actioncache's package doc).
type TaskContext struct {
	Def          *taskbuilder.TaskDefinition
	Env          map[string]string
	InputDigests map[string]digest.Digest
	Salt         string
}

// Options configures one Executor run.
type Options struct {
	Concurrency int
	Cache       *actioncache.Cache
	Audit       bool // bypass the Action Cache: always execute, never read or write cached results
	Logger      hclog.Logger
}

// Executor walks a task graph with bounded concurrency, consulting the
// Action Cache before spawning a process for each task (§4.5). Graph
// walking with a concurrency cap follows internal/core/engine.go's
// Engine.Execute.
type Executor struct {
	graph   *dag.AcyclicGraph
	tasks   map[string]*TaskContext
	opts    Options
	manager *process.Manager

	mu      sync.Mutex
	results map[string]*actioncache.ActionResult
}

// New constructs an Executor for graph, whose non-barrier vertices each
// have a corresponding entry in tasks keyed by the same vertex id
// BuildGraph used ("pkg::taskID").
func New(graph *dag.AcyclicGraph, tasks map[string]*TaskContext, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Executor{
		graph:   graph,
		tasks:   tasks,
		opts:    opts,
		manager: process.NewManager(opts.Logger),
		results: make(map[string]*actioncache.ActionResult),
	}
}

// Execute walks the graph, running every task in an order that respects
// its dependencies, subject to the configured concurrency cap. A task that
// returns a non-nil error short-circuits tasks that have not yet started;
// tasks already in flight are allowed to finish.
func (e *Executor) Execute(ctx context.Context, publish Listener) []error {
	if publish == nil {
		publish = func(Event) {}
	}

	sema := make(chan struct{}, e.opts.Concurrency)
	var errored int32

	return e.graph.Walk(func(v dag.Vertex) error {
		if atomic.LoadInt32(&errored) != 0 {
			return nil
		}

		id, ok := v.(string)
		if !ok {
			id = fmt.Sprintf("%v", v)
		}

		tc, known := e.tasks[id]
		if !known || tc.Def == nil {
			// A synthesized barrier or unrecognized vertex: nothing to run.
			return nil
		}

		sema <- struct{}{}
		defer func() { <-sema }()

		publish(Event{Kind: TaskStarted, TaskID: id})

		result, err := e.runOne(ctx, id, tc)
		if err != nil {
			atomic.StoreInt32(&errored, 1)
			publish(Event{Kind: TaskFailed, TaskID: id, Err: err})
			return err
		}

		e.mu.Lock()
		e.results[id] = result
		e.mu.Unlock()
		publish(Event{Kind: TaskCompleted, TaskID: id, Result: result})
		return nil
	})
}

// Results returns every completed task's cached ActionResult, keyed by
// vertex id.
func (e *Executor) Results() map[string]*actioncache.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*actioncache.ActionResult, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

func (e *Executor) runOne(ctx context.Context, id string, tc *TaskContext) (*actioncache.ActionResult, error) {
	def := tc.Def

	produce := func() (*actioncache.Produced, error) {
		env := make([]string, 0, len(tc.Env))
		for name, value := range tc.Env {
			env = append(env, name+"="+value)
		}

		spawned, err := runProcess(ctx, def, env, e.manager, e.opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("executor: task %s: %w", id, err)
		}

		outputs, err := discoverOutputs(def)
		if err != nil {
			return nil, fmt.Errorf("executor: task %s: discovering outputs: %w", id, err)
		}

		return &actioncache.Produced{
			ExitCode:    spawned.ExitCode,
			DurationMs:  spawned.DurationMs,
			StdoutPath:  spawned.StdoutPath,
			StderrPath:  spawned.StderrPath,
			OutputFiles: outputs,
		}, nil
	}

	if e.opts.Audit || e.opts.Cache == nil {
		produced, err := produce()
		if err != nil {
			return nil, err
		}
		if produced.ExitCode != 0 {
			return nil, fmt.Errorf("executor: task %s exited with code %d", id, produced.ExitCode)
		}
		return &actioncache.ActionResult{ExitCode: produced.ExitCode, DurationMs: produced.DurationMs}, nil
	}

	actionDigest := actioncache.ComputeDigest(def.Name, def.ExecutionContent, string(def.WorkingDirectory), allowlisted(tc), tc.InputDigests, tc.Salt)

	result, err := e.opts.Cache.ExecuteAction(actionDigest, def.WorkingDirectory, produce)
	if err != nil {
		return nil, fmt.Errorf("executor: task %s: %w", id, err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("executor: task %s exited with code %d", id, result.ExitCode)
	}
	return result, nil
}

// allowlisted narrows tc.Env down to the names tc.Def.Cache.EnvVarAllowlist
// declares (§3 "ActionDigest" only hashes allow-listed env vars).
func allowlisted(tc *TaskContext) map[string]string {
	if len(tc.Def.Cache.EnvVarAllowlist) == 0 {
		return nil
	}
	out := make(map[string]string, len(tc.Def.Cache.EnvVarAllowlist))
	for _, name := range tc.Def.Cache.EnvVarAllowlist {
		out[name] = tc.Env[name]
	}
	return out
}

// discoverOutputs resolves def.Outputs (glob patterns rooted at the task's
// working directory) into the relative-path -> absolute-path map
// ExecuteAction needs to hash and store each produced file.
func discoverOutputs(def *taskbuilder.TaskDefinition) (map[string]string, error) {
	if len(def.Outputs) == 0 {
		return nil, nil
	}
	matches, err := hashengine.Match(def.WorkingDirectory, def.Outputs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(matches))
	for _, abs := range matches {
		rel, err := filepath.Rel(string(def.WorkingDirectory), string(abs))
		if err != nil {
			return nil, err
		}
		out[filepath.ToSlash(rel)] = string(abs)
	}
	return out, nil
}
