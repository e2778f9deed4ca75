package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pyr-sh/dag"

	"github.com/cuenv/cuenv/internal/actioncache"
	"github.com/cuenv/cuenv/internal/cas"
	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/digest"
	"github.com/cuenv/cuenv/internal/discovery"
	"github.com/cuenv/cuenv/internal/executor"
	"github.com/cuenv/cuenv/internal/fspath"
	"github.com/cuenv/cuenv/internal/hashengine"
	"github.com/cuenv/cuenv/internal/signer"
	"github.com/cuenv/cuenv/internal/staging"
	"github.com/cuenv/cuenv/internal/taskbuilder"
	"github.com/cuenv/cuenv/internal/taskgraph"
)

// vertexID formats a registry-qualified task id as the same single graph
// vertex name executor.BuildGraph uses ("pkg::taskID"), so this package's
// bookkeeping maps stay keyed consistently with the Executor's.
func vertexID(pkg, id string) string {
	return pkg + "::" + id
}

// stagingRef is one cross-package pkg:task#output reference discovered in
// a task's declared inputs (§4.7): it must be materialised into the
// staging directory, and its env var injected into the consuming task's
// environment, after the producing task finishes but before the consuming
// task starts.
type stagingRef struct {
	producerVertex string
	pkg, task      string
	output         string
	consumerVertex string
	envVar         string
}

// pipeline is everything a "task run"/"task list" invocation needs: the
// validated registry, the graph the Executor walks, and a TaskContext per
// non-barrier vertex.
type pipeline struct {
	catalog     *discovery.Catalog
	registry    *taskgraph.Registry
	graph       *dag.AcyclicGraph
	tasks       map[string]*executor.TaskContext
	stagingRefs []stagingRef
}

// loadPipeline discovers every package under moduleRoot, loads and
// flattens each one's task tree, assembles the build's variable map
// (overlay-merged, capability-filtered) per package, and materialises
// every leaf task's TaskDefinition and TaskContext (§2 "Discovery →
// Parser → Task Builder → Task Registry → Executor").
func loadPipeline(moduleRoot fspath.AbsoluteSystemPath, overlayName string, capabilities []string) (*pipeline, error) {
	catalog, err := discovery.Discover(moduleRoot)
	if err != nil {
		return nil, fmt.Errorf("cmd: discovering packages: %w", err)
	}

	reg := taskgraph.NewRegistry()
	defs := make(map[string]*taskbuilder.TaskDefinition)
	envs := make(map[string]map[string]string)

	for _, name := range catalog.Names {
		pkg := catalog.ByName[name]
		cfgPath := pkg.Dir.Join(discovery.ConfigFileName)

		result, err := config.LoadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("cmd: loading %s: %w", name, err)
		}

		flattened := taskgraph.ExpandPackage(name, result)
		reg.AddPackage(name, flattened)

		vars := taskbuilder.BuildEnvironment(result, overlayName, capabilities)
		for _, ft := range flattened {
			if ft.IsBarrier || ft.Task == nil {
				continue
			}
			vid := vertexID(name, ft.ID)
			defs[vid] = taskbuilder.Build(*ft.Task, vars, pkg.Dir)
			env := baseEnv()
			for k, v := range vars {
				env[k] = v
			}
			envs[vid] = env
		}
	}

	if errs := reg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("cmd: invalid task registry:\n%s", joinErrors(errs))
	}

	graph, err := executor.BuildGraph(reg)
	if err != nil {
		return nil, fmt.Errorf("cmd: building task graph: %w", err)
	}

	tasks := make(map[string]*executor.TaskContext, len(defs))
	for vid, def := range defs {
		digests, err := hashInputs(def)
		if err != nil {
			return nil, fmt.Errorf("cmd: hashing inputs for %s: %w", vid, err)
		}
		tasks[vid] = &executor.TaskContext{
			Def:          def,
			Env:          envs[vid],
			InputDigests: digests,
		}
	}

	return &pipeline{
		catalog:     catalog,
		registry:    reg,
		graph:       graph,
		tasks:       tasks,
		stagingRefs: collectStagingRefs(reg),
	}, nil
}

// baseEnv seeds a task's runtime environment from the process's own
// environment (a task's subprocess otherwise starts with nothing, not
// even PATH); ${VAR} expansion against the build's own variable map has
// already happened in taskbuilder.Build. loadPipeline layers the package's
// configured variables over it and stagingListener adds the CUENV_INPUT_*
// staged-dependency variables; no supervisor-captured environment is read
// into it.
func baseEnv() map[string]string {
	out := make(map[string]string, len(os.Environ()))
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

// collectStagingRefs scans every registered task's declared inputs for a
// pkg:task#output reference and resolves it against the registry, so the
// Executor's completion events know which consumer's environment to patch
// once a given producer finishes (§4.7).
func collectStagingRefs(reg *taskgraph.Registry) []stagingRef {
	var refs []stagingRef
	for _, pkgName := range reg.PackageNames() {
		for _, ft := range reg.TasksInPackage(pkgName) {
			if ft.IsBarrier || ft.Task == nil {
				continue
			}
			consumer := vertexID(pkgName, ft.ID)
			for _, in := range ft.Task.Inputs {
				ref, err := taskgraph.ParseReference(in)
				if err != nil || ref.IsLocal() || ref.Output == "" {
					continue
				}
				qid, ok := reg.Resolve(pkgName, in)
				if !ok {
					continue // Validate already rejects an unresolved reference
				}
				refs = append(refs, stagingRef{
					producerVertex: vertexID(qid.Package, qid.ID),
					pkg:            ref.Package,
					task:           ref.Task,
					output:         ref.Output,
					consumerVertex: consumer,
					envVar:         staging.EnvVarName(ref.Package, ref.Task, ref.Output),
				})
			}
		}
	}
	return refs
}

// stagingListener returns an executor.Listener that, on every
// TaskCompleted event, materialises that producer's declared output for
// any stagingRef it satisfies and patches the consuming task's Env in
// place. Because dag.AcyclicGraph.Walk never invokes a vertex's callback
// until every vertex it depends on has returned, this mutation always
// happens-before the consumer's own callback reads tc.Env (§4.7's "caller's
// job" contract in internal/executor/executor.go's TaskContext doc
// comment). Producers that complete concurrently may invoke the listener at
// the same time, so a mutex serialises its writes to the error list and to
// a shared consumer's Env.
func stagingListener(p *pipeline, dir *staging.Dir, strategy staging.Strategy, logger hclog.Logger) (executor.Listener, *[]error) {
	byProducer := make(map[string][]stagingRef, len(p.stagingRefs))
	for _, ref := range p.stagingRefs {
		byProducer[ref.producerVertex] = append(byProducer[ref.producerVertex], ref)
	}

	var stageErrs []error
	var mu sync.Mutex

	listener := func(ev executor.Event) {
		if ev.Kind != executor.TaskCompleted {
			return
		}
		refs := byProducer[ev.TaskID]
		if len(refs) == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		producerDef := p.tasks[ev.TaskID].Def
		for _, ref := range refs {
			matches, err := hashengine.Match(producerDef.WorkingDirectory, []string{ref.output})
			if err != nil || len(matches) == 0 {
				stageErrs = append(stageErrs, fmt.Errorf("staging: %s:%s#%s did not produce a matching output", ref.pkg, ref.task, ref.output))
				continue
			}
			staged, err := dir.Stage(ref.pkg, ref.task, ref.output, matches[0], strategy)
			if err != nil {
				stageErrs = append(stageErrs, err)
				continue
			}
			consumer, ok := p.tasks[ref.consumerVertex]
			if !ok {
				continue
			}
			if consumer.Env == nil {
				consumer.Env = map[string]string{}
			}
			consumer.Env[staged.EnvVar] = staged.Path.ToString()
			logger.Debug("staged dependency", "var", staged.EnvVar, "path", staged.Path.ToString())
		}
	}

	return listener, &stageErrs
}

// buildCache opens the Action Cache rooted under dataDir(app), creating
// its CAS and signing key if this is the first run.
func buildCache(app string, logger hclog.Logger) (*actioncache.Cache, error) {
	root := dataDir(app)
	blobs, err := cas.New(root.Join("cas"), cas.Opts{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("cmd: opening CAS: %w", err)
	}
	sig, err := signer.LoadOrCreate(root.Join(".signing_key"), signer.Opts{})
	if err != nil {
		return nil, fmt.Errorf("cmd: loading signing key: %w", err)
	}
	return actioncache.New(actioncache.Opts{
		EntriesRoot: root.Join("entries"),
		Blobs:       blobs,
		Signer:      sig,
	})
}

// hashInputs resolves a task's declared input globs (excluding any
// pkg:task#output cross-package reference, which names a staged
// dependency rather than a file already on disk at graph-build time)
// against its working directory and content-hashes every matched file,
// the per-task input digest map an ActionDigest is computed from (§3
// "ActionDigest").
func hashInputs(def *taskbuilder.TaskDefinition) (map[string]digest.Digest, error) {
	var globs []string
	for _, in := range def.Inputs {
		if ref, err := taskgraph.ParseReference(in); err == nil && !ref.IsLocal() && ref.Output != "" {
			continue
		}
		globs = append(globs, in)
	}
	if len(globs) == 0 {
		return nil, nil
	}
	matches, err := hashengine.Match(def.WorkingDirectory, globs)
	if err != nil {
		return nil, err
	}
	return hashengine.HashFiles(matches)
}

func joinErrors(errs []error) string {
	merged := &multierror.Error{Errors: errs}
	merged.ErrorFormat = func(es []error) string {
		lines := make([]string, len(es))
		for i, e := range es {
			lines[i] = "  - " + e.Error()
		}
		sort.Strings(lines)
		return strings.Join(lines, "\n")
	}
	return merged.Error()
}
