// Package executor implements the Executor (§4.5): it turns a validated
// Task Registry into a dag.AcyclicGraph of qualified task ids and walks it
// with bounded concurrency, consulting the Action Cache before spawning a
// child process for each task. Graph construction and cycle detection
// follow internal/core/scheduler.go and internal/util/graph.go; walking
// with a concurrency cap follows internal/core/engine.go's Engine.Execute,
// substituting a buffered-channel semaphore for the teacher's
// util.NewSemaphore, which the teacher's util package never actually
// defines (the teacher's internal/core/engine.go and scheduler.go
// reference it, but no such function exists in its internal/util).
package executor

import (
	"fmt"

	"github.com/pyr-sh/dag"

	"github.com/cuenv/cuenv/internal/taskgraph"
	"github.com/cuenv/cuenv/internal/util"
)

// qid formats a registry-qualified task id as a single graph vertex name.
func qid(pkg, id string) string {
	return pkg + "::" + id
}

// BuildGraph constructs the task graph for every task the registry knows
// about, connecting each task to the tasks it depends on. It returns an
// error if the registry contains an unresolved dependency (callers should
// run Registry.Validate first) or a cycle.
func BuildGraph(reg *taskgraph.Registry) (*dag.AcyclicGraph, error) {
	graph := &dag.AcyclicGraph{}

	for _, pkgName := range packageNames(reg) {
		for _, ft := range reg.TasksInPackage(pkgName) {
			v := qid(pkgName, ft.ID)
			graph.Add(v)
		}
	}

	for _, pkgName := range packageNames(reg) {
		for _, ft := range reg.TasksInPackage(pkgName) {
			from := qid(pkgName, ft.ID)
			for _, dep := range ft.Dependencies {
				target, ok := reg.Resolve(pkgName, dep)
				if !ok {
					return nil, fmt.Errorf("executor: unresolved dependency %q from %s", dep, from)
				}
				to := qid(target.Package, target.ID)
				graph.Connect(dag.BasicEdge(from, to))
			}
		}
	}

	if err := util.ValidateGraph(graph); err != nil {
		return nil, err
	}
	return graph, nil
}

func packageNames(reg *taskgraph.Registry) []string {
	return reg.PackageNames()
}
