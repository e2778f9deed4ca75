package taskgraph

import (
	"fmt"
	"sort"
)

// qualifiedID is a FlattenedTask id namespaced by the package it came
// from, the key the Registry indexes everything under.
type qualifiedID struct {
	Package string
	ID      string
}

// Registry is the cross-package task index (§4.2 "Task Registry"):
// resolves references, validates every dependency and #output against
// what was actually declared, and is the input the Executor's topological
// sort consumes.
type Registry struct {
	tasks   map[qualifiedID]FlattenedTask
	byPkg   map[string][]FlattenedTask
	pkgTask map[string]qualifiedID // "pkg:task" -> top-level flattened id, for reference resolution
}

// NewRegistry returns an empty Registry; AddPackage then adds each
// package's expanded task list under its discovery.Package.Name.
func NewRegistry() *Registry {
	return &Registry{
		tasks:   make(map[qualifiedID]FlattenedTask),
		byPkg:   make(map[string][]FlattenedTask),
		pkgTask: make(map[string]qualifiedID),
	}
}

// AddPackage registers pkgName's already-expanded flattened tasks.
func (r *Registry) AddPackage(pkgName string, flattened []FlattenedTask) {
	r.byPkg[pkgName] = flattened
	for _, ft := range flattened {
		qid := qualifiedID{Package: pkgName, ID: ft.ID}
		r.tasks[qid] = ft
		if !ft.IsBarrier && len(ft.GroupPath) == 0 {
			r.pkgTask[pkgName+":"+ft.Name] = qid
		}
	}
}

// Resolve looks up a reference's task id within fromPkg's scope. A local
// reference resolves against the (already-translated-to-id) dependency
// string directly if it names a known id in fromPkg; a cross-package
// reference resolves via the target package's top-level task table.
func (r *Registry) Resolve(fromPkg string, dep string) (qualifiedID, bool) {
	if qid := (qualifiedID{Package: fromPkg, ID: dep}); r.exists(qid) {
		return qid, true
	}
	ref, err := ParseReference(dep)
	if err != nil {
		return qualifiedID{}, false
	}
	if ref.IsLocal() {
		return qualifiedID{}, false
	}
	qid, ok := r.pkgTask[ref.Package+":"+ref.Task]
	return qid, ok
}

func (r *Registry) exists(qid qualifiedID) bool {
	_, ok := r.tasks[qid]
	return ok
}

// ValidationError names one offending dependency or output reference.
type ValidationError struct {
	Package string
	TaskID  string
	Problem string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("taskgraph: package %q task %q: %s", e.Package, e.TaskID, e.Problem)
}

// Validate checks, for every flattened task in every registered package,
// that each dependency resolves to a known task or barrier, and that any
// #output reference names a path the producing task actually declares in
// its outputs (§4.2 "Validation"). It does not detect cycles; those
// surface at execution via the topological sort (§4.2).
func (r *Registry) Validate() []error {
	var errs []error

	pkgNames := make([]string, 0, len(r.byPkg))
	for name := range r.byPkg {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	for _, pkgName := range pkgNames {
		for _, ft := range r.byPkg[pkgName] {
			for _, dep := range ft.Dependencies {
				qid, ok := r.Resolve(pkgName, dep)
				if !ok {
					errs = append(errs, &ValidationError{Package: pkgName, TaskID: ft.ID, Problem: fmt.Sprintf("dependency %q does not resolve to a known task", dep)})
					continue
				}
				ref, parseErr := ParseReference(dep)
				if parseErr == nil && ref.Output != "" {
					target := r.tasks[qid]
					if target.Task == nil || !containsString(target.Task.Outputs, ref.Output) {
						errs = append(errs, &ValidationError{Package: pkgName, TaskID: ft.ID, Problem: fmt.Sprintf("output %q is not declared by the producing task %q", ref.Output, qid.ID)})
					}
				}
			}
		}
	}
	return errs
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PackageNames returns every registered package name, sorted.
func (r *Registry) PackageNames() []string {
	names := make([]string, 0, len(r.byPkg))
	for name := range r.byPkg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TasksInPackage returns pkgName's flattened tasks in the order they were
// registered.
func (r *Registry) TasksInPackage(pkgName string) []FlattenedTask {
	return r.byPkg[pkgName]
}

// AllTasks returns every flattened task across every registered package,
// in deterministic package-name order.
func (r *Registry) AllTasks() []FlattenedTask {
	pkgNames := make([]string, 0, len(r.byPkg))
	for name := range r.byPkg {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	var all []FlattenedTask
	for _, name := range pkgNames {
		all = append(all, r.byPkg[name]...)
	}
	return all
}
