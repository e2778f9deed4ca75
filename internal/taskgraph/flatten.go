package taskgraph

import (
	"sort"
	"strings"

	"github.com/cuenv/cuenv/internal/config"
)

// barrierStart and barrierEnd name the synthetic synchronisation nodes a
// Parallel or Sequential (and multi-child Workflow) group expands into
// (§3 "FlattenedTask", §4.2 "Group expansion").
const (
	barrierStart = "__start__"
	barrierEnd   = "__end__"
)

// FlattenedTask is one node of an expanded task tree (§3).
type FlattenedTask struct {
	ID           string
	Name         string
	GroupPath    []string
	Dependencies []string
	IsBarrier    bool
	Task         *config.TaskConfig // nil for a barrier
}

func joinID(parts ...string) string {
	return strings.Join(parts, ".")
}

// subtree is the internal result of expanding one node: its flattened
// tasks plus the entry points (no-incoming-edge-within-this-subtree ids)
// and exit points (no-outgoing-edge-within-this-subtree ids) that an
// enclosing group wires barriers or sequential chaining to.
type subtree struct {
	flat    []FlattenedTask
	entries []string
	exits   []string
}

// localResolver looks up a bare (package-local) dependency name against
// siblings in the current group first, then against the whole package's
// top-level tasks, matching the intuitive reading that a task inside a
// group can depend on either a sibling or any package-level task by name.
type localResolver func(name string, groupPath []string) (string, bool)

// ExpandPackage flattens every top-level task/group in a package's
// ParseResult into one ordered list of FlattenedTasks, translating each
// task's declared dependencies (package-local bare names only; cross-
// package references are left as Reference strings for the Task Registry
// to resolve against other packages' flattened output).
func ExpandPackage(pkgName string, result config.ParseResult) []FlattenedTask {
	siblingIndex := make(map[string]string) // leaf task name -> flattened id, package-wide

	var all []FlattenedTask
	for _, named := range result.OrderedTasks() {
		sub := expandNode(named.Name, named.Node, nil)
		all = append(all, sub.flat...)
	}

	for _, ft := range all {
		if !ft.IsBarrier && len(ft.GroupPath) == 0 {
			siblingIndex[ft.Name] = ft.ID
		}
	}

	resolver := func(name string, groupPath []string) (string, bool) {
		if len(groupPath) > 0 {
			siblingID := joinID(append(append([]string{}, groupPath...), name)...)
			for _, ft := range all {
				if ft.ID == siblingID {
					return siblingID, true
				}
			}
		}
		id, ok := siblingIndex[name]
		return id, ok
	}

	for i := range all {
		if all[i].Task == nil {
			continue
		}
		all[i].Dependencies = translateDeps(all[i].Task.Dependencies, all[i].GroupPath, resolver)
	}

	return all
}

// translateDeps resolves each declared dependency reference. A bare local
// reference resolves against package-local tasks via resolve; a
// cross-package reference (or one that fails to resolve locally) is kept
// as its printed reference form, to be resolved by the Task Registry once
// every package's flattened output is known.
func translateDeps(deps []string, groupPath []string, resolve localResolver) []string {
	out := make([]string, 0, len(deps))
	for _, raw := range deps {
		ref, err := ParseReference(raw)
		if err != nil {
			out = append(out, raw)
			continue
		}
		if ref.IsLocal() && ref.Output == "" {
			if id, ok := resolve(ref.Task, groupPath); ok {
				out = append(out, id)
				continue
			}
		}
		out = append(out, ref.String())
	}
	return out
}

func expandNode(name string, node config.TaskNode, groupPath []string) subtree {
	if node.IsLeaf() {
		id := joinID(append(append([]string{}, groupPath...), name)...)
		ft := FlattenedTask{ID: id, Name: name, GroupPath: append([]string{}, groupPath...), Task: node.Task}
		return subtree{flat: []FlattenedTask{ft}, entries: []string{id}, exits: []string{id}}
	}

	childGroupPath := append(append([]string{}, groupPath...), name)

	switch node.GroupMode {
	case config.ModeParallel:
		return expandParallel(childGroupPath, node.Children)
	case config.ModeSequential:
		return expandSequential(childGroupPath, node.Children)
	case config.ModeWorkflow:
		return expandWorkflow(childGroupPath, node.Children)
	default: // config.ModeGroup, or unrecognised: structural only
		return expandGroup(childGroupPath, node.Children)
	}
}

func addDependency(ft *FlattenedTask, dep string) {
	for _, existing := range ft.Dependencies {
		if existing == dep {
			return
		}
	}
	ft.Dependencies = append(ft.Dependencies, dep)
}

func expandParallel(groupPath []string, children []config.NamedTaskNode) subtree {
	startID := joinID(append(append([]string{}, groupPath...), barrierStart)...)
	endID := joinID(append(append([]string{}, groupPath...), barrierEnd)...)

	flat := []FlattenedTask{{ID: startID, Name: barrierStart, GroupPath: groupPath, IsBarrier: true}}
	var endDeps []string

	for _, child := range children {
		sub := expandNode(child.Name, child.Node, groupPath)
		idx := make(map[string]bool, len(sub.entries))
		for _, e := range sub.entries {
			idx[e] = true
		}
		for i := range sub.flat {
			if idx[sub.flat[i].ID] {
				addDependency(&sub.flat[i], startID)
			}
		}
		flat = append(flat, sub.flat...)
		endDeps = append(endDeps, sub.exits...)
	}

	flat = append(flat, FlattenedTask{ID: endID, Name: barrierEnd, GroupPath: groupPath, IsBarrier: true, Dependencies: endDeps})
	return subtree{flat: flat, entries: []string{startID}, exits: []string{endID}}
}

func expandSequential(groupPath []string, children []config.NamedTaskNode) subtree {
	startID := joinID(append(append([]string{}, groupPath...), barrierStart)...)
	endID := joinID(append(append([]string{}, groupPath...), barrierEnd)...)

	sorted := append([]config.NamedTaskNode{}, children...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	flat := []FlattenedTask{{ID: startID, Name: barrierStart, GroupPath: groupPath, IsBarrier: true}}
	previousExits := []string{startID}

	for _, child := range sorted {
		sub := expandNode(child.Name, child.Node, groupPath)
		idx := make(map[string]bool, len(sub.entries))
		for _, e := range sub.entries {
			idx[e] = true
		}
		for i := range sub.flat {
			if idx[sub.flat[i].ID] {
				for _, dep := range previousExits {
					addDependency(&sub.flat[i], dep)
				}
			}
		}
		flat = append(flat, sub.flat...)
		previousExits = sub.exits
	}

	flat = append(flat, FlattenedTask{ID: endID, Name: barrierEnd, GroupPath: groupPath, IsBarrier: true, Dependencies: previousExits})
	return subtree{flat: flat, entries: []string{startID}, exits: []string{endID}}
}

func expandWorkflow(groupPath []string, children []config.NamedTaskNode) subtree {
	if len(children) == 1 {
		return expandNode(children[0].Name, children[0].Node, groupPath)
	}

	startID := joinID(append(append([]string{}, groupPath...), barrierStart)...)
	endID := joinID(append(append([]string{}, groupPath...), barrierEnd)...)

	var flat []FlattenedTask
	var allIDs []string
	dependedOn := make(map[string]bool)

	for _, child := range children {
		sub := expandNode(child.Name, child.Node, groupPath)
		flat = append(flat, sub.flat...)
		allIDs = append(allIDs, sub.exits...)
		for i := range sub.flat {
			for _, dep := range sub.flat[i].Dependencies {
				dependedOn[dep] = true
			}
		}
	}

	var sinks []string
	for _, id := range allIDs {
		if !dependedOn[id] {
			sinks = append(sinks, id)
		}
	}
	if len(sinks) == 0 {
		sinks = allIDs
	}

	all := append([]FlattenedTask{{ID: startID, Name: barrierStart, GroupPath: groupPath, IsBarrier: true}}, flat...)
	all = append(all, FlattenedTask{ID: endID, Name: barrierEnd, GroupPath: groupPath, IsBarrier: true, Dependencies: sinks})
	return subtree{flat: all, entries: []string{startID}, exits: []string{endID}}
}

func expandGroup(groupPath []string, children []config.NamedTaskNode) subtree {
	var flat []FlattenedTask
	var entries, exits []string
	for _, child := range children {
		sub := expandNode(child.Name, child.Node, groupPath)
		flat = append(flat, sub.flat...)
		entries = append(entries, sub.entries...)
		exits = append(exits, sub.exits...)
	}
	return subtree{flat: flat, entries: entries, exits: exits}
}
