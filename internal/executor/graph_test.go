package executor

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/taskgraph"
)

func leafNode(name string, deps ...string) config.TaskNode {
	return config.TaskNode{Task: &config.TaskConfig{Name: name, Dependencies: deps}}
}

func TestBuildGraphConnectsDependencies(t *testing.T) {
	result := config.ParseResult{
		Tasks: map[string]config.TaskNode{
			"prepare": leafNode("prepare"),
			"build":   leafNode("build", "prepare"),
		},
		TaskOrder: []string{"prepare", "build"},
	}

	reg := taskgraph.NewRegistry()
	reg.AddPackage("app", taskgraph.ExpandPackage("app", result))

	graph, err := BuildGraph(reg)
	assert.NilError(t, err)

	downEdges := graph.DownEdges(qid("app", "build"))
	found := false
	for _, v := range downEdges {
		if v == qid("app", "prepare") {
			found = true
		}
	}
	assert.Assert(t, found)
}

func TestBuildGraphRejectsUnresolvedDependency(t *testing.T) {
	result := config.ParseResult{
		Tasks:     map[string]config.TaskNode{"build": leafNode("build", "missing:task")},
		TaskOrder: []string{"build"},
	}

	reg := taskgraph.NewRegistry()
	reg.AddPackage("app", taskgraph.ExpandPackage("app", result))

	_, err := BuildGraph(reg)
	assert.ErrorContains(t, err, "unresolved dependency")
}
