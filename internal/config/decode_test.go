package config

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestDecodeLeafTask(t *testing.T) {
	raw := map[string]interface{}{
		"variables": map[string]interface{}{
			"API_KEY": map[string]interface{}{
				"name":  "API_KEY",
				"value": "secret",
				"metadata": map[string]interface{}{
					"capabilities": []interface{}{"network"},
				},
			},
		},
		"tasks": map[string]interface{}{
			"build": map[string]interface{}{
				"name": "build",
				"execution": map[string]interface{}{
					"command": "go build ./...",
				},
				"outputs": []interface{}{"bin/app"},
			},
		},
		"task_order": []interface{}{"build"},
		"revision":   "rev1",
	}

	result, err := Decode(raw)
	assert.NilError(t, err)
	assert.Equal(t, result.Revision, "rev1")

	build, ok := result.Tasks["build"]
	assert.Assert(t, ok)
	assert.Assert(t, build.IsLeaf())
	assert.Equal(t, build.Task.Execution.Content(), "go build ./...")
	assert.Equal(t, build.Task.Outputs[0], "bin/app")

	assert.Equal(t, result.Variables["API_KEY"].Value, "secret")
	assert.Equal(t, result.Variables["API_KEY"].Metadata.Capabilities[0], "network")
}

func TestDecodeGroupTask(t *testing.T) {
	raw := map[string]interface{}{
		"tasks": map[string]interface{}{
			"ci": map[string]interface{}{
				"mode": "parallel",
				"children": map[string]interface{}{
					"lint": map[string]interface{}{
						"name":      "lint",
						"execution": map[string]interface{}{"command": "golangci-lint run"},
					},
					"test": map[string]interface{}{
						"name":      "test",
						"execution": map[string]interface{}{"command": "go test ./..."},
					},
				},
			},
		},
	}

	result, err := Decode(raw)
	assert.NilError(t, err)

	ci, ok := result.Tasks["ci"]
	assert.Assert(t, ok)
	assert.Assert(t, !ci.IsLeaf())
	assert.Equal(t, ci.GroupMode, ModeParallel)
	assert.Equal(t, len(ci.Children), 2)
	assert.Equal(t, ci.Children[0].Name, "lint")
	assert.Equal(t, ci.Children[1].Name, "test")
}

func TestOrderedTasksRespectsTaskOrder(t *testing.T) {
	r := ParseResult{
		Tasks: map[string]TaskNode{
			"b": {Task: &TaskConfig{Name: "b"}},
			"a": {Task: &TaskConfig{Name: "a"}},
		},
		TaskOrder: []string{"b", "a"},
	}
	ordered := r.OrderedTasks()
	assert.Equal(t, ordered[0].Name, "b")
	assert.Equal(t, ordered[1].Name, "a")
}
