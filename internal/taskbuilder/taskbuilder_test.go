package taskbuilder

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/fspath"
)

func TestBuildEnvironmentFiltersByCapabilityAndMergesOverlay(t *testing.T) {
	result := config.ParseResult{
		Variables: map[string]config.Variable{
			"REGION":  {Name: "REGION", Value: "us-east-1"},
			"API_KEY": {Name: "API_KEY", Value: "base-key", Metadata: config.VariableMetadata{Capabilities: []string{"network"}}},
		},
		Overlays: map[string]config.Overlay{
			"prod": {
				Name: "prod",
				Variables: map[string]config.Variable{
					"REGION": {Name: "REGION", Value: "us-west-2"},
				},
			},
		},
	}

	vars := BuildEnvironment(result, "prod", nil)
	assert.Equal(t, vars["REGION"], "us-west-2")
	_, hasAPIKey := vars["API_KEY"]
	assert.Assert(t, !hasAPIKey)

	withNetwork := BuildEnvironment(result, "", []string{"network"})
	assert.Equal(t, withNetwork["API_KEY"], "base-key")
}

func TestExpandVarsHandlesUnsetAndUnterminated(t *testing.T) {
	vars := map[string]string{"NAME": "world"}
	assert.Equal(t, ExpandVars("hello ${NAME}", vars), "hello world")
	assert.Equal(t, ExpandVars("hello ${MISSING}!", vars), "hello !")
	assert.Equal(t, ExpandVars("literal ${oops", vars), "literal ${oops")
}

func TestBuildResolvesRelativeWorkingDirectory(t *testing.T) {
	task := config.TaskConfig{
		Name:             "build",
		Execution:        config.ExecutionMode{Command: "echo ${GREETING}"},
		WorkingDirectory: "services/api",
	}
	vars := map[string]string{"GREETING": "hi"}
	root := fspath.AbsoluteSystemPath("/workspace")

	def := Build(task, vars, root)
	assert.Equal(t, def.ExecutionContent, "echo hi")
	assert.Equal(t, string(def.WorkingDirectory), "/workspace/services/api")
}

func TestBuildDefaultsWorkingDirectoryToWorkspaceRoot(t *testing.T) {
	task := config.TaskConfig{Name: "build", Execution: config.ExecutionMode{Command: "echo hi"}}
	root := fspath.AbsoluteSystemPath("/workspace")

	def := Build(task, map[string]string{}, root)
	assert.Equal(t, string(def.WorkingDirectory), "/workspace")
}
