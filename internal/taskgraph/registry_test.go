package taskgraph

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cuenv/cuenv/internal/config"
)

func TestRegistryValidatesCrossPackageDependency(t *testing.T) {
	apiResult := config.ParseResult{
		Tasks:     map[string]config.TaskNode{"build": leaf("build")},
		TaskOrder: []string{"build"},
	}
	apiResult.Tasks["build"].Task.Outputs = []string{"bin/app"}

	webResult := config.ParseResult{
		Tasks:     map[string]config.TaskNode{"build": leaf("build", "api:build#bin/app")},
		TaskOrder: []string{"build"},
	}

	reg := NewRegistry()
	reg.AddPackage("api", ExpandPackage("api", apiResult))
	reg.AddPackage("web", ExpandPackage("web", webResult))

	errs := reg.Validate()
	assert.Equal(t, len(errs), 0)
}

func TestRegistryRejectsUndeclaredOutput(t *testing.T) {
	apiResult := config.ParseResult{
		Tasks:     map[string]config.TaskNode{"build": leaf("build")},
		TaskOrder: []string{"build"},
	}

	webResult := config.ParseResult{
		Tasks:     map[string]config.TaskNode{"build": leaf("build", "api:build#bin/app")},
		TaskOrder: []string{"build"},
	}

	reg := NewRegistry()
	reg.AddPackage("api", ExpandPackage("api", apiResult))
	reg.AddPackage("web", ExpandPackage("web", webResult))

	errs := reg.Validate()
	assert.Equal(t, len(errs), 1)
	assert.ErrorContains(t, errs[0], "not declared")
}

func TestRegistryRejectsUnresolvedDependency(t *testing.T) {
	webResult := config.ParseResult{
		Tasks:     map[string]config.TaskNode{"build": leaf("build", "missing:task")},
		TaskOrder: []string{"build"},
	}

	reg := NewRegistry()
	reg.AddPackage("web", ExpandPackage("web", webResult))

	errs := reg.Validate()
	assert.Equal(t, len(errs), 1)
	assert.ErrorContains(t, errs[0], "does not resolve")
}
