// Package taskbuilder implements the Task Builder (§4.3): it runs before
// group expansion (Discovery → Parser → Task Builder → Task Registry →
// Executor, §2), producing the final environment-variable map for a
// build (overlay-merged, capability-filtered) and, from it, each leaf
// task's materialised TaskDefinition with ${VAR} references expanded and
// its working directory resolved against the workspace root. The
// shallow-merge-with-override idiom for variable maps follows this
// codebase's internal/env/env.go (EnvironmentVariableMap.Union).
package taskbuilder

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/env"
	"github.com/cuenv/cuenv/internal/fspath"
)

// BuildEnvironment produces the final variable map for one build: the
// base variables with any disallowed-by-capability entries dropped, then
// the selected overlay's variables (filtered the same way) shallow-merged
// on top via env.EnvironmentVariableMap.Union, overlay values winning on
// name collision.
func BuildEnvironment(result config.ParseResult, overlayName string, capabilities []string) map[string]string {
	active := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		active[c] = true
	}

	final := env.EnvironmentVariableMap(filterByCapability(result.Variables, active))

	if overlayName != "" {
		if overlay, ok := result.Overlays[overlayName]; ok {
			overlayVars := env.EnvironmentVariableMap(filterByCapability(overlay.Variables, active))
			final.Union(overlayVars)
		}
	}

	return final
}

// filterByCapability drops every variable that declares at least one
// capability tag not present in active (§4.3: "Drop variables whose
// metadata declares a capability not in the active set").
func filterByCapability(vars map[string]config.Variable, active map[string]bool) map[string]string {
	out := make(map[string]string, len(vars))
	for name, v := range vars {
		allowed := true
		for _, cap := range v.Metadata.Capabilities {
			if !active[cap] {
				allowed = false
				break
			}
		}
		if allowed {
			out[name] = v.Value
		}
	}
	return out
}

// TaskDefinition is the materialised form of one leaf task (§3): its
// execution content and working directory have had ${VAR} references
// expanded against the build's final variable map, and its working
// directory has been resolved to an absolute, canonical path.
type TaskDefinition struct {
	Name             string
	IsScript         bool
	ExecutionContent string
	Dependencies     []string
	WorkingDirectory fspath.AbsoluteSystemPath
	Shell            string
	Inputs           []string
	Outputs          []string
	Security         config.SecurityPolicy
	Cache            config.CachePolicy
	TimeoutSeconds   int
}

// Build materialises one task's TaskDefinition: expanding ${VAR}
// references in its command/script and working directory against vars,
// then resolving a relative working directory against workspaceRoot.
func Build(task config.TaskConfig, vars map[string]string, workspaceRoot fspath.AbsoluteSystemPath) *TaskDefinition {
	content := ExpandVars(task.Execution.Content(), vars)
	workDir := ExpandVars(task.WorkingDirectory, vars)

	var resolved fspath.AbsoluteSystemPath
	switch {
	case workDir == "":
		resolved = workspaceRoot
	case filepath.IsAbs(workDir):
		resolved = fspath.AbsoluteSystemPath(filepath.Clean(workDir))
	default:
		resolved = workspaceRoot.Join(workDir)
	}

	return &TaskDefinition{
		Name:             task.Name,
		IsScript:         task.Execution.IsScript(),
		ExecutionContent: content,
		Dependencies:     task.Dependencies,
		WorkingDirectory: resolved,
		Shell:            task.Shell,
		Inputs:           task.Inputs,
		Outputs:          task.Outputs,
		Security:         task.Security,
		Cache:            task.Cache,
		TimeoutSeconds:   task.TimeoutSeconds,
	}
}

// ExpandVars replaces every ${NAME} reference in s with vars[NAME] (the
// empty string if NAME is unset). A "${" with no matching closing brace
// is passed through literally rather than treated as an error (§4.3).
func ExpandVars(s string, vars map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if i+1 < len(s) && s[i] == '$' && s[i+1] == '{' {
			close := strings.IndexByte(s[i+2:], '}')
			if close < 0 {
				b.WriteString(s[i:])
				break
			}
			name := s[i+2 : i+2+close]
			b.WriteString(vars[name])
			i = i + 2 + close + 1
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// SortedNames returns vars' keys in sorted order, for deterministic
// env-allowlist hashing (§3 "ActionDigest").
func SortedNames(vars map[string]string) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
