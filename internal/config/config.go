// Package config defines the external parser's contract (spec §1): the
// front-end that turns a module's configuration files into a ParseResult
// is a black box outside this system's scope. This package only defines
// the shape that contract produces and decodes raw, loosely-typed
// parser output into it via github.com/mitchellh/mapstructure, the same
// library the teacher uses to reshape loosely-typed data (its
// internal/analytics/analytics.go's event-to-map decoding).
package config

// VariableMetadata carries the capability tags gating a variable's
// visibility, per §4.3's capability filter.
type VariableMetadata struct {
	Capabilities []string `mapstructure:"capabilities"`
}

// Variable is one entry in the parsed environment: a name, its base
// value, and the capability tags that gate it.
type Variable struct {
	Name     string           `mapstructure:"name"`
	Value    string           `mapstructure:"value"`
	Metadata VariableMetadata `mapstructure:"metadata"`
}

// ExecutionMode distinguishes a single-line Command from a multi-line
// Script (§3 "TaskDefinition").
type ExecutionMode struct {
	Command string `mapstructure:"command,omitempty"`
	Script  string `mapstructure:"script,omitempty"`
}

// IsScript reports whether this execution mode is a multi-line script
// rather than a single command line.
func (m ExecutionMode) IsScript() bool { return m.Script != "" }

// Content returns the text to execute, whichever mode is set.
func (m ExecutionMode) Content() string {
	if m.IsScript() {
		return m.Script
	}
	return m.Command
}

// SecurityPolicy is the raw, pre-inference form of a task's sandbox
// configuration (§3 "security", §4.6).
type SecurityPolicy struct {
	RestrictDisk    bool     `mapstructure:"restrict_disk"`
	RestrictNetwork bool     `mapstructure:"restrict_network"`
	ReadOnlyPaths   []string `mapstructure:"read_only_paths"`
	ReadWritePaths  []string `mapstructure:"read_write_paths"`
	DenyPaths       []string `mapstructure:"deny_paths"`
	AllowedHosts    []string `mapstructure:"allowed_hosts"`
	InferFromIO     bool     `mapstructure:"infer_from_io"`
}

// CachePolicy is a task's declared caching behaviour (§3 "cache").
type CachePolicy struct {
	Enabled        bool     `mapstructure:"enabled"`
	ExplicitKey    string   `mapstructure:"explicit_key,omitempty"`
	EnvVarAllowlist []string `mapstructure:"env_var_allowlist"`
}

// TaskConfig is the raw, parser-produced form of one task, before the
// Task Builder applies overlays, capability filtering, and ${VAR}
// expansion (§3 "TaskDefinition", §4.3).
type TaskConfig struct {
	Name             string         `mapstructure:"name"`
	Execution        ExecutionMode  `mapstructure:"execution"`
	Dependencies     []string       `mapstructure:"dependencies"`
	WorkingDirectory string         `mapstructure:"working_directory,omitempty"`
	Shell            string         `mapstructure:"shell,omitempty"`
	Inputs           []string       `mapstructure:"inputs"`
	Outputs          []string       `mapstructure:"outputs"`
	Security         SecurityPolicy `mapstructure:"security"`
	Cache            CachePolicy    `mapstructure:"cache"`
	TimeoutSeconds   int            `mapstructure:"timeout_seconds"`
}

// GroupMode is a TaskNode group's execution semantics (§3 "TaskNode").
type GroupMode string

const (
	ModeParallel   GroupMode = "parallel"
	ModeSequential GroupMode = "sequential"
	ModeWorkflow   GroupMode = "workflow"
	ModeGroup      GroupMode = "group"
)

// TaskNode is either a leaf TaskConfig or a Group of further TaskNodes
// (§3 "TaskNode": "ordered map<name, TaskNode>"). Decode receives group
// children as an unordered map and carries them sorted by name.
type TaskNode struct {
	Task *TaskConfig

	GroupMode GroupMode
	Children  []NamedTaskNode
}

// IsLeaf reports whether this node is a task rather than a group.
func (n TaskNode) IsLeaf() bool { return n.Task != nil }

// NamedTaskNode pairs a TaskNode with the name it was declared under, so
// group children are carried as a slice in a fixed order (name order, as
// Decode builds them) rather than as an unordered Go map.
type NamedTaskNode struct {
	Name string
	Node TaskNode
}

// Hook is an on-enter hook entry (§4.8), categorised by source/preload.
type Hook struct {
	Command          string   `mapstructure:"command"`
	Args             []string `mapstructure:"args"`
	WorkingDirectory string   `mapstructure:"working_directory,omitempty"`
	Source           bool     `mapstructure:"source"`
	Preload          bool     `mapstructure:"preload"`
	Inputs           []string `mapstructure:"inputs"`
}

// Overlay is a named environment overlay: variables that shallow-merge
// over the base set when selected (§4.3).
type Overlay struct {
	Name      string              `mapstructure:"name"`
	Variables map[string]Variable `mapstructure:"variables"`
}

// ParseResult is the external parser's complete contract output for one
// package's configuration file (§1): variables with capability metadata,
// task definitions, hooks, and environment overlays.
type ParseResult struct {
	Variables map[string]Variable  `mapstructure:"variables"`
	Tasks     map[string]TaskNode  `mapstructure:"tasks"`
	TaskOrder []string             `mapstructure:"task_order"`
	Hooks     []Hook               `mapstructure:"hooks"`
	Overlays  map[string]Overlay   `mapstructure:"overlays"`
	Revision  string               `mapstructure:"revision"`
}

// OrderedTasks returns this ParseResult's tasks in the order the parser
// declared them, falling back to the map's (arbitrary) iteration order
// for any name missing from TaskOrder.
func (r ParseResult) OrderedTasks() []NamedTaskNode {
	seen := make(map[string]bool, len(r.Tasks))
	ordered := make([]NamedTaskNode, 0, len(r.Tasks))
	for _, name := range r.TaskOrder {
		if node, ok := r.Tasks[name]; ok && !seen[name] {
			ordered = append(ordered, NamedTaskNode{Name: name, Node: node})
			seen[name] = true
		}
	}
	for name, node := range r.Tasks {
		if !seen[name] {
			ordered = append(ordered, NamedTaskNode{Name: name, Node: node})
			seen[name] = true
		}
	}
	return ordered
}
