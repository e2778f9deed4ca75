// Package taskgraph implements task reference parsing (§4.2, §6), group
// expansion into a flattened, barrier-annotated task list, and
// cross-package dependency validation. The delimiter-constant-plus-
// parse/print-pair idiom follows Turborepo's util/task_id.go
// (TaskDelimiter, GetTaskId, GetPackageTaskFromId), though that file's own
// grammar (a single "#" splitting package from task) does not match this
// package's grammar (":" splits package from task, "#" names an output)
// and so is not reused verbatim.
package taskgraph

import (
	"fmt"
	"strings"
)

// Reference is a parsed task reference: "task", "pkg:task", or
// "pkg:task#output" (§4.2).
type Reference struct {
	Package string // empty for a reference local to the current package
	Task    string
	Output  string // empty if no #output suffix
}

// ParseReference parses s per the grammar of §4.2: a package name may
// itself contain ":" as a path separator, so the task name is always the
// segment after the *last* ":". A "#output" suffix is only valid on a
// cross-package reference; a local output reference ("task#output") is
// rejected.
func ParseReference(s string) (Reference, error) {
	base := s
	output := ""
	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		base = s[:idx]
		output = s[idx+1:]
		if output == "" {
			return Reference{}, fmt.Errorf("taskgraph: empty output name in reference %q", s)
		}
	}

	pkg := ""
	task := base
	hasColon := strings.LastIndexByte(base, ':') >= 0
	if idx := strings.LastIndexByte(base, ':'); idx >= 0 {
		pkg = base[:idx]
		task = base[idx+1:]
	}

	if task == "" {
		return Reference{}, fmt.Errorf("taskgraph: empty task name in reference %q", s)
	}
	if hasColon && pkg == "" {
		return Reference{}, fmt.Errorf("taskgraph: empty package name in reference %q", s)
	}
	if output != "" && pkg == "" {
		return Reference{}, fmt.Errorf("taskgraph: local output reference %q is rejected; outputs are only addressable across packages", s)
	}

	return Reference{Package: pkg, Task: task, Output: output}, nil
}

// String prints r back into the grammar ParseReference accepts, such
// that ParseReference(r.String()) == r for every well-formed r and
// ParseReference(s).String() == s for every valid s.
func (r Reference) String() string {
	var b strings.Builder
	if r.Package != "" {
		b.WriteString(r.Package)
		b.WriteByte(':')
	}
	b.WriteString(r.Task)
	if r.Output != "" {
		b.WriteByte('#')
		b.WriteString(r.Output)
	}
	return b.String()
}

// IsLocal reports whether r refers to a task in the current package.
func (r Reference) IsLocal() bool { return r.Package == "" }
