// Package cmd holds cuenv's root cobra command, wiring Discovery, the
// Task Builder, the Task Registry, the Executor, Dependency Staging, and
// the Environment Supervisor behind the CLI surface of §6 "External
// Interfaces". The Sandbox Enforcer (internal/sandbox) is not wired in:
// "task run" and "task exec" start their processes without filesystem or
// network restriction. Command-tree construction follows
// the teacher's own internal/cmd/root.go (one constructor per subcommand,
// assembled by a single getCmd-equivalent).
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds cuenv's root command.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "cuenv",
		Short:   "Hermetic environment and task execution engine for polyglot monorepos",
		Version: version,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.AddCommand(newDiscoverCmd())
	root.AddCommand(newTaskCmd())
	root.AddCommand(newShellCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newSupervisorCmd())

	return root
}
