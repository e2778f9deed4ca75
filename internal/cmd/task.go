package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pyr-sh/dag"
	"github.com/spf13/cobra"

	"github.com/cuenv/cuenv/internal/actioncache"
	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/executor"
	"github.com/cuenv/cuenv/internal/spinner"
	"github.com/cuenv/cuenv/internal/staging"
	"github.com/cuenv/cuenv/internal/taskbuilder"
	"github.com/cuenv/cuenv/internal/util"
)

// runFlags are the overlay/capability/audit flags shared by "task run"
// and "task exec" (§6 "External Interfaces").
type runFlags struct {
	global       globalFlags
	overlay      string
	capabilities []string
	audit        bool
	concurrency  int
}

func (r *runFlags) addFlags(cmd *cobra.Command) {
	r.global.addFlags(cmd.Flags())
	cmd.Flags().StringVarP(&r.overlay, "env", "e", "", "environment overlay to select")
	cmd.Flags().StringArrayVarP(&r.capabilities, "cap", "c", nil, "enable a capability (repeatable)")
	cmd.Flags().BoolVar(&r.audit, "audit", false, "bypass the action cache: always execute, never read or write cached results")
	r.concurrency = defaultConcurrency()
	cmd.Flags().Var(&util.ConcurrencyValue{Value: &r.concurrency}, "concurrency",
		fmt.Sprintf("limit concurrent task execution, as a count or a percentage of CPU cores (default %d)", r.concurrency))
}

func newDiscoverCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enumerate packages under the module root",
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := g.workDir()
			if err != nil {
				return err
			}
			moduleRoot, err := findModuleRoot(workDir)
			if err != nil {
				return err
			}
			catalog, err := discoverCatalog(moduleRoot)
			if err != nil {
				return err
			}
			for _, name := range catalog.Names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	g.addFlags(cmd.Flags())
	return cmd
}

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and run tasks",
	}
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskRunCmd())
	cmd.AddCommand(newTaskExecCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var g globalFlags
	var verbose bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Enumerate tasks, grouped by package",
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := g.workDir()
			if err != nil {
				return err
			}
			moduleRoot, err := findModuleRoot(workDir)
			if err != nil {
				return err
			}
			p, err := loadPipeline(moduleRoot, "", nil)
			if err != nil {
				return err
			}
			for _, pkgName := range p.registry.PackageNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", pkgName)
				for _, ft := range p.registry.TasksInPackage(pkgName) {
					if ft.IsBarrier || ft.Task == nil {
						continue
					}
					if verbose {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%s\n", ft.ID, strings.Join(ft.Dependencies, ", "))
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", ft.ID)
					}
				}
			}
			return nil
		},
	}
	g.addFlags(cmd.Flags())
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show each task's dependencies")
	return cmd
}

func newTaskRunCmd() *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <ref> [-- args...]",
		Short: "Execute a task reference; exit with the task's exit code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, rf, args[0])
		},
	}
	rf.addFlags(cmd)
	return cmd
}

// runGraph loads the whole module's task graph (a target task's
// dependencies must run regardless of what else is in the module) and
// executes it, reporting the referenced target's own exit code.
func runGraph(cmd *cobra.Command, rf *runFlags, targetRef string) error {
	workDir, err := rf.global.workDir()
	if err != nil {
		return err
	}
	moduleRoot, err := findModuleRoot(workDir)
	if err != nil {
		return err
	}
	p, err := loadPipeline(moduleRoot, rf.overlay, rf.capabilities)
	if err != nil {
		return err
	}

	targetPkg, err := packageNameForDir(moduleRoot, workDir)
	if err != nil {
		return err
	}
	targetVertex, ok := p.registry.Resolve(targetPkg, targetRef)
	if !ok {
		return fmt.Errorf("cmd: task reference %q does not resolve to a known task", targetRef)
	}
	targetVertexID := vertexID(targetVertex.Package, targetVertex.ID)

	logger := rf.global.logger()
	dir, err := staging.New("")
	if err != nil {
		return err
	}
	defer dir.Close()

	stagingL, stageErrs := stagingListener(p, dir, staging.Symlink, logger)

	var cache *actioncache.Cache
	if !rf.audit {
		var buildErr error
		waitErr := spinner.WaitFor(context.Background(), func() {
			cache, buildErr = buildCache(rf.global.app, logger)
		}, cmd.ErrOrStderr(), "preparing action cache...", 500*time.Millisecond)
		if buildErr != nil {
			return buildErr
		}
		if waitErr != nil {
			return waitErr
		}
	}

	progressL, finishProgress := progressListener(len(p.tasks))
	listener := combineListeners(stagingL, progressL)

	exec := executor.New(p.graph, p.tasks, executor.Options{
		Concurrency: rf.concurrency,
		Cache:       cache,
		Audit:       rf.audit,
		Logger:      logger,
	})

	execErrs := exec.Execute(context.Background(), listener)
	finishProgress()
	var merged *multierror.Error
	merged = multierror.Append(merged, execErrs...)
	merged = multierror.Append(merged, (*stageErrs)...)
	if merged.ErrorOrNil() != nil {
		for _, e := range merged.Errors {
			fmt.Fprintln(cmd.ErrOrStderr(), e)
		}
		return fmt.Errorf("cmd: %d task(s) failed", len(merged.Errors))
	}

	result := exec.Results()[targetVertexID]
	if result == nil {
		return fmt.Errorf("cmd: task %q did not produce a result", targetRef)
	}
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}

func newTaskExecCmd() *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "exec <cmd> [args...]",
		Short: "Run an arbitrary command under the loaded environment (no sandbox is applied)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execAdHoc(cmd, rf, args)
		},
	}
	rf.addFlags(cmd)
	return cmd
}

// execAdHoc runs an arbitrary command under the current package's loaded
// environment, without going through the task graph or Action Cache (§6
// "task exec").
func execAdHoc(cmd *cobra.Command, rf *runFlags, args []string) error {
	workDir, err := rf.global.workDir()
	if err != nil {
		return err
	}
	moduleRoot, err := findModuleRoot(workDir)
	if err != nil {
		return err
	}

	pkgDir, result, err := loadPackageAt(moduleRoot, workDir)
	if err != nil {
		return err
	}
	vars := taskbuilder.BuildEnvironment(result, rf.overlay, rf.capabilities)

	task := config.TaskConfig{
		Name:      "exec",
		Execution: config.ExecutionMode{Command: strings.Join(args, " ")},
		Cache:     config.CachePolicy{Enabled: false},
	}
	def := taskbuilder.Build(task, vars, pkgDir)

	env := baseEnv()
	for k, v := range vars {
		env[k] = v
	}

	graph := &dag.AcyclicGraph{}
	graph.Add("exec")
	tasks := map[string]*executor.TaskContext{"exec": {Def: def, Env: env}}

	logger := rf.global.logger()
	exec := executor.New(graph, tasks, executor.Options{Concurrency: 1, Audit: true, Logger: logger})
	errs := exec.Execute(context.Background(), nil)
	if len(errs) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), errs[0])
		if result := exec.Results()["exec"]; result != nil && result.ExitCode != 0 {
			os.Exit(result.ExitCode)
		}
		return errs[0]
	}
	if result := exec.Results()["exec"]; result != nil && result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}
