package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuenv/cuenv/internal/config"
	"github.com/cuenv/cuenv/internal/signals"
	"github.com/cuenv/cuenv/internal/supervisor"
)

// newShellCmd groups the shell-integration surface (§6 "shell hook").
func newShellCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "shell", Short: "Shell integration"}
	cmd.AddCommand(newShellHookCmd())
	cmd.AddCommand(newShellWatchCmd())
	return cmd
}

// shellTemplates are the per-shell snippets that hook directory entry
// (prompt/cd) into __cuenv_export__, the hidden command that actually
// runs hooks and prints export statements. Emitting shell glue without
// implementing a real export/unload protocol (since nothing in this
// module's own execution path needs it) is explicitly in scope (§6: "...
// surfaces the export/unload protocol" even though it is "unused by the
// core").
var shellTemplates = map[string]string{
	"bash": `_cuenv_hook() {
  local output
  output="$(CUENV_SHELL_HOOK=1 %[1]s __cuenv_export__ 2>/dev/null)" || return 0
  eval "$output"
}
case ";${PROMPT_COMMAND:-};" in
  *";_cuenv_hook;"*) ;;
  *) PROMPT_COMMAND="_cuenv_hook${PROMPT_COMMAND:+;$PROMPT_COMMAND}" ;;
esac
`,
	"zsh": `_cuenv_hook() {
  local output
  output="$(CUENV_SHELL_HOOK=1 %[1]s __cuenv_export__ 2>/dev/null)" || return 0
  eval "$output"
}
if [[ -z "${_CUENV_HOOKED:-}" ]]; then
  typeset -g _CUENV_HOOKED=1
  autoload -U add-zsh-hook
  add-zsh-hook precmd _cuenv_hook
fi
`,
	"fish": `function _cuenv_hook --on-event fish_prompt
    set -l output (env CUENV_SHELL_HOOK=1 %[1]s __cuenv_export__ 2>/dev/null)
    if test $status -eq 0
        for line in $output
            eval $line
        end
    end
end
`,
}

func newShellHookCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "hook <bash|zsh|fish>",
		Short: "Emit shell-integration code for the named shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, ok := shellTemplates[args[0]]
			if !ok {
				return fmt.Errorf("cmd: unsupported shell %q", args[0])
			}
			self, err := os.Executable()
			if err != nil {
				self = "cuenv"
			}
			fmt.Fprintf(cmd.OutOrStdout(), tmpl, self)
			return nil
		},
	}
	g.addFlags(cmd.Flags())
	return cmd
}

// newExportCmd is the hidden command the shell hooks above actually
// invoke on every prompt: it runs the current package's hooks (per the
// §4.8 categorisation table, CUENV_SHELL_HOOK=1 puts preload hooks on the
// background-supervisor path) and prints the resulting variables as
// `export NAME='VALUE'` statements for the calling shell to eval.
func newExportCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:    "__cuenv_export__",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := g.workDir()
			if err != nil {
				return err
			}
			moduleRoot, err := findModuleRoot(workDir)
			if err != nil {
				return nil // outside a module: nothing to export
			}
			pkgDir, result, err := loadPackageAt(moduleRoot, workDir)
			if err != nil {
				return err
			}

			inShellHookContext := os.Getenv("CUENV_SHELL_HOOK") != ""
			logger := g.logger()

			merged := map[string]string{}
			var toBackground []config.Hook
			for _, hook := range result.Hooks {
				switch supervisor.Categorize(hook, inShellHookContext) {
				case supervisor.SpawnBackground:
					toBackground = append(toBackground, hook)
				default:
					vars, err := supervisor.RunAndCapture(cmd.Context(), hook, pkgDir)
					if err != nil {
						logger.Warn("hook failed", "command", hook.Command, "error", err)
						continue
					}
					if hook.Source {
						for k, v := range vars {
							merged[k] = v
						}
					}
				}
			}

			if len(toBackground) > 0 {
				if err := supervisor.SpawnBackgroundChild(toBackground); err != nil {
					logger.Warn("spawning background supervisor failed", "error", err)
				}
			}

			if cache := supervisor.CacheDir(g.app); cache != "" {
				if latest, err := supervisor.ReadLatest(cache); err == nil && latest != nil {
					for k, v := range latest.EnvVars {
						if _, already := merged[k]; !already {
							merged[k] = v
						}
					}
				}
			}

			names := make([]string, 0, len(merged))
			for name := range merged {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "export %s=%s\n", name, shellQuote(merged[name]))
			}
			return nil
		},
	}
	g.addFlags(cmd.Flags())
	return cmd
}

// shellQuote single-quotes s for POSIX shells, escaping any embedded
// single quote the usual '\'' way.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// newShellWatchCmd runs supervisor.Watch in the foreground, printing fresh
// export statements to stdout every time one of the current package's hook
// inputs changes, for long-lived sessions (editors, dev servers) that never
// re-invoke __cuenv_export__ on their own. It exits on SIGINT/SIGTERM via
// signals.Watcher, the teacher's own cleanup-on-signal primitive.
func newShellWatchCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run hooks and print exports whenever their inputs change",
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := g.workDir()
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

			watcher := signals.NewWatcher()
			ctx, cancel := context.WithCancel(cmd.Context())
			watcher.AddOnClose(cancel)
			defer watcher.Close()

			out := cmd.OutOrStdout()
			onChange := func(vars map[string]string) {
				names := make([]string, 0, len(vars))
				for name := range vars {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "export %s=%s\n", name, shellQuote(vars[name]))
				}
			}

			return supervisor.Watch(ctx, pkgDir, result.Hooks, onChange, g.logger())
		},
	}
	g.addFlags(cmd.Flags())
	return cmd
}

// newSupervisorCmd is the hidden entry point a background supervisor
// child re-execs into (§4.8 "Background supervisor").
func newSupervisorCmd() *cobra.Command {
	var g globalFlags
	var hooksJSON string
	cmd := &cobra.Command{
		Use:    "supervisor",
		Short:  "Internal entry point for the detached preload runner",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var hooks []config.Hook
			if err := json.Unmarshal([]byte(hooksJSON), &hooks); err != nil {
				return fmt.Errorf("cmd: decoding --hooks: %w", err)
			}
			workDir, err := g.workDir()
			if err != nil {
				return err
			}
			return supervisor.RunSupervisor(cmd.Context(), g.app, workDir, hooks, nil, g.logger())
		},
	}
	g.addFlags(cmd.Flags())
	cmd.Flags().StringVar(&hooksJSON, "hooks", "[]", "JSON-encoded list of hooks to run")
	return cmd
}
