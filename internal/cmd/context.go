// Package cmd wires the discovery, task graph, staging, and execution
// packages together behind a cobra command tree (§6 "External
// Interfaces"). Flag parsing, logger construction from a -v count, and the
// --cwd convention follow the teacher's internal/cmdutil.Helper,
// generalized away from that package's now-removed client/login/config
// dependencies since cuenv authenticates nothing and reads its own
// internal/config instead of a JS workspace manifest.
package cmd

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/cuenv/cuenv/internal/fspath"
)

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	cwd       string
	verbosity int
	app       string
}

func (g *globalFlags) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&g.cwd, "cwd", "", "directory to run in (defaults to the current directory)")
	flags.CountVarP(&g.verbosity, "verbosity", "v", "increase logging verbosity")
	flags.StringVar(&g.app, "app", "cuenv", "application name, used to namespace the instance lock and preload cache")
}

// logger builds an hclog.Logger whose level is driven by how many times -v
// was given: 0 is silent, 1 info, 2 debug, 3+ trace.
func (g *globalFlags) logger() hclog.Logger {
	var level hclog.Level
	switch {
	case g.verbosity <= 0:
		level = hclog.NoLevel
	case g.verbosity == 1:
		level = hclog.Info
	case g.verbosity == 2:
		level = hclog.Debug
	default:
		level = hclog.Trace
	}

	output := ioutil.Discard
	color := hclog.ColorOff
	if level != hclog.NoLevel {
		output = os.Stderr
		color = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "cuenv",
		Level:  level,
		Color:  color,
		Output: output,
	})
}

// workDir resolves --cwd (or the process's actual working directory) to an
// absolute path.
func (g *globalFlags) workDir() (fspath.AbsoluteSystemPath, error) {
	dir := g.cwd
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return fspath.AbsoluteSystemPath(filepath.Clean(abs)), nil
}

// dataDir returns the per-app directory the Action Cache (CAS, entries,
// and signing key) is persisted under, outside the module tree:
// <xdg.CacheHome>/<app>, i.e. $XDG_CACHE_HOME/<app>.
func dataDir(app string) fspath.AbsoluteSystemPath {
	return fspath.AbsoluteSystemPath(xdg.CacheHome).Join(app)
}
