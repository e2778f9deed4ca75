package ui

import (
	"os"

	"github.com/mattn/go-isatty"

	"github.com/cuenv/cuenv/internal/ci"
)

// IsTTY is true when stdout appears to be a terminal.
var IsTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

// IsCI is true when we appear to be running in a non-interactive context,
// either because stdout isn't a terminal or a recognised CI provider's env
// vars are set.
var IsCI = !IsTTY || ci.IsCi()
