package ui

import "github.com/fatih/color"

var gray = color.New(color.Faint)
var bold = color.New(color.Bold)

// Dim prints out dimmed text, used for the progress line's running count.
func Dim(str string) string {
	return gray.Sprint(str)
}

// Bold prints out bold text, used for a run's final summary line.
func Bold(str string) string {
	return bold.Sprint(str)
}
